package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var embeddedFiles embed.FS

// StaticHandler returns an http.Handler that serves the embedded landing page
func StaticHandler() (http.Handler, error) {
	staticFS, err := fs.Sub(embeddedFiles, "static")
	if err != nil {
		return nil, err
	}
	return http.FileServer(http.FS(staticFS)), nil
}
