package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/brainless/csvexplorer/internal/csvparse"
	"github.com/brainless/csvexplorer/internal/fetch"
	"github.com/brainless/csvexplorer/internal/importer"
	"github.com/brainless/csvexplorer/internal/reference"
	"github.com/brainless/csvexplorer/internal/storage"
)

const defaultRowLimit = 100

type importRequest struct {
	URL       string `json:"url"`
	ChunkSize int    `json:"chunk_size"`
	Force     bool   `json:"force"`
}

// listDatasetsHandler returns every cached dataset's metadata.
func (s *Server) listDatasetsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.importer.ListCached(r.Context())
	if err != nil {
		s.writeImportError(w, err)
		return
	}
	if list == nil {
		list = []*storage.DatasetMeta{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) importDatasetHandler(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.importer.ImportFromURL(r.Context(), req.URL, s.importOptions(req.ChunkSize, req.Force))
	if err != nil {
		s.writeImportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) datasetMetaHandler(w http.ResponseWriter, r *http.Request) {
	url, ok := requireURL(w, r)
	if !ok {
		return
	}
	cached, err := s.importer.LoadFromCache(r.Context(), url)
	if err != nil {
		s.writeImportError(w, err)
		return
	}
	if cached == nil {
		writeError(w, http.StatusNotFound, "Dataset not cached")
		return
	}
	writeJSON(w, http.StatusOK, cached)
}

func (s *Server) datasetChunkHandler(w http.ResponseWriter, r *http.Request) {
	url, ok := requireURL(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "index must be a non-negative integer")
		return
	}
	chunk, err := s.importer.Chunk(r.Context(), url, index)
	if err != nil {
		s.writeImportError(w, err)
		return
	}
	if chunk == nil {
		writeError(w, http.StatusNotFound, "Chunk not found")
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

func (s *Server) datasetRowsHandler(w http.ResponseWriter, r *http.Request) {
	url, ok := requireURL(w, r)
	if !ok {
		return
	}
	offset, err1 := intParam(r, "offset", 0)
	limit, err2 := intParam(r, "limit", defaultRowLimit)
	if err1 != nil || err2 != nil || offset < 0 || limit < 0 {
		writeError(w, http.StatusBadRequest, "offset and limit must be non-negative integers")
		return
	}
	rows, err := s.importer.ReadRows(r.Context(), url, offset, limit)
	if err != nil {
		s.writeImportError(w, err)
		return
	}
	if rows == nil {
		writeError(w, http.StatusNotFound, "Dataset not cached")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":    url,
		"offset": offset,
		"rows":   rows,
	})
}

func (s *Server) clearDatasetHandler(w http.ResponseWriter, r *http.Request) {
	url, ok := requireURL(w, r)
	if !ok {
		return
	}
	if err := s.importer.Clear(r.Context(), url); err != nil {
		s.writeImportError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) datasetReferenceHandler(w http.ResponseWriter, r *http.Request) {
	url, ok := requireURL(w, r)
	if !ok {
		return
	}
	cached, err := s.importer.LoadFromCache(r.Context(), url)
	if err != nil {
		s.writeImportError(w, err)
		return
	}
	if cached == nil {
		writeError(w, http.StatusNotFound, "Dataset not cached")
		return
	}

	page := reference.Build(url, cached.Meta, r.URL.Query().Get("title"))
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, map[string]any{
			"url":         page.URL,
			"dataset_id":  page.DatasetID,
			"schema":      cached.Meta.Schema,
			"questions":   page.Questions,
			"rules":       page.Rules,
			"sql":         page.SQL,
			"header_line": reference.HeaderLine(cached.Meta),
		})
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(page.Markdown()))
}

// writeImportError maps domain errors onto HTTP statuses.
func (s *Server) writeImportError(w http.ResponseWriter, err error) {
	var (
		fetchErr   *fetch.FetchError
		emptyErr   *importer.EmptyDatasetError
		invalidErr *csvparse.InvalidInputError
	)
	switch {
	case errors.Is(err, importer.ErrMissingURL):
		writeError(w, http.StatusBadRequest, "URL is required")
	case errors.As(err, &fetchErr):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  fetchErr.Message(),
			"status": fetchErr.Status,
			"hint":   fetchErr.Detail.Hint,
		})
	case errors.As(err, &emptyErr), errors.As(err, &invalidErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.WithError(err).Error("Dataset request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func requireURL(w http.ResponseWriter, r *http.Request) (string, bool) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return "", false
	}
	return url, true
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) registerDatasetRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/datasets", s.listDatasetsHandler)
	mux.HandleFunc("DELETE /api/datasets", s.clearDatasetHandler)
	mux.HandleFunc("POST /api/datasets/import", s.importDatasetHandler)
	mux.HandleFunc("GET /api/datasets/meta", s.datasetMetaHandler)
	mux.HandleFunc("GET /api/datasets/chunk", s.datasetChunkHandler)
	mux.HandleFunc("GET /api/datasets/rows", s.datasetRowsHandler)
	mux.HandleFunc("GET /api/datasets/reference", s.datasetReferenceHandler)
}
