package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brainless/csvexplorer/internal/fetch"
	"github.com/brainless/csvexplorer/internal/importer"
	"github.com/brainless/csvexplorer/internal/jobs"
	"github.com/brainless/csvexplorer/internal/log"
	"github.com/brainless/csvexplorer/internal/web"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

var (
	DefaultTrustedDomains = []string{
		"data.healthcare.gov",
		"data.cdc.gov",
		"healthdata.gov",
		"cms.gov",
		"github.com",
		"raw.githubusercontent.com",
	}
	DefaultHealthcareBaseURL = "https://data.healthcare.gov"
	DefaultUpstreamTimeout   = 30 * time.Second
	DefaultMaxBodyBytes      = fetch.DefaultMaxBodyBytes
)

// ProxyUserAgent identifies the CSV proxy to upstream hosts.
const ProxyUserAgent = "CSV-Explorer-Proxy/1.0"

// ServerConfig represents server configuration options
type ServerConfig struct {
	ServeStatic bool // Whether to serve the embedded landing page
	// TrustedDomains are the hosts the CSV proxy may fetch from.
	TrustedDomains    []string
	UpstreamTimeout   time.Duration
	HealthcareBaseURL string
	// MaxBodyBytes caps how much of an upstream body is read.
	MaxBodyBytes int64
	// ChunkSize and SampleSize apply to imports that do not set their own.
	ChunkSize  int
	SampleSize int
	// Workers bounds concurrent imports within one batch job.
	Workers int
	Logger  logrus.FieldLogger
}

// Server represents the API server
type Server struct {
	httpServer *http.Server
	importer   *importer.Importer
	jobManager *jobs.Manager
	upstream   *http.Client
	config     ServerConfig
	logger     logrus.FieldLogger
	// portalURL builds the base URL of a data portal from its domain.
	portalURL func(domain string) string
}

// NewServer creates a new server instance. jobManager may be nil, in which
// case the job routes answer 503.
func NewServer(addr string, imp *importer.Importer, jobManager *jobs.Manager, config ServerConfig) *Server {
	if config.TrustedDomains == nil {
		config.TrustedDomains = DefaultTrustedDomains
	}
	if config.UpstreamTimeout <= 0 {
		config.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if config.HealthcareBaseURL == "" {
		config.HealthcareBaseURL = DefaultHealthcareBaseURL
	}
	config.HealthcareBaseURL = strings.TrimRight(config.HealthcareBaseURL, "/")
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if config.Workers <= 0 {
		config.Workers = importer.DefaultWorkers
	}
	if config.Logger == nil {
		config.Logger = log.Logger
	}

	server := &Server{
		importer:   imp,
		jobManager: jobManager,
		config:     config,
		logger:     config.Logger,
		portalURL:  func(domain string) string { return "https://" + domain },
	}
	server.upstream = &http.Client{
		Timeout: config.UpstreamTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after %d redirects", len(via))
			}
			if !server.isTrustedURL(req.URL.String()) {
				return fmt.Errorf("redirect to untrusted host %s", req.URL.Host)
			}
			return nil
		},
	}

	mux := http.NewServeMux()
	server.registerAPIRoutes(mux)
	if config.ServeStatic {
		server.registerStaticRoutes(mux)
	} else {
		mux.HandleFunc("GET /{$}", rootHandler)
	}

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(mux)

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server
}

// Handler returns the root handler, including CORS.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Infof("Starting API server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down API server")

	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// registerAPIRoutes registers all API routes
func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", healthHandler)

	s.registerProxyRoutes(mux)
	s.registerDatasetRoutes(mux)
	s.registerJobsRoutes(mux)
}

// registerStaticRoutes serves the embedded landing page for non-API paths.
func (s *Server) registerStaticRoutes(mux *http.ServeMux) {
	staticHandler, err := web.StaticHandler()
	if err != nil {
		s.logger.Errorf("Failed to create static handler: %v", err)
		mux.HandleFunc("GET /{$}", rootHandler)
		return
	}

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		staticHandler.ServeHTTP(w, r)
	})
}

// rootHandler handles root path requests (API-only mode)
func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "CSV Explorer API Server\n")
}

// importOptions fills request values that were left unset from the config.
func (s *Server) importOptions(chunkSize int, force bool) importer.Options {
	if chunkSize <= 0 {
		chunkSize = s.config.ChunkSize
	}
	return importer.Options{
		ChunkSize:  chunkSize,
		SampleSize: s.config.SampleSize,
		Force:      force,
	}
}

// readUpstream reads at most MaxBodyBytes of body.
func (s *Server) readUpstream(body io.Reader) ([]byte, error) {
	return fetch.ReadLimited(body, s.config.MaxBodyBytes)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Logger.Warnf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
