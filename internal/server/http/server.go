// Package httpserver provides the HTTP REST API for the research assistant service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/scholarsynth/research-assistant-service/internal/database"
	"github.com/scholarsynth/research-assistant-service/internal/ingest"
	"github.com/scholarsynth/research-assistant-service/internal/llm"
	"github.com/scholarsynth/research-assistant-service/internal/repository"
	"github.com/scholarsynth/research-assistant-service/internal/scheduler"
	"github.com/scholarsynth/research-assistant-service/internal/vectorstore"
)

// DocumentIngester runs the ingestion pipeline for an uploaded document.
type DocumentIngester interface {
	Ingest(ctx context.Context, documentID uuid.UUID, content []byte) error
}

// ReviewRunner executes a literature review job to completion.
type ReviewRunner interface {
	Run(ctx context.Context, reviewID uuid.UUID)
}

// healthChecker reports database health for the liveness endpoints.
type healthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

var (
	_ DocumentIngester = (*ingest.Pipeline)(nil)
	_ ReviewRunner     = (*scheduler.Scheduler)(nil)
	_ healthChecker    = (*database.DB)(nil)
)

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// MaxUploadBytes caps the accepted size of uploaded PDFs.
	MaxUploadBytes int64
}

const defaultMaxUploadBytes = 32 << 20

// Server is the HTTP REST API server.
type Server struct {
	router         chi.Router
	httpServer     *http.Server
	docs           repository.DocumentRepository
	reviews        repository.ReviewRepository
	ingester       DocumentIngester
	runner         ReviewRunner
	embedder       llm.Embedder
	vectors        vectorstore.VectorStore
	db             healthChecker
	validate       *validator.Validate
	maxUploadBytes int64
	logger         zerolog.Logger
}

// Options bundles the dependencies of the HTTP server.
type Options struct {
	Config    Config
	Documents repository.DocumentRepository
	Reviews   repository.ReviewRepository
	Ingester  DocumentIngester
	Runner    ReviewRunner
	Embedder  llm.Embedder
	Vectors   vectorstore.VectorStore
	DB        healthChecker
	Logger    zerolog.Logger
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(opts Options) *Server {
	maxUpload := opts.Config.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	s := &Server{
		docs:           opts.Documents,
		reviews:        opts.Reviews,
		ingester:       opts.Ingester,
		runner:         opts.Runner,
		embedder:       opts.Embedder,
		vectors:        opts.Vectors,
		db:             opts.DB,
		validate:       newValidator(),
		maxUploadBytes: maxUpload,
		logger:         opts.Logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         opts.Config.Address,
		Handler:      s.router,
		ReadTimeout:  opts.Config.ReadTimeout,
		WriteTimeout: opts.Config.WriteTimeout,
		IdleTimeout:  opts.Config.IdleTimeout,
	}

	return s
}

// newValidator builds the request validator, reporting field names by their
// JSON tag so validation messages match the wire format.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)
		r.Use(ownerContextMiddleware)

		r.Post("/documents", s.uploadDocument)
		r.Get("/documents", s.listDocuments)
		r.Get("/documents/{documentID}", s.getDocument)
		r.Delete("/documents/{documentID}", s.deleteDocument)
		r.Get("/documents/{documentID}/chunks", s.getDocumentChunks)
		r.Get("/documents/{documentID}/chunks/search", s.searchDocumentChunks)
		r.Get("/documents/{documentID}/citations", s.getDocumentCitations)

		r.Post("/search", s.searchChunks)

		r.Post("/reviews", s.createReview)
		r.Get("/reviews", s.listReviews)
		r.Get("/reviews/{reviewID}", s.getReview)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
