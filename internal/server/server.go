// Package server provides the HTTP API for blueprint.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/blueprint/internal/config"
	"github.com/hyperjump/blueprint/internal/models"
)

// Retriever finds the passages relevant to a question.
type Retriever interface {
	Search(ctx context.Context, query, namespace string, topK int) ([]models.RetrievalHit, error)
}

// Answerer turns passages into a cited answer.
type Answerer interface {
	Answer(ctx context.Context, query string, hits []models.RetrievalHit, window []models.ConversationTurn) (*models.AnswerResult, error)
}

// Ingester writes and removes drawings.
type Ingester interface {
	Ingest(ctx context.Context, files []models.FileInput, namespace string) (*models.IngestSummary, error)
	DeleteNamespace(ctx context.Context, namespace string) error
	Status(ctx context.Context, namespace string) (*models.NamespaceStatus, error)
	Documents(ctx context.Context, namespace string) ([]*models.DocumentRecord, error)
}

// Settings are the request defaults the handlers need.
type Settings struct {
	DefaultNamespace string
	HistoryTurns     int
	RequestTimeout   time.Duration
	// MaxUploadBytes bounds a multipart upload body.
	MaxUploadBytes int64
}

// SettingsFromConfig derives handler settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		DefaultNamespace: cfg.Ingest.DefaultNamespace,
		HistoryTurns:     cfg.Synth.HistoryTurns,
		RequestTimeout:   cfg.Server.RequestTimeout,
	}
}

const defaultMaxUploadBytes = 256 << 20

// Server is the HTTP server for the blueprint API.
type Server struct {
	retriever Retriever
	answerer  Answerer
	ingester  Ingester
	settings  Settings
	logger    *zap.Logger
	router    chi.Router
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(retriever Retriever, answerer Answerer, ingester Ingester, settings Settings, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.DefaultNamespace == "" {
		settings.DefaultNamespace = "default"
	}
	if settings.RequestTimeout <= 0 {
		settings.RequestTimeout = 2 * time.Minute
	}
	if settings.MaxUploadBytes <= 0 {
		settings.MaxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		retriever: retriever,
		answerer:  answerer,
		ingester:  ingester,
		settings:  settings,
		logger:    logger,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.settings.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Post("/chat", s.handleChat)
	r.Post("/upload", s.handleUpload)
	r.Get("/namespaces/{namespace}", s.handleNamespaceStatus)
	r.Delete("/namespaces/{namespace}", s.handleDeleteNamespace)
	r.Get("/namespaces/{namespace}/documents", s.handleListDocuments)
	return r
}

// requestLogger logs one line per request through zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the HTTP server on addr and blocks until it stops.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
