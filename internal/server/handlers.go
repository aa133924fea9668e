package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/blueprint/internal/conversation"
	"github.com/hyperjump/blueprint/internal/errs"
	"github.com/hyperjump/blueprint/internal/models"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Query               string                    `json:"query"`
	TopK                int                       `json:"top_k"`
	Namespace           string                    `json:"namespace"`
	ConversationHistory []models.ConversationTurn `json:"conversation_history"`
}

type errorResponse struct {
	Error    string               `json:"error"`
	Kind     string               `json:"kind"`
	Failures []models.FileFailure `json:"failures,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "blueprint drawing Q&A API is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, errs.Wrap(errs.ErrInvalidInput, errors.New("invalid request body")))
		return
	}
	ns := s.namespace(req.Namespace)
	s.logger.Debug("chat request",
		zap.String("namespace", ns),
		zap.Int("top_k", req.TopK),
		zap.Int("history", len(req.ConversationHistory)))

	ctx := r.Context()
	hits, err := s.retriever.Search(ctx, req.Query, ns, req.TopK)
	if err != nil {
		s.respondError(w, err)
		return
	}
	window := conversation.Window(req.ConversationHistory, s.settings.HistoryTurns)
	result, err := s.answerer.Answer(ctx, req.Query, hits, window)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.settings.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, errs.Wrap(errs.ErrInvalidInput, fmt.Errorf("invalid multipart body: %w", err)))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["files[]"]...)
	if len(headers) == 0 {
		s.respondError(w, errs.Wrap(errs.ErrInvalidInput, errors.New("no files uploaded")))
		return
	}
	files := make([]models.FileInput, 0, len(headers))
	for _, fh := range headers {
		content, err := readPart(fh)
		if err != nil {
			s.respondError(w, errs.Wrap(errs.ErrInvalidInput, fmt.Errorf("failed to read %s: %w", fh.Filename, err)))
			return
		}
		files = append(files, models.FileInput{Filename: filepath.Base(fh.Filename), Content: content})
	}

	ns := s.namespace(r.FormValue("namespace"))
	summary, err := s.ingester.Ingest(r.Context(), files, ns)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if summary.FilesIngested == 0 {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{
			Error:    "none of the uploaded files could be ingested",
			Kind:     errs.Kind(errs.ErrInvalidInput),
			Failures: summary.Failures,
		})
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleDeleteNamespace(w http.ResponseWriter, r *http.Request) {
	ns := chi.URLParam(r, "namespace")
	s.logger.Debug("delete namespace request", zap.String("namespace", ns))
	if err := s.ingester.DeleteNamespace(r.Context(), ns); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"namespace": ns, "status": "deleted"})
}

func (s *Server) handleNamespaceStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.ingester.Status(r.Context(), chi.URLParam(r, "namespace"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

type documentInfo struct {
	Filename  string    `json:"filename"`
	Pages     int       `json:"pages"`
	Chunks    int       `json:"chunks"`
	IndexedAt time.Time `json:"indexed_at"`
}

type documentsResponse struct {
	Namespace string         `json:"namespace"`
	Documents []documentInfo `json:"documents"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	ns := chi.URLParam(r, "namespace")
	docs, err := s.ingester.Documents(r.Context(), ns)
	if err != nil {
		s.respondError(w, err)
		return
	}
	resp := documentsResponse{Namespace: ns, Documents: make([]documentInfo, 0, len(docs))}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, documentInfo{
			Filename:  d.Filename,
			Pages:     d.Pages,
			Chunks:    d.ChunkCount,
			IndexedAt: d.IndexedAt,
		})
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) namespace(ns string) string {
	if ns == "" {
		return s.settings.DefaultNamespace
	}
	return ns
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrInvalidInput), errors.Is(err, errs.ErrInvalidNamespace):
		return http.StatusBadRequest
	case errs.Unavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	s.respondJSON(w, status, errorResponse{Error: err.Error(), Kind: errs.Kind(err)})
}
