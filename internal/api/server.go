// Package api exposes the classification pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/FrenchMajesty/doc-classifier/internal/history"
	"github.com/FrenchMajesty/doc-classifier/pkg/pipeline"
	"github.com/FrenchMajesty/doc-classifier/pkg/types"
)

// multipartMemory is how much of a multipart body is kept in memory before spilling to disk
const multipartMemory = 32 << 20

// Classifier runs a batch through the pipeline
type Classifier interface {
	Run(ctx context.Context, items []types.SubmittedItem) (types.BatchOutcome, error)
	MaxBatchSize() int
	PipelineVersion() string
}

// HistoryReader lists recorded classifications
type HistoryReader interface {
	Recent(ctx context.Context, f history.Filter) ([]history.Entry, error)
}

// Config wires the server
type Config struct {
	Classifier Classifier

	// Optional
	APIKeys        []string
	BodyLimit      int64
	MetricsHandler http.Handler
	History        HistoryReader
	Logger         *slog.Logger
}

// Server serves the classification API
type Server struct {
	classifier Classifier
	history    HistoryReader
	router     chi.Router
}

// New builds the router
func New(cfg Config) (*Server, error) {
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("Classifier is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{classifier: cfg.Classifier, history: cfg.History}

	r := chi.NewRouter()
	r.Use(requestContext(cfg.Logger.With("component", "api")))
	r.Use(recoverer)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "Not found.", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Method not allowed.", nil)
	})

	r.Get("/healthz", s.handleHealth)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(apiKeyAuth(cfg.APIKeys))
		r.With(maxBody(cfg.BodyLimit)).Post("/classify", s.handleClassify)
		if cfg.History != nil {
			r.Get("/history", s.handleHistory)
		}
	})

	s.router = r
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":           "ok",
		"pipeline_version": s.classifier.PipelineVersion(),
	})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	logger := Logger(r.Context())

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "Request body is too large.",
				map[string]any{"limit_bytes": tooLarge.Limit})
			return
		}
		writeValidationError(w, r, "body must be multipart/form-data with one or more files parts")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeValidationError(w, r, "at least one files part is required")
		return
	}

	items := make([]types.SubmittedItem, 0, len(headers))
	for _, fh := range headers {
		item, err := readPart(fh)
		if err != nil {
			logger.Warn("cannot read upload", "filename", fh.Filename, "error", err)
			writeValidationError(w, r, fmt.Sprintf("cannot read %s", fh.Filename))
			return
		}
		items = append(items, item)
	}

	outcome, err := s.classifier.Run(r.Context(), items)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, outcome)
	case errors.Is(err, pipeline.ErrBatchTooLarge):
		writeError(w, r, http.StatusRequestEntityTooLarge, codeBatchTooLarge, err.Error(),
			map[string]any{"max_batch_size": s.classifier.MaxBatchSize()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Warn("batch cancelled", "batch_id", outcome.BatchID, "error", err)
		writeError(w, r, http.StatusServiceUnavailable, codeRequestCancelled, "The request ended before the batch finished.",
			map[string]any{"outcome": outcome})
	default:
		logger.Error("batch failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, codeInternal, internalErrorMessage, nil)
	}
}

func readPart(fh *multipart.FileHeader) (types.SubmittedItem, error) {
	f, err := fh.Open()
	if err != nil {
		return types.SubmittedItem{}, err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return types.SubmittedItem{}, err
	}

	name := filepath.Base(fh.Filename)
	return types.SubmittedItem{Filename: name, Extension: filepath.Ext(name), Content: content}, nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := history.Filter{Label: q.Get("label"), BatchID: q.Get("batch_id")}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeValidationError(w, r, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	entries, err := s.history.Recent(r.Context(), f)
	if err != nil {
		Logger(r.Context()).Error("history query failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, codeInternal, internalErrorMessage, nil)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
