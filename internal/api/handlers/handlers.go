// Package handlers implements the statement upload and graph query endpoints.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-graph/internal/aggregate"
	"github.com/dvloznov/statement-graph/internal/api/middleware"
	"github.com/dvloznov/statement-graph/internal/graph"
	"github.com/dvloznov/statement-graph/internal/logger"
	"github.com/dvloznov/statement-graph/internal/pipeline"
)

// Ingester runs one uploaded statement through the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, filename string, data []byte) (*pipeline.UploadResult, error)
}

// Aggregator answers the read-only graph queries.
type Aggregator interface {
	GlobalSummary(ctx context.Context) (aggregate.GraphSummary, error)
	Batches(ctx context.Context) ([]graph.BatchRow, error)
	Categories(ctx context.Context) ([]graph.CategoryRow, error)
	Merchants(ctx context.Context, limit int) ([]graph.MerchantRow, error)
}

// Pinger reports whether the graph store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// UploadField is the multipart form field holding the statement.
const UploadField = "file"

// StatementsHandler handles statement uploads.
type StatementsHandler struct {
	ingester Ingester
	maxBytes int64
}

// NewStatementsHandler creates a new statements handler. Uploads larger than
// maxBytes are rejected with 413.
func NewStatementsHandler(ingester Ingester, maxBytes int64) *StatementsHandler {
	return &StatementsHandler{ingester: ingester, maxBytes: maxBytes}
}

// Upload handles POST /upload
func (h *StatementsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Upload exceeds size limit")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(UploadField)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Form field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read uploaded file")
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	result, err := h.ingester.Ingest(ctx, header.Filename, data)
	if err != nil {
		log.Warn().Err(err).Str("filename", header.Filename).Msg("Upload rejected")
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// GraphHandler handles the aggregate query endpoints.
type GraphHandler struct {
	svc   Aggregator
	store Pinger
}

// NewGraphHandler creates a new graph handler.
func NewGraphHandler(svc Aggregator, store Pinger) *GraphHandler {
	return &GraphHandler{svc: svc, store: store}
}

// Root handles GET /
func (h *GraphHandler) Root(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": "API is up"})
}

// Health handles GET /health
func (h *GraphHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		log := logger.FromContext(r.Context())
		log.Warn().Err(err).Msg("Graph store health check failed")
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"graph":  err.Error(),
		})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "graph": "connected"})
}

// Summary handles GET /graph/summary
func (h *GraphHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.GlobalSummary(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to summarize graph")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, summary)
}

// Batches handles GET /batches
func (h *GraphHandler) Batches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.svc.Batches(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to list batches")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batches": nonNil(batches),
		"count":   len(batches),
	})
}

// Categories handles GET /categories
func (h *GraphHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.Categories(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to list categories")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": nonNil(categories),
		"count":      len(categories),
	})
}

// Merchants handles GET /merchants?limit=N
func (h *GraphHandler) Merchants(w http.ResponseWriter, r *http.Request) {
	limit := aggregate.DefaultMerchantLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	merchants, err := h.svc.Merchants(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err, "Failed to list merchants")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"merchants": nonNil(merchants),
		"count":     len(merchants),
	})
}

func (h *GraphHandler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	log := logger.FromContext(r.Context())
	log.Error().Err(err).Msg(msg)
	middleware.WriteDomainError(w, err)
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}

// NewRouter registers every endpoint with the shared middleware chain.
func NewRouter(statements *StatementsHandler, graphs *GraphHandler, log zerolog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Recovery(log), middleware.RequestID, middleware.Logger(log), middleware.CORS)

	r.HandleFunc("/", graphs.Root).Methods(http.MethodGet)
	r.HandleFunc("/health", graphs.Health).Methods(http.MethodGet)
	r.HandleFunc("/upload", statements.Upload).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/graph/summary", graphs.Summary).Methods(http.MethodGet)
	r.HandleFunc("/batches", graphs.Batches).Methods(http.MethodGet)
	r.HandleFunc("/categories", graphs.Categories).Methods(http.MethodGet)
	r.HandleFunc("/merchants", graphs.Merchants).Methods(http.MethodGet)
	return r
}
