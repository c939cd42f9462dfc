package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/iconidentify/wadh/internal/domain"
	"github.com/iconidentify/wadh/internal/queue"
	"github.com/iconidentify/wadh/pkg/curse"
)

// BatchService is what the batch handler needs from the service layer.
type BatchService interface {
	StartBatch(ctx context.Context, urls []string, folder string) (*domain.BatchRecord, error)
	Cancel() error
	Status() queue.BatchState
	Get(ctx context.Context, id domain.BatchID) (*domain.BatchRecord, error)
	List(ctx context.Context, limit int) ([]*domain.BatchRecord, error)
}

// BatchHandler handles batch HTTP requests.
type BatchHandler struct {
	batches  BatchService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(batches BatchService, logger *slog.Logger) *BatchHandler {
	return &BatchHandler{
		batches:  batches,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// StartRequest is the body of POST /api/v1/batches.
type StartRequest struct {
	URLs   []string `json:"urls" validate:"required,min=1,max=500,dive,required,url"`
	Folder string   `json:"folder" validate:"omitempty,max=4096"`
}

// BatchListResponse wraps a list of batches.
type BatchListResponse struct {
	Batches []*domain.BatchRecord `json:"batches"`
}

// Start handles POST /api/v1/batches.
func (h *BatchHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	urls := curse.NormalizeURLs(req.URLs)
	if len(urls) == 0 {
		writeError(w, http.StatusBadRequest, "no addon page urls given")
		return
	}

	record, err := h.batches.StartBatch(r.Context(), urls, req.Folder)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("failed to start batch", "error", err)
		}
		writeError(w, status, err.Error())
		return
	}

	h.logger.Info("batch submitted", "batch_id", record.ID, "addons", len(urls))
	writeJSON(w, http.StatusAccepted, record)
}

// List handles GET /api/v1/batches.
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	batches, err := h.batches.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list batches", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list batches")
		return
	}
	writeJSON(w, http.StatusOK, BatchListResponse{Batches: batches})
}

// Get handles GET /api/v1/batches/{batchID}.
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := domain.BatchID(chi.URLParam(r, "batchID"))

	batch, err := h.batches.Get(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// Cancel handles POST /api/v1/batches/cancel.
func (h *BatchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.batches.Cancel(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, h.batches.Status())
}

// Status handles GET /api/v1/status.
func (h *BatchHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.batches.Status())
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Namespace()), fe.Tag()))
	}
	return "invalid request: " + strings.Join(msgs, ", ")
}
