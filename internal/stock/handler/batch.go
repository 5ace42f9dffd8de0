package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/stock/service"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// BatchHandler handles batch endpoints
type BatchHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(svc *service.StockService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		service: svc,
		logger:  log,
	}
}

// Receive books an incoming lot into stock
func (h *BatchHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var in service.ReceiveBatchInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&in); err != nil {
		httputil.Error(w, err)
		return
	}

	if in.PerformedBy == nil {
		in.PerformedBy = performedBy(r)
	}

	batch, err := h.service.ReceiveBatch(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, batch)
}

// Get gets a batch by ID
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	batch, err := h.service.GetBatch(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// List lists batches for a (product, location) pair
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("product_id")
	locationID := r.URL.Query().Get("location_id")
	if productID == "" || locationID == "" {
		httputil.Error(w, errors.BadRequest("product_id and location_id are required"))
		return
	}

	batches, err := h.service.ListBatches(r.Context(), productID, locationID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// SetStatus applies a manual batch status transition
func (h *BatchHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Status          string     `json:"status" validate:"required,oneof=available quarantined"`
		QuarantineUntil *time.Time `json:"quarantine_until,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.service.SetBatchStatus(r.Context(), id, req.Status, req.QuarantineUntil)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}
