package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/stock/repository"
	"github.com/stockflow/stockflow-backend/internal/stock/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// StockHandler handles stock level and movement endpoints
type StockHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(svc *service.StockService, log *logger.Logger) *StockHandler {
	return &StockHandler{
		service: svc,
		logger:  log,
	}
}

// performedBy extracts the acting user from the gateway-set header
func performedBy(r *http.Request) *string {
	if userID := r.Header.Get("X-User-ID"); userID != "" {
		return &userID
	}
	return nil
}

// Get gets the stock level for a (product, location) pair
func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	locationID := chi.URLParam(r, "locationID")

	view, err := h.service.GetStock(r.Context(), productID, locationID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, view)
}

// ListByLocation lists stock levels at a location
func (h *StockHandler) ListByLocation(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "id")

	views, err := h.service.ListStockByLocation(r.Context(), locationID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, views)
}

// RecordMovement records a stock movement against a level
func (h *StockHandler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	var in service.MovementInput
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

	movement, err := h.service.ApplyMovement(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, movement)
}

// Transfer moves quantity between two locations
func (h *StockHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID      string  `json:"product_id" validate:"required,uuid"`
		FromLocationID string  `json:"from_location_id" validate:"required,uuid"`
		ToLocationID   string  `json:"to_location_id" validate:"required,uuid"`
		Quantity       int     `json:"quantity" validate:"required,gt=0"`
		Reason         *string `json:"reason,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	movements, err := h.service.Transfer(r.Context(), req.ProductID, req.FromLocationID, req.ToLocationID, req.Quantity, req.Reason, performedBy(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, movements)
}

// Reserve holds quantity against a stock level
func (h *StockHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	h.adjustReservation(w, r, h.service.Reserve)
}

// Release returns previously reserved quantity
func (h *StockHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.adjustReservation(w, r, h.service.Release)
}

type reservationFn func(ctx context.Context, productID, locationID string, quantity int, reason, performedBy *string) (*repository.StockMovement, error)

func (h *StockHandler) adjustReservation(w http.ResponseWriter, r *http.Request, fn reservationFn) {
	productID := chi.URLParam(r, "productID")
	locationID := chi.URLParam(r, "locationID")

	var req struct {
		Quantity int     `json:"quantity" validate:"required,gt=0"`
		Reason   *string `json:"reason,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	movement, err := fn(r.Context(), productID, locationID, req.Quantity, req.Reason, performedBy(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, movement)
}

// UpdateThresholds sets the per-location stock thresholds
func (h *StockHandler) UpdateThresholds(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	locationID := chi.URLParam(r, "locationID")

	var req struct {
		MinQuantity  int  `json:"min_quantity" validate:"gte=0"`
		MaxQuantity  *int `json:"max_quantity,omitempty"`
		ReorderPoint int  `json:"reorder_point" validate:"gte=0"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.UpdateThresholds(r.Context(), productID, locationID, req.MinQuantity, req.MaxQuantity, req.ReorderPoint); err != nil {
		httputil.Error(w, err)
		return
	}

	view, err := h.service.GetStock(r.Context(), productID, locationID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, view)
}

// History lists movements for a (product, location) key, newest first
func (h *StockHandler) History(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	locationID := chi.URLParam(r, "locationID")

	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	cursor := r.URL.Query().Get("cursor")

	var filter repository.MovementFilter
	filter.MovementType = r.URL.Query().Get("type")
	if from := r.URL.Query().Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = &t
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = &t
		}
	}

	movements, next, err := h.service.History(r.Context(), productID, locationID, limit, cursor, filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, movements, &httputil.Meta{
		PerPage:    limit,
		NextCursor: next,
	})
}
