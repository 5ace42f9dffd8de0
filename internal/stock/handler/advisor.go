package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/stock/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// AdvisorHandler handles reorder suggestion endpoints
type AdvisorHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewAdvisorHandler creates a new advisor handler
func NewAdvisorHandler(svc *service.StockService, log *logger.Logger) *AdvisorHandler {
	return &AdvisorHandler{
		service: svc,
		logger:  log,
	}
}

// Suggest returns the reorder suggestion for a (product, location) pair.
// Responds 204 when the level needs no reorder.
func (h *AdvisorHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	locationID := chi.URLParam(r, "locationID")

	suggestion, ok, err := h.service.Suggest(r.Context(), productID, locationID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if !ok {
		httputil.NoContent(w)
		return
	}

	httputil.JSON(w, http.StatusOK, suggestion)
}

// List lists reorder suggestions for every level at or below its threshold
func (h *AdvisorHandler) List(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.service.ListSuggestions(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, suggestions)
}
