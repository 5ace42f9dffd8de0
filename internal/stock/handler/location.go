package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/stock/repository"
	"github.com/stockflow/stockflow-backend/internal/stock/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// LocationHandler handles location endpoints
type LocationHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewLocationHandler creates a new location handler
func NewLocationHandler(svc *service.StockService, log *logger.Logger) *LocationHandler {
	return &LocationHandler{
		service: svc,
		logger:  log,
	}
}

// List lists active locations
func (h *LocationHandler) List(w http.ResponseWriter, r *http.Request) {
	locations, err := h.service.ListLocations(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, locations)
}

// Get gets a location by ID
func (h *LocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	location, err := h.service.GetLocation(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, location)
}

// Create creates a new location
func (h *LocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var loc repository.Location
	if err := httputil.DecodeJSON(r, &loc); err != nil {
		httputil.Error(w, err)
		return
	}

	loc.IsActive = true
	if err := h.service.CreateLocation(r.Context(), &loc); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, loc)
}

// Update updates a location
func (h *LocationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var loc repository.Location
	if err := httputil.DecodeJSON(r, &loc); err != nil {
		httputil.Error(w, err)
		return
	}

	loc.ID = id
	if err := h.service.UpdateLocation(r.Context(), &loc); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, loc)
}
