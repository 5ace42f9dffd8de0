package handler

import (
	"net/http"

	"github.com/stockflow/stockflow-backend/internal/stock/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// AllocationHandler handles FIFO allocation endpoints
type AllocationHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(svc *service.StockService, log *logger.Logger) *AllocationHandler {
	return &AllocationHandler{
		service: svc,
		logger:  log,
	}
}

type allocationRequest struct {
	ProductID  string  `json:"product_id" validate:"required,uuid"`
	LocationID string  `json:"location_id" validate:"required,uuid"`
	Quantity   int     `json:"quantity" validate:"required,gt=0"`
	Reason     *string `json:"reason,omitempty"`
}

// Propose plans a FIFO allocation without committing it
func (h *AllocationHandler) Propose(w http.ResponseWriter, r *http.Request) {
	var req allocationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.ProposeAllocation(r.Context(), req.ProductID, req.LocationID, req.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Commit consumes the requested quantity from eligible batches in FIFO order
func (h *AllocationHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req allocationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Allocate(r.Context(), req.ProductID, req.LocationID, req.Quantity, req.Reason, performedBy(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}
