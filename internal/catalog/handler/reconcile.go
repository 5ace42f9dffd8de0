package handler

import (
	"net/http"
	"strconv"

	"github.com/stockflow/stockflow-backend/internal/catalog/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// ReconcileHandler handles catalog reconciliation endpoints
type ReconcileHandler struct {
	reconciler *service.Reconciler
	service    *service.CatalogService
	logger     *logger.Logger
}

// NewReconcileHandler creates a new reconcile handler
func NewReconcileHandler(reconciler *service.Reconciler, svc *service.CatalogService, log *logger.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		reconciler: reconciler,
		service:    svc,
		logger:     log,
	}
}

// Reconcile merges two source listings into the stored catalog
func (h *ReconcileHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Primary   []service.SourceRecord `json:"primary"`
		Secondary []service.SourceRecord `json:"secondary"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	report, err := h.reconciler.Reconcile(r.Context(), req.Primary, req.Secondary)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}

// ListRuns lists recent reconciliation runs
func (h *ReconcileHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	runs, err := h.service.ListReconcileRuns(r.Context(), limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, runs)
}
