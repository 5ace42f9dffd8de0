package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/catalog/repository"
	"github.com/stockflow/stockflow-backend/internal/catalog/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// ProductHandler handles product endpoints
type ProductHandler struct {
	service *service.CatalogService
	logger  *logger.Logger
}

// NewProductHandler creates a new product handler
func NewProductHandler(svc *service.CatalogService, log *logger.Logger) *ProductHandler {
	return &ProductHandler{
		service: svc,
		logger:  log,
	}
}

// List lists products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	category := r.URL.Query().Get("category")
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	products, total, err := h.service.ListProducts(r.Context(), page, perPage, category, includeInactive)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	httputil.JSONWithMeta(w, http.StatusOK, products, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// Get gets a product by ID
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, product)
}

// GetBySKU gets a product by SKU
func (h *ProductHandler) GetBySKU(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")

	product, err := h.service.GetProductBySKU(r.Context(), sku)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, product)
}

// Create creates a new product
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var product repository.Product
	if err := httputil.DecodeJSON(r, &product); err != nil {
		httputil.Error(w, err)
		return
	}

	product.IsActive = true
	if err := h.service.CreateProduct(r.Context(), &product); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, product)
}

// Update updates a product
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var product repository.Product
	if err := httputil.DecodeJSON(r, &product); err != nil {
		httputil.Error(w, err)
		return
	}

	product.ID = id
	if err := h.service.UpdateProduct(r.Context(), &product); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, product)
}

// Deactivate flags a product inactive
func (h *ProductHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Body is optional; a missing reason falls back to a default
	var req struct {
		Reason string `json:"reason"`
	}
	_ = httputil.DecodeJSON(r, &req)
	if req.Reason == "" {
		req.Reason = "deactivated by operator"
	}

	if err := h.service.DeactivateProduct(r.Context(), id, req.Reason); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Delete soft-deletes a product
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
