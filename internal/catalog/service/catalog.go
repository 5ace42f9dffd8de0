package service

import (
	"context"

	"github.com/stockflow/stockflow-backend/internal/catalog/events"
	"github.com/stockflow/stockflow-backend/internal/catalog/repository"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// CatalogService handles catalog business logic
type CatalogService struct {
	productRepo *repository.ProductRepository
	publisher   *events.CatalogEventPublisher
	logger      *logger.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(
	productRepo *repository.ProductRepository,
	publisher *events.CatalogEventPublisher,
	log *logger.Logger,
) *CatalogService {
	return &CatalogService{
		productRepo: productRepo,
		publisher:   publisher,
		logger:      log,
	}
}

// CreateProduct creates a new product
func (s *CatalogService) CreateProduct(ctx context.Context, p *repository.Product) error {
	p.SKU = NormalizeSKU(p.SKU)
	return s.productRepo.Create(ctx, p)
}

// GetProduct gets a product by ID
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*repository.Product, error) {
	return s.productRepo.GetByID(ctx, id)
}

// GetProductBySKU gets a product by SKU
func (s *CatalogService) GetProductBySKU(ctx context.Context, sku string) (*repository.Product, error) {
	return s.productRepo.GetBySKU(ctx, NormalizeSKU(sku))
}

// ListProducts lists products with pagination
func (s *CatalogService) ListProducts(ctx context.Context, page, perPage int, category string, includeInactive bool) ([]*repository.Product, int64, error) {
	return s.productRepo.List(ctx, page, perPage, category, includeInactive)
}

// UpdateProduct updates a product
func (s *CatalogService) UpdateProduct(ctx context.Context, p *repository.Product) error {
	p.SKU = NormalizeSKU(p.SKU)
	return s.productRepo.Update(ctx, p)
}

// DeactivateProduct flags a product inactive and publishes the change
func (s *CatalogService) DeactivateProduct(ctx context.Context, id, reason string) error {
	p, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.productRepo.Deactivate(ctx, id); err != nil {
		return err
	}

	s.publisher.PublishProductDeactivated(ctx, p.ID, p.SKU, reason)
	return nil
}

// DeleteProduct soft-deletes a product
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	return s.productRepo.SoftDelete(ctx, id)
}

// ListReconcileRuns lists recent reconciliation runs
func (s *CatalogService) ListReconcileRuns(ctx context.Context, limit int) ([]*repository.ReconcileRun, error) {
	return s.productRepo.ListReconcileRuns(ctx, limit)
}
