package service

import (
	"context"

	catalogrepo "github.com/stockflow/stockflow-backend/internal/catalog/repository"
	"github.com/stockflow/stockflow-backend/internal/stock/events"
	"github.com/stockflow/stockflow-backend/internal/stock/repository"
	"github.com/stockflow/stockflow-backend/pkg/cache"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// StockService handles stock ledger, batch and allocation business logic
type StockService struct {
	db           *database.DB
	productRepo  *catalogrepo.ProductRepository
	locationRepo *repository.LocationRepository
	levelRepo    *repository.StockLevelRepository
	batchRepo    *repository.BatchRepository
	movementRepo *repository.MovementRepository
	publisher    *events.StockEventPublisher
	cache        *cache.Cache
	cfg          *config.StockConfig
	logger       *logger.Logger
}

// NewStockService creates a new stock service
func NewStockService(
	db *database.DB,
	productRepo *catalogrepo.ProductRepository,
	locationRepo *repository.LocationRepository,
	levelRepo *repository.StockLevelRepository,
	batchRepo *repository.BatchRepository,
	movementRepo *repository.MovementRepository,
	publisher *events.StockEventPublisher,
	c *cache.Cache,
	cfg *config.StockConfig,
	log *logger.Logger,
) *StockService {
	return &StockService{
		db:           db,
		productRepo:  productRepo,
		locationRepo: locationRepo,
		levelRepo:    levelRepo,
		batchRepo:    batchRepo,
		movementRepo: movementRepo,
		publisher:    publisher,
		cache:        c,
		cfg:          cfg,
		logger:       log,
	}
}

// StockView is a stock level with its derived status
type StockView struct {
	*repository.StockLevel
	Status string `json:"status"`
}

// GetStock returns the stock level for a (product, location) pair
func (s *StockService) GetStock(ctx context.Context, productID, locationID string) (*StockView, error) {
	lvl, err := s.levelRepo.Get(ctx, productID, locationID)
	if err != nil {
		return nil, err
	}
	return &StockView{StockLevel: lvl, Status: StatusFor(lvl)}, nil
}

// ListStockByLocation lists stock levels at a location with derived statuses
func (s *StockService) ListStockByLocation(ctx context.Context, locationID string) ([]*StockView, error) {
	levels, err := s.levelRepo.ListByLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}

	views := make([]*StockView, len(levels))
	for i, lvl := range levels {
		views[i] = &StockView{StockLevel: lvl, Status: StatusFor(lvl)}
	}
	return views, nil
}

// History lists movements for a (product, location) key with keyset pagination
func (s *StockService) History(ctx context.Context, productID, locationID string, limit int, cursor string, filter repository.MovementFilter) ([]*repository.StockMovement, string, error) {
	return s.movementRepo.History(ctx, productID, locationID, limit, cursor, filter)
}

// Location operations

// CreateLocation creates a new location
func (s *StockService) CreateLocation(ctx context.Context, loc *repository.Location) error {
	return s.locationRepo.Create(ctx, loc)
}

// GetLocation gets a location by ID
func (s *StockService) GetLocation(ctx context.Context, id string) (*repository.Location, error) {
	return s.locationRepo.GetByID(ctx, id)
}

// ListLocations lists active locations
func (s *StockService) ListLocations(ctx context.Context) ([]*repository.Location, error) {
	return s.locationRepo.List(ctx)
}

// UpdateLocation updates a location
func (s *StockService) UpdateLocation(ctx context.Context, loc *repository.Location) error {
	return s.locationRepo.Update(ctx, loc)
}

// UpdateThresholds sets the per-location stock thresholds
func (s *StockService) UpdateThresholds(ctx context.Context, productID, locationID string, minQuantity int, maxQuantity *int, reorderPoint int) error {
	return s.levelRepo.UpdateThresholds(ctx, productID, locationID, minQuantity, maxQuantity, reorderPoint)
}

// GetBatch gets a batch by ID
func (s *StockService) GetBatch(ctx context.Context, id string) (*repository.Batch, error) {
	return s.batchRepo.GetByID(ctx, id)
}

// ListBatches lists all batches for a (product, location) pair
func (s *StockService) ListBatches(ctx context.Context, productID, locationID string) ([]*repository.Batch, error) {
	return s.batchRepo.ListByProductLocation(ctx, productID, locationID)
}

// ensureLevel creates the stock level row for a (product, location) pair if
// missing, seeding thresholds from the catalog product.
func (s *StockService) ensureLevel(ctx context.Context, product *catalogrepo.Product, locationID string) error {
	return s.levelRepo.EnsureExists(ctx, product.ID, locationID, product.MinQuantity, product.MaxQuantity, product.ReorderPoint)
}

// reorderCacheKey builds the cache key for a reorder suggestion
func reorderCacheKey(tenantID, productID, locationID string) string {
	return "reorder:" + tenantID + ":" + productID + ":" + locationID
}

// invalidateSuggestion drops the cached reorder suggestion for a key after a
// mutation. Best-effort; a stale entry expires on its own TTL anyway.
func (s *StockService) invalidateSuggestion(ctx context.Context, tenantID, productID, locationID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, reorderCacheKey(tenantID, productID, locationID)); err != nil {
		s.logger.Warn().Err(err).Str("product_id", productID).Msg("failed to invalidate reorder suggestion cache")
	}
}
