package consumers

import (
	"context"

	"github.com/stockflow/stockflow-backend/internal/stock/repository"
	"github.com/stockflow/stockflow-backend/pkg/cache"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
	"github.com/stockflow/stockflow-backend/pkg/tenant"
)

// StockEventConsumer reacts to stock and catalog events: it drops stale
// reorder suggestion cache entries after movements recorded by other
// replicas, and flags leftover stock when the reconciler deactivates a
// product.
type StockEventConsumer struct {
	consumer  *messaging.Consumer
	levelRepo *repository.StockLevelRepository
	cache     *cache.Cache
	logger    *logger.Logger
}

// NewStockEventConsumer creates and wires the stock event consumer
func NewStockEventConsumer(
	rmq *messaging.RabbitMQ,
	levelRepo *repository.StockLevelRepository,
	c *cache.Cache,
	log *logger.Logger,
) (*StockEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "stock-service.events", log)
	if err != nil {
		return nil, err
	}

	sc := &StockEventConsumer{
		consumer:  consumer,
		levelRepo: levelRepo,
		cache:     c,
		logger:    log.WithComponent("stock-consumer"),
	}

	if err := consumer.Subscribe(messaging.ExchangeStockEvents, "stock.movement.*"); err != nil {
		return nil, err
	}
	if err := consumer.Subscribe(messaging.ExchangeCatalogEvents, "catalog.product.*"); err != nil {
		return nil, err
	}

	consumer.RegisterHandler(messaging.EventMovementRecorded, sc.handleMovementRecorded)
	consumer.RegisterHandler(messaging.EventProductDeactivated, sc.handleProductDeactivated)

	return sc, nil
}

// Start begins consuming events
func (c *StockEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// handleMovementRecorded drops the cached reorder suggestion for the moved
// key. Movements recorded by this replica already did so; this covers the
// other replicas sharing the cache.
func (c *StockEventConsumer) handleMovementRecorded(ctx context.Context, event *messaging.Event) error {
	var data messaging.MovementRecordedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	if c.cache == nil {
		return nil
	}

	key := "reorder:" + data.TenantID + ":" + data.ProductID + ":" + data.LocationID
	if err := c.cache.Delete(ctx, key); err != nil {
		c.logger.Warn().Err(err).Str("product_id", data.ProductID).Msg("failed to drop cached reorder suggestion")
	}
	return nil
}

// handleProductDeactivated warns when a deactivated product still has stock
// on hand somewhere; the stock stays in place, but operators should know.
func (c *StockEventConsumer) handleProductDeactivated(ctx context.Context, event *messaging.Event) error {
	var data messaging.ProductDeactivatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	tenantCtx := tenant.WithTenantContext(ctx, data.TenantID, "", "")
	levels, err := c.levelRepo.ListByProduct(tenantCtx, data.ProductID)
	if err != nil {
		c.logger.Error().Err(err).Str("product_id", data.ProductID).Msg("failed to check stock for deactivated product")
		return nil
	}

	remaining := 0
	for _, lvl := range levels {
		remaining += lvl.Quantity
	}
	if remaining > 0 {
		c.logger.Warn().
			Str("product_id", data.ProductID).
			Str("sku", data.SKU).
			Int("remaining", remaining).
			Msg("deactivated product still has stock on hand")
	}
	return nil
}
