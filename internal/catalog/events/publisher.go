package events

import (
	"context"

	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
	"github.com/stockflow/stockflow-backend/pkg/tenant"
)

// CatalogEventPublisher publishes catalog-related events
type CatalogEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewCatalogEventPublisher creates a new catalog event publisher
func NewCatalogEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*CatalogEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeCatalogEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}

	return &CatalogEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishReconciled publishes a catalog reconciled event
func (p *CatalogEventPublisher) PublishReconciled(ctx context.Context, runID string, merged, imported, deactivated, conflicts int) {
	if p == nil {
		return
	}
	tenantID, _ := tenant.TenantID(ctx)

	data := messaging.CatalogReconciledEvent{
		RunID:       runID,
		Merged:      merged,
		Imported:    imported,
		Deactivated: deactivated,
		Conflicts:   conflicts,
		TenantID:    tenantID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventCatalogReconciled, data); err != nil {
		p.logger.Error().Err(err).Str("run_id", runID).Msg("failed to publish catalog reconciled event")
	}
}

// PublishProductDeactivated publishes a product deactivated event
func (p *CatalogEventPublisher) PublishProductDeactivated(ctx context.Context, productID, sku, reason string) {
	if p == nil {
		return
	}
	tenantID, _ := tenant.TenantID(ctx)

	data := messaging.ProductDeactivatedEvent{
		ProductID: productID,
		SKU:       sku,
		Reason:    reason,
		TenantID:  tenantID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventProductDeactivated, data); err != nil {
		p.logger.Error().Err(err).Str("product_id", productID).Msg("failed to publish product deactivated event")
	}
}
