package events

import (
	"context"
	"time"

	"github.com/stockflow/stockflow-backend/internal/stock/repository"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
	"github.com/stockflow/stockflow-backend/pkg/tenant"
)

// StockEventPublisher publishes stock-related events
type StockEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a new stock event publisher
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}

	return &StockEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishMovementRecorded publishes a movement recorded event
func (p *StockEventPublisher) PublishMovementRecorded(ctx context.Context, m *repository.StockMovement) {
	if p == nil {
		return
	}
	tenantID, _ := tenant.TenantID(ctx)

	batchID := ""
	if m.BatchID != nil {
		batchID = *m.BatchID
	}
	performedBy := ""
	if m.PerformedBy != nil {
		performedBy = *m.PerformedBy
	}
	reason := ""
	if m.Reason != nil {
		reason = *m.Reason
	}

	data := messaging.MovementRecordedEvent{
		MovementID:     m.ID,
		MovementType:   m.MovementType,
		ProductID:      m.ProductID,
		LocationID:     m.LocationID,
		BatchID:        batchID,
		Quantity:       m.Quantity,
		QuantityBefore: m.QuantityBefore,
		QuantityAfter:  m.QuantityAfter,
		PerformedBy:    performedBy,
		Reason:         reason,
		TenantID:       tenantID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventMovementRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("movement_id", m.ID).Msg("failed to publish movement recorded event")
	}
}

// PublishAllocationCommitted publishes an allocation committed event
func (p *StockEventPublisher) PublishAllocationCommitted(ctx context.Context, allocationID, productID, locationID string, requested int, lines []messaging.AllocationLineData, performedBy string) {
	if p == nil {
		return
	}
	tenantID, _ := tenant.TenantID(ctx)

	data := messaging.AllocationCommittedEvent{
		AllocationID: allocationID,
		ProductID:    productID,
		LocationID:   locationID,
		Requested:    requested,
		Lines:        lines,
		PerformedBy:  performedBy,
		TenantID:     tenantID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventAllocationCommitted, data); err != nil {
		p.logger.Error().Err(err).Str("allocation_id", allocationID).Msg("failed to publish allocation committed event")
	}
}

// PublishStockLevelLow publishes a low stock event
func (p *StockEventPublisher) PublishStockLevelLow(ctx context.Context, lvl *repository.StockLevel) {
	if p == nil {
		return
	}
	tenantID, _ := tenant.TenantID(ctx)

	data := messaging.StockLevelLowEvent{
		ProductID:   lvl.ProductID,
		LocationID:  lvl.LocationID,
		Quantity:    lvl.Quantity,
		MinQuantity: lvl.MinQuantity,
		TenantID:    tenantID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockLevelLow, data); err != nil {
		p.logger.Error().Err(err).Str("product_id", lvl.ProductID).Msg("failed to publish stock level low event")
	}
}

// PublishStockLevelOut publishes an out-of-stock event
func (p *StockEventPublisher) PublishStockLevelOut(ctx context.Context, lvl *repository.StockLevel) {
	if p == nil {
		return
	}
	tenantID, _ := tenant.TenantID(ctx)

	data := messaging.StockLevelOutEvent{
		ProductID:  lvl.ProductID,
		LocationID: lvl.LocationID,
		TenantID:   tenantID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockLevelOut, data); err != nil {
		p.logger.Error().Err(err).Str("product_id", lvl.ProductID).Msg("failed to publish stock level out event")
	}
}

// PublishBatchReceived publishes a batch received event
func (p *StockEventPublisher) PublishBatchReceived(ctx context.Context, b *repository.Batch) {
	if p == nil {
		return
	}
	tenantID, _ := tenant.TenantID(ctx)

	data := messaging.BatchReceivedEvent{
		BatchID:     b.ID,
		BatchNumber: b.BatchNumber,
		ProductID:   b.ProductID,
		LocationID:  b.LocationID,
		Quantity:    b.Quantity,
		ExpiryDate:  b.ExpiryDate,
		TenantID:    tenantID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchReceived, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", b.ID).Msg("failed to publish batch received event")
	}
}

// PublishBatchExpiring publishes a batch expiring warning
func (p *StockEventPublisher) PublishBatchExpiring(ctx context.Context, b *repository.Batch, daysUntil int) {
	if p == nil || b.ExpiryDate == nil {
		return
	}
	tenantID, _ := tenant.TenantID(ctx)

	data := messaging.BatchExpiringEvent{
		BatchID:     b.ID,
		BatchNumber: b.BatchNumber,
		ProductID:   b.ProductID,
		LocationID:  b.LocationID,
		ExpiryDate:  *b.ExpiryDate,
		DaysUntil:   daysUntil,
		Quantity:    b.Quantity,
		TenantID:    tenantID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchExpiring, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", b.ID).Msg("failed to publish batch expiring event")
	}
}

// PublishBatchExpired publishes a batch expired event
func (p *StockEventPublisher) PublishBatchExpired(ctx context.Context, b *repository.Batch) {
	if p == nil {
		return
	}
	tenantID, _ := tenant.TenantID(ctx)

	expiry := time.Time{}
	if b.ExpiryDate != nil {
		expiry = *b.ExpiryDate
	}

	data := messaging.BatchExpiredEvent{
		BatchID:     b.ID,
		BatchNumber: b.BatchNumber,
		ProductID:   b.ProductID,
		LocationID:  b.LocationID,
		ExpiryDate:  expiry,
		Quantity:    b.Quantity,
		TenantID:    tenantID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchExpired, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", b.ID).Msg("failed to publish batch expired event")
	}
}

// PublishConsistencyWarning publishes a stock consistency warning
func (p *StockEventPublisher) PublishConsistencyWarning(ctx context.Context, productID, locationID string, levelQty, batchSum int) {
	if p == nil {
		return
	}
	tenantID, _ := tenant.TenantID(ctx)

	data := messaging.ConsistencyWarningEvent{
		ProductID:  productID,
		LocationID: locationID,
		LevelQty:   levelQty,
		BatchSum:   batchSum,
		TenantID:   tenantID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventConsistencyWarning, data); err != nil {
		p.logger.Error().Err(err).Str("product_id", productID).Msg("failed to publish consistency warning event")
	}
}
