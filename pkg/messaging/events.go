package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// Catalog events
	EventCatalogReconciled  = "catalog.reconciled"
	EventProductDeactivated = "catalog.product.deactivated"

	// Stock events
	EventMovementRecorded    = "stock.movement.recorded"
	EventAllocationCommitted = "stock.allocation.committed"
	EventStockLevelLow       = "stock.level.low"
	EventStockLevelOut       = "stock.level.out"
	EventBatchReceived       = "stock.batch.received"
	EventBatchExpiring       = "stock.batch.expiring"
	EventBatchExpired        = "stock.batch.expired"
	EventConsistencyWarning  = "stock.consistency.warning"
)

// Exchange names
const (
	ExchangeStockEvents   = "stock.events"
	ExchangeCatalogEvents = "catalog.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Catalog Events

// CatalogReconciledEvent is published after a catalog reconciliation run
type CatalogReconciledEvent struct {
	RunID       string `json:"run_id"`
	Merged      int    `json:"merged"`
	Imported    int    `json:"imported"`
	Deactivated int    `json:"deactivated"`
	Conflicts   int    `json:"conflicts"`
	TenantID    string `json:"tenant_id"`
}

// ProductDeactivatedEvent is published when reconciliation flags a product inactive
type ProductDeactivatedEvent struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Reason    string `json:"reason"`
	TenantID  string `json:"tenant_id"`
}

// Stock Events

// MovementRecordedEvent is published for every recorded stock movement
type MovementRecordedEvent struct {
	MovementID     string `json:"movement_id"`
	MovementType   string `json:"movement_type"`
	ProductID      string `json:"product_id"`
	LocationID     string `json:"location_id"`
	BatchID        string `json:"batch_id,omitempty"`
	Quantity       int    `json:"quantity"`
	QuantityBefore int    `json:"quantity_before"`
	QuantityAfter  int    `json:"quantity_after"`
	PerformedBy    string `json:"performed_by"`
	Reason         string `json:"reason,omitempty"`
	TenantID       string `json:"tenant_id"`
}

// AllocationCommittedEvent is published when a FIFO allocation is committed
type AllocationCommittedEvent struct {
	AllocationID string               `json:"allocation_id"`
	ProductID    string               `json:"product_id"`
	LocationID   string               `json:"location_id"`
	Requested    int                  `json:"requested"`
	Lines        []AllocationLineData `json:"lines"`
	PerformedBy  string               `json:"performed_by"`
	TenantID     string               `json:"tenant_id"`
}

// AllocationLineData is one batch draw within a committed allocation
type AllocationLineData struct {
	BatchID     string     `json:"batch_id"`
	BatchNumber string     `json:"batch_number"`
	Quantity    int        `json:"quantity"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
}

// StockLevelLowEvent is published when a movement drops a level to or below its minimum
type StockLevelLowEvent struct {
	ProductID   string `json:"product_id"`
	LocationID  string `json:"location_id"`
	Quantity    int    `json:"quantity"`
	MinQuantity int    `json:"min_quantity"`
	TenantID    string `json:"tenant_id"`
}

// StockLevelOutEvent is published when a movement drops a level to zero
type StockLevelOutEvent struct {
	ProductID  string `json:"product_id"`
	LocationID string `json:"location_id"`
	TenantID   string `json:"tenant_id"`
}

// BatchReceivedEvent is published when a new batch is received into stock
type BatchReceivedEvent struct {
	BatchID     string     `json:"batch_id"`
	BatchNumber string     `json:"batch_number"`
	ProductID   string     `json:"product_id"`
	LocationID  string     `json:"location_id"`
	Quantity    int        `json:"quantity"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	TenantID    string     `json:"tenant_id"`
}

// BatchExpiringEvent is published when a batch is nearing expiry
type BatchExpiringEvent struct {
	BatchID     string    `json:"batch_id"`
	BatchNumber string    `json:"batch_number"`
	ProductID   string    `json:"product_id"`
	LocationID  string    `json:"location_id"`
	ExpiryDate  time.Time `json:"expiry_date"`
	DaysUntil   int       `json:"days_until"`
	Quantity    int       `json:"quantity"`
	TenantID    string    `json:"tenant_id"`
}

// BatchExpiredEvent is published when the expiry sweep marks a batch expired
type BatchExpiredEvent struct {
	BatchID     string    `json:"batch_id"`
	BatchNumber string    `json:"batch_number"`
	ProductID   string    `json:"product_id"`
	LocationID  string    `json:"location_id"`
	ExpiryDate  time.Time `json:"expiry_date"`
	Quantity    int       `json:"quantity"`
	TenantID    string    `json:"tenant_id"`
}

// ConsistencyWarningEvent is published when a batch-tracked stock level
// disagrees with the sum of its batches
type ConsistencyWarningEvent struct {
	ProductID  string `json:"product_id"`
	LocationID string `json:"location_id"`
	LevelQty   int    `json:"level_quantity"`
	BatchSum   int    `json:"batch_sum"`
	TenantID   string `json:"tenant_id"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
