package service

import (
	"time"

	"github.com/stockflow/stockflow-backend/internal/stock/repository"
)

// Stock statuses derived from current quantity vs thresholds
const (
	StatusOutOfStock = "out_of_stock"
	StatusLowStock   = "low_stock"
	StatusInStock    = "in_stock"
	StatusOverstock  = "overstock"
)

// Reorder urgency levels
const (
	UrgencyCritical = "critical"
	UrgencyHigh     = "high"
	UrgencyMedium   = "medium"
	UrgencyLow      = "low"
)

// StatusFor derives the stock status for a level. Pure; computed on read,
// never stored.
func StatusFor(lvl *repository.StockLevel) string {
	switch {
	case lvl.Quantity <= 0:
		return StatusOutOfStock
	case lvl.Quantity <= lvl.MinQuantity:
		return StatusLowStock
	case lvl.MaxQuantity != nil && lvl.Quantity > *lvl.MaxQuantity:
		return StatusOverstock
	default:
		return StatusInStock
	}
}

// ReorderSuggestion is a derived, time-boxed reorder recommendation
type ReorderSuggestion struct {
	ProductID         string    `json:"product_id"`
	LocationID        string    `json:"location_id"`
	CurrentStock      int       `json:"current_stock"`
	MinimumStock      int       `json:"minimum_stock"`
	SuggestedQuantity int       `json:"suggested_quantity"`
	Urgency           string    `json:"urgency"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// SuggestFor derives a reorder suggestion for a level. Returns false when the
// level sits comfortably above its thresholds and no suggestion applies.
// Target stock is the maximum if set, else twice the minimum.
func SuggestFor(lvl *repository.StockLevel, now time.Time, validity time.Duration) (*ReorderSuggestion, bool) {
	urgency, ok := urgencyFor(lvl)
	if !ok {
		return nil, false
	}

	target := 2 * lvl.MinQuantity
	if lvl.MaxQuantity != nil {
		target = *lvl.MaxQuantity
	}
	suggested := target - lvl.Quantity
	if suggested < 0 {
		suggested = 0
	}

	return &ReorderSuggestion{
		ProductID:         lvl.ProductID,
		LocationID:        lvl.LocationID,
		CurrentStock:      lvl.Quantity,
		MinimumStock:      lvl.MinQuantity,
		SuggestedQuantity: suggested,
		Urgency:           urgency,
		ExpiresAt:         now.Add(validity),
	}, true
}

func urgencyFor(lvl *repository.StockLevel) (string, bool) {
	switch {
	case lvl.Quantity <= 0:
		return UrgencyCritical, true
	case lvl.Quantity <= lvl.MinQuantity/2:
		return UrgencyHigh, true
	case lvl.Quantity <= lvl.MinQuantity:
		return UrgencyMedium, true
	case lvl.Quantity <= lvl.ReorderPoint:
		return UrgencyLow, true
	default:
		return "", false
	}
}
