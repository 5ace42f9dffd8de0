package service_test

import (
	"testing"
	"time"

	"github.com/stockflow/stockflow-backend/internal/stock/repository"
	"github.com/stockflow/stockflow-backend/internal/stock/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func level(qty, min int, max *int, reorderPoint int) *repository.StockLevel {
	return &repository.StockLevel{
		ProductID:    "prod-1",
		LocationID:   "loc-1",
		Quantity:     qty,
		MinQuantity:  min,
		MaxQuantity:  max,
		ReorderPoint: reorderPoint,
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name     string
		level    *repository.StockLevel
		expected string
	}{
		{"zero quantity", level(0, 10, nil, 0), service.StatusOutOfStock},
		{"negative quantity", level(-3, 10, nil, 0), service.StatusOutOfStock},
		{"at minimum", level(10, 10, nil, 0), service.StatusLowStock},
		{"below minimum", level(4, 10, nil, 0), service.StatusLowStock},
		{"above maximum", level(101, 10, intPtr(100), 0), service.StatusOverstock},
		{"at maximum", level(100, 10, intPtr(100), 0), service.StatusInStock},
		{"no maximum set", level(1000, 10, nil, 0), service.StatusInStock},
		{"healthy", level(50, 10, intPtr(100), 0), service.StatusInStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, service.StatusFor(tt.level))
		})
	}
}

func TestSuggestFor_Urgency(t *testing.T) {
	tests := []struct {
		name    string
		level   *repository.StockLevel
		want    bool
		urgency string
	}{
		{"out of stock", level(0, 10, nil, 15), true, service.UrgencyCritical},
		{"negative", level(-1, 10, nil, 15), true, service.UrgencyCritical},
		{"half of minimum", level(5, 10, nil, 15), true, service.UrgencyHigh},
		{"below half of minimum", level(3, 10, nil, 15), true, service.UrgencyHigh},
		{"at minimum", level(10, 10, nil, 15), true, service.UrgencyMedium},
		{"between minimum and reorder point", level(12, 10, nil, 15), true, service.UrgencyLow},
		{"at reorder point", level(15, 10, nil, 15), true, service.UrgencyLow},
		{"above reorder point", level(16, 10, nil, 15), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suggestion, ok := service.SuggestFor(tt.level, time.Now(), time.Minute)
			assert.Equal(t, tt.want, ok)
			if tt.want {
				require.NotNil(t, suggestion)
				assert.Equal(t, tt.urgency, suggestion.Urgency)
			} else {
				assert.Nil(t, suggestion)
			}
		})
	}
}

func TestSuggestFor_TargetIsMaximumWhenSet(t *testing.T) {
	suggestion, ok := service.SuggestFor(level(5, 10, intPtr(80), 15), time.Now(), time.Minute)
	require.True(t, ok)
	assert.Equal(t, 75, suggestion.SuggestedQuantity)
}

func TestSuggestFor_TargetDefaultsToTwiceMinimum(t *testing.T) {
	suggestion, ok := service.SuggestFor(level(5, 10, nil, 15), time.Now(), time.Minute)
	require.True(t, ok)
	assert.Equal(t, 15, suggestion.SuggestedQuantity)
}

func TestSuggestFor_SuggestionNeverNegative(t *testing.T) {
	// Quantity already above target but still at the reorder point
	lvl := level(12, 10, intPtr(11), 15)
	suggestion, ok := service.SuggestFor(lvl, time.Now(), time.Minute)
	require.True(t, ok)
	assert.Equal(t, 0, suggestion.SuggestedQuantity)
}

func TestSuggestFor_ValidityWindow(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	suggestion, ok := service.SuggestFor(level(0, 10, nil, 15), now, 15*time.Minute)
	require.True(t, ok)
	assert.Equal(t, now.Add(15*time.Minute), suggestion.ExpiresAt)
	assert.Equal(t, "prod-1", suggestion.ProductID)
	assert.Equal(t, "loc-1", suggestion.LocationID)
}
