package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func price(v float64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(v), Valid: true}
}

func rec(sku, name string, opts ...func(*SourceRecord)) SourceRecord {
	r := SourceRecord{
		SKU:          sku,
		Name:         name,
		MinQuantity:  5,
		BatchTracked: true,
		Active:       true,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func TestNormalizeSKU(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sku-001", "SKU-001"},
		{"  SKU-001  ", "SKU-001"},
		{"Sku-001", "SKU-001"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := NormalizeSKU(tt.in); got != tt.want {
			t.Errorf("NormalizeSKU(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMergeCatalogs_PrimaryWinsOnConflict(t *testing.T) {
	primary := []SourceRecord{
		rec("SKU-001", "Gloves Nitrile M", func(r *SourceRecord) {
			r.UnitPrice = price(9.50)
			r.Category = strPtr("Consumables")
		}),
	}
	secondary := []SourceRecord{
		rec("sku-001", "Nitrile Gloves Medium", func(r *SourceRecord) {
			r.UnitPrice = price(8.90)
			r.Category = strPtr("Consumables")
		}),
	}

	result := MergeCatalogs(primary, secondary)

	require.Len(t, result.Products, 1)
	assert.Equal(t, 1, result.MergedBoth)
	assert.Equal(t, 0, result.ImportedFromSecondary)

	merged := result.Products[0]
	assert.Equal(t, "SKU-001", merged.SKU)
	assert.Equal(t, "Gloves Nitrile M", merged.Name)
	assert.True(t, merged.UnitPrice.Decimal.Equal(decimal.NewFromFloat(9.50)))

	// Name and price differ, category agrees
	require.Len(t, result.Conflicts, 2)
	fields := []string{result.Conflicts[0].Field, result.Conflicts[1].Field}
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "unit_price")
}

func TestMergeCatalogs_SecondaryFillsMissingFields(t *testing.T) {
	primary := []SourceRecord{
		rec("SKU-001", "Gloves"),
	}
	secondary := []SourceRecord{
		rec("SKU-001", "Gloves", func(r *SourceRecord) {
			r.Unit = strPtr("box")
			r.UnitCost = price(4.20)
		}),
	}

	result := MergeCatalogs(primary, secondary)

	require.Len(t, result.Products, 1)
	merged := result.Products[0]
	require.NotNil(t, merged.Unit)
	assert.Equal(t, "box", *merged.Unit)
	assert.True(t, merged.UnitCost.Valid)
	assert.Empty(t, result.Conflicts, "filling empty fields is not a conflict")
}

func TestMergeCatalogs_SecondaryOnlyImported(t *testing.T) {
	primary := []SourceRecord{
		rec("SKU-001", "Gloves"),
	}
	secondary := []SourceRecord{
		rec("SKU-002", "Syringes 5ml"),
	}

	result := MergeCatalogs(primary, secondary)

	require.Len(t, result.Products, 2)
	assert.Equal(t, 0, result.MergedBoth)
	assert.Equal(t, 1, result.ImportedFromSecondary)
	assert.Equal(t, "SKU-001", result.Products[0].SKU)
	assert.Equal(t, "SKU-002", result.Products[1].SKU)
}

func TestMergeCatalogs_InvalidRecordsSkipped(t *testing.T) {
	maxBelow := 2
	primary := []SourceRecord{
		rec("", "No SKU"),
		rec("SKU-001", "   "),
		rec("SKU-002", "Negative Min", func(r *SourceRecord) { r.MinQuantity = -1 }),
		rec("SKU-003", "Max Below Min", func(r *SourceRecord) {
			r.MinQuantity = 5
			r.MaxQuantity = &maxBelow
		}),
		rec("SKU-004", "Valid"),
	}

	result := MergeCatalogs(primary, nil)

	require.Len(t, result.Products, 1)
	assert.Equal(t, "SKU-004", result.Products[0].SKU)
	require.Len(t, result.Skipped, 4)

	reasons := make([]string, 0, len(result.Skipped))
	for _, s := range result.Skipped {
		reasons = append(reasons, s.Reason)
	}
	assert.Contains(t, reasons, "empty sku")
	assert.Contains(t, reasons, "empty name")
	assert.Contains(t, reasons, "negative min quantity")
	assert.Contains(t, reasons, "max quantity below min quantity")
}

func TestMergeCatalogs_DuplicateWithinSource(t *testing.T) {
	primary := []SourceRecord{
		rec("SKU-001", "First"),
		rec("sku-001", "Second"),
	}

	result := MergeCatalogs(primary, nil)

	require.Len(t, result.Products, 1)
	assert.Equal(t, "First", result.Products[0].Name)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "duplicate sku within source", result.Skipped[0].Reason)
}

func TestMergeCatalogs_InactiveInEitherSourceStaysInactive(t *testing.T) {
	primary := []SourceRecord{
		rec("SKU-001", "Gloves"),
	}
	secondary := []SourceRecord{
		rec("SKU-001", "Gloves", func(r *SourceRecord) { r.Active = false }),
	}

	result := MergeCatalogs(primary, secondary)

	require.Len(t, result.Products, 1)
	assert.False(t, result.Products[0].Active)
}

func TestMergeCatalogs_DeterministicOrder(t *testing.T) {
	primary := []SourceRecord{
		rec("SKU-300", "C"),
		rec("SKU-100", "A"),
	}
	secondary := []SourceRecord{
		rec("SKU-200", "B"),
	}

	result := MergeCatalogs(primary, secondary)

	require.Len(t, result.Products, 3)
	assert.Equal(t, "SKU-100", result.Products[0].SKU)
	assert.Equal(t, "SKU-200", result.Products[1].SKU)
	assert.Equal(t, "SKU-300", result.Products[2].SKU)
}

func TestMergeCatalogs_EmptySources(t *testing.T) {
	result := MergeCatalogs(nil, nil)

	assert.Empty(t, result.Products)
	assert.Empty(t, result.Conflicts)
	assert.Empty(t, result.Skipped)
}
