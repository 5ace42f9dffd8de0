package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductFixture represents test product data
type ProductFixture struct {
	ID           string
	SKU          string
	Name         string
	Category     string
	Unit         string
	UnitPrice    decimal.Decimal
	UnitCost     decimal.Decimal
	MinQuantity  int
	MaxQuantity  *int
	ReorderPoint int
	BatchTracked bool
	IsActive     bool
	CreatedAt    time.Time
}

// LocationFixture represents test location data
type LocationFixture struct {
	ID                 string
	Name               string
	AllowNegativeStock bool
	IsActive           bool
	CreatedAt          time.Time
}

// BatchFixture represents test batch data
type BatchFixture struct {
	ID              string
	ProductID       string
	LocationID      string
	BatchNumber     string
	Quantity        int
	InitialQuantity int
	UnitCost        decimal.Decimal
	ExpiryDate      *time.Time
	ReceivedDate    time.Time
	Status          string
	Supplier        string
	CreatedAt       time.Time
}

// StockLevelFixture represents test stock level data
type StockLevelFixture struct {
	ID               string
	ProductID        string
	LocationID       string
	Quantity         int
	ReservedQuantity int
	MinQuantity      int
	MaxQuantity      *int
	ReorderPoint     int
	Version          int64
	UpdatedAt        time.Time
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Product creates a product fixture with defaults
func (f *FixtureFactory) Product(opts ...func(*ProductFixture)) ProductFixture {
	seq := f.nextSeq()

	p := ProductFixture{
		ID:           uuid.New().String(),
		SKU:          fmt.Sprintf("SKU-%04d", seq),
		Name:         fmt.Sprintf("Test Product %d", seq),
		Category:     "Medical Supplies",
		Unit:         "piece",
		UnitPrice:    decimal.NewFromFloat(9.95),
		UnitCost:     decimal.NewFromFloat(6.20),
		MinQuantity:  10,
		BatchTracked: true,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}

	for _, opt := range opts {
		opt(&p)
	}

	return p
}

// WithSKU sets the product SKU
func WithSKU(sku string) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.SKU = sku
	}
}

// WithProductName sets the product name
func WithProductName(name string) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.Name = name
	}
}

// WithMinMax sets the product min and max quantities
func WithMinMax(min int, max *int) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.MinQuantity = min
		p.MaxQuantity = max
	}
}

// WithReorderPoint sets the product reorder point
func WithReorderPoint(point int) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.ReorderPoint = point
	}
}

// WithoutBatchTracking disables batch tracking on the product
func WithoutBatchTracking() func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.BatchTracked = false
	}
}

// Location creates a location fixture with defaults
func (f *FixtureFactory) Location(opts ...func(*LocationFixture)) LocationFixture {
	seq := f.nextSeq()

	loc := LocationFixture{
		ID:        uuid.New().String(),
		Name:      fmt.Sprintf("Storage Room %d", seq),
		IsActive:  true,
		CreatedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(&loc)
	}

	return loc
}

// WithNegativeStockAllowed lets the location go below zero
func WithNegativeStockAllowed() func(*LocationFixture) {
	return func(l *LocationFixture) {
		l.AllowNegativeStock = true
	}
}

// Batch creates a batch fixture with defaults for the given product and location
func (f *FixtureFactory) Batch(productID, locationID string, opts ...func(*BatchFixture)) BatchFixture {
	seq := f.nextSeq()

	b := BatchFixture{
		ID:              uuid.New().String(),
		ProductID:       productID,
		LocationID:      locationID,
		BatchNumber:     fmt.Sprintf("LOT-%04d", seq),
		Quantity:        100,
		InitialQuantity: 100,
		UnitCost:        decimal.NewFromFloat(6.20),
		ReceivedDate:    time.Now().AddDate(0, 0, -7),
		Status:          "available",
		Supplier:        "Test Supplier GmbH",
		CreatedAt:       time.Now(),
	}

	for _, opt := range opts {
		opt(&b)
	}

	return b
}

// WithBatchQuantity sets the batch quantity (and initial quantity)
func WithBatchQuantity(qty int) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.Quantity = qty
		b.InitialQuantity = qty
	}
}

// WithExpiry sets the batch expiry date
func WithExpiry(t time.Time) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.ExpiryDate = &t
	}
}

// WithReceived sets the batch received date
func WithReceived(t time.Time) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.ReceivedDate = t
	}
}

// WithBatchStatus sets the batch status
func WithBatchStatus(status string) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.Status = status
	}
}

// StockLevel creates a stock level fixture for the given product and location
func (f *FixtureFactory) StockLevel(productID, locationID string, opts ...func(*StockLevelFixture)) StockLevelFixture {
	lvl := StockLevelFixture{
		ID:          uuid.New().String(),
		ProductID:   productID,
		LocationID:  locationID,
		Quantity:    100,
		MinQuantity: 10,
		Version:     1,
		UpdatedAt:   time.Now(),
	}

	for _, opt := range opts {
		opt(&lvl)
	}

	return lvl
}

// WithQuantity sets the stock level quantity
func WithQuantity(qty int) func(*StockLevelFixture) {
	return func(l *StockLevelFixture) {
		l.Quantity = qty
	}
}

// WithReserved sets the stock level reserved quantity
func WithReserved(qty int) func(*StockLevelFixture) {
	return func(l *StockLevelFixture) {
		l.ReservedQuantity = qty
	}
}

// WithLevelMinMax sets the stock level min and max quantities
func WithLevelMinMax(min int, max *int) func(*StockLevelFixture) {
	return func(l *StockLevelFixture) {
		l.MinQuantity = min
		l.MaxQuantity = max
	}
}

// WithLevelReorderPoint sets the stock level reorder point
func WithLevelReorderPoint(point int) func(*StockLevelFixture) {
	return func(l *StockLevelFixture) {
		l.ReorderPoint = point
	}
}
