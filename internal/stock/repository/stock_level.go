package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/tenant"
)

// StockLevel is the aggregated quantity for one (product, location) pair.
// Mutations go through the ledger service; the version column detects
// writers that slipped past the row lock.
type StockLevel struct {
	ID               string     `db:"id" json:"id"`
	ProductID        string     `db:"product_id" json:"product_id"`
	LocationID       string     `db:"location_id" json:"location_id"`
	Quantity         int        `db:"quantity" json:"quantity"`
	ReservedQuantity int        `db:"reserved_quantity" json:"reserved_quantity"`
	MinQuantity      int        `db:"min_quantity" json:"min_quantity"`
	MaxQuantity      *int       `db:"max_quantity" json:"max_quantity,omitempty"`
	ReorderPoint     int        `db:"reorder_point" json:"reorder_point"`
	Version          int64      `db:"version" json:"-"`
	LastMovementAt   *time.Time `db:"last_movement_at" json:"last_movement_at,omitempty"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
	// Computed field for API responses
	AvailableQuantity int `db:"-" json:"available_quantity"`
}

// Available returns the quantity not held by reservations, floored at zero
func (l *StockLevel) Available() int {
	avail := l.Quantity - l.ReservedQuantity
	if avail < 0 {
		return 0
	}
	return avail
}

func (l *StockLevel) derive() *StockLevel {
	l.AvailableQuantity = l.Available()
	return l
}

// StockLevelRepository handles stock level persistence
type StockLevelRepository struct {
	db *database.DB
}

// NewStockLevelRepository creates a new stock level repository
func NewStockLevelRepository(db *database.DB) *StockLevelRepository {
	return &StockLevelRepository{db: db}
}

// Get gets the stock level for a (product, location) pair
func (r *StockLevelRepository) Get(ctx context.Context, productID, locationID string) (*StockLevel, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var lvl StockLevel
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `SELECT * FROM stock_levels WHERE product_id = $1 AND location_id = $2`
		return r.db.GetContext(ctx, &lvl, query, productID, locationID)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("stock level")
		}
		return nil, err
	}
	return lvl.derive(), nil
}

// GetForUpdate locks and returns the stock level row. Must run inside the
// caller's transaction; the row lock serializes concurrent mutations on the
// same (product, location) key.
func (r *StockLevelRepository) GetForUpdate(ctx context.Context, productID, locationID string) (*StockLevel, error) {
	var lvl StockLevel
	query := `SELECT * FROM stock_levels WHERE product_id = $1 AND location_id = $2 FOR UPDATE`
	if err := r.db.GetContext(ctx, &lvl, query, productID, locationID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("stock level")
		}
		if database.IsLockTimeout(err) {
			return nil, errors.Timeout("stock mutation")
		}
		return nil, err
	}
	return lvl.derive(), nil
}

// EnsureExists creates a zero-quantity stock level row if none exists yet.
// Thresholds are seeded from the product's catalog defaults.
func (r *StockLevelRepository) EnsureExists(ctx context.Context, productID, locationID string, minQuantity int, maxQuantity *int, reorderPoint int) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			INSERT INTO stock_levels (id, product_id, location_id, quantity, reserved_quantity, min_quantity, max_quantity, reorder_point)
			VALUES ($1, $2, $3, 0, 0, $4, $5, $6)
			ON CONFLICT (product_id, location_id) DO NOTHING
		`
		_, err := r.db.ExecContext(ctx, query, uuid.New().String(), productID, locationID, minQuantity, maxQuantity, reorderPoint)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
		}
		return err
	})
}

// UpdateQuantities writes new quantities for a previously locked stock level.
// The version predicate catches a competing writer that modified the row
// between the caller's read and this write.
func (r *StockLevelRepository) UpdateQuantities(ctx context.Context, lvl *StockLevel) error {
	query := `
		UPDATE stock_levels SET
			quantity = $3, reserved_quantity = $4, version = version + 1,
			last_movement_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND version = $2
	`

	result, err := r.db.ExecContext(ctx, query, lvl.ID, lvl.Version, lvl.Quantity, lvl.ReservedQuantity)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.ConcurrentModification(lvl.ProductID, lvl.LocationID)
	}

	lvl.Version++
	lvl.derive()
	return nil
}

// UpdateThresholds sets the per-location min/max/reorder thresholds
func (r *StockLevelRepository) UpdateThresholds(ctx context.Context, productID, locationID string, minQuantity int, maxQuantity *int, reorderPoint int) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			UPDATE stock_levels SET
				min_quantity = $3, max_quantity = $4, reorder_point = $5, updated_at = NOW()
			WHERE product_id = $1 AND location_id = $2
		`

		result, err := r.db.ExecContext(ctx, query, productID, locationID, minQuantity, maxQuantity, reorderPoint)
		if err != nil {
			return err
		}

		affected, _ := result.RowsAffected()
		if affected == 0 {
			return errors.NotFound("stock level")
		}

		return nil
	})
}

// ListByLocation lists stock levels at a location
func (r *StockLevelRepository) ListByLocation(ctx context.Context, locationID string) ([]*StockLevel, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var levels []*StockLevel
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `SELECT * FROM stock_levels WHERE location_id = $1 ORDER BY product_id`
		return r.db.SelectContext(ctx, &levels, query, locationID)
	})
	if err != nil {
		return nil, err
	}
	for _, lvl := range levels {
		lvl.derive()
	}
	return levels, nil
}

// ListByProduct lists a product's stock levels across all locations
func (r *StockLevelRepository) ListByProduct(ctx context.Context, productID string) ([]*StockLevel, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var levels []*StockLevel
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `SELECT * FROM stock_levels WHERE product_id = $1 ORDER BY location_id`
		return r.db.SelectContext(ctx, &levels, query, productID)
	})
	if err != nil {
		return nil, err
	}
	for _, lvl := range levels {
		lvl.derive()
	}
	return levels, nil
}

// ListBelowReorderPoint lists stock levels at or below their reorder point.
// The reorder advisor walks this to produce suggestions.
func (r *StockLevelRepository) ListBelowReorderPoint(ctx context.Context) ([]*StockLevel, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var levels []*StockLevel
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			SELECT * FROM stock_levels
			WHERE quantity <= GREATEST(reorder_point, min_quantity)
			ORDER BY product_id, location_id
		`
		return r.db.SelectContext(ctx, &levels, query)
	})
	if err != nil {
		return nil, err
	}
	for _, lvl := range levels {
		lvl.derive()
	}
	return levels, nil
}
