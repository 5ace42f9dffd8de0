package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/tenant"
)

// Batch statuses
const (
	BatchStatusAvailable   = "available"
	BatchStatusQuarantined = "quarantined"
	BatchStatusExpired     = "expired"
	BatchStatusDepleted    = "depleted"
)

// Batch is one expiry-dated lot of a product at a location
type Batch struct {
	ID              string              `db:"id" json:"id"`
	ProductID       string              `db:"product_id" json:"product_id"`
	LocationID      string              `db:"location_id" json:"location_id"`
	BatchNumber     string              `db:"batch_number" json:"batch_number"`
	Quantity        int                 `db:"quantity" json:"quantity"`
	InitialQuantity int                 `db:"initial_quantity" json:"initial_quantity"`
	UnitCost        decimal.NullDecimal `db:"unit_cost" json:"unit_cost,omitempty"`
	ExpiryDate      *time.Time          `db:"expiry_date" json:"expiry_date,omitempty"`
	ReceivedDate    time.Time           `db:"received_date" json:"received_date"`
	Status          string              `db:"status" json:"status"`
	QuarantineUntil *time.Time          `db:"quarantine_until" json:"quarantine_until,omitempty"`
	Supplier        *string             `db:"supplier" json:"supplier,omitempty"`
	Notes           *string             `db:"notes" json:"notes,omitempty"`
	CreatedBy       *string             `db:"created_by" json:"created_by,omitempty"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
}

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create creates a new batch
func (r *BatchRepository) Create(ctx context.Context, b *Batch) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Status == "" {
		b.Status = BatchStatusAvailable
	}
	if b.ReceivedDate.IsZero() {
		b.ReceivedDate = time.Now()
	}
	if b.InitialQuantity == 0 {
		b.InitialQuantity = b.Quantity
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			INSERT INTO batches (
				id, product_id, location_id, batch_number, quantity, initial_quantity,
				unit_cost, expiry_date, received_date, status, quarantine_until,
				supplier, notes, created_by
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING created_at, updated_at
		`

		err := r.db.QueryRowxContext(ctx, query,
			b.ID, b.ProductID, b.LocationID, b.BatchNumber, b.Quantity, b.InitialQuantity,
			b.UnitCost, b.ExpiryDate, b.ReceivedDate, b.Status, b.QuarantineUntil,
			b.Supplier, b.Notes, b.CreatedBy,
		).Scan(&b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		return nil
	})
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*Batch, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var b Batch
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `SELECT * FROM batches WHERE id = $1`
		return r.db.GetContext(ctx, &b, query, id)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &b, nil
}

// ListByProductLocation lists all batches for a (product, location) pair
func (r *BatchRepository) ListByProductLocation(ctx context.Context, productID, locationID string) ([]*Batch, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var batches []*Batch
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			SELECT * FROM batches
			WHERE product_id = $1 AND location_id = $2
			ORDER BY expiry_date ASC NULLS LAST, received_date ASC, id ASC
		`
		return r.db.SelectContext(ctx, &batches, query, productID, locationID)
	})
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// ListEligible lists batches eligible for allocation in consumption order:
// soonest expiry first, then oldest receipt, then id for a stable tie-break.
// Expired and quarantined lots are excluded even if quantity remains.
func (r *BatchRepository) ListEligible(ctx context.Context, productID, locationID string) ([]*Batch, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var batches []*Batch
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.SelectContext(ctx, &batches, eligibleQuery, productID, locationID)
	})
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// ListEligibleForUpdate is ListEligible with row locks, for use inside an
// allocation transaction. Locking in consumption order keeps lock acquisition
// deterministic across concurrent allocators.
func (r *BatchRepository) ListEligibleForUpdate(ctx context.Context, productID, locationID string) ([]*Batch, error) {
	var batches []*Batch
	if err := r.db.SelectContext(ctx, &batches, eligibleQuery+` FOR UPDATE`, productID, locationID); err != nil {
		if database.IsLockTimeout(err) {
			return nil, errors.Timeout("batch allocation")
		}
		return nil, err
	}
	return batches, nil
}

const eligibleQuery = `
	SELECT * FROM batches
	WHERE product_id = $1 AND location_id = $2
		AND status = 'available'
		AND quantity > 0
		AND (expiry_date IS NULL OR expiry_date >= CURRENT_DATE)
		AND (quarantine_until IS NULL OR quarantine_until <= CURRENT_DATE)
	ORDER BY expiry_date ASC NULLS LAST, received_date ASC, id ASC`

// DecrementQuantity consumes quantity from a batch. The batch flips to
// depleted when it reaches zero. The quantity check constraint rejects
// over-consumption at the database level as a last line of defense.
func (r *BatchRepository) DecrementQuantity(ctx context.Context, id string, quantity int) (*Batch, error) {
	var b Batch
	query := `
		UPDATE batches SET
			quantity = quantity - $2,
			status = CASE WHEN quantity - $2 = 0 THEN 'depleted' ELSE status END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`

	if err := r.db.GetContext(ctx, &b, query, id, quantity); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}
	return &b, nil
}

// UpdateStatus sets a batch status, optionally with a quarantine window
func (r *BatchRepository) UpdateStatus(ctx context.Context, id, status string, quarantineUntil *time.Time) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `UPDATE batches SET status = $2, quarantine_until = $3, updated_at = NOW() WHERE id = $1`
		result, err := r.db.ExecContext(ctx, query, id, status, quarantineUntil)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}

		affected, _ := result.RowsAffected()
		if affected == 0 {
			return errors.NotFound("batch")
		}

		return nil
	})
}

// SumEligible returns the total quantity across allocation-eligible batches
func (r *BatchRepository) SumEligible(ctx context.Context, productID, locationID string) (int, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return 0, err
	}

	var sum int
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			SELECT COALESCE(SUM(quantity), 0) FROM batches
			WHERE product_id = $1 AND location_id = $2
				AND status = 'available'
				AND (expiry_date IS NULL OR expiry_date >= CURRENT_DATE)
				AND (quarantine_until IS NULL OR quarantine_until <= CURRENT_DATE)
		`
		return r.db.GetContext(ctx, &sum, query, productID, locationID)
	})
	return sum, err
}

// SumNonExpired returns the total quantity across non-expired batches.
// A batch-tracked stock level must equal this sum; the consistency check
// compares the two. Quarantined lots count: quarantine removes a batch from
// allocation eligibility without altering quantities.
func (r *BatchRepository) SumNonExpired(ctx context.Context, productID, locationID string) (int, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return 0, err
	}

	var sum int
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			SELECT COALESCE(SUM(quantity), 0) FROM batches
			WHERE product_id = $1 AND location_id = $2
				AND status <> 'expired'
				AND (expiry_date IS NULL OR expiry_date >= CURRENT_DATE)
		`
		return r.db.GetContext(ctx, &sum, query, productID, locationID)
	})
	return sum, err
}

// ListExpiring lists available batches whose expiry falls within the window
func (r *BatchRepository) ListExpiring(ctx context.Context, withinDays int) ([]*Batch, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var batches []*Batch
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			SELECT * FROM batches
			WHERE status = 'available'
				AND quantity > 0
				AND expiry_date IS NOT NULL
				AND expiry_date >= CURRENT_DATE
				AND expiry_date < CURRENT_DATE + ($1 || ' days')::interval
			ORDER BY expiry_date ASC, id ASC
		`
		return r.db.SelectContext(ctx, &batches, query, withinDays)
	})
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// MarkExpired flags every overdue batch expired and returns the flagged rows.
// Quantity is left untouched; expired lots are kept for audit.
func (r *BatchRepository) MarkExpired(ctx context.Context) ([]*Batch, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var batches []*Batch
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			UPDATE batches SET status = 'expired', updated_at = NOW()
			WHERE status IN ('available', 'quarantined')
				AND expiry_date IS NOT NULL
				AND expiry_date < CURRENT_DATE
			RETURNING *
		`
		return r.db.SelectContext(ctx, &batches, query)
	})
	if err != nil {
		return nil, err
	}
	return batches, nil
}
