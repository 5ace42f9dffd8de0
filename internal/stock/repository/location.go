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

// Location represents a storage location
type Location struct {
	ID                 string    `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	Description        *string   `db:"description" json:"description,omitempty"`
	AllowNegativeStock bool      `db:"allow_negative_stock" json:"allow_negative_stock"`
	IsActive           bool      `db:"is_active" json:"is_active"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// LocationRepository handles location persistence
type LocationRepository struct {
	db *database.DB
}

// NewLocationRepository creates a new location repository
func NewLocationRepository(db *database.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// Create creates a new location
func (r *LocationRepository) Create(ctx context.Context, loc *Location) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	if loc.ID == "" {
		loc.ID = uuid.New().String()
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			INSERT INTO locations (id, name, description, allow_negative_stock, is_active)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, updated_at
		`

		err := r.db.QueryRowxContext(ctx, query,
			loc.ID, loc.Name, loc.Description, loc.AllowNegativeStock, loc.IsActive,
		).Scan(&loc.CreatedAt, &loc.UpdatedAt)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		return nil
	})
}

// GetByID gets a location by ID
func (r *LocationRepository) GetByID(ctx context.Context, id string) (*Location, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var loc Location
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `SELECT * FROM locations WHERE id = $1`
		return r.db.GetContext(ctx, &loc, query, id)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("location")
		}
		return nil, err
	}
	return &loc, nil
}

// List lists all active locations
func (r *LocationRepository) List(ctx context.Context) ([]*Location, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var locations []*Location
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `SELECT * FROM locations WHERE is_active = true ORDER BY name`
		return r.db.SelectContext(ctx, &locations, query)
	})
	if err != nil {
		return nil, err
	}
	return locations, nil
}

// Update updates a location
func (r *LocationRepository) Update(ctx context.Context, loc *Location) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			UPDATE locations SET
				name = $2, description = $3, allow_negative_stock = $4,
				is_active = $5, updated_at = NOW()
			WHERE id = $1
		`

		result, err := r.db.ExecContext(ctx, query,
			loc.ID, loc.Name, loc.Description, loc.AllowNegativeStock, loc.IsActive,
		)
		if err != nil {
			return err
		}

		affected, _ := result.RowsAffected()
		if affected == 0 {
			return errors.NotFound("location")
		}

		return nil
	})
}
