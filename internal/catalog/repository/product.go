package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/tenant"
)

// Product represents a catalog product
type Product struct {
	ID                  string              `db:"id" json:"id"`
	SKU                 string              `db:"sku" json:"sku"`
	Name                string              `db:"name" json:"name"`
	Description         *string             `db:"description" json:"description,omitempty"`
	Category            *string             `db:"category" json:"category,omitempty"`
	Unit                *string             `db:"unit" json:"unit,omitempty"`
	UnitPrice           decimal.NullDecimal `db:"unit_price" json:"unit_price,omitempty"`
	UnitCost            decimal.NullDecimal `db:"unit_cost" json:"unit_cost,omitempty"`
	MinQuantity         int                 `db:"min_quantity" json:"min_quantity"`
	MaxQuantity         *int                `db:"max_quantity" json:"max_quantity,omitempty"`
	ReorderPoint        int                 `db:"reorder_point" json:"reorder_point"`
	PreferredSupplierID *string             `db:"preferred_supplier_id" json:"preferred_supplier_id,omitempty"`
	BatchTracked        bool                `db:"batch_tracked" json:"batch_tracked"`
	IsActive            bool                `db:"is_active" json:"is_active"`
	SourceSystem        *string             `db:"source_system" json:"source_system,omitempty"`
	CreatedAt           time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time           `db:"updated_at" json:"updated_at"`
	DeletedAt           *time.Time          `db:"deleted_at" json:"-"`
}

// ReconcileRun is a persisted summary of one reconciliation run
type ReconcileRun struct {
	ID          string          `db:"id" json:"id"`
	Merged      int             `db:"merged" json:"merged"`
	Imported    int             `db:"imported" json:"imported"`
	Deactivated int             `db:"deactivated" json:"deactivated"`
	Conflicts   json.RawMessage `db:"conflicts" json:"conflicts"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// ProductRepository handles product persistence
type ProductRepository struct {
	db *database.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create creates a new product
// TENANT-ISOLATED: Inserts into the tenant's schema
func (r *ProductRepository) Create(ctx context.Context, p *Product) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			INSERT INTO products (
				id, sku, name, description, category, unit, unit_price, unit_cost,
				min_quantity, max_quantity, reorder_point, preferred_supplier_id,
				batch_tracked, is_active, source_system
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING created_at, updated_at
		`

		err := r.db.QueryRowxContext(ctx, query,
			p.ID, p.SKU, p.Name, p.Description, p.Category, p.Unit, p.UnitPrice, p.UnitCost,
			p.MinQuantity, p.MaxQuantity, p.ReorderPoint, p.PreferredSupplierID,
			p.BatchTracked, p.IsActive, p.SourceSystem,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		return nil
	})
}

// GetByID gets a product by ID
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*Product, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var p Product
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `SELECT * FROM products WHERE id = $1 AND deleted_at IS NULL`
		return r.db.GetContext(ctx, &p, query, id)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("product")
		}
		return nil, err
	}
	return &p, nil
}

// GetBySKU gets a product by SKU
func (r *ProductRepository) GetBySKU(ctx context.Context, sku string) (*Product, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var p Product
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `SELECT * FROM products WHERE sku = $1 AND deleted_at IS NULL`
		return r.db.GetContext(ctx, &p, query, sku)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("product")
		}
		return nil, err
	}
	return &p, nil
}

// List lists products with pagination
func (r *ProductRepository) List(ctx context.Context, page, perPage int, category string, includeInactive bool) ([]*Product, int64, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}
	offset := (page - 1) * perPage

	where := `deleted_at IS NULL`
	args := []interface{}{}
	if !includeInactive {
		where += ` AND is_active = true`
	}
	if category != "" {
		args = append(args, category)
		where += ` AND category = $1`
	}

	var products []*Product
	var total int64
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		countQuery := `SELECT COUNT(*) FROM products WHERE ` + where
		if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
			return err
		}

		query := fmt.Sprintf(`SELECT * FROM products WHERE %s ORDER BY sku LIMIT $%d OFFSET $%d`,
			where, len(args)+1, len(args)+2)
		args = append(args, perPage, offset)
		return r.db.SelectContext(ctx, &products, query, args...)
	})
	if err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

// ListAll lists every non-deleted product, active or not.
// The reconciler uses this to compare the stored catalog against a merge result.
func (r *ProductRepository) ListAll(ctx context.Context) ([]*Product, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var products []*Product
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `SELECT * FROM products WHERE deleted_at IS NULL ORDER BY sku`
		return r.db.SelectContext(ctx, &products, query)
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// Update updates a product
func (r *ProductRepository) Update(ctx context.Context, p *Product) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			UPDATE products SET
				sku = $2, name = $3, description = $4, category = $5, unit = $6,
				unit_price = $7, unit_cost = $8, min_quantity = $9, max_quantity = $10,
				reorder_point = $11, preferred_supplier_id = $12,
				batch_tracked = $13, is_active = $14, source_system = $15, updated_at = NOW()
			WHERE id = $1 AND deleted_at IS NULL
		`

		result, err := r.db.ExecContext(ctx, query,
			p.ID, p.SKU, p.Name, p.Description, p.Category, p.Unit,
			p.UnitPrice, p.UnitCost, p.MinQuantity, p.MaxQuantity,
			p.ReorderPoint, p.PreferredSupplierID,
			p.BatchTracked, p.IsActive, p.SourceSystem,
		)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}

		affected, _ := result.RowsAffected()
		if affected == 0 {
			return errors.NotFound("product")
		}

		return nil
	})
}

// UpsertBySKU inserts a product or updates the existing row with the same SKU.
// The reconciler uses this to sync a merge result into the catalog.
func (r *ProductRepository) UpsertBySKU(ctx context.Context, p *Product) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			INSERT INTO products (
				id, sku, name, description, category, unit, unit_price, unit_cost,
				min_quantity, max_quantity, reorder_point, preferred_supplier_id,
				batch_tracked, is_active, source_system
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (sku) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				category = EXCLUDED.category,
				unit = EXCLUDED.unit,
				unit_price = EXCLUDED.unit_price,
				unit_cost = EXCLUDED.unit_cost,
				min_quantity = EXCLUDED.min_quantity,
				max_quantity = EXCLUDED.max_quantity,
				reorder_point = EXCLUDED.reorder_point,
				preferred_supplier_id = EXCLUDED.preferred_supplier_id,
				batch_tracked = EXCLUDED.batch_tracked,
				is_active = EXCLUDED.is_active,
				source_system = EXCLUDED.source_system,
				updated_at = NOW()
			RETURNING id, created_at, updated_at
		`

		return r.db.QueryRowxContext(ctx, query,
			p.ID, p.SKU, p.Name, p.Description, p.Category, p.Unit, p.UnitPrice, p.UnitCost,
			p.MinQuantity, p.MaxQuantity, p.ReorderPoint, p.PreferredSupplierID,
			p.BatchTracked, p.IsActive, p.SourceSystem,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	})
}

// Deactivate flags a product inactive without deleting it
func (r *ProductRepository) Deactivate(ctx context.Context, id string) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `UPDATE products SET is_active = false, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
		result, err := r.db.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}

		affected, _ := result.RowsAffected()
		if affected == 0 {
			return errors.NotFound("product")
		}

		return nil
	})
}

// SoftDelete marks a product deleted
func (r *ProductRepository) SoftDelete(ctx context.Context, id string) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `UPDATE products SET deleted_at = NOW(), is_active = false WHERE id = $1 AND deleted_at IS NULL`
		result, err := r.db.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}

		affected, _ := result.RowsAffected()
		if affected == 0 {
			return errors.NotFound("product")
		}

		return nil
	})
}

// SaveReconcileRun persists a reconciliation run summary
func (r *ProductRepository) SaveReconcileRun(ctx context.Context, run *ReconcileRun) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if len(run.Conflicts) == 0 {
		run.Conflicts = json.RawMessage("[]")
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			INSERT INTO reconcile_runs (id, merged, imported, deactivated, conflicts)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at
		`

		return r.db.QueryRowxContext(ctx, query,
			run.ID, run.Merged, run.Imported, run.Deactivated, run.Conflicts,
		).Scan(&run.CreatedAt)
	})
}

// ListReconcileRuns lists recent reconciliation runs
func (r *ProductRepository) ListReconcileRuns(ctx context.Context, limit int) ([]*ReconcileRun, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	if limit < 1 || limit > 100 {
		limit = 20
	}

	var runs []*ReconcileRun
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `SELECT * FROM reconcile_runs ORDER BY created_at DESC LIMIT $1`
		return r.db.SelectContext(ctx, &runs, query, limit)
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}
