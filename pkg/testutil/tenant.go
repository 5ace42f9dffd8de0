package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/pkg/tenant"
)

// TestTenant represents a tenant created for testing
type TestTenant struct {
	ID         string
	Name       string
	Slug       string
	SchemaName string
}

// TenantManager manages test tenant schemas
type TenantManager struct {
	db      *sqlx.DB
	tenants []TestTenant
	mu      sync.Mutex
}

// NewTenantManager creates a new tenant manager for tests
func NewTenantManager(db *sqlx.DB) *TenantManager {
	return &TenantManager{
		db:      db,
		tenants: make([]TestTenant, 0),
	}
}

// CreateTenant creates a new isolated tenant schema for testing.
// Each test can have its own tenant to ensure complete isolation.
//
// Usage:
//
//	tm := testutil.NewTenantManager(db)
//	tenant := tm.CreateTenant(ctx, "test-practice")
//	ctx = testutil.WithTestTenant(ctx, tenant)
//
//	// Now all repository operations will use this tenant's schema
//	lvl, err := stockRepo.GetStock(ctx, productID, locationID)
func (tm *TenantManager) CreateTenant(ctx context.Context, name string) (*TestTenant, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	id := uuid.New().String()
	slug := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	schemaName := fmt.Sprintf("tenant_%s", strings.ReplaceAll(slug, "-", "_"))

	// Create schema
	_, err := tm.db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant schema: %w", err)
	}

	// Register tenant in public.tenants
	_, err = tm.db.ExecContext(ctx, `
		INSERT INTO public.tenants (id, name, slug, schema_name, subscription_status)
		VALUES ($1, $2, $3, $4, 'active')
		ON CONFLICT (slug) DO NOTHING
	`, id, name, slug, schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to register tenant: %w", err)
	}

	t := TestTenant{
		ID:         id,
		Name:       name,
		Slug:       slug,
		SchemaName: schemaName,
	}

	tm.tenants = append(tm.tenants, t)
	return &t, nil
}

// CreateTenantWithMigrations creates a tenant and applies the given migrations
func (tm *TenantManager) CreateTenantWithMigrations(ctx context.Context, name string, migrations []string) (*TestTenant, error) {
	t, err := tm.CreateTenant(ctx, name)
	if err != nil {
		return nil, err
	}

	// Set search_path and apply migrations
	for _, migration := range migrations {
		_, err = tm.db.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s, public", t.SchemaName))
		if err != nil {
			return nil, fmt.Errorf("failed to set search_path: %w", err)
		}

		_, err = tm.db.ExecContext(ctx, migration)
		if err != nil {
			return nil, fmt.Errorf("failed to apply migration: %w", err)
		}
	}

	// Reset search_path
	_, err = tm.db.ExecContext(ctx, "SET search_path TO public")
	if err != nil {
		return nil, fmt.Errorf("failed to reset search_path: %w", err)
	}

	return t, nil
}

// DropTenant removes a tenant schema completely
func (tm *TenantManager) DropTenant(ctx context.Context, t *TestTenant) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// Drop schema with CASCADE (removes all objects)
	_, err := tm.db.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", t.SchemaName))
	if err != nil {
		return fmt.Errorf("failed to drop tenant schema: %w", err)
	}

	// Remove from tenants table
	_, err = tm.db.ExecContext(ctx, "DELETE FROM public.tenants WHERE id = $1", t.ID)
	if err != nil {
		return fmt.Errorf("failed to delete tenant record: %w", err)
	}

	// Remove from tracked tenants
	for i, tracked := range tm.tenants {
		if tracked.ID == t.ID {
			tm.tenants = append(tm.tenants[:i], tm.tenants[i+1:]...)
			break
		}
	}

	return nil
}

// Cleanup drops all tenant schemas created by this manager.
// Call this in TestMain or test cleanup.
func (tm *TenantManager) Cleanup(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	var lastErr error
	for _, t := range tm.tenants {
		_, err := tm.db.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", t.SchemaName))
		if err != nil {
			lastErr = err
		}
		_, err = tm.db.ExecContext(ctx, "DELETE FROM public.tenants WHERE id = $1", t.ID)
		if err != nil {
			lastErr = err
		}
	}

	tm.tenants = make([]TestTenant, 0)
	return lastErr
}

// WithTestTenant creates a context with tenant information for testing.
// This is the primary way to set up tenant context in tests.
func WithTestTenant(ctx context.Context, t *TestTenant) context.Context {
	return tenant.WithTenantContext(ctx, t.ID, t.Slug, t.SchemaName)
}

// WithTestTenantValues creates a context with custom tenant values.
// Useful for testing error cases or edge conditions.
func WithTestTenantValues(ctx context.Context, id, slug, schema string) context.Context {
	return tenant.WithTenantContext(ctx, id, slug, schema)
}

// TestTenantContext creates a context with a fake tenant for simple unit tests
// that don't need actual database isolation.
func TestTenantContext() context.Context {
	return tenant.WithTenantContext(
		context.Background(),
		"test-tenant-id",
		"test-tenant",
		"tenant_test",
	)
}

// CatalogMigrations returns the catalog migrations for tests
func CatalogMigrations() []string {
	return []string{
		// Products catalog
		`CREATE TABLE IF NOT EXISTS products (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			sku VARCHAR(100) NOT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			category VARCHAR(100),
			unit VARCHAR(50),
			unit_price DECIMAL(12,4),
			unit_cost DECIMAL(12,4),
			min_quantity INT NOT NULL DEFAULT 0,
			max_quantity INT,
			reorder_point INT NOT NULL DEFAULT 0,
			preferred_supplier_id VARCHAR(100),
			batch_tracked BOOLEAN NOT NULL DEFAULT TRUE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			source_system VARCHAR(50),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ,
			CONSTRAINT products_sku_unique UNIQUE (sku)
		)`,

		// Reconciliation run summaries
		`CREATE TABLE IF NOT EXISTS reconcile_runs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			merged INT NOT NULL DEFAULT 0,
			imported INT NOT NULL DEFAULT 0,
			deactivated INT NOT NULL DEFAULT 0,
			conflicts JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
}

// StockMigrations returns the stock engine migrations for tests.
// Apply after CatalogMigrations (batches and levels reference products).
func StockMigrations() []string {
	return []string{
		// Storage locations
		`CREATE TABLE IF NOT EXISTS locations (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			description TEXT,
			allow_negative_stock BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Aggregated stock per (product, location)
		`CREATE TABLE IF NOT EXISTS stock_levels (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			product_id UUID NOT NULL REFERENCES products(id),
			location_id UUID NOT NULL REFERENCES locations(id),
			quantity INT NOT NULL DEFAULT 0,
			reserved_quantity INT NOT NULL DEFAULT 0,
			min_quantity INT NOT NULL DEFAULT 0,
			max_quantity INT,
			reorder_point INT NOT NULL DEFAULT 0,
			version BIGINT NOT NULL DEFAULT 1,
			last_movement_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT stock_levels_product_location_unique UNIQUE (product_id, location_id),
			CONSTRAINT stock_levels_reserved_non_negative CHECK (reserved_quantity >= 0)
		)`,

		// Batches
		`CREATE TABLE IF NOT EXISTS batches (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			product_id UUID NOT NULL REFERENCES products(id),
			location_id UUID NOT NULL REFERENCES locations(id),
			batch_number VARCHAR(100) NOT NULL,
			quantity INT NOT NULL DEFAULT 0,
			initial_quantity INT NOT NULL DEFAULT 0,
			unit_cost DECIMAL(12,4),
			expiry_date DATE,
			received_date DATE NOT NULL DEFAULT CURRENT_DATE,
			status VARCHAR(20) NOT NULL DEFAULT 'available',
			quarantine_until DATE,
			supplier VARCHAR(255),
			notes TEXT,
			created_by UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT batches_product_batch_number_unique UNIQUE (product_id, location_id, batch_number),
			CONSTRAINT batches_quantity_non_negative CHECK (quantity >= 0),
			CONSTRAINT batches_batch_status_valid CHECK (status IN ('available', 'quarantined', 'expired', 'depleted'))
		)`,

		// Movement journal
		`CREATE TABLE IF NOT EXISTS stock_movements (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			seq BIGSERIAL,
			product_id UUID NOT NULL REFERENCES products(id),
			location_id UUID NOT NULL REFERENCES locations(id),
			batch_id UUID REFERENCES batches(id),
			movement_type VARCHAR(20) NOT NULL,
			quantity INT NOT NULL,
			quantity_before INT NOT NULL,
			quantity_after INT NOT NULL,
			reason TEXT,
			reference_id UUID,
			transfer_pair_id UUID,
			performed_by UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT stock_movements_movement_type_valid CHECK (movement_type IN
				('receipt', 'usage', 'adjustment', 'transfer_in', 'transfer_out', 'count', 'waste', 'reserve', 'release'))
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_batches_fifo ON batches(product_id, location_id, expiry_date, received_date, id) WHERE status = 'available'`,
		`CREATE INDEX IF NOT EXISTS idx_stock_movements_key ON stock_movements(product_id, location_id, seq)`,
	}
}
