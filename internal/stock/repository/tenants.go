package repository

import (
	"context"

	"github.com/stockflow/stockflow-backend/pkg/database"
)

// TenantInfo is one row from the shared tenant registry
type TenantInfo struct {
	ID         string `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Slug       string `db:"slug" json:"slug"`
	SchemaName string `db:"schema_name" json:"schema_name"`
}

// TenantRepository reads the shared tenant registry. The expiry sweeper uses
// it to iterate every active tenant; tenant data itself stays behind RLS.
type TenantRepository struct {
	db *database.DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *database.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// ListActive lists all tenants with an active subscription
func (r *TenantRepository) ListActive(ctx context.Context) ([]*TenantInfo, error) {
	var tenants []*TenantInfo
	query := `
		SELECT id, name, slug, schema_name FROM public.tenants
		WHERE subscription_status = 'active'
		ORDER BY slug
	`
	if err := r.db.SelectContext(ctx, &tenants, query); err != nil {
		return nil, err
	}
	return tenants, nil
}
