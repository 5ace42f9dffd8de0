package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/pkg/tenant"
)

type txKey struct{}

// WithTenantRLS executes a function with RLS-based tenant isolation.
// This is the KEY isolation mechanism for RLS-based pooled multi-tenancy.
//
// Usage in repositories:
//
//	tenantID, err := tenant.TenantID(ctx)
//	if err != nil { return err }
//	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
//	    return r.db.GetContext(ctx, &lvl, "SELECT * FROM stock_levels WHERE id = $1", id)
//	})
//
// How it works:
//  1. Starts a transaction
//  2. Sets "SET LOCAL search_path TO <tenant_schema>, public" (context schema, db.searchPath fallback)
//  3. Sets "SET LOCAL app.current_tenant = '<tenant-uuid>'"
//  4. RLS policies filter rows automatically: USING (tenant_id = current_setting('app.current_tenant')::uuid)
//  5. Commits transaction (auto-cleanup of session variables)
//
// Why this is secure:
//   - SET LOCAL is scoped to transaction (automatic cleanup)
//   - Even with connection pooling (PgBouncer), next request gets clean state
//   - RLS policies are enforced by PostgreSQL engine, app code can't bypass them
//   - WITH CHECK prevents inserting rows for wrong tenant
func (db *DB) WithTenantRLS(ctx context.Context, tenantID string, fn func(context.Context) error) error {
	// Nested calls join the transaction already bound to the context,
	// so a service-level transaction stays atomic across repositories.
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}
	return db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return db.bindTenantTx(ctx, tx, tenantID, fn)
	})
}

// WithTenantRLSLocked is WithTenantRLS with a statement lock_timeout applied,
// for mutations that take row locks on stock_levels. A contended lock fails
// with 55P03 instead of waiting indefinitely.
func (db *DB) WithTenantRLSLocked(ctx context.Context, tenantID string, lockWait time.Duration, fn func(context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}
	return db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := SetLockTimeout(ctx, tx, lockWait); err != nil {
			return err
		}
		return db.bindTenantTx(ctx, tx, tenantID, fn)
	})
}

func (db *DB) bindTenantTx(ctx context.Context, tx *sqlx.Tx, tenantID string, fn func(context.Context) error) error {
	// The tenant's schema from the request context wins; the configured
	// service schema is the fallback for background work.
	searchPath, err := tenant.TenantSchema(ctx)
	if err != nil || searchPath == "" {
		searchPath = db.searchPath
	}
	if searchPath == "" {
		searchPath = "public"
	}
	if searchPath != "public" {
		searchPath += ", public"
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL search_path TO %s", searchPath)); err != nil {
		return fmt.Errorf("failed to set search_path to %s: %w", searchPath, err)
	}

	// Set tenant context for RLS policies
	// This is what RLS policies check: current_setting('app.current_tenant')::uuid
	// NOTE: SET LOCAL doesn't support parameterized queries ($1), must use fmt.Sprintf.
	// This is safe because tenantID is a UUID validated upstream (not user input).
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL app.current_tenant = '%s'", tenantID)); err != nil {
		return fmt.Errorf("failed to set app.current_tenant to %s: %w", tenantID, err)
	}

	// Store transaction in context so DB methods can use it
	txCtx := context.WithValue(ctx, txKey{}, tx)

	return fn(txCtx)
}

// TxFromContext extracts the transaction bound by WithTenantRLS, if present.
func TxFromContext(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx, ok
}

// The wrappers below shadow the embedded sqlx.DB methods and route through
// the context-bound transaction when one exists. Without this, a query issued
// inside WithTenantRLS would run on a fresh pool connection where the
// SET LOCAL tenant settings do not apply.

// GetContext runs a single-row query on the bound transaction if present.
func (db *DB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.GetContext(ctx, dest, query, args...)
	}
	return db.DB.GetContext(ctx, dest, query, args...)
}

// SelectContext runs a multi-row query on the bound transaction if present.
func (db *DB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.SelectContext(ctx, dest, query, args...)
	}
	return db.DB.SelectContext(ctx, dest, query, args...)
}

// ExecContext runs a statement on the bound transaction if present.
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.ExecContext(ctx, query, args...)
	}
	return db.DB.ExecContext(ctx, query, args...)
}

// QueryRowxContext runs a row query on the bound transaction if present.
func (db *DB) QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.QueryRowxContext(ctx, query, args...)
	}
	return db.DB.QueryRowxContext(ctx, query, args...)
}

// QueryxContext runs a rows query on the bound transaction if present.
func (db *DB) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.QueryxContext(ctx, query, args...)
	}
	return db.DB.QueryxContext(ctx, query, args...)
}
