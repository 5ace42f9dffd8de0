package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stockflow/stockflow-backend/internal/stock/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/tenant"
	"github.com/stockflow/stockflow-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTenantID  = "11111111-1111-1111-1111-111111111111"
	testProductID = "22222222-2222-2222-2222-222222222222"
	testLocation  = "33333333-3333-3333-3333-333333333333"
)

func tenantCtx() context.Context {
	return tenant.WithTenantContext(context.Background(), testTenantID, "test-tenant", "public")
}

func levelColumns() []string {
	return []string{
		"id", "product_id", "location_id", "quantity", "reserved_quantity",
		"min_quantity", "max_quantity", "reorder_point", "version",
		"last_movement_at", "updated_at",
	}
}

func TestStockLevelRepository_Get(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	rows := testutil.MockRows(levelColumns()...).
		AddRow("lvl-1", testProductID, testLocation, 25, 5, 10, nil, 15, int64(3), nil, time.Now())
	mockDB.ExpectTenantQuery("public", testTenantID,
		"SELECT * FROM stock_levels WHERE product_id = $1 AND location_id = $2",
		rows,
	)

	repo := repository.NewStockLevelRepository(mockDB.DB)
	lvl, err := repo.Get(tenantCtx(), testProductID, testLocation)
	require.NoError(t, err)

	assert.Equal(t, 25, lvl.Quantity)
	assert.Equal(t, 5, lvl.ReservedQuantity)
	assert.Equal(t, 20, lvl.AvailableQuantity)
	mockDB.ExpectationsWereMet(t)
}

func TestStockLevelRepository_Get_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectExec("SET LOCAL search_path TO public").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectExec("SET LOCAL app.current_tenant = '" + testTenantID + "'").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectQuery("SELECT * FROM stock_levels WHERE product_id = $1 AND location_id = $2").
		WillReturnError(sql.ErrNoRows)
	mockDB.ExpectRollback()

	repo := repository.NewStockLevelRepository(mockDB.DB)
	_, err := repo.Get(tenantCtx(), testProductID, testLocation)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestStockLevelRepository_UpdateQuantities_VersionConflict(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	// Zero rows affected means a competing writer bumped the version
	mockDB.ExpectExec("UPDATE stock_levels SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := repository.NewStockLevelRepository(mockDB.DB)
	lvl := &repository.StockLevel{
		ID:         "lvl-1",
		ProductID:  testProductID,
		LocationID: testLocation,
		Quantity:   10,
		Version:    3,
	}

	err := repo.UpdateQuantities(context.Background(), lvl)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConcurrentModification))
	assert.True(t, errors.Retryable(err))
	assert.Equal(t, int64(3), lvl.Version)
	mockDB.ExpectationsWereMet(t)
}

func TestStockLevelRepository_UpdateQuantities_BumpsVersion(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectExec("UPDATE stock_levels SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := repository.NewStockLevelRepository(mockDB.DB)
	lvl := &repository.StockLevel{
		ID:         "lvl-1",
		ProductID:  testProductID,
		LocationID: testLocation,
		Quantity:   10,
		Version:    3,
	}

	require.NoError(t, repo.UpdateQuantities(context.Background(), lvl))
	assert.Equal(t, int64(4), lvl.Version)
	mockDB.ExpectationsWereMet(t)
}
