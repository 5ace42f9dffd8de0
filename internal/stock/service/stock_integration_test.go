package service_test

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	catalogrepo "github.com/stockflow/stockflow-backend/internal/catalog/repository"
	"github.com/stockflow/stockflow-backend/internal/stock/repository"
	"github.com/stockflow/stockflow-backend/internal/stock/service"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		// Unit tests in this package run without the container
		os.Exit(m.Run())
	}

	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}
	defer suite.Cleanup(ctx)
	defer testutil.TerminateContainer(ctx)

	os.Exit(m.Run())
}

func testStockConfig() *config.StockConfig {
	return &config.StockConfig{
		LockWait:            5 * time.Second,
		SuggestionTTL:       15 * time.Minute,
		ExpirySweepInterval: time.Hour,
		ExpiryWarningDays:   30,
	}
}

func newStockService() (*service.StockService, *catalogrepo.ProductRepository, *repository.LocationRepository, *repository.BatchRepository) {
	productRepo := catalogrepo.NewProductRepository(suite.DB)
	locationRepo := repository.NewLocationRepository(suite.DB)
	levelRepo := repository.NewStockLevelRepository(suite.DB)
	batchRepo := repository.NewBatchRepository(suite.DB)
	movementRepo := repository.NewMovementRepository(suite.DB)

	svc := service.NewStockService(suite.DB, productRepo, locationRepo, levelRepo, batchRepo, movementRepo, nil, nil, testStockConfig(), suite.Logger)
	return svc, productRepo, locationRepo, batchRepo
}

func createProduct(t *testing.T, ctx context.Context, repo *catalogrepo.ProductRepository, batchTracked bool) *catalogrepo.Product {
	t.Helper()
	fixture := suite.Fixtures.Product()
	product := &catalogrepo.Product{
		SKU:          fixture.SKU,
		Name:         fixture.Name,
		MinQuantity:  5,
		ReorderPoint: 8,
		BatchTracked: batchTracked,
		IsActive:     true,
	}
	require.NoError(t, repo.Create(ctx, product))
	return product
}

func createLocation(t *testing.T, ctx context.Context, repo *repository.LocationRepository) *repository.Location {
	t.Helper()
	fixture := suite.Fixtures.Location()
	loc := &repository.Location{
		Name:     fixture.Name,
		IsActive: true,
	}
	require.NoError(t, repo.Create(ctx, loc))
	return loc
}

func TestStockService_ReceiveAllocateHistory(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()

	tenant := suite.SetupStockTenant(t, ctx, "test-receive-allocate")
	tenantCtx := suite.TenantContext(tenant)

	svc, productRepo, locationRepo, batchRepo := newStockService()
	product := createProduct(t, tenantCtx, productRepo, true)
	loc := createLocation(t, tenantCtx, locationRepo)

	soon := time.Now().AddDate(0, 1, 0)
	later := time.Now().AddDate(0, 3, 0)

	// Receive the later-expiring lot first; allocation order must not care
	b2, err := svc.ReceiveBatch(tenantCtx, service.ReceiveBatchInput{
		ProductID:   product.ID,
		LocationID:  loc.ID,
		BatchNumber: "LOT-2",
		Quantity:    10,
		ExpiryDate:  &later,
	})
	require.NoError(t, err)

	b1, err := svc.ReceiveBatch(tenantCtx, service.ReceiveBatchInput{
		ProductID:   product.ID,
		LocationID:  loc.ID,
		BatchNumber: "LOT-1",
		Quantity:    5,
		ExpiryDate:  &soon,
	})
	require.NoError(t, err)

	view, err := svc.GetStock(tenantCtx, product.ID, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, view.Quantity)

	// Proposal must plan the soonest-expiring lot first
	proposal, err := svc.ProposeAllocation(tenantCtx, product.ID, loc.ID, 7)
	require.NoError(t, err)
	require.Len(t, proposal.Draws, 2)
	assert.Equal(t, b1.ID, proposal.Draws[0].BatchID)
	assert.Equal(t, 5, proposal.Draws[0].Quantity)
	assert.Equal(t, b2.ID, proposal.Draws[1].BatchID)
	assert.Equal(t, 2, proposal.Draws[1].Quantity)

	// Commit the same allocation
	result, err := svc.Allocate(tenantCtx, product.ID, loc.ID, 7, nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.AllocationID)
	assert.Equal(t, proposal.Draws, result.Draws)

	view, err = svc.GetStock(tenantCtx, product.ID, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, view.Quantity)

	// First lot fully consumed, second partially
	got1, err := batchRepo.GetByID(tenantCtx, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got1.Quantity)
	assert.Equal(t, repository.BatchStatusDepleted, got1.Status)

	got2, err := batchRepo.GetByID(tenantCtx, b2.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got2.Quantity)
	assert.Equal(t, repository.BatchStatusAvailable, got2.Status)

	// History is newest first and forms an unbroken before/after chain
	movements, _, err := svc.History(tenantCtx, product.ID, loc.ID, 50, "", repository.MovementFilter{})
	require.NoError(t, err)
	require.Len(t, movements, 4)
	assert.Equal(t, repository.MovementUsage, movements[0].MovementType)
	assert.Equal(t, repository.MovementUsage, movements[1].MovementType)
	assert.Equal(t, repository.MovementReceipt, movements[2].MovementType)
	assert.Equal(t, repository.MovementReceipt, movements[3].MovementType)
	for i := 0; i < len(movements)-1; i++ {
		assert.Equal(t, movements[i+1].QuantityAfter, movements[i].QuantityBefore)
	}
	assert.Equal(t, 8, movements[0].QuantityAfter)
}

func TestStockService_Allocate_InsufficientLeavesStockUntouched(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()

	tenant := suite.SetupStockTenant(t, ctx, "test-allocate-insufficient")
	tenantCtx := suite.TenantContext(tenant)

	svc, productRepo, locationRepo, batchRepo := newStockService()
	product := createProduct(t, tenantCtx, productRepo, true)
	loc := createLocation(t, tenantCtx, locationRepo)

	expiry := time.Now().AddDate(0, 2, 0)
	b, err := svc.ReceiveBatch(tenantCtx, service.ReceiveBatchInput{
		ProductID:   product.ID,
		LocationID:  loc.ID,
		BatchNumber: "LOT-1",
		Quantity:    20,
		ExpiryDate:  &expiry,
	})
	require.NoError(t, err)

	_, err = svc.Allocate(tenantCtx, product.ID, loc.ID, 25, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientBatchStock))

	view, err := svc.GetStock(tenantCtx, product.ID, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, view.Quantity)

	got, err := batchRepo.GetByID(tenantCtx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.Quantity)

	movements, _, err := svc.History(tenantCtx, product.ID, loc.ID, 50, "", repository.MovementFilter{})
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}

func TestStockService_ApplyMovement_NegativeStockRejected(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()

	tenant := suite.SetupStockTenant(t, ctx, "test-negative-stock")
	tenantCtx := suite.TenantContext(tenant)

	svc, productRepo, locationRepo, _ := newStockService()
	product := createProduct(t, tenantCtx, productRepo, false)
	loc := createLocation(t, tenantCtx, locationRepo)

	_, err := svc.ApplyMovement(tenantCtx, service.MovementInput{
		ProductID:      product.ID,
		LocationID:     loc.ID,
		QuantityChange: 10,
		MovementType:   repository.MovementReceipt,
	})
	require.NoError(t, err)

	_, err = svc.ApplyMovement(tenantCtx, service.MovementInput{
		ProductID:      product.ID,
		LocationID:     loc.ID,
		QuantityChange: -12,
		MovementType:   repository.MovementUsage,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNegativeStockNotAllowed))

	view, err := svc.GetStock(tenantCtx, product.ID, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, view.Quantity)
}

func TestStockService_Transfer(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()

	tenant := suite.SetupStockTenant(t, ctx, "test-transfer")
	tenantCtx := suite.TenantContext(tenant)

	svc, productRepo, locationRepo, _ := newStockService()
	product := createProduct(t, tenantCtx, productRepo, false)
	src := createLocation(t, tenantCtx, locationRepo)
	dst := createLocation(t, tenantCtx, locationRepo)

	_, err := svc.ApplyMovement(tenantCtx, service.MovementInput{
		ProductID:      product.ID,
		LocationID:     src.ID,
		QuantityChange: 10,
		MovementType:   repository.MovementReceipt,
	})
	require.NoError(t, err)

	movements, err := svc.Transfer(tenantCtx, product.ID, src.ID, dst.ID, 4, nil, nil)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, repository.MovementTransferOut, movements[0].MovementType)
	assert.Equal(t, repository.MovementTransferIn, movements[1].MovementType)
	require.NotNil(t, movements[0].TransferPairID)
	assert.Equal(t, movements[0].TransferPairID, movements[1].TransferPairID)

	srcView, err := svc.GetStock(tenantCtx, product.ID, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, srcView.Quantity)

	dstView, err := svc.GetStock(tenantCtx, product.ID, dst.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, dstView.Quantity)
}

func TestStockService_ReserveRelease(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()

	tenant := suite.SetupStockTenant(t, ctx, "test-reserve-release")
	tenantCtx := suite.TenantContext(tenant)

	svc, productRepo, locationRepo, _ := newStockService()
	product := createProduct(t, tenantCtx, productRepo, false)
	loc := createLocation(t, tenantCtx, locationRepo)

	_, err := svc.ApplyMovement(tenantCtx, service.MovementInput{
		ProductID:      product.ID,
		LocationID:     loc.ID,
		QuantityChange: 10,
		MovementType:   repository.MovementReceipt,
	})
	require.NoError(t, err)

	movement, err := svc.Reserve(tenantCtx, product.ID, loc.ID, 6, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, movement.QuantityBefore, movement.QuantityAfter)

	view, err := svc.GetStock(tenantCtx, product.ID, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, view.Quantity)
	assert.Equal(t, 6, view.ReservedQuantity)
	assert.Equal(t, 4, view.AvailableQuantity)

	// Reserving beyond the on-hand quantity fails
	_, err = svc.Reserve(tenantCtx, product.ID, loc.ID, 5, nil, nil)
	require.Error(t, err)

	// Releasing more than is reserved fails
	_, err = svc.Release(tenantCtx, product.ID, loc.ID, 7, nil, nil)
	require.Error(t, err)

	_, err = svc.Release(tenantCtx, product.ID, loc.ID, 6, nil, nil)
	require.NoError(t, err)

	view, err = svc.GetStock(tenantCtx, product.ID, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, view.ReservedQuantity)
	assert.Equal(t, 10, view.AvailableQuantity)
}

func TestStockService_QuarantineExcludedFromAllocation(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()

	tenant := suite.SetupStockTenant(t, ctx, "test-quarantine")
	tenantCtx := suite.TenantContext(tenant)

	svc, productRepo, locationRepo, _ := newStockService()
	product := createProduct(t, tenantCtx, productRepo, true)
	loc := createLocation(t, tenantCtx, locationRepo)

	expiry := time.Now().AddDate(0, 2, 0)
	b1, err := svc.ReceiveBatch(tenantCtx, service.ReceiveBatchInput{
		ProductID:   product.ID,
		LocationID:  loc.ID,
		BatchNumber: "LOT-1",
		Quantity:    5,
		ExpiryDate:  &expiry,
	})
	require.NoError(t, err)

	_, err = svc.ReceiveBatch(tenantCtx, service.ReceiveBatchInput{
		ProductID:   product.ID,
		LocationID:  loc.ID,
		BatchNumber: "LOT-2",
		Quantity:    10,
		ExpiryDate:  &expiry,
	})
	require.NoError(t, err)

	_, err = svc.SetBatchStatus(tenantCtx, b1.ID, repository.BatchStatusQuarantined, nil)
	require.NoError(t, err)

	// Quarantined quantity still counts toward the level but not allocation
	view, err := svc.GetStock(tenantCtx, product.ID, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, view.Quantity)

	_, err = svc.ProposeAllocation(tenantCtx, product.ID, loc.ID, 12)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientBatchStock))

	result, err := svc.Allocate(tenantCtx, product.ID, loc.ID, 10, nil, nil)
	require.NoError(t, err)
	require.Len(t, result.Draws, 1)
	assert.NotEqual(t, b1.ID, result.Draws[0].BatchID)

	// Releasing the quarantine makes the lot eligible again
	_, err = svc.SetBatchStatus(tenantCtx, b1.ID, repository.BatchStatusAvailable, nil)
	require.NoError(t, err)

	proposal, err := svc.ProposeAllocation(tenantCtx, product.ID, loc.ID, 5)
	require.NoError(t, err)
	require.Len(t, proposal.Draws, 1)
	assert.Equal(t, b1.ID, proposal.Draws[0].BatchID)
}
