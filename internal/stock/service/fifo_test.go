package service_test

import (
	"testing"
	"time"

	"github.com/stockflow/stockflow-backend/internal/stock/repository"
	"github.com/stockflow/stockflow-backend/internal/stock/service"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayPtr(s string) *time.Time {
	t := day(s)
	return &t
}

func batch(id, number string, qty int, expiry *time.Time, received time.Time) *repository.Batch {
	return &repository.Batch{
		ID:           id,
		BatchNumber:  number,
		Quantity:     qty,
		ExpiryDate:   expiry,
		ReceivedDate: received,
		Status:       repository.BatchStatusAvailable,
	}
}

func TestSortFIFO_EarliestExpiryFirst(t *testing.T) {
	batches := []*repository.Batch{
		batch("b2", "LOT-2", 10, dayPtr("2024-02-01"), day("2024-01-02")),
		batch("b1", "LOT-1", 5, dayPtr("2024-01-10"), day("2024-01-01")),
	}

	service.SortFIFO(batches)

	assert.Equal(t, "b1", batches[0].ID)
	assert.Equal(t, "b2", batches[1].ID)
}

func TestSortFIFO_NilExpiryLast(t *testing.T) {
	batches := []*repository.Batch{
		batch("b1", "LOT-1", 5, nil, day("2024-01-01")),
		batch("b2", "LOT-2", 10, dayPtr("2024-06-01"), day("2024-01-05")),
	}

	service.SortFIFO(batches)

	assert.Equal(t, "b2", batches[0].ID)
	assert.Equal(t, "b1", batches[1].ID)
}

func TestSortFIFO_TieBrokenByReceivedThenID(t *testing.T) {
	expiry := dayPtr("2024-03-01")
	batches := []*repository.Batch{
		batch("b3", "LOT-3", 1, expiry, day("2024-01-02")),
		batch("b2", "LOT-2", 1, expiry, day("2024-01-01")),
		batch("b1", "LOT-1", 1, expiry, day("2024-01-01")),
	}

	service.SortFIFO(batches)

	assert.Equal(t, "b1", batches[0].ID)
	assert.Equal(t, "b2", batches[1].ID)
	assert.Equal(t, "b3", batches[2].ID)
}

func TestPlanFIFO_SpansBatches(t *testing.T) {
	batches := []*repository.Batch{
		batch("b1", "LOT-1", 5, dayPtr("2024-01-10"), day("2024-01-01")),
		batch("b2", "LOT-2", 10, dayPtr("2024-02-01"), day("2024-01-02")),
	}

	draws, err := service.PlanFIFO(batches, 7)
	require.NoError(t, err)

	require.Len(t, draws, 2)
	assert.Equal(t, "b1", draws[0].BatchID)
	assert.Equal(t, 5, draws[0].Quantity)
	assert.Equal(t, "b2", draws[1].BatchID)
	assert.Equal(t, 2, draws[1].Quantity)
}

func TestPlanFIFO_ExactSingleBatch(t *testing.T) {
	batches := []*repository.Batch{
		batch("b1", "LOT-1", 5, dayPtr("2024-01-10"), day("2024-01-01")),
		batch("b2", "LOT-2", 10, dayPtr("2024-02-01"), day("2024-01-02")),
	}

	draws, err := service.PlanFIFO(batches, 5)
	require.NoError(t, err)

	require.Len(t, draws, 1)
	assert.Equal(t, "b1", draws[0].BatchID)
	assert.Equal(t, 5, draws[0].Quantity)
}

func TestPlanFIFO_InsufficientStock(t *testing.T) {
	batches := []*repository.Batch{
		batch("b1", "LOT-1", 5, dayPtr("2024-01-10"), day("2024-01-01")),
		batch("b2", "LOT-2", 15, dayPtr("2024-02-01"), day("2024-01-02")),
	}

	draws, err := service.PlanFIFO(batches, 25)
	require.Error(t, err)
	assert.Nil(t, draws)
	assert.True(t, errors.Is(err, errors.ErrInsufficientBatchStock))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Message, "20")
}

func TestPlanFIFO_RequestedMustBePositive(t *testing.T) {
	batches := []*repository.Batch{
		batch("b1", "LOT-1", 5, nil, day("2024-01-01")),
	}

	for _, requested := range []int{0, -3} {
		_, err := service.PlanFIFO(batches, requested)
		require.Error(t, err)
	}
}

func TestPlanFIFO_NoBatches(t *testing.T) {
	_, err := service.PlanFIFO(nil, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientBatchStock))
}

func TestPlanFIFO_DeterministicForSameSet(t *testing.T) {
	build := func() []*repository.Batch {
		return []*repository.Batch{
			batch("b2", "LOT-2", 4, dayPtr("2024-01-10"), day("2024-01-01")),
			batch("b1", "LOT-1", 4, dayPtr("2024-01-10"), day("2024-01-01")),
			batch("b3", "LOT-3", 4, nil, day("2024-01-02")),
		}
	}

	first := build()
	service.SortFIFO(first)
	drawsA, err := service.PlanFIFO(first, 10)
	require.NoError(t, err)

	second := build()
	service.SortFIFO(second)
	drawsB, err := service.PlanFIFO(second, 10)
	require.NoError(t, err)

	assert.Equal(t, drawsA, drawsB)
}
