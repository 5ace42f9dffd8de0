package service

import (
	"sort"
	"time"

	"github.com/stockflow/stockflow-backend/internal/stock/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// BatchDraw is one batch's share of an allocation
type BatchDraw struct {
	BatchID     string     `json:"batch_id"`
	BatchNumber string     `json:"batch_number"`
	Quantity    int        `json:"quantity"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
}

// SortFIFO orders batches for consumption: soonest expiry first, batches
// without an expiry date last, ties broken by received date then id. The
// id tie-break makes repeated planning against the same set deterministic.
func SortFIFO(batches []*repository.Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate == nil:
			// fall through to received date
		case a.ExpiryDate == nil:
			return false
		case b.ExpiryDate == nil:
			return true
		case !a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
		if !a.ReceivedDate.Equal(b.ReceivedDate) {
			return a.ReceivedDate.Before(b.ReceivedDate)
		}
		return a.ID < b.ID
	})
}

// PlanFIFO walks the batches in consumption order and plans draws covering
// the requested quantity. All-or-nothing: if the batches cannot cover the
// request the plan fails and reports the available total, leaving the caller
// free to retry smaller or trigger a receipt.
func PlanFIFO(batches []*repository.Batch, requested int) ([]BatchDraw, error) {
	if requested <= 0 {
		return nil, errors.BadRequest("requested quantity must be positive")
	}

	available := 0
	for _, b := range batches {
		available += b.Quantity
	}
	if available < requested {
		return nil, errors.InsufficientBatchStock(requested, available)
	}

	draws := make([]BatchDraw, 0, len(batches))
	remaining := requested
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		take := b.Quantity
		if take > remaining {
			take = remaining
		}
		if take == 0 {
			continue
		}
		draws = append(draws, BatchDraw{
			BatchID:     b.ID,
			BatchNumber: b.BatchNumber,
			Quantity:    take,
			ExpiryDate:  b.ExpiryDate,
		})
		remaining -= take
	}

	return draws, nil
}
