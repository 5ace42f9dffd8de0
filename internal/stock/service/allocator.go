package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockflow/stockflow-backend/internal/stock/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
	"github.com/stockflow/stockflow-backend/pkg/tenant"
)

// ReceiveBatchInput describes one incoming lot
type ReceiveBatchInput struct {
	ProductID   string              `json:"product_id" validate:"required,uuid"`
	LocationID  string              `json:"location_id" validate:"required,uuid"`
	BatchNumber string              `json:"batch_number" validate:"required"`
	Quantity    int                 `json:"quantity" validate:"required,gt=0"`
	UnitCost    decimal.NullDecimal `json:"unit_cost,omitempty"`
	ExpiryDate  *time.Time          `json:"expiry_date,omitempty"`
	Supplier    *string             `json:"supplier,omitempty"`
	Notes       *string             `json:"notes,omitempty"`
	PerformedBy *string             `json:"performed_by,omitempty"`
}

// ReceiveBatch books an incoming lot into stock: the batch row, the level
// increment and the receipt movement commit together.
func (s *StockService) ReceiveBatch(ctx context.Context, in ReceiveBatchInput) (*repository.Batch, error) {
	if in.Quantity <= 0 {
		return nil, errors.BadRequest("receipt quantity must be positive")
	}
	if in.ExpiryDate != nil && in.ExpiryDate.Before(time.Now()) {
		return nil, errors.BadRequest("cannot receive an already expired batch")
	}

	product, err := s.productRepo.GetByID(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.BatchTracked {
		return nil, errors.BadRequest("product is not batch tracked; use a receipt movement instead")
	}
	if _, err := s.locationRepo.GetByID(ctx, in.LocationID); err != nil {
		return nil, err
	}

	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.ensureLevel(ctx, product, in.LocationID); err != nil {
		return nil, err
	}

	batch := &repository.Batch{
		ProductID:   in.ProductID,
		LocationID:  in.LocationID,
		BatchNumber: in.BatchNumber,
		Quantity:    in.Quantity,
		UnitCost:    in.UnitCost,
		ExpiryDate:  in.ExpiryDate,
		Supplier:    in.Supplier,
		Notes:       in.Notes,
		CreatedBy:   in.PerformedBy,
	}

	var movement *repository.StockMovement
	err = s.db.WithTenantRLSLocked(ctx, tenantID, s.cfg.LockWait, func(txCtx context.Context) error {
		lvl, err := s.levelRepo.GetForUpdate(txCtx, in.ProductID, in.LocationID)
		if err != nil {
			return err
		}

		if err := s.batchRepo.Create(txCtx, batch); err != nil {
			return err
		}

		before := lvl.Quantity
		lvl.Quantity += in.Quantity
		if err := s.levelRepo.UpdateQuantities(txCtx, lvl); err != nil {
			return err
		}

		movement = &repository.StockMovement{
			ProductID:      in.ProductID,
			LocationID:     in.LocationID,
			BatchID:        &batch.ID,
			MovementType:   repository.MovementReceipt,
			Quantity:       in.Quantity,
			QuantityBefore: before,
			QuantityAfter:  lvl.Quantity,
			PerformedBy:    in.PerformedBy,
		}
		return s.movementRepo.Insert(txCtx, movement)
	})
	if err != nil {
		return nil, s.mapMutationError(err, in.ProductID, in.LocationID)
	}

	s.publisher.PublishBatchReceived(ctx, batch)
	s.publisher.PublishMovementRecorded(ctx, movement)
	s.invalidateSuggestion(ctx, tenantID, in.ProductID, in.LocationID)

	return batch, nil
}

// AllocationResult is the outcome of a committed or proposed allocation
type AllocationResult struct {
	AllocationID string      `json:"allocation_id,omitempty"`
	ProductID    string      `json:"product_id"`
	LocationID   string      `json:"location_id"`
	Requested    int         `json:"requested"`
	Draws        []BatchDraw `json:"draws"`
}

// ProposeAllocation plans a FIFO allocation without committing it. The plan
// is deterministic for an unchanged batch set, so a caller can show it and
// commit the same quantities afterwards.
func (s *StockService) ProposeAllocation(ctx context.Context, productID, locationID string, requested int) (*AllocationResult, error) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.BatchTracked {
		return nil, errors.BadRequest("product is not batch tracked; use a usage movement instead")
	}

	batches, err := s.batchRepo.ListEligible(ctx, productID, locationID)
	if err != nil {
		return nil, err
	}

	draws, err := PlanFIFO(batches, requested)
	if err != nil {
		return nil, err
	}

	return &AllocationResult{
		ProductID:  productID,
		LocationID: locationID,
		Requested:  requested,
		Draws:      draws,
	}, nil
}

// Allocate consumes the requested quantity from eligible batches in FIFO
// order. All-or-nothing: the batch decrements, the level update and every
// usage movement commit in one transaction, or none do.
func (s *StockService) Allocate(ctx context.Context, productID, locationID string, requested int, reason, performedBy *string) (*AllocationResult, error) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.BatchTracked {
		return nil, errors.BadRequest("product is not batch tracked; use a usage movement instead")
	}
	if _, err := s.locationRepo.GetByID(ctx, locationID); err != nil {
		return nil, err
	}

	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.ensureLevel(ctx, product, locationID); err != nil {
		return nil, err
	}

	allocationID := uuid.New().String()
	result := &AllocationResult{
		AllocationID: allocationID,
		ProductID:    productID,
		LocationID:   locationID,
		Requested:    requested,
	}

	var movements []*repository.StockMovement
	var batchSum, levelAfter int
	var lowLevel, outLevel *repository.StockLevel

	err = s.db.WithTenantRLSLocked(ctx, tenantID, s.cfg.LockWait, func(txCtx context.Context) error {
		lvl, err := s.levelRepo.GetForUpdate(txCtx, productID, locationID)
		if err != nil {
			return err
		}

		batches, err := s.batchRepo.ListEligibleForUpdate(txCtx, productID, locationID)
		if err != nil {
			return err
		}

		draws, err := PlanFIFO(batches, requested)
		if err != nil {
			return err
		}

		running := lvl.Quantity
		for _, draw := range draws {
			if _, err := s.batchRepo.DecrementQuantity(txCtx, draw.BatchID, draw.Quantity); err != nil {
				return err
			}

			batchID := draw.BatchID
			m := &repository.StockMovement{
				ProductID:      productID,
				LocationID:     locationID,
				BatchID:        &batchID,
				MovementType:   repository.MovementUsage,
				Quantity:       -draw.Quantity,
				QuantityBefore: running,
				QuantityAfter:  running - draw.Quantity,
				Reason:         reason,
				ReferenceID:    &allocationID,
				PerformedBy:    performedBy,
			}
			if err := s.movementRepo.Insert(txCtx, m); err != nil {
				return err
			}
			movements = append(movements, m)
			running -= draw.Quantity
		}

		lvl.Quantity = running
		if err := s.levelRepo.UpdateQuantities(txCtx, lvl); err != nil {
			return err
		}

		batchSum, err = s.batchRepo.SumNonExpired(txCtx, productID, locationID)
		if err != nil {
			return err
		}
		levelAfter = lvl.Quantity

		if lvl.Quantity <= 0 {
			outLevel = lvl
		} else if lvl.Quantity <= lvl.MinQuantity {
			lowLevel = lvl
		}

		result.Draws = draws
		return nil
	})
	if err != nil {
		return nil, s.mapMutationError(err, productID, locationID)
	}

	if batchSum != levelAfter {
		s.logger.Warn().
			Str("product_id", productID).
			Str("location_id", locationID).
			Int("level_quantity", levelAfter).
			Int("batch_sum", batchSum).
			Msg("stock level disagrees with batch sum after allocation")
		s.publisher.PublishConsistencyWarning(ctx, productID, locationID, levelAfter, batchSum)
	}

	lines := make([]messaging.AllocationLineData, len(result.Draws))
	for i, draw := range result.Draws {
		lines[i] = messaging.AllocationLineData{
			BatchID:     draw.BatchID,
			BatchNumber: draw.BatchNumber,
			Quantity:    draw.Quantity,
			ExpiryDate:  draw.ExpiryDate,
		}
	}
	performer := ""
	if performedBy != nil {
		performer = *performedBy
	}
	s.publisher.PublishAllocationCommitted(ctx, allocationID, productID, locationID, requested, lines, performer)
	for _, m := range movements {
		s.publisher.PublishMovementRecorded(ctx, m)
	}
	if outLevel != nil {
		s.publisher.PublishStockLevelOut(ctx, outLevel)
	} else if lowLevel != nil {
		s.publisher.PublishStockLevelLow(ctx, lowLevel)
	}
	s.invalidateSuggestion(ctx, tenantID, productID, locationID)

	return result, nil
}

// Manual batch status transitions. Expired and depleted are system-managed
// terminal states; operators move lots between available and quarantined.
var allowedStatusTransitions = map[string]map[string]bool{
	repository.BatchStatusAvailable: {
		repository.BatchStatusQuarantined: true,
	},
	repository.BatchStatusQuarantined: {
		repository.BatchStatusAvailable: true,
	},
}

// SetBatchStatus applies a manual status change to a batch. Status changes
// never alter quantities; they only gate allocation eligibility.
func (s *StockService) SetBatchStatus(ctx context.Context, batchID, status string, quarantineUntil *time.Time) (*repository.Batch, error) {
	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if !allowedStatusTransitions[batch.Status][status] {
		return nil, errors.BadRequest("cannot change batch status from " + batch.Status + " to " + status)
	}
	if status != repository.BatchStatusQuarantined && quarantineUntil != nil {
		return nil, errors.BadRequest("quarantine date only applies to quarantined batches")
	}

	if err := s.batchRepo.UpdateStatus(ctx, batchID, status, quarantineUntil); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("batch_id", batchID).
		Str("from", batch.Status).
		Str("to", status).
		Msg("batch status changed")

	tenantID, _ := tenant.TenantID(ctx)
	s.invalidateSuggestion(ctx, tenantID, batch.ProductID, batch.LocationID)

	return s.batchRepo.GetByID(ctx, batchID)
}
