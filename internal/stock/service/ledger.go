package service

import (
	"context"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/stockflow/stockflow-backend/internal/stock/repository"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/tenant"
)

var validMovementTypes = map[string]bool{
	repository.MovementReceipt:     true,
	repository.MovementUsage:       true,
	repository.MovementAdjustment:  true,
	repository.MovementTransferIn:  true,
	repository.MovementTransferOut: true,
	repository.MovementCount:       true,
	repository.MovementWaste:       true,
}

// MovementInput describes one requested stock mutation
type MovementInput struct {
	ProductID      string  `json:"product_id" validate:"required,uuid"`
	LocationID     string  `json:"location_id" validate:"required,uuid"`
	QuantityChange int     `json:"quantity_change" validate:"required"`
	MovementType   string  `json:"movement_type" validate:"required"`
	Reason         *string `json:"reason,omitempty"`
	PerformedBy    *string `json:"performed_by,omitempty"`

	batchID        *string
	referenceID    *string
	transferPairID *string
}

// ApplyMovement is the only sanctioned mutation path for a stock level.
// The (product, location) row is locked for the duration of the write, so
// concurrent movements on the same key serialize; the before/after pair and
// the movement row commit atomically.
func (s *StockService) ApplyMovement(ctx context.Context, in MovementInput) (*repository.StockMovement, error) {
	if !validMovementTypes[in.MovementType] {
		return nil, errors.BadRequest("unknown movement type: " + in.MovementType)
	}
	if in.QuantityChange == 0 {
		return nil, errors.BadRequest("quantity change must be non-zero")
	}

	product, err := s.productRepo.GetByID(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if product.BatchTracked && in.batchID == nil {
		return nil, errors.BadRequest("batch-tracked product must be mutated through batch operations")
	}

	location, err := s.locationRepo.GetByID(ctx, in.LocationID)
	if err != nil {
		return nil, err
	}

	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.ensureLevel(ctx, product, in.LocationID); err != nil {
		return nil, err
	}

	var movement *repository.StockMovement
	var inconsistent *repository.StockMovement
	var lowLevel, outLevel *repository.StockLevel

	err = s.db.WithTenantRLSLocked(ctx, tenantID, s.cfg.LockWait, func(txCtx context.Context) error {
		lvl, err := s.levelRepo.GetForUpdate(txCtx, in.ProductID, in.LocationID)
		if err != nil {
			return err
		}

		before := lvl.Quantity
		after := before + in.QuantityChange
		if after < 0 && !location.AllowNegativeStock {
			return errors.NegativeStock(in.ProductID, in.LocationID)
		}

		// The journal chain must continue from the latest entry. A gap
		// means a writer bypassed the ledger; record it and carry on
		// from the level's value.
		latest, err := s.movementRepo.Latest(txCtx, in.ProductID, in.LocationID)
		if err != nil {
			return err
		}

		lvl.Quantity = after
		if err := s.levelRepo.UpdateQuantities(txCtx, lvl); err != nil {
			return err
		}

		movement = &repository.StockMovement{
			ProductID:      in.ProductID,
			LocationID:     in.LocationID,
			BatchID:        in.batchID,
			MovementType:   in.MovementType,
			Quantity:       in.QuantityChange,
			QuantityBefore: before,
			QuantityAfter:  after,
			Reason:         in.Reason,
			ReferenceID:    in.referenceID,
			TransferPairID: in.transferPairID,
			PerformedBy:    in.PerformedBy,
		}
		if err := s.movementRepo.Insert(txCtx, movement); err != nil {
			return err
		}

		if latest != nil && latest.QuantityAfter != before {
			inconsistent = latest
		}
		if after <= 0 {
			outLevel = lvl
		} else if after <= lvl.MinQuantity {
			lowLevel = lvl
		}
		return nil
	})
	if err != nil {
		return nil, s.mapMutationError(err, in.ProductID, in.LocationID)
	}

	if inconsistent != nil {
		s.logger.Warn().
			Str("product_id", in.ProductID).
			Str("location_id", in.LocationID).
			Int("journal_after", inconsistent.QuantityAfter).
			Int("level_before", movement.QuantityBefore).
			Msg("movement journal chain gap detected")
		s.publisher.PublishConsistencyWarning(ctx, in.ProductID, in.LocationID, movement.QuantityBefore, inconsistent.QuantityAfter)
	}

	s.publisher.PublishMovementRecorded(ctx, movement)
	if outLevel != nil {
		s.publisher.PublishStockLevelOut(ctx, outLevel)
	} else if lowLevel != nil {
		s.publisher.PublishStockLevelLow(ctx, lowLevel)
	}
	s.invalidateSuggestion(ctx, tenantID, in.ProductID, in.LocationID)

	return movement, nil
}

// Transfer moves quantity between two locations atomically. Both levels lock
// in a fixed order so two opposing transfers cannot deadlock; the paired
// movements share a transfer id.
func (s *StockService) Transfer(ctx context.Context, productID, fromLocationID, toLocationID string, quantity int, reason, performedBy *string) ([]*repository.StockMovement, error) {
	if quantity <= 0 {
		return nil, errors.BadRequest("transfer quantity must be positive")
	}
	if fromLocationID == toLocationID {
		return nil, errors.BadRequest("transfer source and destination must differ")
	}

	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.BatchTracked {
		return nil, errors.BadRequest("batch-tracked products transfer per batch, not per level")
	}

	from, err := s.locationRepo.GetByID(ctx, fromLocationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.locationRepo.GetByID(ctx, toLocationID); err != nil {
		return nil, err
	}

	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.ensureLevel(ctx, product, fromLocationID); err != nil {
		return nil, err
	}
	if err := s.ensureLevel(ctx, product, toLocationID); err != nil {
		return nil, err
	}

	pairID := uuid.New().String()
	var movements []*repository.StockMovement

	err = s.db.WithTenantRLSLocked(ctx, tenantID, s.cfg.LockWait, func(txCtx context.Context) error {
		// Lock order by location id keeps concurrent opposing transfers
		// from deadlocking.
		first, second := fromLocationID, toLocationID
		if second < first {
			first, second = second, first
		}
		levels := map[string]*repository.StockLevel{}
		for _, locID := range []string{first, second} {
			lvl, err := s.levelRepo.GetForUpdate(txCtx, productID, locID)
			if err != nil {
				return err
			}
			levels[locID] = lvl
		}

		src, dst := levels[fromLocationID], levels[toLocationID]
		if src.Quantity-quantity < 0 && !from.AllowNegativeStock {
			return errors.NegativeStock(productID, fromLocationID)
		}

		outBefore := src.Quantity
		src.Quantity -= quantity
		if err := s.levelRepo.UpdateQuantities(txCtx, src); err != nil {
			return err
		}

		inBefore := dst.Quantity
		dst.Quantity += quantity
		if err := s.levelRepo.UpdateQuantities(txCtx, dst); err != nil {
			return err
		}

		out := &repository.StockMovement{
			ProductID:      productID,
			LocationID:     fromLocationID,
			MovementType:   repository.MovementTransferOut,
			Quantity:       -quantity,
			QuantityBefore: outBefore,
			QuantityAfter:  src.Quantity,
			Reason:         reason,
			TransferPairID: &pairID,
			PerformedBy:    performedBy,
		}
		in := &repository.StockMovement{
			ProductID:      productID,
			LocationID:     toLocationID,
			MovementType:   repository.MovementTransferIn,
			Quantity:       quantity,
			QuantityBefore: inBefore,
			QuantityAfter:  dst.Quantity,
			Reason:         reason,
			TransferPairID: &pairID,
			PerformedBy:    performedBy,
		}
		for _, m := range []*repository.StockMovement{out, in} {
			if err := s.movementRepo.Insert(txCtx, m); err != nil {
				return err
			}
		}
		movements = []*repository.StockMovement{out, in}
		return nil
	})
	if err != nil {
		return nil, s.mapMutationError(err, productID, fromLocationID)
	}

	for _, m := range movements {
		s.publisher.PublishMovementRecorded(ctx, m)
	}
	s.invalidateSuggestion(ctx, tenantID, productID, fromLocationID)
	s.invalidateSuggestion(ctx, tenantID, productID, toLocationID)

	return movements, nil
}

// Reserve holds quantity against a stock level without consuming it.
// Reserved quantity reduces availability; the current quantity is untouched,
// so the movement records an unchanged before/after pair.
func (s *StockService) Reserve(ctx context.Context, productID, locationID string, quantity int, reason, performedBy *string) (*repository.StockMovement, error) {
	if quantity <= 0 {
		return nil, errors.BadRequest("reserve quantity must be positive")
	}
	return s.adjustReservation(ctx, productID, locationID, quantity, repository.MovementReserve, reason, performedBy)
}

// Release returns previously reserved quantity to availability
func (s *StockService) Release(ctx context.Context, productID, locationID string, quantity int, reason, performedBy *string) (*repository.StockMovement, error) {
	if quantity <= 0 {
		return nil, errors.BadRequest("release quantity must be positive")
	}
	return s.adjustReservation(ctx, productID, locationID, -quantity, repository.MovementRelease, reason, performedBy)
}

func (s *StockService) adjustReservation(ctx context.Context, productID, locationID string, delta int, movementType string, reason, performedBy *string) (*repository.StockMovement, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var movement *repository.StockMovement
	err = s.db.WithTenantRLSLocked(ctx, tenantID, s.cfg.LockWait, func(txCtx context.Context) error {
		lvl, err := s.levelRepo.GetForUpdate(txCtx, productID, locationID)
		if err != nil {
			return err
		}

		reserved := lvl.ReservedQuantity + delta
		if reserved < 0 {
			return errors.BadRequest("cannot release more than is reserved")
		}
		if delta > 0 && reserved > lvl.Quantity {
			return errors.InsufficientBatchStock(delta, lvl.Available())
		}

		lvl.ReservedQuantity = reserved
		if err := s.levelRepo.UpdateQuantities(txCtx, lvl); err != nil {
			return err
		}

		movement = &repository.StockMovement{
			ProductID:      productID,
			LocationID:     locationID,
			MovementType:   movementType,
			Quantity:       delta,
			QuantityBefore: lvl.Quantity,
			QuantityAfter:  lvl.Quantity,
			Reason:         reason,
			PerformedBy:    performedBy,
		}
		return s.movementRepo.Insert(txCtx, movement)
	})
	if err != nil {
		return nil, s.mapMutationError(err, productID, locationID)
	}

	s.publisher.PublishMovementRecorded(ctx, movement)
	s.invalidateSuggestion(ctx, tenantID, productID, locationID)
	return movement, nil
}

// mapMutationError normalizes storage-level failures into the typed errors
// callers retry on.
func (s *StockService) mapMutationError(err error, productID, locationID string) error {
	switch {
	case database.IsSerializationFailure(err):
		return errors.ConcurrentModification(productID, locationID)
	case database.IsLockTimeout(err):
		return errors.Timeout("stock mutation")
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.Timeout("stock mutation")
	default:
		return err
	}
}
