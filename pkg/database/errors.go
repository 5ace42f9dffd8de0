package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// IsLockTimeout reports whether the error is a lock_timeout expiry (55P03).
// The statement waited on a row lock held by a competing writer and gave up.
func IsLockTimeout(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "55P03"
}

// IsSerializationFailure reports whether the error is a serialization failure
// or deadlock (40001, 40P01). Both mean a competing transaction won; the
// caller can retry.
func IsSerializationFailure(err error) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_non_negative"):
		return errors.Validation(map[string]string{
			"quantity": "must not be negative",
		})

	case strings.Contains(constraint, "batch_status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: available, quarantined, expired, depleted",
		})

	case strings.Contains(constraint, "movement_type_valid"):
		return errors.Validation(map[string]string{
			"movement_type": "must be one of: receipt, issue, adjustment, transfer_in, transfer_out, reserve, release",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "sku"):
		return "a product with this SKU already exists"
	case strings.Contains(constraint, "batch_number"):
		return "a batch with this batch number already exists for this product"
	case strings.Contains(constraint, "product_location"):
		return "a stock level for this product and location already exists"
	default:
		return "a record with these values already exists"
	}
}
