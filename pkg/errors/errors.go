package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound   = errors.New("resource not found")
	ErrBadRequest = errors.New("bad request")
	ErrConflict   = errors.New("resource conflict")
	ErrInternal   = errors.New("internal server error")
	ErrValidation = errors.New("validation error")

	// Stock engine error types
	ErrNegativeStockNotAllowed = errors.New("negative stock not allowed")
	ErrInsufficientBatchStock  = errors.New("insufficient batch stock")
	ErrConcurrentModification  = errors.New("concurrent modification")
	ErrTimeout                 = errors.New("operation timed out")
	ErrStockInconsistency      = errors.New("stock level inconsistent with batch sum")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Stock engine error constructors

// NegativeStock is returned when a movement would drive a stock level below
// zero at a location that does not allow negative stock.
func NegativeStock(productID, locationID string) *AppError {
	return &AppError{
		Err:        ErrNegativeStockNotAllowed,
		Code:       "NEGATIVE_STOCK_NOT_ALLOWED",
		Message:    "movement would drive stock below zero",
		StatusCode: http.StatusUnprocessableEntity,
		Details: map[string]string{
			"product_id":  productID,
			"location_id": locationID,
		},
	}
}

// InsufficientBatchStock is returned when the eligible batches cannot cover a
// requested allocation. The available total is reported so the caller can
// retry with a smaller request or trigger a receipt.
func InsufficientBatchStock(requested, available int) *AppError {
	return &AppError{
		Err:        ErrInsufficientBatchStock,
		Code:       "INSUFFICIENT_BATCH_STOCK",
		Message:    fmt.Sprintf("requested %d but only %d available across eligible batches", requested, available),
		StatusCode: http.StatusUnprocessableEntity,
		Details: map[string]string{
			"requested": fmt.Sprintf("%d", requested),
			"available": fmt.Sprintf("%d", available),
		},
	}
}

// ConcurrentModification is returned when a competing writer invalidated the
// read snapshot of a (product, location) key. Safe to retry.
func ConcurrentModification(productID, locationID string) *AppError {
	return &AppError{
		Err:        ErrConcurrentModification,
		Code:       "CONCURRENT_MODIFICATION",
		Message:    "stock level was modified by a competing writer",
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"product_id":  productID,
			"location_id": locationID,
		},
	}
}

// Timeout is returned when the caller's deadline expired before the per-key
// lock could be acquired. No partial write happened; safe to retry.
func Timeout(operation string) *AppError {
	return &AppError{
		Err:        ErrTimeout,
		Code:       "TIMEOUT",
		Message:    fmt.Sprintf("%s timed out waiting for stock lock", operation),
		StatusCode: http.StatusRequestTimeout,
	}
}

// StockInconsistency signals that a batch-tracked stock level disagrees with
// the sum of its batches. This is a data-quality warning, not a hard failure.
func StockInconsistency(productID, locationID string, levelQty, batchSum int) *AppError {
	return &AppError{
		Err:        ErrStockInconsistency,
		Code:       "STOCK_INCONSISTENCY",
		Message:    fmt.Sprintf("stock level %d disagrees with batch sum %d", levelQty, batchSum),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"product_id":  productID,
			"location_id": locationID,
		},
	}
}

// Retryable reports whether the error is transient and the operation can be
// retried unchanged. Validation and insufficient-stock errors are not
// retryable: the caller must fix the input first.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrTimeout)
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
