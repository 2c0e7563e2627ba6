// Package businessflow contains the rate sheet ingestion and rate lookup use cases
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// ErrValidation marks a row or shipment that is structurally unusable.
	ErrValidation = errors.New("validation failed")

	// ErrCacheBuildTimeout is returned when the rebuild lock could not be
	// taken in time and there is no previous value to serve.
	ErrCacheBuildTimeout = errors.New("rate cache build timed out")

	// ErrStorageFailure wraps any rejection from the record store.
	ErrStorageFailure = errors.New("rate storage failure")

	// Import batch errors
	ErrImportBatchNotFound  = errors.New("import batch not found")
	ErrImportBatchNotActive = errors.New("import batch is not active")

	// Spreadsheet feed errors
	ErrUnsupportedSheetFormat = errors.New("unsupported rate sheet format")
	ErrSheetHeaderMissing     = errors.New("rate sheet heading row is missing")
	ErrSheetTooLarge          = errors.New("rate sheet has too many rows")

	ErrCacheNotAvailable = errors.New("cache not available")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

// validationError builds a BusinessError that matches ErrValidation.
func validationError(code, message string) *BusinessError {
	return NewBusinessError(code, message, ErrValidation)
}

// storageError tags err as a storage failure while keeping it unwrappable.
func storageError(code, message string, err error) *BusinessError {
	return NewBusinessError(code, message, fmt.Errorf("%w: %w", ErrStorageFailure, err))
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsCacheBuildTimeout(err error) bool {
	return errors.Is(err, ErrCacheBuildTimeout)
}

func IsStorageFailure(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}

func IsImportBatchNotFound(err error) bool {
	return errors.Is(err, ErrImportBatchNotFound)
}

func IsImportBatchNotActive(err error) bool {
	return errors.Is(err, ErrImportBatchNotActive)
}

func IsUnsupportedSheetFormat(err error) bool {
	return errors.Is(err, ErrUnsupportedSheetFormat)
}

func IsSheetHeaderMissing(err error) bool {
	return errors.Is(err, ErrSheetHeaderMissing)
}

func IsSheetTooLarge(err error) bool {
	return errors.Is(err, ErrSheetTooLarge)
}

func IsCacheNotAvailable(err error) bool {
	return errors.Is(err, ErrCacheNotAvailable)
}

// ErrorCode returns the BusinessError code in err's chain, or "".
func ErrorCode(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
