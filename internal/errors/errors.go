// Package errors provides the structured error type shared by the ledger
// components. Every error carries a category, a code, a message and a
// retryable flag so transports can map failures without string matching.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the component that raised them.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryLookup     ErrorCategory = "LOOKUP"
	ErrCategoryIngest     ErrorCategory = "INGEST"
	ErrCategoryStore      ErrorCategory = "STORE"
	ErrCategoryCache      ErrorCategory = "CACHE"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

const (
	// Validation codes
	CodeInvalidFormat   = "INVALID_FORMAT"
	CodeInvalidArgument = "INVALID_ARGUMENT"

	// Lookup codes
	CodeNotFound = "NOT_FOUND"

	// Ingest codes
	CodeNoValidData   = "NO_VALID_DATA"
	CodeAllDuplicates = "ALL_DUPLICATES"

	// Store codes
	CodeConflict     = "CONFLICT"
	CodeStoreFailure = "STORE_FAILURE"

	// Cache codes
	CodeCacheFailure = "CACHE_FAILURE"

	// Storage codes
	CodeArchiveFailure = "ARCHIVE_FAILURE"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Sentinels for errors.Is. Matching compares category and code only.
var (
	ErrNotFound        = &LedgerError{Category: ErrCategoryLookup, Code: CodeNotFound}
	ErrInvalidFormat   = &LedgerError{Category: ErrCategoryValidation, Code: CodeInvalidFormat}
	ErrInvalidArgument = &LedgerError{Category: ErrCategoryValidation, Code: CodeInvalidArgument}
	ErrNoValidData     = &LedgerError{Category: ErrCategoryIngest, Code: CodeNoValidData}
	ErrAllDuplicates   = &LedgerError{Category: ErrCategoryIngest, Code: CodeAllDuplicates}
	ErrConflict        = &LedgerError{Category: ErrCategoryStore, Code: CodeConflict}
)

// LedgerError is the structured error type used throughout the system.
type LedgerError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *LedgerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *LedgerError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// New creates a new LedgerError.
func New(category ErrorCategory, code, message string) *LedgerError {
	return &LedgerError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new LedgerError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *LedgerError {
	return &LedgerError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *LedgerError) WithDetails(details map[string]interface{}) *LedgerError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a LedgerError.
func GetCategory(err error) ErrorCategory {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a LedgerError.
func GetCode(err error) string {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// GetDetails extracts the details map from an error chain.
func GetDetails(err error) map[string]interface{} {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Details
	}
	return nil
}

// Store and cache failures are transient (busy database, unreachable
// Redis). Nothing in the system retries them automatically; the flag is
// surfaced to callers.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStore && code == CodeStoreFailure:
		return true
	case category == ErrCategoryCache && code == CodeCacheFailure:
		return true
	case category == ErrCategoryStorage && code == CodeArchiveFailure:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NotFound(format string, args ...interface{}) *LedgerError {
	return New(ErrCategoryLookup, CodeNotFound, fmt.Sprintf(format, args...))
}

func InvalidFormat(format string, args ...interface{}) *LedgerError {
	return New(ErrCategoryValidation, CodeInvalidFormat, fmt.Sprintf(format, args...))
}

func InvalidArgument(format string, args ...interface{}) *LedgerError {
	return New(ErrCategoryValidation, CodeInvalidArgument, fmt.Sprintf(format, args...))
}

func NoValidData(message string) *LedgerError {
	return New(ErrCategoryIngest, CodeNoValidData, message)
}

func AllDuplicates(message string) *LedgerError {
	return New(ErrCategoryIngest, CodeAllDuplicates, message)
}

// Conflict reports a uniqueness violation on the given natural key(s).
func Conflict(message string, keys ...string) *LedgerError {
	err := New(ErrCategoryStore, CodeConflict, message)
	if len(keys) > 0 {
		err.Details = map[string]interface{}{"keys": keys}
	}
	return err
}

func NewStoreError(message string, cause error) *LedgerError {
	return Wrap(ErrCategoryStore, CodeStoreFailure, message, cause)
}

func NewCacheError(message string, cause error) *LedgerError {
	return Wrap(ErrCategoryCache, CodeCacheFailure, message, cause)
}

func NewArchiveError(message string, cause error) *LedgerError {
	return Wrap(ErrCategoryStorage, CodeArchiveFailure, message, cause)
}

func NewInternalError(message string, cause error) *LedgerError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
