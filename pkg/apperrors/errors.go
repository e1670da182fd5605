// Package apperrors defines the error kinds surfaced to users by the report
// and query flows. Every kind is terminal for the current user action.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrStorageAccess     = errors.New("storage access failed")
	ErrUnsupportedFormat = errors.New("unsupported mapping file format")
	ErrGeneration        = errors.New("sql generation failed")
	ErrQueryExecution    = errors.New("query execution failed")
	ErrMissingDataset    = errors.New("missing dataset")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrInvalidInput      = errors.New("invalid input")
)

// StorageAccessError reports a mapping object that is missing or unreadable.
type StorageAccessError struct {
	Bucket string
	Key    string
	Cause  error
}

func (e *StorageAccessError) Error() string {
	return fmt.Sprintf("cannot read object %s/%s: %v", e.Bucket, e.Key, e.Cause)
}

func (e *StorageAccessError) Unwrap() error { return e.Cause }

func (e *StorageAccessError) Is(target error) bool { return target == ErrStorageAccess }

// UnsupportedFormatError reports a mapping file whose extension has no parser.
type UnsupportedFormatError struct {
	FileName  string
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported mapping file format %q for %s (expected .csv, .xlsx or .txt)", e.Extension, e.FileName)
}

func (e *UnsupportedFormatError) Is(target error) bool { return target == ErrUnsupportedFormat }

// GenerationError reports an LLM call that failed after its bounded retries,
// or produced no usable SQL.
type GenerationError struct {
	Attempts int
	Reason   string
	Cause    error
}

func (e *GenerationError) Error() string {
	msg := "sql generation failed"
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempt(s)", msg, e.Attempts)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Cause }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// QueryExecutionError carries the warehouse's own error text verbatim.
type QueryExecutionError struct {
	Warehouse string
	Message   string
	Cause     error
}

func (e *QueryExecutionError) Error() string {
	if e.Warehouse == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Warehouse, e.Message)
}

func (e *QueryExecutionError) Unwrap() error { return e.Cause }

func (e *QueryExecutionError) Is(target error) bool { return target == ErrQueryExecution }

// NewQueryExecutionError wraps a driver error, keeping its message as-is.
func NewQueryExecutionError(warehouse string, cause error) *QueryExecutionError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &QueryExecutionError{Warehouse: warehouse, Message: msg, Cause: cause}
}

// MissingDatasetError names a required source table that was not fetched,
// came back empty, or lacks a column the reconciliation needs.
type MissingDatasetError struct {
	Dataset string
	Empty   bool
	Column  string
}

func (e *MissingDatasetError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("dataset %s has no %s column", e.Dataset, e.Column)
	}
	if e.Empty {
		return fmt.Sprintf("dataset %s is empty", e.Dataset)
	}
	return fmt.Sprintf("missing dataset: %s", e.Dataset)
}

func (e *MissingDatasetError) Is(target error) bool { return target == ErrMissingDataset }

// InsufficientDataError reports comparison fields that are absent.
type InsufficientDataError struct {
	Field  string
	Reason string
}

func (e *InsufficientDataError) Error() string {
	if e.Field == "" {
		return "insufficient data: " + e.Reason
	}
	return fmt.Sprintf("insufficient data for %s: %s", e.Field, e.Reason)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }
