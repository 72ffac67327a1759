package repository

import (
	"errors"
	"fmt"
	"strings"
)

// Contract errors of the document store adapter
var (
	// ErrUnsupportedCollection: the collection is not in the registry
	ErrUnsupportedCollection = errors.New("unsupported collection")
	// ErrInvalidField: a supplied field is not in the collection's whitelist
	ErrInvalidField = errors.New("invalid field")
	// ErrMissingRequiredField: a required field is absent
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrDuplicateDocument: a non-deleted document already holds the
	// same value on the collection's uniqueness keys
	ErrDuplicateDocument = errors.New("duplicate document")
	// ErrDatabaseOperation: the underlying store failed after retries
	ErrDatabaseOperation = errors.New("document store operation failed")
)

// FieldError carries the offending field names of a validation failure
type FieldError struct {
	Err        error // ErrInvalidField or ErrMissingRequiredField
	Collection string
	Fields     []string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: collection %q, fields [%s]",
		e.Err.Error(), e.Collection, strings.Join(e.Fields, ", "))
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func invalidFields(collection string, fields []string) error {
	return &FieldError{Err: ErrInvalidField, Collection: collection, Fields: fields}
}

func missingFields(collection string, fields []string) error {
	return &FieldError{Err: ErrMissingRequiredField, Collection: collection, Fields: fields}
}

// storeFailure wraps an underlying store error so callers can match it
// with errors.Is(err, ErrDatabaseOperation) without losing the cause
type storeFailure struct {
	err error
	msg string
}

func (e *storeFailure) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *storeFailure) Unwrap() error {
	return e.err
}

func (e *storeFailure) Is(target error) bool {
	return target == ErrDatabaseOperation
}

func operationFailure(err error, msg string) error {
	return &storeFailure{err: err, msg: msg}
}
