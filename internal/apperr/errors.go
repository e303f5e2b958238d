// Package apperr holds sentinel errors shared across the core.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrSchemaMismatch means the store lacks a column the core depends on.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrIntegrityBlocked means data_integrity failed and dependent output must halt.
	ErrIntegrityBlocked = errors.New("data integrity gate failed")
	ErrInvalidArgument  = errors.New("invalid argument")
)
