// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates a caller-supplied value failed validation.
// Wrap with fmt.Errorf("%w: reason", ErrValidation) to carry detail.
var ErrValidation = errors.New("validation")
