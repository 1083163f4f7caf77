// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// ledger and handlers to distinguish between different failure scenarios
// without inspecting driver-specific errors. For example, ErrNotFound
// indicates that a requested row does not exist, while ErrConflict
// signals that an operation cannot proceed because dependent records
// exist (e.g. deleting a template that future bookings still reference).
package repository

import "errors"

// ErrNotFound is returned when a requested record does not exist.
// Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a delete or update cannot be performed
// because of conflicting state, such as attempting to hard-delete a
// template that generated slots with active bookings. Handlers should
// translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
