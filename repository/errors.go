// Package repository defines the storage port the rest of this module
// depends on, plus two adapters: inmem (testing/local) and postgres
// (production, via pgx/v5 with FOR UPDATE SKIP LOCKED claiming).
package repository

import "errors"

var (
	// ErrNotFound indicates the requested occurrence does not exist.
	ErrNotFound = errors.New("repository: occurrence not found")

	// ErrDuplicateIdempotencyKey indicates Create was called with an
	// idempotency key already present in storage. Per spec §4.2, callers
	// treat this as "already generated" rather than an error to surface.
	ErrDuplicateIdempotencyKey = errors.New("repository: duplicate idempotency key")

	// ErrOptimisticLockConflict indicates an Update's expectedVersion did
	// not match the stored row's current version: someone else mutated the
	// occurrence first. Callers must reload and re-evaluate (spec §4.3,
	// §4.5).
	ErrOptimisticLockConflict = errors.New("repository: optimistic lock conflict")

	// ErrTransientStorage wraps a storage failure the caller should retry
	// (connection reset, deadline exceeded, pool exhaustion).
	ErrTransientStorage = errors.New("repository: transient storage error")

	// ErrFatalStorage wraps a storage failure the caller should not retry
	// (constraint violation other than duplicate key, malformed query).
	ErrFatalStorage = errors.New("repository: fatal storage error")
)
