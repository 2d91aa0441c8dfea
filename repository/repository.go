package repository

import (
	"context"
	"time"

	"github.com/pradok/events-scheduler-sub000/domain"
)

// Store is the persistence port the generator, scheduler, executor,
// recovery scanner, and reschedule coordinator depend on. Both adapters
// (inmem and postgres) implement the exact same claim/version semantics so
// that either can back the rest of the system interchangeably in tests.
type Store interface {
	// Create persists a newly generated occurrence. Returns
	// ErrDuplicateIdempotencyKey if one already exists for the same
	// (userID, idempotencyKey) per spec §4.2's generation idempotency
	// requirement.
	Create(ctx context.Context, occ *domain.Occurrence) error

	// Get retrieves a single occurrence by ID. Returns ErrNotFound if it
	// does not exist.
	Get(ctx context.Context, id string) (*domain.Occurrence, error)

	// Update persists occ's current in-memory state, enforcing optimistic
	// concurrency: the stored row's version must equal expectedVersion, or
	// ErrOptimisticLockConflict is returned and nothing is written. On
	// success the stored version is occ.Version (already incremented by
	// the domain.Occurrence transition method that produced this call).
	Update(ctx context.Context, occ *domain.Occurrence, expectedVersion int) error

	// ClaimReady atomically claims up to limit PENDING occurrences whose
	// TargetTimestampUTC is <= asOf, transitioning each to PROCESSING with
	// LeaseExpiresAt = asOf+lease, and returns the claimed rows. No two
	// concurrent callers (in-process or cross-process) may ever receive
	// the same row for the same due batch — see spec §4.3/§4.4 and §8's
	// 100-concurrent-claimers invariant.
	ClaimReady(ctx context.Context, asOf time.Time, lease time.Duration, limit int) ([]*domain.Occurrence, error)

	// ReclaimExpiredLeases finds PROCESSING occurrences whose
	// LeaseExpiresAt is <= asOf (an executor crashed mid-delivery without
	// completing the transition) and atomically moves each back to
	// PENDING, incrementing retryCount exactly as MarkRetryPending would.
	// Rows whose retry budget is already exhausted are moved to FAILED
	// instead. Returns the occurrences that were reclaimed either way.
	// Spec §4.5 "liveness sweep".
	ReclaimExpiredLeases(ctx context.Context, asOf time.Time, maxRetries int) ([]*domain.Occurrence, error)

	// FindMissed returns PENDING occurrences whose TargetTimestampUTC is
	// more than staleness in the past as of asOf: due occurrences the
	// scheduler's normal claim loop should have picked up already but
	// didn't (e.g. scheduler downtime). Spec §4.6.
	FindMissed(ctx context.Context, asOf time.Time, staleness time.Duration, limit int) ([]*domain.Occurrence, error)

	// ListByUser returns every non-terminal occurrence for userID,
	// optionally filtered to a single eventType (empty string means all
	// event types). Used by the reschedule coordinator to find the
	// occurrence(s) to cancel or regenerate. Spec §4.7.
	ListByUser(ctx context.Context, userID string, eventType domain.EventType) ([]*domain.Occurrence, error)

	// DeleteByUser removes every occurrence (terminal or not) owned by
	// userID. Spec §4.7 / SPEC_FULL §3a: UserDeleted is a hard delete, not
	// a soft cancel.
	DeleteByUser(ctx context.Context, userID string) (int, error)

	// CountByStatus returns the number of occurrences currently in status,
	// used by telemetry gauges and operational tooling.
	CountByStatus(ctx context.Context, status domain.Status) (int, error)
}
