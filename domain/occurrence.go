package domain

import (
	"fmt"
	"time"
)

type (
	// Status is the lifecycle state of an Occurrence. See spec §4.1 for
	// the full transition table; Occurrence's methods are the only
	// allowed way to move between states.
	Status string

	// EventType routes an occurrence to the policy.Policy that produced
	// it. Opaque to everything in this package beyond that routing.
	EventType string

	// IdempotencyKey is a deterministic function of (userID, eventType,
	// targetTimestampUTC), stable across retries and recoveries.
	IdempotencyKey string

	// Occurrence is the aggregate owned exclusively by the scheduling
	// context: a single scheduled instance of an event for a given user
	// at a given UTC instant (see GLOSSARY).
	Occurrence struct {
		ID     string
		UserID string

		EventType EventType
		Status    Status

		TargetTimestampUTC   time.Time
		TargetTimestampLocal time.Time
		TargetTimezone       Timezone

		// UserSnapshot is the denormalized slice of the owning user's
		// fields this occurrence was generated from (spec §3 Ownership):
		// scheduling holds only userId plus the fields used at
		// generation time, not a live reference into the user context.
		// The executor reads it to generate the next occurrence on
		// completion without depending on a user-lookup service; the
		// reschedule coordinator carries its name fields forward when a
		// birthday/timezone change regenerates it.
		UserSnapshot User

		IdempotencyKey  IdempotencyKey
		DeliveryPayload []byte
		Channel         string

		Version    int
		RetryCount int

		// LeaseExpiresAt is set by claimReady to now+lease and cleared on
		// any terminal or PENDING transition. See SPEC_FULL §3a (Open
		// Question resolved in favor of an explicit lease column).
		LeaseExpiresAt *time.Time

		ExecutedAt    *time.Time
		FailureReason string

		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

const (
	// StatusPending is the initial state: due at TargetTimestampUTC, not
	// yet claimed by any scheduler.
	StatusPending Status = "PENDING"
	// StatusProcessing indicates a scheduler has claimed the row and an
	// executor is (or was, pre-crash) delivering it.
	StatusProcessing Status = "PROCESSING"
	// StatusCompleted is terminal: delivery succeeded.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed is terminal: delivery permanently failed or exhausted
	// its retry budget.
	StatusFailed Status = "FAILED"
)

// DefaultMaxRetries is the MAX_RETRIES bound from spec §3 ("currently 3"),
// overridable via EXECUTOR_MAX_RETRIES (see config.Config).
const DefaultMaxRetries = 3

// NewPending constructs a freshly generated occurrence: version=1,
// retryCount=0, status=PENDING, executedAt=nil, exactly as spec §4.2
// ("Generator responsibilities") requires. user is stored verbatim as
// UserSnapshot; UserID and TargetTimezone are derived from it.
func NewPending(id string, user User, eventType EventType, targetUTC, targetLocal time.Time, key IdempotencyKey, payload []byte, channel string, now time.Time) *Occurrence {
	return &Occurrence{
		ID:                   id,
		UserID:               user.ID,
		EventType:            eventType,
		Status:               StatusPending,
		TargetTimestampUTC:   targetUTC.UTC(),
		TargetTimestampLocal: targetLocal,
		TargetTimezone:       user.Timezone,
		UserSnapshot:         user,
		IdempotencyKey:       key,
		DeliveryPayload:      payload,
		Channel:              channel,
		Version:              1,
		RetryCount:           0,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// allowedTransitions lists the permitted edges of the state machine in spec
// §4.1, plus the PENDING->FAILED edge used by CancelPending.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusFailed: true},
	StatusProcessing: {StatusCompleted: true, StatusPending: true, StatusFailed: true},
}

func (o *Occurrence) transition(to Status, now time.Time, mutate func()) error {
	if !allowedTransitions[o.Status][to] {
		return fmt.Errorf("%w: %s -> %s (occurrence %s)", ErrInvalidTransition, o.Status, to, o.ID)
	}
	mutate()
	o.Status = to
	o.Version++
	o.UpdatedAt = now
	return nil
}

// MarkProcessing performs the atomic PENDING->PROCESSING claim transition.
// The repository is responsible for the atomicity guarantee across
// concurrent claimers (§4.3); this method only enforces the state-machine
// edge and sets the visibility lease.
func (o *Occurrence) MarkProcessing(now time.Time, leaseUntil time.Time) error {
	return o.transition(StatusProcessing, now, func() {
		o.LeaseExpiresAt = &leaseUntil
	})
}

// MarkCompleted performs the PROCESSING->COMPLETED transition on successful
// delivery, recording executedAt and clearing the lease.
func (o *Occurrence) MarkCompleted(executedAt time.Time) error {
	return o.transition(StatusCompleted, executedAt, func() {
		t := executedAt
		o.ExecutedAt = &t
		o.LeaseExpiresAt = nil
	})
}

// MarkRetryPending performs the PROCESSING->PENDING transition after a
// transient failure, incrementing retryCount. Returns ErrRetryBudgetExhausted
// without mutating state if the retry budget is already exhausted; callers
// must call MarkFailed instead in that case (spec §4.5 step 4).
func (o *Occurrence) MarkRetryPending(now time.Time, maxRetries int) error {
	if o.RetryCount+1 >= maxRetries {
		return ErrRetryBudgetExhausted
	}
	return o.transition(StatusPending, now, func() {
		o.RetryCount++
		o.LeaseExpiresAt = nil
	})
}

// MarkFailed performs the PROCESSING->FAILED terminal transition, recording
// failureReason. If the reason is due to retry exhaustion rather than a
// permanent error, retryCount is still incremented so the invariant
// retryCount <= MAX_RETRIES remains observable in the final row.
func (o *Occurrence) MarkFailed(now time.Time, reason string, incrementRetry bool) error {
	if o.Status != StatusProcessing {
		return fmt.Errorf("%w: MarkFailed requires %s, got %s (occurrence %s)", ErrInvalidTransition, StatusProcessing, o.Status, o.ID)
	}
	return o.transition(StatusFailed, now, func() {
		if incrementRetry {
			o.RetryCount++
		}
		o.FailureReason = reason
		o.LeaseExpiresAt = nil
	})
}

// CancelPending performs the PENDING->FAILED transition used when the
// reschedule coordinator supersedes an occurrence before it was ever
// claimed (spec §4.7): the user's birthday or timezone changed, so this
// occurrence's target instant is stale and a replacement is generated in
// its place. Distinct from MarkFailed, which only applies to a claimed
// (PROCESSING) occurrence after a failed delivery attempt.
func (o *Occurrence) CancelPending(now time.Time, reason string) error {
	if o.Status != StatusPending {
		return fmt.Errorf("%w: CancelPending requires %s, got %s (occurrence %s)", ErrInvalidTransition, StatusPending, o.Status, o.ID)
	}
	return o.transition(StatusFailed, now, func() {
		o.FailureReason = reason
	})
}

// Unclaim performs the PROCESSING->PENDING transition used when a claim
// succeeded locally but enqueuing the occurrence for delivery failed (e.g.
// the queue broker was unreachable). Unlike MarkRetryPending, retryCount is
// not incremented: no delivery attempt was actually made, so it should not
// count against the retry budget.
func (o *Occurrence) Unclaim(now time.Time) error {
	return o.transition(StatusPending, now, func() {
		o.LeaseExpiresAt = nil
	})
}

// IsTerminal reports whether the occurrence is in a terminal state.
func (o *Occurrence) IsTerminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusFailed
}
