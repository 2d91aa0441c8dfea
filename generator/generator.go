// Package generator computes the next domain.Occurrence for a user under a
// given policy.Policy, per spec §4.2. Generation does no I/O, and apart from
// the random occurrence ID (a fresh UUID per call) it is a pure function of
// (user, policy, reference time): the same inputs always produce the same
// target timestamps, payload and idempotency key.
package generator

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/pradok/events-scheduler-sub000/clock"
	"github.com/pradok/events-scheduler-sub000/domain"
	"github.com/pradok/events-scheduler-sub000/policy"
)

// Generate computes the next occurrence of eventType for user, using clk for
// the reference instant. Returns the fully-formed, not-yet-persisted
// domain.Occurrence ready for repository.Store.Create.
func Generate(clk clock.Clock, registry *policy.Registry, user domain.User, eventType domain.EventType) (*domain.Occurrence, error) {
	p, err := registry.Resolve(eventType)
	if err != nil {
		return nil, err
	}

	reference := clk.NowUTC()
	nextLocal, err := p.NextLocalOccurrence(user, reference)
	if err != nil {
		return nil, fmt.Errorf("generator: computing next occurrence for user %s event %s: %w", user.ID, eventType, err)
	}
	targetUTC := nextLocal.UTC()

	payload, err := p.FormatPayload(user)
	if err != nil {
		return nil, fmt.Errorf("generator: formatting payload for user %s event %s: %w", user.ID, eventType, err)
	}

	key := domain.NewIdempotencyKey(user.ID, eventType, targetUTC)
	id := uuid.NewString()

	return domain.NewPending(id, user, eventType, targetUTC, nextLocal, key, payload, p.Channel(), reference), nil
}

// GenerateAll runs Generate for every event type registered in registry,
// skipping (not failing on) event types whose policy declines to produce an
// occurrence for this user — e.g. AnniversaryPolicy for a user with no
// AnniversaryDate set. Used by the reschedule coordinator and any bulk
// backfill tooling.
func GenerateAll(clk clock.Clock, registry *policy.Registry, user domain.User) ([]*domain.Occurrence, []error) {
	var occurrences []*domain.Occurrence
	var errs []error
	for _, eventType := range registry.EventTypes() {
		occ, err := Generate(clk, registry, user, eventType)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		occurrences = append(occurrences, occ)
	}
	return occurrences, errs
}
