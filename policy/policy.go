// Package policy implements the per-event-type rules the generator needs to
// turn a domain.User into the next domain.Occurrence: when the next local
// occurrence falls, what payload to deliver, and which channel to deliver it
// on. Spec §4.2 calls this out explicitly as the seam for adding event types
// beyond birthdays without touching the generator, scheduler, or executor.
package policy

import (
	"fmt"
	"time"

	"github.com/pradok/events-scheduler-sub000/domain"
)

// Policy computes the next occurrence of one event type for one user and
// renders the payload an executor.Sink delivers. Implementations must be
// pure functions of their inputs: no I/O, no wall-clock reads beyond the
// reference time handed in, so that generator output is fully deterministic
// under an injected clock.Clock.
type Policy interface {
	// NextLocalOccurrence returns the next wall-clock instant, expressed in
	// the user's own time zone, that the event should fire at or after
	// reference (also evaluated in the user's zone). DST gaps and overlaps
	// are resolved per spec §4.2.
	NextLocalOccurrence(user domain.User, reference time.Time) (time.Time, error)

	// FormatPayload renders the delivery body for user.
	FormatPayload(user domain.User) ([]byte, error)

	// Channel names the delivery channel (e.g. "email"), recorded on the
	// occurrence for the executor's sink routing.
	Channel() string
}

// Registry resolves a domain.EventType to the Policy that handles it.
// It is a plain map with no locking: assemble it once at startup, after
// which concurrent Resolve/EventTypes calls only read it. Register is not
// safe to call concurrently with other methods.
type Registry struct {
	policies map[domain.EventType]Policy
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{policies: make(map[domain.EventType]Policy)}
}

// Register associates eventType with p. Registering the same eventType twice
// overwrites the previous binding; callers own ensuring that doesn't happen
// at runtime.
func (r *Registry) Register(eventType domain.EventType, p Policy) {
	r.policies[eventType] = p
}

// Resolve returns the Policy bound to eventType, or an error if none was
// registered.
func (r *Registry) Resolve(eventType domain.EventType) (Policy, error) {
	p, ok := r.policies[eventType]
	if !ok {
		return nil, fmt.Errorf("policy: no policy registered for event type %q", eventType)
	}
	return p, nil
}

// EventTypes returns every registered event type, in no particular order.
// Used by the recovery scanner and reschedule coordinator to fan out across
// all known event types without hard-coding the list.
func (r *Registry) EventTypes() []domain.EventType {
	out := make([]domain.EventType, 0, len(r.policies))
	for et := range r.policies {
		out = append(out, et)
	}
	return out
}
