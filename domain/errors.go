package domain

import "errors"

// Validation and domain-state sentinel errors. Callers use errors.Is to
// distinguish these from infrastructure failures surfaced by the
// repository package.
var (
	// ErrEmptyName indicates a user's first or last name was blank.
	ErrEmptyName = errors.New("domain: name must not be empty")
	// ErrDateOfBirthInFuture indicates a date of birth is not in the past.
	ErrDateOfBirthInFuture = errors.New("domain: date of birth must be in the past")
	// ErrInvalidTimezone indicates the timezone is not a loadable IANA zone.
	ErrInvalidTimezone = errors.New("domain: invalid IANA timezone")

	// ErrInvalidTransition indicates an attempted status transition is not
	// allowed by the state machine in spec §4.1. No state is mutated.
	ErrInvalidTransition = errors.New("domain: invalid occurrence state transition")
	// ErrRetryBudgetExhausted indicates a transient failure arrived after
	// the occurrence has already exhausted its retry budget; callers must
	// transition to FAILED instead of PENDING.
	ErrRetryBudgetExhausted = errors.New("domain: retry budget exhausted")
)
