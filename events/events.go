// Package events defines the inbound user-lifecycle notifications the
// reschedule coordinator reacts to (spec §4.7). These are decoded from
// queue.Message payloads published on the "users.events" topic by whatever
// owns user data outside this module.
package events

import (
	"encoding/json"
	"time"

	"github.com/pradok/events-scheduler-sub000/domain"
)

// Kind identifies the notification variant carried in an Envelope.
type Kind string

const (
	KindUserCreated         Kind = "USER_CREATED"
	KindUserBirthdayChanged Kind = "USER_BIRTHDAY_CHANGED"
	KindUserTimezoneChanged Kind = "USER_TIMEZONE_CHANGED"
	KindUserDeleted         Kind = "USER_DELETED"
)

// Envelope is the wire format every notification is published as: a kind
// discriminator plus a JSON payload whose shape depends on Kind.
type Envelope struct {
	Kind      Kind            `json:"kind"`
	UserID    string          `json:"userId"`
	Payload   json.RawMessage `json:"payload"`
	EmittedAt time.Time       `json:"emittedAt"`
}

// UserCreated carries the full user record for initial occurrence
// generation.
type UserCreated struct {
	User domain.User `json:"user"`
}

// UserBirthdayChanged carries the user's new date of birth plus the
// timezone it should be interpreted in. The reschedule coordinator
// regenerates every non-terminal BIRTHDAY occurrence for the user from
// these values; a non-empty Timezone overrides the zone taken from the
// existing occurrence's user snapshot.
type UserBirthdayChanged struct {
	OldDateOfBirth domain.DateOfBirth `json:"oldDateOfBirth"`
	NewDateOfBirth domain.DateOfBirth `json:"newDateOfBirth"`
	Timezone       domain.Timezone    `json:"timezone"`
}

// UserTimezoneChanged carries the user's new timezone plus their current
// date of birth. The reschedule coordinator regenerates every non-terminal
// occurrence (all event types) for the user using the new zone; DateOfBirth
// is required here so BIRTHDAY regeneration doesn't compute against a
// zero-valued month/day.
type UserTimezoneChanged struct {
	OldTimezone domain.Timezone    `json:"oldTimezone"`
	NewTimezone domain.Timezone    `json:"newTimezone"`
	DateOfBirth domain.DateOfBirth `json:"dateOfBirth"`
}

// UserDeleted carries no additional data: SPEC_FULL §3a resolves deletion
// to a hard delete of every occurrence owned by the user, terminal or not.
type UserDeleted struct{}

// Decode unmarshals env.Payload into a typed notification based on env.Kind.
// The returned value's concrete type is one of UserCreated,
// UserBirthdayChanged, UserTimezoneChanged, or UserDeleted.
func Decode(env Envelope) (any, error) {
	switch env.Kind {
	case KindUserCreated:
		var v UserCreated
		if err := json.Unmarshal(env.Payload, &v); err != nil {
			return nil, err
		}
		return v, nil
	case KindUserBirthdayChanged:
		var v UserBirthdayChanged
		if err := json.Unmarshal(env.Payload, &v); err != nil {
			return nil, err
		}
		return v, nil
	case KindUserTimezoneChanged:
		var v UserTimezoneChanged
		if err := json.Unmarshal(env.Payload, &v); err != nil {
			return nil, err
		}
		return v, nil
	case KindUserDeleted:
		return UserDeleted{}, nil
	default:
		return nil, &UnknownKindError{Kind: env.Kind}
	}
}

// UnknownKindError is returned by Decode for an unrecognized Kind.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return "events: unknown notification kind " + string(e.Kind)
}
