package events_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pradok/events-scheduler-sub000/domain"
	"github.com/pradok/events-scheduler-sub000/events"
)

func TestDecode_UserBirthdayChanged(t *testing.T) {
	t.Parallel()

	payload, err := json.Marshal(events.UserBirthdayChanged{
		NewDateOfBirth: domain.DateOfBirth{Year: 1991, Month: time.May, Day: 2},
	})
	require.NoError(t, err)

	decoded, err := events.Decode(events.Envelope{
		Kind:    events.KindUserBirthdayChanged,
		UserID:  "u1",
		Payload: payload,
	})
	require.NoError(t, err)

	typed, ok := decoded.(events.UserBirthdayChanged)
	require.True(t, ok)
	assert.Equal(t, 1991, typed.NewDateOfBirth.Year)
}

func TestDecode_UserDeletedHasNoPayload(t *testing.T) {
	t.Parallel()

	decoded, err := events.Decode(events.Envelope{Kind: events.KindUserDeleted, UserID: "u1"})
	require.NoError(t, err)
	_, ok := decoded.(events.UserDeleted)
	assert.True(t, ok)
}

func TestDecode_UnknownKindErrors(t *testing.T) {
	t.Parallel()

	_, err := events.Decode(events.Envelope{Kind: "NOT_A_REAL_KIND"})
	require.Error(t, err)
	var unknownErr *events.UnknownKindError
	assert.ErrorAs(t, err, &unknownErr)
}
