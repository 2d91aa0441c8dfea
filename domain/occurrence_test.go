package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pradok/events-scheduler-sub000/domain"
)

func TestStateMachine_HappyPath(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 15, 13, 0, 0, 0, time.UTC)
	occ := domain.NewPending("occ-1", domain.User{ID: "user-1", Timezone: "America/New_York"}, "BIRTHDAY", now, now, "key-1", nil, "email", now)
	require.Equal(t, domain.StatusPending, occ.Status)
	require.Equal(t, 1, occ.Version)

	require.NoError(t, occ.MarkProcessing(now, now.Add(2*time.Minute)))
	assert.Equal(t, domain.StatusProcessing, occ.Status)
	assert.Equal(t, 2, occ.Version)
	assert.NotNil(t, occ.LeaseExpiresAt)

	completedAt := now.Add(5 * time.Second)
	require.NoError(t, occ.MarkCompleted(completedAt))
	assert.Equal(t, domain.StatusCompleted, occ.Status)
	assert.Equal(t, 3, occ.Version)
	require.NotNil(t, occ.ExecutedAt)
	assert.Equal(t, completedAt, *occ.ExecutedAt)
	assert.Nil(t, occ.LeaseExpiresAt)
	assert.True(t, occ.IsTerminal())
}

func TestStateMachine_TransientThenPermanent(t *testing.T) {
	// Scenario D from spec §8.
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	occ := domain.NewPending("occ-d", domain.User{ID: "user-1", Timezone: "UTC"}, "BIRTHDAY", now, now, "key-d", nil, "email", now)

	require.NoError(t, occ.MarkProcessing(now, now.Add(time.Minute))) // v2
	require.NoError(t, occ.MarkRetryPending(now, 3))                  // v3, retry=1
	assert.Equal(t, 1, occ.RetryCount)

	require.NoError(t, occ.MarkProcessing(now, now.Add(time.Minute))) // v4
	require.NoError(t, occ.MarkRetryPending(now, 3))                  // v5, retry=2
	assert.Equal(t, 2, occ.RetryCount)

	require.NoError(t, occ.MarkProcessing(now, now.Add(time.Minute))) // v6
	err := occ.MarkRetryPending(now, 3)
	require.ErrorIs(t, err, domain.ErrRetryBudgetExhausted)

	require.NoError(t, occ.MarkFailed(now, "404 from sink", true)) // v7
	assert.Equal(t, domain.StatusFailed, occ.Status)
	assert.Equal(t, 7, occ.Version)
	assert.Equal(t, 3, occ.RetryCount)
	assert.Contains(t, occ.FailureReason, "404")
}

func TestStateMachine_RejectsInvalidTransitions(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	occ := domain.NewPending("occ-2", domain.User{ID: "user-1", Timezone: "UTC"}, "BIRTHDAY", now, now, "key-2", nil, "email", now)

	// PENDING -> COMPLETED is not an allowed edge.
	err := occ.MarkCompleted(now)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.StatusPending, occ.Status)
	assert.Equal(t, 1, occ.Version, "rejected transition must not mutate version")

	require.NoError(t, occ.MarkProcessing(now, now.Add(time.Minute)))
	require.NoError(t, occ.MarkCompleted(now))

	// COMPLETED is terminal: no further transitions allowed.
	require.ErrorIs(t, occ.MarkProcessing(now, now), domain.ErrInvalidTransition)
	require.ErrorIs(t, occ.MarkFailed(now, "x", false), domain.ErrInvalidTransition)
}

func TestCancelPending_MovesDirectlyToFailed(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	occ := domain.NewPending("occ-3", domain.User{ID: "user-1", Timezone: "UTC"}, "BIRTHDAY", now, now, "key-3", nil, "email", now)

	require.NoError(t, occ.CancelPending(now, "superseded by reschedule"))
	assert.Equal(t, domain.StatusFailed, occ.Status)
	assert.Equal(t, "superseded by reschedule", occ.FailureReason)
	assert.True(t, occ.IsTerminal())

	// Already-terminal: cannot cancel again.
	require.ErrorIs(t, occ.CancelPending(now, "again"), domain.ErrInvalidTransition)
}

func TestNewIdempotencyKey_DeterministicAndDistinct(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 15, 13, 0, 0, 0, time.UTC)
	k1 := domain.NewIdempotencyKey("user-1", "BIRTHDAY", ts)
	k2 := domain.NewIdempotencyKey("user-1", "BIRTHDAY", ts)
	assert.Equal(t, k1, k2)

	k3 := domain.NewIdempotencyKey("user-2", "BIRTHDAY", ts)
	assert.NotEqual(t, k1, k3)

	k4 := domain.NewIdempotencyKey("user-1", "BIRTHDAY", ts.Add(time.Second))
	assert.NotEqual(t, k1, k4)
}
