package policy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pradok/events-scheduler-sub000/domain"
	"github.com/pradok/events-scheduler-sub000/policy"
)

func mustPolicy(t *testing.T, deliveryTime string) *policy.BirthdayPolicy {
	t.Helper()
	p, err := policy.NewBirthdayPolicy(deliveryTime, 0)
	require.NoError(t, err)
	return p
}

// TestBirthdayPolicy_OrdinaryYear covers spec §8 Scenario A: an ordinary
// birthday in a zone with no DST activity near the date.
func TestBirthdayPolicy_OrdinaryYear(t *testing.T) {
	t.Parallel()

	p := mustPolicy(t, "09:00:00")
	user := domain.User{
		ID:          "u1",
		DateOfBirth: domain.DateOfBirth{Year: 1990, Month: time.July, Day: 4},
		Timezone:    "America/New_York",
	}
	reference := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	next, err := p.NextLocalOccurrence(user, reference)
	require.NoError(t, err)

	loc, _ := time.LoadLocation("America/New_York")
	assert.Equal(t, time.Date(2026, time.July, 4, 9, 0, 0, 0, loc), next)
}

// TestBirthdayPolicy_AlreadyPassedAdvancesYear covers the case where this
// year's anniversary instant has already elapsed relative to reference.
func TestBirthdayPolicy_AlreadyPassedAdvancesYear(t *testing.T) {
	t.Parallel()

	p := mustPolicy(t, "09:00:00")
	user := domain.User{
		ID:          "u2",
		DateOfBirth: domain.DateOfBirth{Year: 1990, Month: time.January, Day: 1},
		Timezone:    "UTC",
	}
	reference := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	next, err := p.NextLocalOccurrence(user, reference)
	require.NoError(t, err)
	assert.Equal(t, 2027, next.Year())
	assert.Equal(t, time.January, next.Month())
	assert.Equal(t, 1, next.Day())
}

// TestBirthdayPolicy_LeapDayRollsDownToFeb28 covers spec §8 Scenario B: a
// February 29 birthday in a non-leap year resolves to February 28, not
// March 1.
func TestBirthdayPolicy_LeapDayRollsDownToFeb28(t *testing.T) {
	t.Parallel()

	p := mustPolicy(t, "09:00:00")
	user := domain.User{
		ID:          "u3",
		DateOfBirth: domain.DateOfBirth{Year: 2000, Month: time.February, Day: 29},
		Timezone:    "UTC",
	}
	reference := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	next, err := p.NextLocalOccurrence(user, reference)
	require.NoError(t, err)
	assert.Equal(t, 2027, next.Year())
	assert.Equal(t, time.February, next.Month())
	assert.Equal(t, 28, next.Day())

	reference2028 := time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC)
	next2028, err := p.NextLocalOccurrence(user, reference2028)
	require.NoError(t, err)
	assert.Equal(t, time.February, next2028.Month())
	assert.Equal(t, 29, next2028.Day(), "2028 is a leap year: Feb 29 exists")
}

// TestBirthdayPolicy_SpringForwardGap covers spec §8 Scenario C: a delivery
// time that falls inside a DST spring-forward gap resolves to the first
// valid instant at or after it, not an hour-shifted nominal time.
func TestBirthdayPolicy_SpringForwardGap(t *testing.T) {
	t.Parallel()

	// America/New_York springs forward 2026-03-08 02:00 -> 03:00.
	p := mustPolicy(t, "02:30:00")
	user := domain.User{
		ID:          "u4",
		DateOfBirth: domain.DateOfBirth{Year: 1990, Month: time.March, Day: 8},
		Timezone:    "America/New_York",
	}
	reference := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	next, err := p.NextLocalOccurrence(user, reference)
	require.NoError(t, err)

	loc, _ := time.LoadLocation("America/New_York")
	expected := time.Date(2026, time.March, 8, 3, 0, 0, 0, loc)
	assert.True(t, expected.Equal(next), "expected %v, got %v", expected, next)
}

// TestBirthdayPolicy_FastTestOffset exercises FAST_TEST_DELIVERY_OFFSET:
// the wall-clock fields come from reference+offset in UTC, then get
// reinterpreted (not converted) in the user's zone.
func TestBirthdayPolicy_FastTestOffset(t *testing.T) {
	t.Parallel()

	p, err := policy.NewBirthdayPolicy("09:00:00", 90*time.Second)
	require.NoError(t, err)

	reference := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	utcUser := domain.User{ID: "u5", Timezone: "UTC"}
	next, err := p.NextLocalOccurrence(utcUser, reference)
	require.NoError(t, err)
	assert.Equal(t, reference.Add(90*time.Second), next.UTC())

	nyUser := domain.User{ID: "u6", Timezone: "America/New_York"}
	nextNY, err := p.NextLocalOccurrence(nyUser, reference)
	require.NoError(t, err)
	assert.NotEqual(t, reference.Add(90*time.Second), nextNY.UTC(), "only UTC users see the offset materialize literally")
	assert.Equal(t, 12, nextNY.Hour())
	assert.Equal(t, 1, nextNY.Minute())
	assert.Equal(t, 30, nextNY.Second())
}
