package generator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pradok/events-scheduler-sub000/clock"
	"github.com/pradok/events-scheduler-sub000/domain"
	"github.com/pradok/events-scheduler-sub000/generator"
	"github.com/pradok/events-scheduler-sub000/policy"
)

func registryWithBirthday(t *testing.T) *policy.Registry {
	t.Helper()
	r := policy.NewRegistry()
	bp, err := policy.NewBirthdayPolicy("09:00:00", 0)
	require.NoError(t, err)
	r.Register("BIRTHDAY", bp)
	return r
}

func TestGenerate_IsDeterministic(t *testing.T) {
	t.Parallel()

	ref := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(ref)
	r := registryWithBirthday(t)
	user := domain.User{
		ID:          "u1",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		DateOfBirth: domain.DateOfBirth{Year: 1990, Month: time.July, Day: 4},
		Timezone:    "America/New_York",
	}

	occ1, err := generator.Generate(clk, r, user, "BIRTHDAY")
	require.NoError(t, err)
	occ2, err := generator.Generate(clk, r, user, "BIRTHDAY")
	require.NoError(t, err)

	assert.Equal(t, occ1.TargetTimestampUTC, occ2.TargetTimestampUTC)
	assert.Equal(t, occ1.IdempotencyKey, occ2.IdempotencyKey)
	assert.Equal(t, domain.StatusPending, occ1.Status)
	assert.Equal(t, 1, occ1.Version)
	assert.Equal(t, "email", occ1.Channel)
	assert.NotEmpty(t, occ1.DeliveryPayload)
}

func TestGenerate_UnknownEventTypeErrors(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Now())
	r := registryWithBirthday(t)
	user := domain.User{ID: "u1", Timezone: "UTC"}

	_, err := generator.Generate(clk, r, user, "UNKNOWN")
	assert.Error(t, err)
}

func TestGenerateAll_SkipsPoliciesThatDecline(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := registryWithBirthday(t)
	ap, err := policy.NewAnniversaryPolicy("10:00:00")
	require.NoError(t, err)
	r.Register("ANNIVERSARY", ap)

	user := domain.User{
		ID:          "u1",
		DateOfBirth: domain.DateOfBirth{Year: 1990, Month: time.July, Day: 4},
		Timezone:    "UTC",
		// AnniversaryDate left nil: ANNIVERSARY policy declines.
	}

	occurrences, errs := generator.GenerateAll(clk, r, user)
	require.Len(t, errs, 1)
	require.Len(t, occurrences, 1)
	assert.Equal(t, domain.EventType("BIRTHDAY"), occurrences[0].EventType)
}
