package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pradok/events-scheduler-sub000/domain"
)

func TestUser_Validate(t *testing.T) {
	t.Parallel()

	ref := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	t.Run("valid user", func(t *testing.T) {
		t.Parallel()
		u := domain.User{
			FirstName:   "Ada",
			LastName:    "Lovelace",
			DateOfBirth: domain.DateOfBirth{Year: 1990, Month: time.March, Day: 15},
			Timezone:    "America/New_York",
		}
		require.NoError(t, u.Validate(ref))
	})

	t.Run("empty name rejected", func(t *testing.T) {
		t.Parallel()
		u := domain.User{
			FirstName:   "",
			LastName:    "Lovelace",
			DateOfBirth: domain.DateOfBirth{Year: 1990, Month: time.March, Day: 15},
			Timezone:    "UTC",
		}
		assert.ErrorIs(t, u.Validate(ref), domain.ErrEmptyName)
	})

	t.Run("invalid timezone rejected", func(t *testing.T) {
		t.Parallel()
		u := domain.User{
			FirstName:   "Ada",
			LastName:    "Lovelace",
			DateOfBirth: domain.DateOfBirth{Year: 1990, Month: time.March, Day: 15},
			Timezone:    "Mars/Olympus_Mons",
		}
		assert.ErrorIs(t, u.Validate(ref), domain.ErrInvalidTimezone)
	})

	t.Run("date of birth in the future rejected", func(t *testing.T) {
		t.Parallel()
		u := domain.User{
			FirstName:   "Ada",
			LastName:    "Lovelace",
			DateOfBirth: domain.DateOfBirth{Year: 2099, Month: time.March, Day: 15},
			Timezone:    "UTC",
		}
		assert.ErrorIs(t, u.Validate(ref), domain.ErrDateOfBirthInFuture)
	})
}

func TestDateOfBirth_IsLeapDay(t *testing.T) {
	t.Parallel()
	assert.True(t, domain.DateOfBirth{Year: 2000, Month: time.February, Day: 29}.IsLeapDay())
	assert.False(t, domain.DateOfBirth{Year: 2000, Month: time.February, Day: 28}.IsLeapDay())
}
