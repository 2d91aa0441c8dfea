package domain

import (
	"fmt"
	"strings"
	"time"
)

type (
	// Timezone is a validated IANA zone identifier (e.g. "America/New_York").
	Timezone string

	// DateOfBirth is a calendar date (year, month, day) with no time-of-day
	// or zone component. Birthdays are evaluated against the wall-clock
	// calendar, not an absolute instant.
	DateOfBirth struct {
		Year  int
		Month time.Month
		Day   int
	}

	// User is the identity-bearing aggregate owned by the external user
	// context. The scheduling context holds only a denormalized snapshot
	// of the fields it needs to generate occurrences (§3 Ownership).
	User struct {
		ID        string
		FirstName string
		LastName  string

		DateOfBirth DateOfBirth
		Timezone    Timezone

		// AnniversaryDate is set when the anniversary event type is
		// registered for this user (supplemental event type, SPEC_FULL §3a).
		AnniversaryDate *DateOfBirth

		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

// Validate checks the invariants a User must satisfy before it can be used
// to generate occurrences: non-blank first and last names, a date of birth
// in the past, and a loadable IANA timezone. Name length is not checked.
func (u User) Validate(ref time.Time) error {
	if strings.TrimSpace(u.FirstName) == "" || strings.TrimSpace(u.LastName) == "" {
		return ErrEmptyName
	}
	if err := u.Timezone.Validate(); err != nil {
		return err
	}
	loc, _ := u.Timezone.Location()
	dob := time.Date(u.DateOfBirth.Year, u.DateOfBirth.Month, u.DateOfBirth.Day, 0, 0, 0, 0, loc)
	if !dob.Before(ref.In(loc)) {
		return ErrDateOfBirthInFuture
	}
	return nil
}

// Validate reports whether tz names a loadable IANA zone.
func (tz Timezone) Validate() error {
	if _, err := time.LoadLocation(string(tz)); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, string(tz), err)
	}
	return nil
}

// Location loads the *time.Location for tz.
func (tz Timezone) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(string(tz))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, string(tz), err)
	}
	return loc, nil
}

// DateOfBirthFromTime truncates t to its calendar date, discarding time and
// zone (per the type's contract: dates of birth are zone-less).
func DateOfBirthFromTime(t time.Time) DateOfBirth {
	y, m, d := t.Date()
	return DateOfBirth{Year: y, Month: m, Day: d}
}

// String renders the date as YYYY-MM-DD.
func (d DateOfBirth) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsLeapDay reports whether the date falls on February 29th.
func (d DateOfBirth) IsLeapDay() bool {
	return d.Month == time.February && d.Day == 29
}
