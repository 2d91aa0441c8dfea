package policy

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pradok/events-scheduler-sub000/domain"
)

// BirthdayPolicy implements Policy for domain.EventType "BIRTHDAY" per spec
// §4.2. The next occurrence is the user's next birthday anniversary at
// DeliveryTime local wall-clock time, with February 29 rolling down to
// February 28 in non-leap years and DST gaps/overlaps resolved via
// resolveWallClock.
type BirthdayPolicy struct {
	// DeliveryTime is the local wall-clock time of day occurrences fire at,
	// expressed as an offset from midnight. Configured via
	// BIRTHDAY_DELIVERY_TIME (default 09:00:00).
	DeliveryTime time.Duration

	// FastTestOffset, when non-zero, replaces the normal anniversary
	// computation: the wall-clock fields are taken from the current UTC
	// instant plus this offset, then reinterpreted (not converted) as a
	// local time in the user's zone. Because the fields are relabeled
	// rather than shifted, only UTC-zoned users see the offset materialize
	// as a literal delay. Configured via FAST_TEST_DELIVERY_OFFSET, a
	// testing escape hatch for exercising the pipeline without waiting for
	// real calendar dates.
	FastTestOffset time.Duration
}

// NewBirthdayPolicy builds a BirthdayPolicy from a "HH:MM:SS" delivery time
// string. An empty deliveryTime defaults to 09:00:00.
func NewBirthdayPolicy(deliveryTime string, fastTestOffset time.Duration) (*BirthdayPolicy, error) {
	if deliveryTime == "" {
		deliveryTime = "09:00:00"
	}
	d, err := parseTimeOfDay(deliveryTime)
	if err != nil {
		return nil, fmt.Errorf("policy: invalid BIRTHDAY_DELIVERY_TIME %q: %w", deliveryTime, err)
	}
	return &BirthdayPolicy{DeliveryTime: d, FastTestOffset: fastTestOffset}, nil
}

func parseTimeOfDay(s string) (time.Duration, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
}

// NextLocalOccurrence implements Policy.
func (p *BirthdayPolicy) NextLocalOccurrence(user domain.User, reference time.Time) (time.Time, error) {
	loc, err := user.Timezone.Location()
	if err != nil {
		return time.Time{}, err
	}

	if p.FastTestOffset != 0 {
		t := reference.UTC().Add(p.FastTestOffset)
		y, m, d := t.Date()
		hh, mm, ss := t.Clock()
		return resolveWallClock(loc, y, m, d, hh, mm, ss), nil
	}

	refLocal := reference.In(loc)
	hh, mm, ss := timeOfDayParts(p.DeliveryTime)
	month := user.DateOfBirth.Month
	day := user.DateOfBirth.Day

	year := refLocal.Year()
	for {
		effectiveDay := day
		if month == time.February && day == 29 && !isLeapYear(year) {
			effectiveDay = 28
		}
		candidate := resolveWallClock(loc, year, month, effectiveDay, hh, mm, ss)
		if !candidate.Before(refLocal) {
			return candidate, nil
		}
		year++
	}
}

// FormatPayload implements Policy.
func (p *BirthdayPolicy) FormatPayload(user domain.User) ([]byte, error) {
	return json.Marshal(birthdayPayload{
		UserID:    user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Message:   fmt.Sprintf("Hey, %s %s it's your birthday!", user.FirstName, user.LastName),
	})
}

// Channel implements Policy.
func (p *BirthdayPolicy) Channel() string {
	return "email"
}

type birthdayPayload struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Message   string `json:"message"`
}

func timeOfDayParts(d time.Duration) (hh, mm, ss int) {
	total := int(d.Seconds())
	hh = total / 3600
	mm = (total % 3600) / 60
	ss = total % 60
	return
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
