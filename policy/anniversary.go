package policy

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pradok/events-scheduler-sub000/domain"
)

// AnniversaryPolicy implements Policy for domain.EventType "ANNIVERSARY", the
// supplemental event type added in SPEC_FULL §3a to prove the registry is
// genuinely type-agnostic rather than birthday-shaped. Users without an
// AnniversaryDate set never get an ANNIVERSARY occurrence generated for
// them: generator.Generate returns an error for them, which
// generator.GenerateAll skips.
type AnniversaryPolicy struct {
	DeliveryTime time.Duration
}

// NewAnniversaryPolicy builds an AnniversaryPolicy from a "HH:MM:SS" delivery
// time string. An empty deliveryTime defaults to 10:00:00.
func NewAnniversaryPolicy(deliveryTime string) (*AnniversaryPolicy, error) {
	if deliveryTime == "" {
		deliveryTime = "10:00:00"
	}
	d, err := parseTimeOfDay(deliveryTime)
	if err != nil {
		return nil, fmt.Errorf("policy: invalid ANNIVERSARY_DELIVERY_TIME %q: %w", deliveryTime, err)
	}
	return &AnniversaryPolicy{DeliveryTime: d}, nil
}

// NextLocalOccurrence implements Policy. Returns an error if the user has no
// AnniversaryDate; generator.Generate passes that error on, and
// generator.GenerateAll treats it as "skip this event type for this user"
// rather than a hard failure.
func (p *AnniversaryPolicy) NextLocalOccurrence(user domain.User, reference time.Time) (time.Time, error) {
	if user.AnniversaryDate == nil {
		return time.Time{}, fmt.Errorf("policy: user %s has no anniversary date", user.ID)
	}
	loc, err := user.Timezone.Location()
	if err != nil {
		return time.Time{}, err
	}

	refLocal := reference.In(loc)
	hh, mm, ss := timeOfDayParts(p.DeliveryTime)
	month := user.AnniversaryDate.Month
	day := user.AnniversaryDate.Day

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
func (p *AnniversaryPolicy) FormatPayload(user domain.User) ([]byte, error) {
	return json.Marshal(anniversaryPayload{
		UserID:    user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Message:   fmt.Sprintf("Happy anniversary, %s %s!", user.FirstName, user.LastName),
	})
}

// Channel implements Policy. Deliberately distinct from BirthdayPolicy's
// channel to exercise the executor's per-occurrence channel routing.
func (p *AnniversaryPolicy) Channel() string {
	return "push"
}

type anniversaryPayload struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Message   string `json:"message"`
}
