// Package reschedule implements the coordinator from spec §4.7: it
// consumes inbound user-lifecycle notifications (events.Envelope) and
// reacts by creating, regenerating, or deleting occurrences. Non-PENDING
// occurrences (already claimed or terminal) are skipped and logged rather
// than mutated, and optimistic-lock conflicts during cancellation are
// treated the same way: the executor or scheduler that won the race owns
// the outcome.
package reschedule

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/pradok/events-scheduler-sub000/clock"
	"github.com/pradok/events-scheduler-sub000/domain"
	"github.com/pradok/events-scheduler-sub000/events"
	"github.com/pradok/events-scheduler-sub000/generator"
	"github.com/pradok/events-scheduler-sub000/policy"
	"github.com/pradok/events-scheduler-sub000/queue"
	"github.com/pradok/events-scheduler-sub000/repository"
	"github.com/pradok/events-scheduler-sub000/telemetry"
)

// Config configures a Coordinator.
type Config struct {
	// Topic is the queue topic inbound events.Envelope notifications are
	// consumed from.
	Topic string
	// ConsumerGroup names this coordinator's consumer group.
	ConsumerGroup string
}

// Result summarizes the outcome of handling a single notification. Used by
// tests and operational logging.
type Result struct {
	Created     int
	Canceled    int
	Regenerated int
	Deleted     int
	Skipped     int
}

// Coordinator consumes inbound user-lifecycle notifications and keeps
// occurrences in sync with them.
type Coordinator struct {
	store    repository.Store
	q        queue.Queue
	clk      clock.Clock
	registry *policy.Registry
	logger   telemetry.Logger
	metrics  telemetry.Metrics
	cfg      Config
}

// New constructs a Coordinator.
func New(store repository.Store, q queue.Queue, clk clock.Clock, registry *policy.Registry, logger telemetry.Logger, metrics telemetry.Metrics, cfg Config) *Coordinator {
	return &Coordinator{store: store, q: q, clk: clk, registry: registry, logger: logger, metrics: metrics, cfg: cfg}
}

// Run blocks, consuming and handling notifications until ctx is canceled or
// the subscription closes.
func (c *Coordinator) Run(ctx context.Context) error {
	msgs, cancel, err := c.q.Subscribe(ctx, c.cfg.Topic, c.cfg.ConsumerGroup)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, msg queue.Message) {
	defer func() { _ = msg.Ack(ctx) }()

	var env events.Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		c.logger.Error(ctx, "dropping malformed reschedule notification", "error", err)
		return
	}

	decoded, err := events.Decode(env)
	if err != nil {
		c.logger.Error(ctx, "dropping undecodable reschedule notification", "kind", env.Kind, "error", err)
		return
	}

	var result Result
	switch v := decoded.(type) {
	case events.UserCreated:
		result = c.handleUserCreated(ctx, v.User)
	case events.UserBirthdayChanged:
		result = c.handleUserBirthdayChanged(ctx, env.UserID, v.NewDateOfBirth, v.Timezone)
	case events.UserTimezoneChanged:
		result = c.handleUserTimezoneChanged(ctx, env.UserID, v.NewTimezone, v.DateOfBirth)
	case events.UserDeleted:
		result = c.handleUserDeleted(ctx, env.UserID)
	}

	c.metrics.IncCounter("reschedule.created", float64(result.Created))
	c.metrics.IncCounter("reschedule.canceled", float64(result.Canceled))
	c.metrics.IncCounter("reschedule.regenerated", float64(result.Regenerated))
	c.metrics.IncCounter("reschedule.deleted", float64(result.Deleted))
	c.metrics.IncCounter("reschedule.skipped", float64(result.Skipped))
}

func (c *Coordinator) handleUserCreated(ctx context.Context, user domain.User) Result {
	occurrences, errs := generator.GenerateAll(c.clk, c.registry, user)
	for _, err := range errs {
		c.logger.Warn(ctx, "policy declined to generate occurrence for new user", "user_id", user.ID, "error", err)
	}
	var result Result
	for _, occ := range occurrences {
		if err := c.store.Create(ctx, occ); err != nil {
			if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
				continue
			}
			c.logger.Error(ctx, "failed to create occurrence for new user", "user_id", user.ID, "error", err)
			continue
		}
		result.Created++
	}
	return result
}

// handleUserBirthdayChanged cancels every PENDING BIRTHDAY occurrence
// and regenerates it from the new date of birth under the user's timezone.
// Only the BIRTHDAY event type is affected; other event types (e.g.
// ANNIVERSARY) are untouched.
func (c *Coordinator) handleUserBirthdayChanged(ctx context.Context, userID string, newDOB domain.DateOfBirth, tz domain.Timezone) Result {
	return c.cancelAndRegenerate(ctx, userID, "BIRTHDAY", func(u *domain.User) {
		u.DateOfBirth = newDOB
		if tz != "" {
			u.Timezone = tz
		}
	})
}

// handleUserTimezoneChanged cancels and regenerates every PENDING
// occurrence (all event types) for the user under the new timezone,
// keeping the date of birth carried on the event so BIRTHDAY regeneration
// doesn't compute against a zero-valued one.
func (c *Coordinator) handleUserTimezoneChanged(ctx context.Context, userID string, newTZ domain.Timezone, dob domain.DateOfBirth) Result {
	return c.cancelAndRegenerate(ctx, userID, "", func(u *domain.User) {
		u.Timezone = newTZ
		if (dob != domain.DateOfBirth{}) {
			u.DateOfBirth = dob
		}
	})
}

// cancelAndRegenerate lists existing non-terminal occurrences for userID
// (optionally scoped to one eventType), cancels the PENDING ones, and
// regenerates a replacement. The base user used for regeneration is pulled
// from an existing occurrence's UserSnapshot (spec §3 Ownership) rather
// than rebuilt from scratch, so fields the triggering notification doesn't
// carry (FirstName, LastName, AnniversaryDate, ...) survive the
// regeneration instead of being silently dropped. apply overlays the
// fields the notification actually changed. Occurrences already claimed
// (PROCESSING) are left alone: the in-flight delivery is allowed to finish,
// and the next scheduled regeneration cycle will pick up the new value.
func (c *Coordinator) cancelAndRegenerate(ctx context.Context, userID string, eventType domain.EventType, apply func(*domain.User)) Result {
	var result Result

	existing, err := c.store.ListByUser(ctx, userID, eventType)
	if err != nil {
		c.logger.Error(ctx, "failed to list occurrences for reschedule", "user_id", userID, "error", err)
		return result
	}

	base := domain.User{ID: userID}
	for _, occ := range existing {
		if occ.UserSnapshot.ID != "" {
			base = occ.UserSnapshot
			break
		}
	}

	regenerateTypes := make(map[domain.EventType]bool)
	for _, occ := range existing {
		regenerateTypes[occ.EventType] = true
		if occ.Status != domain.StatusPending {
			c.logger.Warn(ctx, "skipping non-pending occurrence during reschedule", "occurrence_id", occ.ID, "status", string(occ.Status))
			result.Skipped++
			continue
		}
		expectedVersion := occ.Version
		if err := occ.CancelPending(c.clk.NowUTC(), "superseded by reschedule"); err != nil {
			c.logger.Warn(ctx, "failed to cancel superseded occurrence locally", "occurrence_id", occ.ID, "error", err)
			result.Skipped++
			continue
		}
		if err := c.store.Update(ctx, occ, expectedVersion); err != nil {
			if errors.Is(err, repository.ErrOptimisticLockConflict) {
				c.logger.Info(ctx, "occurrence claimed concurrently during reschedule, leaving it alone", "occurrence_id", occ.ID)
			} else {
				c.logger.Error(ctx, "failed to persist cancellation during reschedule", "occurrence_id", occ.ID, "error", err)
			}
			result.Skipped++
			continue
		}
		result.Canceled++
	}

	for eventType := range regenerateTypes {
		user := base
		user.ID = userID
		apply(&user)
		occ, err := generator.Generate(c.clk, c.registry, user, eventType)
		if err != nil {
			c.logger.Warn(ctx, "policy declined to regenerate occurrence", "user_id", userID, "event_type", eventType, "error", err)
			continue
		}
		if err := c.store.Create(ctx, occ); err != nil {
			if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
				continue
			}
			c.logger.Error(ctx, "failed to persist regenerated occurrence", "user_id", userID, "error", err)
			continue
		}
		result.Regenerated++
	}

	return result
}

func (c *Coordinator) handleUserDeleted(ctx context.Context, userID string) Result {
	n, err := c.store.DeleteByUser(ctx, userID)
	if err != nil {
		c.logger.Error(ctx, "failed to delete occurrences for deleted user", "user_id", userID, "error", err)
		return Result{}
	}
	return Result{Deleted: n}
}
