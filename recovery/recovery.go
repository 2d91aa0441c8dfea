// Package recovery implements the two safety nets from spec §4.6/§4.5: a
// periodic scan for PENDING occurrences the scheduler's claim loop should
// have picked up already but didn't (missed due to downtime), and a
// liveness sweep that reclaims PROCESSING occurrences whose executor
// crashed without completing the delivery transition. It also implements
// the SPEC_FULL §3a repair backstop that regenerates an occurrence for each
// user and registered event type that has no non-terminal occurrence.
package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pradok/events-scheduler-sub000/clock"
	"github.com/pradok/events-scheduler-sub000/domain"
	"github.com/pradok/events-scheduler-sub000/generator"
	"github.com/pradok/events-scheduler-sub000/policy"
	"github.com/pradok/events-scheduler-sub000/queue"
	"github.com/pradok/events-scheduler-sub000/repository"
	"github.com/pradok/events-scheduler-sub000/scheduler"
	"github.com/pradok/events-scheduler-sub000/telemetry"
)

// Config configures a Scanner.
type Config struct {
	// ScanInterval is how often both the missed-occurrence scan and the
	// liveness sweep run.
	ScanInterval time.Duration
	// MissedStaleness is how far in the past a PENDING occurrence's
	// TargetTimestampUTC must be before it's considered missed rather than
	// merely not-yet-claimed.
	MissedStaleness time.Duration
	// Lease is the lease duration applied when re-claiming a missed
	// occurrence, matching scheduler.Config.Lease.
	Lease time.Duration
	// MaxRetries bounds the retry budget applied when reclaiming expired
	// leases.
	MaxRetries int
	// BatchSize bounds how many rows a single scan round processes.
	BatchSize int
	// Topic is the queue topic re-claimed missed occurrences are published
	// to, matching scheduler.Config.Topic (the same executor consumer
	// group processes both).
	Topic string
	// RepairInterval is how often RepairMissingOccurrences runs. Zero
	// disables the repair backstop even if a UserLister is configured.
	RepairInterval time.Duration
}

// UserLister abstracts the external source of truth for which users exist,
// so RepairMissingOccurrences can find users with no occurrences at all
// without this module owning a user table.
type UserLister interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// Scanner runs the recovery loops.
type Scanner struct {
	store    repository.Store
	q        queue.Queue
	clk      clock.Clock
	registry *policy.Registry
	users    UserLister
	logger   telemetry.Logger
	metrics  telemetry.Metrics
	cfg      Config
}

// New constructs a Scanner. users may be nil if RepairMissingOccurrences is
// never called (e.g. deployments that generate occurrences purely from
// inbound UserCreated notifications) — Run skips the repair loop entirely
// in that case rather than running it as a permanent no-op.
func New(store repository.Store, q queue.Queue, clk clock.Clock, registry *policy.Registry, users UserLister, logger telemetry.Logger, metrics telemetry.Metrics, cfg Config) *Scanner {
	return &Scanner{store: store, q: q, clk: clk, registry: registry, users: users, logger: logger, metrics: metrics, cfg: cfg}
}

// Run blocks, running the liveness sweep and missed-occurrence scan every
// ScanInterval, and the repair backstop every RepairInterval (when a
// UserLister and a positive RepairInterval are configured), until ctx is
// canceled.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	var repairC <-chan time.Time
	if s.users != nil && s.cfg.RepairInterval > 0 {
		repairTicker := time.NewTicker(s.cfg.RepairInterval)
		defer repairTicker.Stop()
		repairC = repairTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweepExpiredLeases(ctx)
			s.scanMissed(ctx)
		case <-repairC:
			if n, err := s.RepairMissingOccurrences(ctx); err != nil {
				s.logger.Error(ctx, "repair backstop failed", "error", err)
			} else if n > 0 {
				s.logger.Info(ctx, "repair backstop generated missing occurrences", "count", n)
				s.metrics.IncCounter("recovery.repair.generated", float64(n))
			}
		}
	}
}

// sweepExpiredLeases implements spec §4.5's liveness sweep: PROCESSING rows
// whose lease has expired are reclaimed to PENDING (or FAILED if their
// retry budget is exhausted).
func (s *Scanner) sweepExpiredLeases(ctx context.Context) {
	now := s.clk.NowUTC()
	reclaimed, err := s.store.ReclaimExpiredLeases(ctx, now, s.cfg.MaxRetries)
	if err != nil {
		s.logger.Error(ctx, "liveness sweep failed", "error", err)
		s.metrics.IncCounter("recovery.sweep.errors", 1)
		return
	}
	if len(reclaimed) > 0 {
		s.logger.Info(ctx, "liveness sweep reclaimed expired leases", "count", len(reclaimed))
		s.metrics.IncCounter("recovery.sweep.reclaimed", float64(len(reclaimed)))
	}
}

// scanMissed implements spec §4.6: find PENDING occurrences due long enough
// ago that the scheduler's normal claim loop should already have picked
// them up, and re-run the claim path for them directly so they aren't
// silently skipped for a full claim interval.
func (s *Scanner) scanMissed(ctx context.Context) {
	now := s.clk.NowUTC()
	missed, err := s.store.FindMissed(ctx, now, s.cfg.MissedStaleness, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error(ctx, "missed-occurrence scan failed", "error", err)
		s.metrics.IncCounter("recovery.missed.errors", 1)
		return
	}
	if len(missed) == 0 {
		return
	}
	s.logger.Warn(ctx, "found missed occurrences, re-claiming", "count", len(missed))
	s.metrics.IncCounter("recovery.missed.found", float64(len(missed)))

	claimed, err := s.store.ClaimReady(ctx, now, s.cfg.Lease, len(missed))
	if err != nil {
		s.logger.Error(ctx, "re-claim of missed occurrences failed", "error", err)
		return
	}
	s.metrics.IncCounter("recovery.missed.reclaimed", float64(len(claimed)))

	for _, occ := range claimed {
		payload, err := json.Marshal(scheduler.Envelope{OccurrenceID: occ.ID, LateExecution: true})
		if err != nil {
			// Unreachable in practice (Envelope always marshals), but
			// revert the claim rather than leave the row stuck PROCESSING.
			s.revertClaim(ctx, occ)
			continue
		}
		if _, err := s.q.Publish(ctx, s.cfg.Topic, payload); err != nil {
			s.logger.Warn(ctx, "enqueue of missed occurrence failed, reverting claim to pending", "occurrence_id", occ.ID, "error", err)
			s.metrics.IncCounter("recovery.missed.enqueue_errors", 1)
			s.revertClaim(ctx, occ)
			continue
		}
		s.metrics.IncCounter("recovery.missed.enqueued", 1)
	}
}

// revertClaim mirrors scheduler.Scheduler.revertClaim: undoes a local claim
// that could not be published, so the row isn't stranded PROCESSING until
// its lease expires.
func (s *Scanner) revertClaim(ctx context.Context, occ *domain.Occurrence) {
	expectedVersion := occ.Version
	if err := occ.Unclaim(s.clk.NowUTC()); err != nil {
		s.logger.Error(ctx, "failed to revert claim locally, occurrence left processing until lease expiry", "occurrence_id", occ.ID, "error", err)
		return
	}
	if err := s.store.Update(ctx, occ, expectedVersion); err != nil {
		s.logger.Error(ctx, "failed to persist reverted claim, occurrence left processing until lease expiry", "occurrence_id", occ.ID, "error", err)
	}
}

// RepairMissingOccurrences implements the SPEC_FULL §3a backstop: for every
// user returned by UserLister that currently has zero non-terminal
// occurrences of a given event type, generate and persist one. This covers
// the case where a UserCreated notification was lost entirely (the queue
// never delivered it, or the consumer crashed before Create committed).
func (s *Scanner) RepairMissingOccurrences(ctx context.Context) (int, error) {
	if s.users == nil {
		return 0, nil
	}
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, user := range users {
		for _, eventType := range s.registry.EventTypes() {
			existing, err := s.store.ListByUser(ctx, user.ID, eventType)
			if err != nil {
				s.logger.Error(ctx, "repair scan failed to list existing occurrences", "user_id", user.ID, "error", err)
				continue
			}
			if len(existing) > 0 {
				continue
			}
			occ, err := generator.Generate(s.clk, s.registry, user, eventType)
			if err != nil {
				// Policy declined (e.g. AnniversaryPolicy with no
				// AnniversaryDate set): not an error, just nothing to repair.
				continue
			}
			if err := s.store.Create(ctx, occ); err != nil {
				if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
					continue
				}
				s.logger.Error(ctx, "repair scan failed to create occurrence", "user_id", user.ID, "error", err)
				continue
			}
			repaired++
		}
	}
	return repaired, nil
}
