// Package scheduler implements the periodic claim loop from spec §4.4: at a
// fixed interval, atomically claim due PENDING occurrences and hand them to
// the executor via queue.Queue. Designed to run as one goroutine per
// scheduler replica; repository.Store.ClaimReady's SKIP LOCKED semantics
// make horizontal scale-out safe without any coordination between
// replicas.
package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pradok/events-scheduler-sub000/clock"
	"github.com/pradok/events-scheduler-sub000/domain"
	"github.com/pradok/events-scheduler-sub000/queue"
	"github.com/pradok/events-scheduler-sub000/repository"
	"github.com/pradok/events-scheduler-sub000/telemetry"
)

// Envelope is the payload published to Config.Topic for each claimed
// occurrence. The executor looks the occurrence back up by ID rather than
// trusting the queued copy, so the envelope only needs to carry the ID plus
// the late-execution signal from spec §4.6/§8 Scenario F, which has no
// other way to reach the executor once the row is reloaded fresh.
type Envelope struct {
	OccurrenceID string `json:"occurrenceId"`
	// LateExecution is true when this occurrence was claimed by the
	// recovery scanner's missed-occurrence sweep rather than the
	// scheduler's on-time claim loop.
	LateExecution bool `json:"lateExecution,omitempty"`
}

// Config configures a Scheduler.
type Config struct {
	// ClaimInterval is how often the claim loop polls for due occurrences.
	ClaimInterval time.Duration
	// Lease is how long a claimed occurrence is protected from recovery's
	// liveness sweep, per spec §4.3/§4.5.
	Lease time.Duration
	// BatchSize bounds how many occurrences a single claim round takes.
	BatchSize int
	// Topic is the queue topic claimed occurrences are published to.
	Topic string
}

// Scheduler runs the periodic claim loop.
type Scheduler struct {
	store   repository.Store
	q       queue.Queue
	clk     clock.Clock
	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer
	cfg     Config
}

// New constructs a Scheduler.
func New(store repository.Store, q queue.Queue, clk clock.Clock, logger telemetry.Logger, metrics telemetry.Metrics, tracer telemetry.Tracer, cfg Config) *Scheduler {
	return &Scheduler{store: store, q: q, clk: clk, logger: logger, metrics: metrics, tracer: tracer, cfg: cfg}
}

// Run blocks, claiming due occurrences every ClaimInterval until ctx is
// canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.claimOnce(ctx)
		}
	}
}

// claimOnce runs a single claim-and-enqueue round. Errors are logged and
// counted, not returned, so a transient storage or queue hiccup doesn't
// kill the loop.
func (s *Scheduler) claimOnce(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "scheduler.claim")
	defer span.End()

	now := s.clk.NowUTC()
	claimed, err := s.store.ClaimReady(ctx, now, s.cfg.Lease, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error(ctx, "claim round failed", "error", err)
		s.metrics.IncCounter("scheduler.claim.errors", 1)
		span.RecordError(err)
		return
	}
	s.metrics.RecordGauge("scheduler.claim.batch_size", float64(len(claimed)))

	for _, occ := range claimed {
		payload, err := json.Marshal(Envelope{OccurrenceID: occ.ID})
		if err != nil {
			// Unreachable in practice (Envelope always marshals), but
			// revert the claim rather than leave the row stuck PROCESSING.
			s.revertClaim(ctx, occ)
			continue
		}
		if _, err := s.q.Publish(ctx, s.cfg.Topic, payload); err != nil {
			s.logger.Warn(ctx, "enqueue failed, reverting claim to pending", "occurrence_id", occ.ID, "error", err)
			s.metrics.IncCounter("scheduler.enqueue.errors", 1)
			s.revertClaim(ctx, occ)
			continue
		}
		s.metrics.IncCounter("scheduler.claimed", 1)
	}
}

func (s *Scheduler) revertClaim(ctx context.Context, occ *domain.Occurrence) {
	expectedVersion := occ.Version
	if err := occ.Unclaim(s.clk.NowUTC()); err != nil {
		s.logger.Error(ctx, "failed to revert claim locally, occurrence left processing until lease expiry", "occurrence_id", occ.ID, "error", err)
		return
	}
	if err := s.store.Update(ctx, occ, expectedVersion); err != nil {
		s.logger.Error(ctx, "failed to persist reverted claim, occurrence left processing until lease expiry", "occurrence_id", occ.ID, "error", err)
	}
}
