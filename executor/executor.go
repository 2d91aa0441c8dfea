// Package executor implements the delivery consumer loop from spec §4.5:
// consume claimed occurrence IDs off the queue, deliver each via a Sink,
// and transition the occurrence to COMPLETED, back to PENDING for retry, or
// to FAILED depending on the outcome.
package executor

import (
	"context"
	"encoding/json"
	"errors"

	"golang.org/x/time/rate"

	"github.com/pradok/events-scheduler-sub000/clock"
	"github.com/pradok/events-scheduler-sub000/domain"
	"github.com/pradok/events-scheduler-sub000/generator"
	"github.com/pradok/events-scheduler-sub000/policy"
	"github.com/pradok/events-scheduler-sub000/queue"
	"github.com/pradok/events-scheduler-sub000/repository"
	"github.com/pradok/events-scheduler-sub000/telemetry"
)

// Envelope mirrors scheduler.Envelope; duplicated here rather than imported
// to keep executor decoupled from scheduler's package (only the wire shape
// is shared).
type Envelope struct {
	OccurrenceID string `json:"occurrenceId"`
	// LateExecution mirrors scheduler.Envelope's flag. It is decoded but
	// not read by the executor: delivery is the same either way.
	LateExecution bool `json:"lateExecution,omitempty"`
}

// Config configures an Executor.
type Config struct {
	// Topic is the queue topic claimed occurrences are consumed from.
	Topic string
	// ConsumerGroup names this executor's consumer group.
	ConsumerGroup string
	// MaxRetries bounds retry attempts before an occurrence is marked
	// FAILED (spec §3, overridable; see domain.DefaultMaxRetries).
	MaxRetries int
	// RateLimit bounds sustained deliveries per second across this
	// executor instance. Zero means unlimited.
	RateLimit float64
	// RateBurst bounds the token bucket burst size. Ignored if RateLimit
	// is zero.
	RateBurst int
}

// Executor consumes claimed occurrences and delivers them.
type Executor struct {
	store    repository.Store
	q        queue.Queue
	sink     Sink
	clk      clock.Clock
	registry *policy.Registry
	logger   telemetry.Logger
	metrics  telemetry.Metrics
	tracer   telemetry.Tracer
	cfg      Config
	limiter  *rate.Limiter
}

// New constructs an Executor. registry is used to generate the next
// occurrence in the per-user per-type serial chain once the current one
// reaches COMPLETED (spec §4.5 step 4, §5).
func New(store repository.Store, q queue.Queue, sink Sink, clk clock.Clock, registry *policy.Registry, logger telemetry.Logger, metrics telemetry.Metrics, tracer telemetry.Tracer, cfg Config) *Executor {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = domain.DefaultMaxRetries
	}
	return &Executor{store: store, q: q, sink: sink, clk: clk, registry: registry, logger: logger, metrics: metrics, tracer: tracer, cfg: cfg, limiter: limiter}
}

// Run blocks, consuming and delivering occurrences until ctx is canceled or
// the subscription closes.
func (e *Executor) Run(ctx context.Context) error {
	msgs, cancel, err := e.q.Subscribe(ctx, e.cfg.Topic, e.cfg.ConsumerGroup)
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
			e.handle(ctx, msg)
		}
	}
}

func (e *Executor) handle(ctx context.Context, msg queue.Message) {
	ctx, span := e.tracer.Start(ctx, "executor.handle")
	defer span.End()

	var env Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		e.logger.Error(ctx, "dropping malformed executor message", "error", err)
		_ = msg.Ack(ctx)
		return
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return
		}
	}

	occ, err := e.store.Get(ctx, env.OccurrenceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Deleted (e.g. UserDeleted) between claim and delivery.
			_ = msg.Ack(ctx)
			return
		}
		e.logger.Error(ctx, "failed to load occurrence for delivery", "occurrence_id", env.OccurrenceID, "error", err)
		return
	}

	if occ.Status != domain.StatusProcessing {
		// Someone else already moved this row on (reschedule coordinator,
		// a duplicate delivery from a redelivered message). Nothing to do.
		_ = msg.Ack(ctx)
		return
	}

	e.deliverAndResolve(ctx, occ)
	_ = msg.Ack(ctx)
}

func (e *Executor) deliverAndResolve(ctx context.Context, occ *domain.Occurrence) {
	expectedVersion := occ.Version
	now := e.clk.NowUTC()
	completed := false

	deliverErr := e.sink.Deliver(ctx, occ)
	if deliverErr == nil {
		if err := occ.MarkCompleted(now); err != nil {
			e.logger.Error(ctx, "local completion transition failed", "occurrence_id", occ.ID, "error", err)
			return
		}
		completed = true
		e.metrics.IncCounter("executor.delivered", 1)
	} else {
		var permanent *PermanentError
		if errors.As(deliverErr, &permanent) {
			if err := occ.MarkFailed(now, deliverErr.Error(), false); err != nil {
				e.logger.Error(ctx, "local permanent-failure transition failed", "occurrence_id", occ.ID, "error", err)
				return
			}
			e.metrics.IncCounter("executor.failed.permanent", 1)
		} else if err := occ.MarkRetryPending(now, e.cfg.MaxRetries); err != nil {
			if errors.Is(err, domain.ErrRetryBudgetExhausted) {
				if failErr := occ.MarkFailed(now, deliverErr.Error(), true); failErr != nil {
					e.logger.Error(ctx, "local retry-exhausted transition failed", "occurrence_id", occ.ID, "error", failErr)
					return
				}
				e.metrics.IncCounter("executor.failed.exhausted", 1)
			} else {
				e.logger.Error(ctx, "local retry transition failed", "occurrence_id", occ.ID, "error", err)
				return
			}
		} else {
			e.metrics.IncCounter("executor.retried", 1)
		}
	}

	if err := e.store.Update(ctx, occ, expectedVersion); err != nil {
		if errors.Is(err, repository.ErrOptimisticLockConflict) {
			// Someone else mutated this occurrence concurrently (e.g. the
			// reschedule coordinator canceled it mid-delivery). Reload and
			// re-evaluate rather than clobbering their write.
			e.reevaluateAfterConflict(ctx, occ.ID)
			return
		}
		e.logger.Error(ctx, "failed to persist delivery outcome", "occurrence_id", occ.ID, "error", err)
		return
	}

	if completed {
		e.generateNext(ctx, occ)
	}
}

// generateNext produces and persists the successor occurrence in the
// per-user per-type serial chain once occ has durably reached COMPLETED.
// occ.UserSnapshot supplies the user fields directly, so this needs no
// external user-lookup collaborator. A duplicate idempotency key means
// another writer (e.g. the repair backstop) already created the same next
// instant and is swallowed rather than logged as an error.
func (e *Executor) generateNext(ctx context.Context, occ *domain.Occurrence) {
	next, err := generator.Generate(e.clk, e.registry, occ.UserSnapshot, occ.EventType)
	if err != nil {
		e.logger.Warn(ctx, "policy declined to generate next occurrence", "occurrence_id", occ.ID, "user_id", occ.UserID, "error", err)
		return
	}
	if err := e.store.Create(ctx, next); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
			return
		}
		e.logger.Error(ctx, "failed to persist next occurrence", "occurrence_id", occ.ID, "user_id", occ.UserID, "error", err)
		return
	}
	e.metrics.IncCounter("executor.next_generated", 1)
}

// reevaluateAfterConflict reloads the occurrence after an optimistic-lock
// conflict and logs the outcome; there is no further local transition to
// apply since another writer already moved the row to its current state.
func (e *Executor) reevaluateAfterConflict(ctx context.Context, id string) {
	current, err := e.store.Get(ctx, id)
	if err != nil {
		e.logger.Warn(ctx, "optimistic lock conflict, reload failed", "occurrence_id", id, "error", err)
		return
	}
	e.logger.Info(ctx, "optimistic lock conflict resolved by reload", "occurrence_id", id, "status", string(current.Status))
}
