// Command scheduler runs the event-scheduling pipeline: the claim loop, the
// delivery executor, the recovery scanner, and the user-lifecycle
// reschedule coordinator, all sharing one Postgres-backed store and one
// Redis-backed queue.
//
// # Configuration
//
// Environment variables (see config.Config for the full list and
// defaults):
//
//	SCHEDULER_POSTGRES_DSN              - Postgres connection string
//	SCHEDULER_REDIS_ADDR                - Redis address
//	SCHEDULER_BIRTHDAY_DELIVERY_TIME     - local delivery time, "HH:MM:SS"
//	SCHEDULER_FAST_TEST_DELIVERY_OFFSET  - test-only: birthday fires at now + offset
//	SCHEDULER_EXECUTOR_MAX_RETRIES       - delivery retry budget
//	SCHEDULER_RETENTION_DAYS             - completed-row retention window
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"goa.design/clue/log"

	"github.com/pradok/events-scheduler-sub000/clock"
	"github.com/pradok/events-scheduler-sub000/config"
	"github.com/pradok/events-scheduler-sub000/executor"
	"github.com/pradok/events-scheduler-sub000/policy"
	"github.com/pradok/events-scheduler-sub000/queue/pulsequeue"
	"github.com/pradok/events-scheduler-sub000/recovery"
	"github.com/pradok/events-scheduler-sub000/repository/postgres"
	"github.com/pradok/events-scheduler-sub000/reschedule"
	"github.com/pradok/events-scheduler-sub000/scheduler"
	"github.com/pradok/events-scheduler-sub000/telemetry"
)

func main() {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if os.Getenv("SCHEDULER_DEBUG") != "" {
		ctx = log.Context(ctx, log.WithDebug())
	}

	if err := run(ctx); err != nil {
		log.Fatal(ctx, err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.Print(ctx, log.KV{K: "environment", V: cfg.Environment})

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "close redis"})
		}
	}()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}

	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()
	tracer := telemetry.NewOTelTracer(otel.Tracer("github.com/pradok/events-scheduler-sub000"))

	store := postgres.New(pool, logger)

	q, err := pulsequeue.New(pulsequeue.Options{
		Redis:            rdb,
		StreamMaxLen:     cfg.QueueStreamMaxLen,
		SubscriberBuffer: cfg.QueueSubscriberBuffer,
	})
	if err != nil {
		return fmt.Errorf("construct queue: %w", err)
	}

	registry := policy.NewRegistry()
	birthdayPolicy, err := policy.NewBirthdayPolicy(cfg.BirthdayDeliveryTime, cfg.FastTestDeliveryOffset)
	if err != nil {
		return fmt.Errorf("construct birthday policy: %w", err)
	}
	registry.Register("BIRTHDAY", birthdayPolicy)
	anniversaryPolicy, err := policy.NewAnniversaryPolicy(cfg.AnniversaryDeliveryTime)
	if err != nil {
		return fmt.Errorf("construct anniversary policy: %w", err)
	}
	registry.Register("ANNIVERSARY", anniversaryPolicy)

	clk := clock.Real{}

	sched := scheduler.New(store, q, clk, logger, metrics, tracer, scheduler.Config{
		ClaimInterval: cfg.SchedulerClaimInterval,
		Lease:         cfg.SchedulerLease,
		BatchSize:     cfg.SchedulerBatchSize,
		Topic:         cfg.QueueTopic,
	})

	sink := executor.NewHTTPSink(http.DefaultClient, cfg.ChannelURLs, cfg.ExecutorHTTPTimeout)
	exec := executor.New(store, q, sink, clk, registry, logger, metrics, tracer, executor.Config{
		Topic:         cfg.QueueTopic,
		ConsumerGroup: cfg.ExecutorConsumerGroup,
		MaxRetries:    cfg.ExecutorMaxRetries,
		RateLimit:     cfg.ExecutorRateLimit,
		RateBurst:     cfg.ExecutorRateBurst,
	})

	// No UserLister is wired in: user records live outside this module's
	// scope (see Non-goals), so RepairMissingOccurrences stays a no-op
	// here. Deployments that own a user directory can satisfy
	// recovery.UserLister and pass it in to enable the backstop.
	scan := recovery.New(store, q, clk, registry, nil, logger, metrics, recovery.Config{
		ScanInterval:    cfg.RecoveryScanInterval,
		MissedStaleness: cfg.RecoveryMissedStaleness,
		Lease:           cfg.SchedulerLease,
		MaxRetries:      cfg.ExecutorMaxRetries,
		BatchSize:       cfg.SchedulerBatchSize,
		Topic:           cfg.QueueTopic,
		RepairInterval:  cfg.RecoveryRepairInterval,
	})

	coord := reschedule.New(store, q, clk, registry, logger, metrics, reschedule.Config{
		Topic:         cfg.EventsTopic,
		ConsumerGroup: cfg.RescheduleConsumerGroup,
	})

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 5)
	go func() { errc <- sched.Run(runCtx) }()
	go func() { errc <- exec.Run(runCtx) }()
	go func() { errc <- scan.Run(runCtx) }()
	go func() { errc <- coord.Run(runCtx) }()
	go func() { errc <- pruneLoop(runCtx, store, clk, cfg.RetentionDays, cfg.RetentionScanInterval, logger) }()

	<-runCtx.Done()
	log.Print(ctx, log.KV{K: "msg", V: "shutting down"})

	for i := 0; i < 5; i++ {
		if err := <-errc; err != nil && runCtx.Err() == nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "component exited with error"})
		}
	}
	return nil
}

// pruneLoop periodically removes COMPLETED occurrences executed more than
// retentionDays ago (SPEC_FULL §3a); FAILED occurrences are kept. A zero retentionDays disables pruning
// entirely.
func pruneLoop(ctx context.Context, store *postgres.Store, clk clock.Clock, retentionDays int, interval time.Duration, logger telemetry.Logger) error {
	if retentionDays <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	window := time.Duration(retentionDays) * 24 * time.Hour
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := store.PruneCompleted(ctx, clk.NowUTC().Add(-window))
			if err != nil {
				logger.Error(ctx, "prune completed occurrences failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info(ctx, "pruned completed occurrences", "count", n)
			}
		}
	}
}
