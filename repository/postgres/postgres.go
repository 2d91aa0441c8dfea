// Package postgres is the production repository.Store backend: pgx/v5 over
// a pgxpool.Pool, with FOR UPDATE SKIP LOCKED claiming so that multiple
// scheduler replicas never pick up the same due occurrence twice. Grounded
// on the pgx/v5 + FOR UPDATE SKIP LOCKED claim pattern used for distributed
// job scheduling elsewhere in the retrieved corpus.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pradok/events-scheduler-sub000/domain"
	"github.com/pradok/events-scheduler-sub000/repository"
	"github.com/pradok/events-scheduler-sub000/telemetry"
)

const uniqueViolation = "23505"

// Store is a repository.Store backed by PostgreSQL. The expected schema is
// a single "occurrences" table; see schema.sql in this package for the
// column list (every field on domain.Occurrence, plus the implicit
// primary key and a unique index on (user_id, idempotency_key)).
type Store struct {
	pool   *pgxpool.Pool
	logger telemetry.Logger
}

// New constructs a Store backed by pool.
func New(pool *pgxpool.Pool, logger telemetry.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Create implements repository.Store.
func (s *Store) Create(ctx context.Context, occ *domain.Occurrence) error {
	snapshot, err := json.Marshal(occ.UserSnapshot)
	if err != nil {
		return fmt.Errorf("%w: marshal user snapshot: %v", repository.ErrFatalStorage, err)
	}

	const query = `
		INSERT INTO occurrences (
			id, user_id, event_type, status,
			target_timestamp_utc, target_timestamp_local, target_timezone,
			user_snapshot, idempotency_key, delivery_payload, channel,
			version, retry_count, lease_expires_at, executed_at, failure_reason,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)`

	_, err = s.pool.Exec(ctx, query,
		occ.ID, occ.UserID, string(occ.EventType), string(occ.Status),
		occ.TargetTimestampUTC, occ.TargetTimestampLocal, string(occ.TargetTimezone),
		snapshot, string(occ.IdempotencyKey), occ.DeliveryPayload, occ.Channel,
		occ.Version, occ.RetryCount, occ.LeaseExpiresAt, occ.ExecutedAt, occ.FailureReason,
		occ.CreatedAt, occ.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrDuplicateIdempotencyKey
		}
		return classifyError(err)
	}
	return nil
}

// Get implements repository.Store.
func (s *Store) Get(ctx context.Context, id string) (*domain.Occurrence, error) {
	const query = `
		SELECT ` + selectColumns + `
		FROM occurrences WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	occ, err := scanOccurrence(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, classifyError(err)
	}
	return occ, nil
}

// Update implements repository.Store.
func (s *Store) Update(ctx context.Context, occ *domain.Occurrence, expectedVersion int) error {
	const query = `
		UPDATE occurrences SET
			status = $3, version = $4, retry_count = $5,
			lease_expires_at = $6, executed_at = $7, failure_reason = $8,
			updated_at = $9
		WHERE id = $1 AND version = $2`

	tag, err := s.pool.Exec(ctx, query,
		occ.ID, expectedVersion,
		string(occ.Status), occ.Version, occ.RetryCount,
		occ.LeaseExpiresAt, occ.ExecutedAt, occ.FailureReason,
		occ.UpdatedAt,
	)
	if err != nil {
		return classifyError(err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, occ.ID); getErr != nil {
			return getErr
		}
		return repository.ErrOptimisticLockConflict
	}
	return nil
}

// ClaimReady implements repository.Store using FOR UPDATE SKIP LOCKED so
// concurrent replicas never contend on, or double-claim, the same row.
func (s *Store) ClaimReady(ctx context.Context, asOf time.Time, lease time.Duration, limit int) ([]*domain.Occurrence, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, classifyError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT `+selectColumns+`
		FROM occurrences
		WHERE status = 'PENDING' AND target_timestamp_utc <= $1
		ORDER BY target_timestamp_utc ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, asOf, limit)
	if err != nil {
		return nil, classifyError(err)
	}

	var candidates []*domain.Occurrence
	for rows.Next() {
		occ, scanErr := scanOccurrence(rows)
		if scanErr != nil {
			rows.Close()
			return nil, classifyError(scanErr)
		}
		candidates = append(candidates, occ)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	leaseUntil := asOf.Add(lease)
	claimed := make([]*domain.Occurrence, 0, len(candidates))
	for _, occ := range candidates {
		expectedVersion := occ.Version
		if err := occ.MarkProcessing(asOf, leaseUntil); err != nil {
			s.logger.Warn(ctx, "skipping occurrence that failed local state transition during claim",
				"occurrence_id", occ.ID, "error", err)
			continue
		}
		if _, execErr := tx.Exec(ctx, `
			UPDATE occurrences SET status = $3, version = $4, lease_expires_at = $5, updated_at = $6
			WHERE id = $1 AND version = $2`,
			occ.ID, expectedVersion, string(occ.Status), occ.Version, occ.LeaseExpiresAt, occ.UpdatedAt,
		); execErr != nil {
			return nil, classifyError(execErr)
		}
		claimed = append(claimed, occ)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classifyError(err)
	}
	return claimed, nil
}

// ReclaimExpiredLeases implements repository.Store.
func (s *Store) ReclaimExpiredLeases(ctx context.Context, asOf time.Time, maxRetries int) ([]*domain.Occurrence, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, classifyError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT `+selectColumns+`
		FROM occurrences
		WHERE status = 'PROCESSING' AND lease_expires_at <= $1
		FOR UPDATE SKIP LOCKED`, asOf)
	if err != nil {
		return nil, classifyError(err)
	}

	var candidates []*domain.Occurrence
	for rows.Next() {
		occ, scanErr := scanOccurrence(rows)
		if scanErr != nil {
			rows.Close()
			return nil, classifyError(scanErr)
		}
		candidates = append(candidates, occ)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	reclaimed := make([]*domain.Occurrence, 0, len(candidates))
	for _, occ := range candidates {
		expectedVersion := occ.Version
		if err := occ.MarkRetryPending(asOf, maxRetries); err != nil {
			if failErr := occ.MarkFailed(asOf, "lease expired, retry budget exhausted", true); failErr != nil {
				return nil, failErr
			}
		}
		if _, execErr := tx.Exec(ctx, `
			UPDATE occurrences SET status = $3, version = $4, retry_count = $5,
				lease_expires_at = $6, failure_reason = $7, updated_at = $8
			WHERE id = $1 AND version = $2`,
			occ.ID, expectedVersion,
			string(occ.Status), occ.Version, occ.RetryCount,
			occ.LeaseExpiresAt, occ.FailureReason, occ.UpdatedAt,
		); execErr != nil {
			return nil, classifyError(execErr)
		}
		reclaimed = append(reclaimed, occ)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classifyError(err)
	}
	return reclaimed, nil
}

// FindMissed implements repository.Store.
func (s *Store) FindMissed(ctx context.Context, asOf time.Time, staleness time.Duration, limit int) ([]*domain.Occurrence, error) {
	const query = `
		SELECT ` + selectColumns + `
		FROM occurrences
		WHERE status = 'PENDING' AND target_timestamp_utc < $1
		ORDER BY target_timestamp_utc ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, asOf.Add(-staleness), limit)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var found []*domain.Occurrence
	for rows.Next() {
		occ, scanErr := scanOccurrence(rows)
		if scanErr != nil {
			return nil, classifyError(scanErr)
		}
		found = append(found, occ)
	}
	return found, classifyError(rows.Err())
}

// ListByUser implements repository.Store.
func (s *Store) ListByUser(ctx context.Context, userID string, eventType domain.EventType) ([]*domain.Occurrence, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM occurrences
		WHERE user_id = $1 AND status NOT IN ('COMPLETED', 'FAILED')`
	args := []any{userID}
	if eventType != "" {
		query += ` AND event_type = $2`
		args = append(args, string(eventType))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var found []*domain.Occurrence
	for rows.Next() {
		occ, scanErr := scanOccurrence(rows)
		if scanErr != nil {
			return nil, classifyError(scanErr)
		}
		found = append(found, occ)
	}
	return found, classifyError(rows.Err())
}

// DeleteByUser implements repository.Store. SPEC_FULL §3a resolves a
// UserDeleted notification to a hard delete, not a soft cancel.
func (s *Store) DeleteByUser(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM occurrences WHERE user_id = $1`, userID)
	if err != nil {
		return 0, classifyError(err)
	}
	return int(tag.RowsAffected()), nil
}

// CountByStatus implements repository.Store.
func (s *Store) CountByStatus(ctx context.Context, status domain.Status) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM occurrences WHERE status = $1`, string(status)).Scan(&n)
	if err != nil {
		return 0, classifyError(err)
	}
	return n, nil
}

// PruneCompleted deletes COMPLETED occurrences older than retention, per
// SPEC_FULL §3a's supplemented retention policy. Returns the number of rows
// removed.
func (s *Store) PruneCompleted(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM occurrences WHERE status = 'COMPLETED' AND executed_at < $1`, olderThan)
	if err != nil {
		return 0, classifyError(err)
	}
	return int(tag.RowsAffected()), nil
}

const selectColumns = `
	id, user_id, event_type, status,
	target_timestamp_utc, target_timestamp_local, target_timezone,
	user_snapshot, idempotency_key, delivery_payload, channel,
	version, retry_count, lease_expires_at, executed_at, failure_reason,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOccurrence(row rowScanner) (*domain.Occurrence, error) {
	var occ domain.Occurrence
	var eventType, status, timezone string
	var snapshot []byte
	err := row.Scan(
		&occ.ID, &occ.UserID, &eventType, &status,
		&occ.TargetTimestampUTC, &occ.TargetTimestampLocal, &timezone,
		&snapshot, &occ.IdempotencyKey, &occ.DeliveryPayload, &occ.Channel,
		&occ.Version, &occ.RetryCount, &occ.LeaseExpiresAt, &occ.ExecutedAt, &occ.FailureReason,
		&occ.CreatedAt, &occ.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	occ.EventType = domain.EventType(eventType)
	occ.Status = domain.Status(status)
	occ.TargetTimezone = domain.Timezone(timezone)
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &occ.UserSnapshot); err != nil {
			return nil, fmt.Errorf("%w: unmarshal user snapshot: %v", repository.ErrFatalStorage, err)
		}
	}
	return &occ, nil
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return repository.ErrDuplicateIdempotencyKey
		default:
			return fmt.Errorf("%w: %s", repository.ErrFatalStorage, pgErr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("%w: %v", repository.ErrTransientStorage, err)
	}
	return fmt.Errorf("%w: %v", repository.ErrFatalStorage, err)
}
