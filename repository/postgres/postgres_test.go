package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/pradok/events-scheduler-sub000/repository"
)

// TestClassifyError_MapsPgErrorsToSentinels exercises the pure error
// classification logic; the pool-backed methods themselves need a live
// PostgreSQL instance and are covered by repository/inmem's equivalent
// semantics instead (see DESIGN.md).
func TestClassifyError_MapsPgErrorsToSentinels(t *testing.T) {
	t.Parallel()

	t.Run("unique violation maps to duplicate idempotency key", func(t *testing.T) {
		err := classifyError(&pgconn.PgError{Code: uniqueViolation, Message: "duplicate"})
		assert.ErrorIs(t, err, repository.ErrDuplicateIdempotencyKey)
	})

	t.Run("other pg errors map to fatal storage", func(t *testing.T) {
		err := classifyError(&pgconn.PgError{Code: "42601", Message: "syntax error"})
		assert.ErrorIs(t, err, repository.ErrFatalStorage)
	})

	t.Run("context deadline maps to transient storage", func(t *testing.T) {
		err := classifyError(context.DeadlineExceeded)
		assert.ErrorIs(t, err, repository.ErrTransientStorage)
	})

	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, classifyError(nil))
	})
}

func TestScanOccurrence_NoRowsPassesThrough(t *testing.T) {
	t.Parallel()
	_, err := scanOccurrence(fakeRow{err: pgx.ErrNoRows})
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

type fakeRow struct{ err error }

func (f fakeRow) Scan(dest ...any) error { return f.err }
