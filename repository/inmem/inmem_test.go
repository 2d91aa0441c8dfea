package inmem_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pradok/events-scheduler-sub000/domain"
	"github.com/pradok/events-scheduler-sub000/repository"
	"github.com/pradok/events-scheduler-sub000/repository/inmem"
)

func newOccurrence(id string, due time.Time) *domain.Occurrence {
	user := domain.User{ID: "user-1", Timezone: "UTC"}
	return domain.NewPending(id, user, "BIRTHDAY", due, due, domain.IdempotencyKey(id+"-key"), nil, "email", due)
}

func TestStore_CreateRejectsDuplicateIdempotencyKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := inmem.New()

	due := time.Now().UTC()
	occ := newOccurrence("occ-1", due)
	require.NoError(t, s.Create(ctx, occ))

	dup := newOccurrence("occ-2", due)
	dup.IdempotencyKey = occ.IdempotencyKey
	err := s.Create(ctx, dup)
	assert.ErrorIs(t, err, repository.ErrDuplicateIdempotencyKey)
}

func TestStore_UpdateEnforcesOptimisticLock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := inmem.New()

	due := time.Now().UTC()
	occ := newOccurrence("occ-1", due)
	require.NoError(t, s.Create(ctx, occ))

	require.NoError(t, occ.MarkProcessing(due, due.Add(time.Minute)))
	err := s.Update(ctx, occ, 99) // wrong expected version
	assert.ErrorIs(t, err, repository.ErrOptimisticLockConflict)

	require.NoError(t, s.Update(ctx, occ, 1))
	reread, err := s.Get(ctx, "occ-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, reread.Status)
}

func TestStore_ClaimReady_OnlyDueRowsAndRespectsLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := inmem.New()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Create(ctx, newOccurrence("due-1", now.Add(-time.Hour))))
	require.NoError(t, s.Create(ctx, newOccurrence("due-2", now.Add(-time.Minute))))
	require.NoError(t, s.Create(ctx, newOccurrence("not-due", now.Add(time.Hour))))

	claimed, err := s.ClaimReady(ctx, now, 5*time.Minute, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "due-1", claimed[0].ID, "earliest-due row claimed first")
	assert.Equal(t, domain.StatusProcessing, claimed[0].Status)
	assert.NotNil(t, claimed[0].LeaseExpiresAt)

	claimed2, err := s.ClaimReady(ctx, now, 5*time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed2, 1)
	assert.Equal(t, "due-2", claimed2[0].ID)
}

// TestStore_ClaimReady_ConcurrentClaimersNeverDoubleClaim exercises spec §8's
// invariant #1: under 100 concurrent claimers racing over a fixed pool of due
// occurrences, the union of claimed rows across all callers has no
// duplicates and its size never exceeds the number of due rows.
func TestStore_ClaimReady_ConcurrentClaimersNeverDoubleClaim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := inmem.New()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	const dueCount = 50
	for i := 0; i < dueCount; i++ {
		require.NoError(t, s.Create(ctx, newOccurrence(idFor(i), now.Add(-time.Minute))))
	}

	const claimers = 100
	var wg sync.WaitGroup
	results := make(chan []*domain.Occurrence, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.ClaimReady(ctx, now, 5*time.Minute, 1)
			require.NoError(t, err)
			results <- claimed
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	total := 0
	for r := range results {
		for _, occ := range r {
			require.False(t, seen[occ.ID], "occurrence %s claimed more than once", occ.ID)
			seen[occ.ID] = true
			total++
		}
	}
	assert.Equal(t, dueCount, total)
}

func TestStore_ReclaimExpiredLeases(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := inmem.New()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	occ := newOccurrence("occ-1", now.Add(-time.Hour))
	require.NoError(t, s.Create(ctx, occ))
	claimed, err := s.ClaimReady(ctx, now.Add(-10*time.Minute), time.Minute, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	reclaimed, err := s.ReclaimExpiredLeases(ctx, now, 3)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, domain.StatusPending, reclaimed[0].Status)
	assert.Equal(t, 1, reclaimed[0].RetryCount)
}

func TestStore_DeleteByUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := inmem.New()

	now := time.Now().UTC()
	require.NoError(t, s.Create(ctx, newOccurrence("occ-1", now)))
	occ2 := newOccurrence("occ-2", now)
	occ2.UserID = "other-user"
	require.NoError(t, s.Create(ctx, occ2))

	n, err := s.DeleteByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, "occ-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.Get(ctx, "occ-2")
	assert.NoError(t, err)
}

func idFor(i int) string {
	return "occ-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}
