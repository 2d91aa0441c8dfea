// Package inmem provides an in-memory repository.Store implementation for
// testing and local development. All operations are thread-safe via a
// single sync.Mutex, with no persistence across process restarts. Production
// deployments use repository/postgres.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pradok/events-scheduler-sub000/domain"
	"github.com/pradok/events-scheduler-sub000/repository"
)

// Store implements repository.Store in memory. Records are defensively
// copied on read and write to prevent callers from mutating stored state
// through a returned pointer.
type Store struct {
	mu            sync.Mutex
	occurrences   map[string]*domain.Occurrence // by ID
	idempotentKey map[string]string             // userID|idempotencyKey -> occurrence ID
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		occurrences:   make(map[string]*domain.Occurrence),
		idempotentKey: make(map[string]string),
	}
}

func idemKey(userID string, key domain.IdempotencyKey) string {
	return userID + "|" + string(key)
}

func clone(o *domain.Occurrence) *domain.Occurrence {
	c := *o
	if o.LeaseExpiresAt != nil {
		t := *o.LeaseExpiresAt
		c.LeaseExpiresAt = &t
	}
	if o.ExecutedAt != nil {
		t := *o.ExecutedAt
		c.ExecutedAt = &t
	}
	if o.DeliveryPayload != nil {
		c.DeliveryPayload = append([]byte(nil), o.DeliveryPayload...)
	}
	return &c
}

// Create implements repository.Store.
func (s *Store) Create(_ context.Context, occ *domain.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := idemKey(occ.UserID, occ.IdempotencyKey)
	if _, exists := s.idempotentKey[k]; exists {
		return repository.ErrDuplicateIdempotencyKey
	}
	s.occurrences[occ.ID] = clone(occ)
	s.idempotentKey[k] = occ.ID
	return nil
}

// Get implements repository.Store.
func (s *Store) Get(_ context.Context, id string) (*domain.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.occurrences[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(o), nil
}

// Update implements repository.Store.
func (s *Store) Update(_ context.Context, occ *domain.Occurrence, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.occurrences[occ.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return repository.ErrOptimisticLockConflict
	}
	s.occurrences[occ.ID] = clone(occ)
	return nil
}

// ClaimReady implements repository.Store. Because everything happens under
// a single mutex, "no two concurrent callers receive the same row" is
// trivially satisfied: the claiming scan and the PROCESSING transition
// happen atomically with respect to every other Store method.
func (s *Store) ClaimReady(_ context.Context, asOf time.Time, lease time.Duration, limit int) ([]*domain.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*domain.Occurrence, 0)
	for _, o := range s.occurrences {
		if o.Status == domain.StatusPending && !o.TargetTimestampUTC.After(asOf) {
			candidates = append(candidates, o)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].TargetTimestampUTC.Before(candidates[j].TargetTimestampUTC)
	})

	claimed := make([]*domain.Occurrence, 0, limit)
	for _, o := range candidates {
		if len(claimed) >= limit {
			break
		}
		leaseUntil := asOf.Add(lease)
		if err := o.MarkProcessing(asOf, leaseUntil); err != nil {
			continue
		}
		s.occurrences[o.ID] = o
		claimed = append(claimed, clone(o))
	}
	return claimed, nil
}

// ReclaimExpiredLeases implements repository.Store.
func (s *Store) ReclaimExpiredLeases(_ context.Context, asOf time.Time, maxRetries int) ([]*domain.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reclaimed := make([]*domain.Occurrence, 0)
	for _, o := range s.occurrences {
		if o.Status != domain.StatusProcessing || o.LeaseExpiresAt == nil || o.LeaseExpiresAt.After(asOf) {
			continue
		}
		if err := o.MarkRetryPending(asOf, maxRetries); err != nil {
			_ = o.MarkFailed(asOf, "lease expired, retry budget exhausted", true)
		}
		reclaimed = append(reclaimed, clone(o))
	}
	return reclaimed, nil
}

// FindMissed implements repository.Store.
func (s *Store) FindMissed(_ context.Context, asOf time.Time, staleness time.Duration, limit int) ([]*domain.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := asOf.Add(-staleness)
	found := make([]*domain.Occurrence, 0)
	for _, o := range s.occurrences {
		if o.Status == domain.StatusPending && o.TargetTimestampUTC.Before(cutoff) {
			found = append(found, clone(o))
		}
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].TargetTimestampUTC.Before(found[j].TargetTimestampUTC)
	})
	if limit >= 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

// ListByUser implements repository.Store.
func (s *Store) ListByUser(_ context.Context, userID string, eventType domain.EventType) ([]*domain.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := make([]*domain.Occurrence, 0)
	for _, o := range s.occurrences {
		if o.UserID != userID || o.IsTerminal() {
			continue
		}
		if eventType != "" && o.EventType != eventType {
			continue
		}
		found = append(found, clone(o))
	}
	return found, nil
}

// DeleteByUser implements repository.Store.
func (s *Store) DeleteByUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, o := range s.occurrences {
		if o.UserID != userID {
			continue
		}
		delete(s.occurrences, id)
		delete(s.idempotentKey, idemKey(o.UserID, o.IdempotencyKey))
		n++
	}
	return n, nil
}

// CountByStatus implements repository.Store.
func (s *Store) CountByStatus(_ context.Context, status domain.Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, o := range s.occurrences {
		if o.Status == status {
			n++
		}
	}
	return n, nil
}

// Reset clears all stored records. Not part of repository.Store; useful for
// test isolation between cases.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.occurrences = make(map[string]*domain.Occurrence)
	s.idempotentKey = make(map[string]string)
}
