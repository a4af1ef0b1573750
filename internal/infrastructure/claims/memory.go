package claims

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/proffesor-for-testing/agentic-qe-sub013/internal/domain/claims"
)

// MemoryClaimStore is a volatile ClaimStore for tests and single-process
// embedding. It hands out clones; persisted state is only reachable
// through Update.
type MemoryClaimStore struct {
	mu     sync.RWMutex
	claims map[string]*domain.Claim
}

// NewMemoryClaimStore creates an empty in-memory store.
func NewMemoryClaimStore() *MemoryClaimStore {
	return &MemoryClaimStore{claims: make(map[string]*domain.Claim)}
}

// Create validates the spec and stores a new available claim.
func (s *MemoryClaimStore) Create(_ context.Context, spec ClaimSpec, now time.Time) (*domain.Claim, error) {
	claim, err := newClaim(spec, now)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[claim.ID] = claim.Clone()
	return claim, nil
}

// Get returns a copy of the claim.
func (s *MemoryClaimStore) Get(_ context.Context, id string) (*domain.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	claim, ok := s.claims[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return claim.Clone(), nil
}

// Update applies a mutation under compare-and-set. The stored version must
// equal expectedVersion or the update fails with domain.ErrConflict and no
// effect.
func (s *MemoryClaimStore) Update(_ context.Context, id string, expectedVersion int, mutate Mutation) (*domain.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.claims[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if current.Version != expectedVersion {
		return nil, fmt.Errorf("%w: claim %s at version %d, expected %d",
			domain.ErrConflict, id, current.Version, expectedVersion)
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Version = expectedVersion + 1

	s.claims[id] = next
	return next.Clone(), nil
}

// List returns claims matching the filter, priority descending then
// CreatedAt ascending.
func (s *MemoryClaimStore) List(_ context.Context, filter Filter) ([]*domain.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Claim, 0)
	for _, claim := range s.claims {
		if filter.matches(claim) {
			result = append(result, claim.Clone())
		}
	}
	sortClaims(result)
	return result, nil
}

// FindStale returns owned claims whose inactivity lease lapsed before now.
func (s *MemoryClaimStore) FindStale(_ context.Context, now time.Time) ([]*domain.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Claim, 0)
	for _, claim := range s.claims {
		if claim.IsStale(now) {
			result = append(result, claim.Clone())
		}
	}
	sortClaims(result)
	return result, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryClaimStore) Close() error { return nil }
