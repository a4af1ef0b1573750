package claims

import (
	"fmt"
	"sort"
	"sync"

	domain "github.com/proffesor-for-testing/agentic-qe-sub013/internal/domain/claims"
)

// HandoffStore persists pending handoff requests.
type HandoffStore interface {
	Save(handoff *domain.PendingHandoff) error
	Get(id string) (*domain.PendingHandoff, error)
	PendingByTargetKind(kind domain.ClaimantKind) ([]*domain.PendingHandoff, error)
	PendingByClaim(claimID string) ([]*domain.PendingHandoff, error)
}

// MemoryHandoffStore is an in-memory HandoffStore. Handoffs are short
// lived coordination records; they do not need to outlive the process.
type MemoryHandoffStore struct {
	mu       sync.RWMutex
	handoffs map[string]*domain.PendingHandoff
}

// NewMemoryHandoffStore creates an empty handoff store.
func NewMemoryHandoffStore() *MemoryHandoffStore {
	return &MemoryHandoffStore{handoffs: make(map[string]*domain.PendingHandoff)}
}

// Save stores or replaces a handoff record.
func (s *MemoryHandoffStore) Save(handoff *domain.PendingHandoff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *handoff
	s.handoffs[handoff.ID] = &cp
	return nil
}

// Get returns a handoff by id.
func (s *MemoryHandoffStore) Get(id string) (*domain.PendingHandoff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handoff, ok := s.handoffs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrHandoffNotFound, id)
	}
	cp := *handoff
	return &cp, nil
}

// PendingByTargetKind returns pending handoffs addressed to claimants of
// the given kind, oldest first, for polling by eligible acceptors.
func (s *MemoryHandoffStore) PendingByTargetKind(kind domain.ClaimantKind) ([]*domain.PendingHandoff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.PendingHandoff, 0)
	for _, handoff := range s.handoffs {
		if handoff.IsPending() && handoff.RequestedToKind == kind {
			cp := *handoff
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// PendingByClaim returns pending handoffs for a claim.
func (s *MemoryHandoffStore) PendingByClaim(claimID string) ([]*domain.PendingHandoff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.PendingHandoff, 0)
	for _, handoff := range s.handoffs {
		if handoff.IsPending() && handoff.ClaimID == claimID {
			cp := *handoff
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
