package claims

import (
	"sort"
	"sync"
	"time"

	domain "github.com/proffesor-for-testing/agentic-qe-sub013/internal/domain/claims"
)

// ActivityTracker is the engine's claimant registry: per-claimant last
// activity and active-claim count, independent of any single claim's
// staleness. It is owned by the engine and mutated only as a side effect
// of successful ClaimService operations, so it needs no cross-claim
// locking beyond its own map lock.
type ActivityTracker struct {
	mu      sync.RWMutex
	records map[string]*activityRecord
}

type activityRecord struct {
	claimant     domain.Claimant
	lastActivity time.Time
	activeClaims int
}

// NewActivityTracker creates an empty tracker.
func NewActivityTracker() *ActivityTracker {
	return &ActivityTracker{records: make(map[string]*activityRecord)}
}

// Reset clears all tracked claimants.
func (t *ActivityTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[string]*activityRecord)
}

// Register adds a claimant to the registry. Registering an existing
// claimant refreshes its identity but keeps its activity state.
func (t *ActivityTracker) Register(claimant domain.Claimant, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.records[claimant.ID]; ok {
		rec.claimant = claimant
		return
	}
	t.records[claimant.ID] = &activityRecord{
		claimant:     claimant,
		lastActivity: now,
	}
}

// Unregister removes a claimant.
func (t *ActivityTracker) Unregister(claimantID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, claimantID)
}

// RecordActivity notes a successful claimant-initiated operation.
func (t *ActivityTracker) RecordActivity(claimantID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[claimantID]
	if !ok {
		return
	}
	if now.After(rec.lastActivity) {
		rec.lastActivity = now
	}
}

// ClaimOpened notes that the claimant took ownership of a claim.
func (t *ActivityTracker) ClaimOpened(claimantID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[claimantID]
	if !ok {
		return
	}
	rec.activeClaims++
	if now.After(rec.lastActivity) {
		rec.lastActivity = now
	}
}

// ClaimClosed notes that the claimant no longer owns a claim.
func (t *ActivityTracker) ClaimClosed(claimantID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[claimantID]
	if !ok {
		return
	}
	if rec.activeClaims > 0 {
		rec.activeClaims--
	}
	if now.After(rec.lastActivity) {
		rec.lastActivity = now
	}
}

// ActiveClaims returns the tracked active-claim count for a claimant.
func (t *ActivityTracker) ActiveClaims(claimantID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if rec, ok := t.records[claimantID]; ok {
		return rec.activeClaims
	}
	return 0
}

// IdleClaimants returns registered claimants that hold zero active claims
// and have recorded no activity within the threshold, ordered by claimant
// id for a stable matching order.
func (t *ActivityTracker) IdleClaimants(threshold time.Duration, now time.Time) []domain.Claimant {
	t.mu.RLock()
	defer t.mu.RUnlock()

	idle := make([]domain.Claimant, 0)
	for _, rec := range t.records {
		if rec.activeClaims == 0 && now.Sub(rec.lastActivity) >= threshold {
			idle = append(idle, rec.claimant)
		}
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].ID < idle[j].ID })
	return idle
}
