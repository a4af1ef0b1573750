package claims

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	domain "github.com/proffesor-for-testing/agentic-qe-sub013/internal/domain/claims"
)

func newTestSQLiteStore(t *testing.T) *SQLiteClaimStore {
	t.Helper()
	store, err := NewSQLiteClaimStore(filepath.Join(t.TempDir(), "claims.db"))
	if err != nil {
		t.Fatalf("NewSQLiteClaimStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	claim, err := store.Create(ctx, ClaimSpec{
		Type:     domain.TypeFlakyTest,
		Priority: domain.PriorityP1,
		Domain:   "checkout",
		Title:    "deflake the cart spec",
		Metadata: map[string]any{"suite": "e2e"},
	}, now)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, claim.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Type != domain.TypeFlakyTest || got.Priority != domain.PriorityP1 {
		t.Errorf("round trip changed the claim: %+v", got)
	}
	if got.Metadata["suite"] != "e2e" {
		t.Errorf("metadata lost in round trip: %v", got.Metadata)
	}
	if !got.CreatedAt.Equal(claim.CreatedAt) {
		t.Errorf("CreatedAt drifted: %v vs %v", got.CreatedAt, claim.CreatedAt)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStoreUpdateConflict(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	claim, err := store.Create(ctx, ClaimSpec{
		Type:     domain.TypeCoverageGap,
		Priority: domain.PriorityP2,
		Domain:   "api",
		Title:    "cover error branch",
	}, now)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := store.Update(ctx, claim.ID, claim.Version, func(c *domain.Claim) error {
		c.Claimant = &domain.ClaimantRef{ID: "agent-1", Kind: domain.ClaimantAgent}
		c.ClaimedAt = now
		c.LastActivityAt = now
		c.TTL = domain.AgentTTL
		c.Record(domain.StatusClaimed, "agent-1", "claimed", now)
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("version = %d, want 2", updated.Version)
	}

	_, err = store.Update(ctx, claim.ID, claim.Version, func(c *domain.Claim) error {
		c.Record(domain.StatusClaimed, "agent-2", "claimed", now)
		return nil
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("stale update = %v, want ErrConflict", err)
	}

	got, _ := store.Get(ctx, claim.ID)
	if got.Claimant == nil || got.Claimant.ID != "agent-1" {
		t.Error("conflicting write leaked into the store")
	}
	if len(got.History) != 1 {
		t.Errorf("history length = %d, want 1", len(got.History))
	}
}

func TestSQLiteStoreFindStale(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Millisecond)

	seed := func(title string, priority domain.Priority, activity time.Time, ttl time.Duration) string {
		c, err := store.Create(ctx, ClaimSpec{
			Type:     domain.TypeDefectInvestigation,
			Priority: priority,
			Domain:   "api",
			Title:    title,
		}, base)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if _, err := store.Update(ctx, c.ID, c.Version, func(cl *domain.Claim) error {
			cl.Claimant = &domain.ClaimantRef{ID: "agent-" + title, Kind: domain.ClaimantAgent}
			cl.ClaimedAt = activity
			cl.LastActivityAt = activity
			cl.TTL = ttl
			cl.Record(domain.StatusClaimed, cl.Claimant.ID, "claimed", activity)
			return nil
		}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		return c.ID
	}

	staleLow := seed("stale-low", domain.PriorityP2, base.Add(-10*time.Minute), 5*time.Minute)
	staleHigh := seed("stale-high", domain.PriorityP0, base.Add(-10*time.Minute), 5*time.Minute)
	seed("fresh", domain.PriorityP0, base.Add(-time.Minute), 5*time.Minute)
	seed("no-lease", domain.PriorityP0, base.Add(-10*time.Minute), 0)

	stale, err := store.FindStale(ctx, base)
	if err != nil {
		t.Fatalf("FindStale failed: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("FindStale returned %d claims, want 2", len(stale))
	}
	if stale[0].ID != staleHigh || stale[1].ID != staleLow {
		t.Errorf("FindStale order = [%s %s], want priority descending", stale[0].Title, stale[1].Title)
	}
}

func TestSQLiteStoreListFilter(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	for _, spec := range []ClaimSpec{
		{Type: domain.TypeCoverageGap, Priority: domain.PriorityP1, Domain: "api", Title: "a"},
		{Type: domain.TypeCoverageGap, Priority: domain.PriorityP2, Domain: "payments", Title: "b"},
		{Type: domain.TypeFlakyTest, Priority: domain.PriorityP1, Domain: "api", Title: "c"},
	} {
		if _, err := store.Create(ctx, spec, now); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	api, err := store.List(ctx, Filter{Domain: "api"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(api) != 2 {
		t.Errorf("domain filter returned %d, want 2", len(api))
	}

	available, err := store.List(ctx, Filter{Status: []domain.ClaimStatus{domain.StatusAvailable}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(available) != 3 {
		t.Errorf("status filter returned %d, want 3", len(available))
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claims.db")
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	store, err := NewSQLiteClaimStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteClaimStore failed: %v", err)
	}
	claim, err := store.Create(ctx, ClaimSpec{
		Type:     domain.TypeTestReview,
		Priority: domain.PriorityP3,
		Domain:   "api",
		Title:    "review auth tests",
	}, now)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteClaimStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, claim.ID)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.Title != "review auth tests" {
		t.Errorf("claim did not survive reopen: %+v", got)
	}
}
