package claims

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/proffesor-for-testing/agentic-qe-sub013/internal/domain/claims"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryClaimStore()
	ctx := context.Background()
	now := time.Now()

	claim, err := store.Create(ctx, ClaimSpec{
		Type:     domain.TypeFlakyTest,
		Priority: domain.PriorityP1,
		Domain:   "checkout",
		Title:    "deflake the cart spec",
	}, now)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if claim.Status != domain.StatusAvailable {
		t.Errorf("new claim status = %s, want available", claim.Status)
	}
	if claim.Version != 1 {
		t.Errorf("new claim version = %d, want 1", claim.Version)
	}

	got, err := store.Get(ctx, claim.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != claim.ID || got.Title != claim.Title {
		t.Errorf("Get returned a different claim: %+v", got)
	}

	if _, err := store.Get(ctx, "no-such-claim"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreCreateValidation(t *testing.T) {
	store := NewMemoryClaimStore()
	ctx := context.Background()

	tests := []struct {
		name string
		spec ClaimSpec
	}{
		{"unknown type", ClaimSpec{Type: "bogus", Priority: domain.PriorityP2, Domain: "api", Title: "t"}},
		{"unknown priority", ClaimSpec{Type: domain.TypeCoverageGap, Priority: "p9", Domain: "api", Title: "t"}},
		{"missing domain", ClaimSpec{Type: domain.TypeCoverageGap, Priority: domain.PriorityP2, Title: "t"}},
		{"missing title", ClaimSpec{Type: domain.TypeCoverageGap, Priority: domain.PriorityP2, Domain: "api"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Create(ctx, tt.spec, time.Now()); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("Create = %v, want ErrValidation", err)
			}
		})
	}
}

func TestMemoryStoreUpdateConflict(t *testing.T) {
	store := NewMemoryClaimStore()
	ctx := context.Background()
	now := time.Now()

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
		c.Record(domain.StatusClaimed, "agent-1", "claimed", now)
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Version != claim.Version+1 {
		t.Errorf("version = %d, want %d", updated.Version, claim.Version+1)
	}

	// A second writer holding the old version must lose.
	_, err = store.Update(ctx, claim.ID, claim.Version, func(c *domain.Claim) error {
		c.Record(domain.StatusClaimed, "agent-2", "claimed", now)
		return nil
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("stale update = %v, want ErrConflict", err)
	}

	// The losing write must have no effect.
	got, err := store.Get(ctx, claim.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.History[0].Actor != "agent-1" {
		t.Errorf("conflicting write leaked: actor = %s", got.History[0].Actor)
	}
}

func TestMemoryStoreUpdateMutationError(t *testing.T) {
	store := NewMemoryClaimStore()
	ctx := context.Background()

	claim, err := store.Create(ctx, ClaimSpec{
		Type:     domain.TypeTestReview,
		Priority: domain.PriorityP3,
		Domain:   "api",
		Title:    "review auth tests",
	}, time.Now())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	boom := errors.New("boom")
	if _, err := store.Update(ctx, claim.ID, claim.Version, func(c *domain.Claim) error {
		c.Status = domain.StatusCompleted
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("Update = %v, want mutation error", err)
	}

	got, _ := store.Get(ctx, claim.ID)
	if got.Status != domain.StatusAvailable || got.Version != 1 {
		t.Error("failed mutation must leave the record untouched")
	}
}

func TestMemoryStoreListOrderAndFilter(t *testing.T) {
	store := NewMemoryClaimStore()
	ctx := context.Background()
	base := time.Now()

	mk := func(priority domain.Priority, dom, title string, offset time.Duration) *domain.Claim {
		c, err := store.Create(ctx, ClaimSpec{
			Type:     domain.TypeCoverageGap,
			Priority: priority,
			Domain:   dom,
			Title:    title,
		}, base.Add(offset))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		return c
	}

	low := mk(domain.PriorityP3, "api", "low", 0)
	urgentLate := mk(domain.PriorityP0, "api", "urgent late", 2*time.Second)
	urgentEarly := mk(domain.PriorityP0, "payments", "urgent early", time.Second)
	mid := mk(domain.PriorityP2, "api", "mid", 0)

	all, err := store.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	wantOrder := []string{urgentEarly.ID, urgentLate.ID, mid.ID, low.ID}
	if len(all) != len(wantOrder) {
		t.Fatalf("List returned %d claims, want %d", len(all), len(wantOrder))
	}
	for i, id := range wantOrder {
		if all[i].ID != id {
			t.Errorf("List[%d] = %s (%s), want %s", i, all[i].ID, all[i].Title, id)
		}
	}

	apiOnly, err := store.List(ctx, Filter{Domain: "api"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(apiOnly) != 3 {
		t.Errorf("domain filter returned %d, want 3", len(apiOnly))
	}

	p0Only, err := store.List(ctx, Filter{Priority: domain.PriorityP0})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(p0Only) != 2 {
		t.Errorf("priority filter returned %d, want 2", len(p0Only))
	}
}

func TestMemoryStoreFindStale(t *testing.T) {
	store := NewMemoryClaimStore()
	ctx := context.Background()
	base := time.Now()

	claimAt := func(title string, activity time.Time, ttl time.Duration) string {
		c, err := store.Create(ctx, ClaimSpec{
			Type:     domain.TypeDefectInvestigation,
			Priority: domain.PriorityP1,
			Domain:   "api",
			Title:    title,
		}, base)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		_, err = store.Update(ctx, c.ID, c.Version, func(cl *domain.Claim) error {
			cl.Claimant = &domain.ClaimantRef{ID: "agent-" + title, Kind: domain.ClaimantAgent}
			cl.ClaimedAt = activity
			cl.LastActivityAt = activity
			cl.TTL = ttl
			cl.Record(domain.StatusClaimed, cl.Claimant.ID, "claimed", activity)
			return nil
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		return c.ID
	}

	staleID := claimAt("stale", base.Add(-10*time.Minute), 5*time.Minute)
	claimAt("fresh", base.Add(-time.Minute), 5*time.Minute)
	claimAt("no-lease", base.Add(-10*time.Minute), 0)

	stale, err := store.FindStale(ctx, base)
	if err != nil {
		t.Fatalf("FindStale failed: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != staleID {
		t.Fatalf("FindStale returned %d claims, want exactly the stale one", len(stale))
	}
}

func TestMemoryStoreHandsOutClones(t *testing.T) {
	store := NewMemoryClaimStore()
	ctx := context.Background()

	claim, err := store.Create(ctx, ClaimSpec{
		Type:     domain.TypeCoverageGap,
		Priority: domain.PriorityP2,
		Domain:   "api",
		Title:    "cover timeouts",
	}, time.Now())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, _ := store.Get(ctx, claim.ID)
	got.Status = domain.StatusCompleted
	got.Title = "mutated"

	again, _ := store.Get(ctx, claim.ID)
	if again.Status != domain.StatusAvailable || again.Title != "cover timeouts" {
		t.Error("mutating a Get result leaked into the store")
	}
}
