package claims

import (
	"testing"
	"time"

	domain "github.com/proffesor-for-testing/agentic-qe-sub013/internal/domain/claims"
)

func TestTrackerIdleClaimants(t *testing.T) {
	tracker := NewActivityTracker()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tracker.Register(domain.Claimant{ID: "agent-b", Kind: domain.ClaimantAgent, Domain: "api"}, base)
	tracker.Register(domain.Claimant{ID: "agent-a", Kind: domain.ClaimantAgent, Domain: "api"}, base)
	tracker.Register(domain.Claimant{ID: "agent-busy", Kind: domain.ClaimantAgent, Domain: "api"}, base)
	tracker.ClaimOpened("agent-busy", base)

	idle := tracker.IdleClaimants(time.Minute, base.Add(2*time.Minute))
	if len(idle) != 2 {
		t.Fatalf("idle = %d, want 2", len(idle))
	}
	// Sorted by id for a stable matching order.
	if idle[0].ID != "agent-a" || idle[1].ID != "agent-b" {
		t.Errorf("idle order = [%s %s]", idle[0].ID, idle[1].ID)
	}
}

func TestTrackerActivityDefersIdleness(t *testing.T) {
	tracker := NewActivityTracker()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tracker.Register(domain.Claimant{ID: "agent-1", Kind: domain.ClaimantAgent}, base)
	tracker.RecordActivity("agent-1", base.Add(90*time.Second))

	if idle := tracker.IdleClaimants(time.Minute, base.Add(2*time.Minute)); len(idle) != 0 {
		t.Errorf("recently active claimant reported idle: %v", idle)
	}
	if idle := tracker.IdleClaimants(time.Minute, base.Add(3*time.Minute)); len(idle) != 1 {
		t.Error("claimant should go idle once the threshold passes")
	}
}

func TestTrackerActiveClaimCount(t *testing.T) {
	tracker := NewActivityTracker()
	now := time.Now()

	tracker.Register(domain.Claimant{ID: "agent-1", Kind: domain.ClaimantAgent}, now)
	tracker.ClaimOpened("agent-1", now)
	tracker.ClaimOpened("agent-1", now)
	if got := tracker.ActiveClaims("agent-1"); got != 2 {
		t.Errorf("active = %d, want 2", got)
	}

	tracker.ClaimClosed("agent-1", now)
	tracker.ClaimClosed("agent-1", now)
	tracker.ClaimClosed("agent-1", now) // never goes negative
	if got := tracker.ActiveClaims("agent-1"); got != 0 {
		t.Errorf("active = %d, want 0", got)
	}
}

func TestTrackerIgnoresUnregistered(t *testing.T) {
	tracker := NewActivityTracker()
	now := time.Now()

	tracker.ClaimOpened("ghost", now)
	tracker.RecordActivity("ghost", now)
	if got := tracker.ActiveClaims("ghost"); got != 0 {
		t.Errorf("unregistered claimant tracked: %d", got)
	}
	if idle := tracker.IdleClaimants(0, now.Add(time.Hour)); len(idle) != 0 {
		t.Errorf("unregistered claimant reported idle: %v", idle)
	}
}

func TestTrackerReRegisterKeepsState(t *testing.T) {
	tracker := NewActivityTracker()
	now := time.Now()

	tracker.Register(domain.Claimant{ID: "agent-1", Kind: domain.ClaimantAgent, Domain: "api"}, now)
	tracker.ClaimOpened("agent-1", now)
	tracker.Register(domain.Claimant{ID: "agent-1", Kind: domain.ClaimantAgent, Domain: "payments"}, now)

	if got := tracker.ActiveClaims("agent-1"); got != 1 {
		t.Errorf("re-registration reset active count: %d", got)
	}

	tracker.Unregister("agent-1")
	if got := tracker.ActiveClaims("agent-1"); got != 0 {
		t.Errorf("unregistered claimant still tracked: %d", got)
	}
}
