package claims

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	domain "github.com/proffesor-for-testing/agentic-qe-sub013/internal/domain/claims"
)

func newSweeper(f *testFixture, config ExpiryConfig) *ExpirySweeper {
	sweeper := NewExpirySweeper(f.service, config, zerolog.Nop())
	sweeper.SetClock(func() time.Time { return f.now })
	return sweeper
}

func TestSweepExpiresLapsedLeases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim := f.createClaim(t)
	if _, err := f.service.Claim(ctx, claim.ID, agentOne); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	fresh := f.createClaim(t)
	if _, err := f.service.Claim(ctx, fresh.ID, agentTwo); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if _, err := f.service.Touch(ctx, fresh.ID, agentTwo); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	expirations := f.collect(domain.EventExpired)

	f.advance(4 * time.Minute)
	if _, err := f.service.Touch(ctx, fresh.ID, agentTwo); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	f.advance(2 * time.Minute)

	sweeper := newSweeper(f, DefaultExpiryConfig())
	expired, err := sweeper.RunSweep(ctx)
	if err != nil {
		t.Fatalf("RunSweep failed: %v", err)
	}
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}

	got, _ := f.service.Get(ctx, claim.ID)
	if got.Status != domain.StatusAvailable {
		t.Errorf("lapsed agent claim = %s, want available", got.Status)
	}
	got, _ = f.service.Get(ctx, fresh.ID)
	if got.Status != domain.StatusClaimed || got.Claimant.ID != agentTwo.ID {
		t.Error("touched claim must survive the sweep")
	}

	if len(*expirations) != 1 || (*expirations)[0].ClaimID != claim.ID {
		t.Errorf("expiry events = %+v", *expirations)
	}
	if (*expirations)[0].Actor != "system:expiry" {
		t.Errorf("actor = %s", (*expirations)[0].Actor)
	}
}

func TestSweepRecordsSystemActorInHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim := f.createClaim(t)
	if _, err := f.service.Claim(ctx, claim.ID, agentOne); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	f.advance(6 * time.Minute)
	sweeper := newSweeper(f, DefaultExpiryConfig())
	if _, err := sweeper.RunSweep(ctx); err != nil {
		t.Fatalf("RunSweep failed: %v", err)
	}

	got, _ := f.service.Get(ctx, claim.ID)
	last := got.History[len(got.History)-1]
	if last.Actor != "system:expiry" || last.Reason != "lease expired" {
		t.Errorf("history entry = %+v", last)
	}
}

func TestSweepIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim := f.createClaim(t)
	if _, err := f.service.Claim(ctx, claim.ID, agentOne); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	f.advance(6 * time.Minute)
	sweeper := newSweeper(f, DefaultExpiryConfig())
	if n, _ := sweeper.RunSweep(ctx); n != 1 {
		t.Fatalf("first sweep expired %d, want 1", n)
	}
	if n, _ := sweeper.RunSweep(ctx); n != 0 {
		t.Errorf("second sweep expired %d, want 0", n)
	}
}

func TestSweeperStartStop(t *testing.T) {
	f := newFixture(t)
	sweeper := NewExpirySweeper(f.service, ExpiryConfig{Interval: 10 * time.Millisecond}, zerolog.Nop())

	sweeper.Start()
	time.Sleep(30 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		sweeper.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
