package events

import (
	"testing"
	"time"

	domain "github.com/proffesor-for-testing/agentic-qe-sub013/internal/domain/claims"
)

func TestBusDispatchesByKind(t *testing.T) {
	bus := New()
	defer bus.Close()

	var claimed, completed int
	bus.On(domain.EventClaimed, func(domain.Event) { claimed++ })
	bus.On(domain.EventCompleted, func(domain.Event) { completed++ })

	bus.Emit(domain.NewEvent(domain.EventClaimed, "c-1", "agent-1", domain.StatusAvailable, domain.StatusClaimed, "", time.Now()))
	bus.Emit(domain.NewEvent(domain.EventClaimed, "c-2", "agent-1", domain.StatusAvailable, domain.StatusClaimed, "", time.Now()))
	bus.Emit(domain.NewEvent(domain.EventCompleted, "c-1", "agent-1", domain.StatusClaimed, domain.StatusCompleted, "", time.Now()))

	if claimed != 2 {
		t.Errorf("claimed handler ran %d times, want 2", claimed)
	}
	if completed != 1 {
		t.Errorf("completed handler ran %d times, want 1", completed)
	}
}

func TestBusWildcardHandler(t *testing.T) {
	bus := New()
	defer bus.Close()

	var kinds []domain.EventKind
	bus.OnAll(func(e domain.Event) { kinds = append(kinds, e.Kind) })

	bus.Emit(domain.NewEvent(domain.EventCreated, "c-1", "producer", "", domain.StatusAvailable, "", time.Now()))
	bus.Emit(domain.NewEvent(domain.EventStolen, "c-1", "agent-2", domain.StatusInProgress, domain.StatusClaimed, "stale", time.Now()))

	if len(kinds) != 2 || kinds[0] != domain.EventCreated || kinds[1] != domain.EventStolen {
		t.Errorf("wildcard handler saw %v", kinds)
	}
}

func TestBusSubscriberChannel(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := bus.Subscribe(domain.EventExpired)
	bus.Emit(domain.NewEvent(domain.EventExpired, "c-1", "system:expiry", domain.StatusClaimed, domain.StatusAvailable, "lease expired", time.Now()))

	select {
	case event := <-ch:
		if event.ClaimID != "c-1" || event.Kind != domain.EventExpired {
			t.Errorf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestBusFullSubscriberDropsNotBlocks(t *testing.T) {
	bus := New(WithBufferSize(1))
	defer bus.Close()

	ch := bus.Subscribe(domain.EventClaimed)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			bus.Emit(domain.NewEvent(domain.EventClaimed, "c-1", "agent-1", domain.StatusAvailable, domain.StatusClaimed, "", time.Now()))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full subscriber")
	}

	// Exactly the buffered event remains.
	if len(ch) != 1 {
		t.Errorf("buffered events = %d, want 1", len(ch))
	}
}

func TestBusEmitAfterClose(t *testing.T) {
	bus := New()

	var calls int
	bus.OnAll(func(domain.Event) { calls++ })
	bus.Close()
	bus.Emit(domain.NewEvent(domain.EventCreated, "c-1", "producer", "", domain.StatusAvailable, "", time.Now()))

	if calls != 0 {
		t.Errorf("handler ran %d times after Close", calls)
	}
}
