// Package claims provides the application services of the claim
// coordination engine: the claim state machine, claimant activity
// tracking, work stealing, expiry sweeping and handoffs.
package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	domain "github.com/proffesor-for-testing/agentic-qe-sub013/internal/domain/claims"
	infra "github.com/proffesor-for-testing/agentic-qe-sub013/internal/infrastructure/claims"
	"github.com/proffesor-for-testing/agentic-qe-sub013/internal/infrastructure/events"
)

// Policy holds the service-level behavior knobs.
type Policy struct {
	// AgentTTL and HumanTTL are the per-kind inactivity leases assigned at
	// claim time when the caller does not override.
	AgentTTL time.Duration
	HumanTTL time.Duration

	// RequeueAbandoned spawns a fresh available claim when one is
	// abandoned.
	RequeueAbandoned bool
}

// DefaultPolicy returns the default service policy.
func DefaultPolicy() Policy {
	return Policy{
		AgentTTL: domain.AgentTTL,
		HumanTTL: domain.HumanTTL,
	}
}

// TTLFor returns the configured lease for a claimant kind.
func (p Policy) TTLFor(kind domain.ClaimantKind) time.Duration {
	if kind == domain.ClaimantHuman {
		return p.HumanTTL
	}
	return p.AgentTTL
}

// ClaimService enforces the claim state machine on top of a ClaimStore.
// Every operation is a single compare-and-set update plus one emitted
// event; nothing retries internally — a version conflict surfaces as
// domain.ErrConflict and the caller decides.
type ClaimService struct {
	store   infra.ClaimStore
	bus     *events.Bus
	tracker *ActivityTracker
	policy  Policy
	clock   func() time.Time
	log     zerolog.Logger
}

// NewClaimService creates a claim service.
func NewClaimService(store infra.ClaimStore, bus *events.Bus, tracker *ActivityTracker, policy Policy, log zerolog.Logger) *ClaimService {
	return &ClaimService{
		store:   store,
		bus:     bus,
		tracker: tracker,
		policy:  policy,
		clock:   time.Now,
		log:     log.With().Str("component", "claim-service").Logger(),
	}
}

// SetClock overrides the time source. Used by tests to simulate elapsed
// time.
func (s *ClaimService) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Store exposes the underlying store for read-side consumers.
func (s *ClaimService) Store() infra.ClaimStore { return s.store }

// Get returns a claim by id.
func (s *ClaimService) Get(ctx context.Context, id string) (*domain.Claim, error) {
	return s.store.Get(ctx, id)
}

// List returns claims matching the filter.
func (s *ClaimService) List(ctx context.Context, filter infra.Filter) ([]*domain.Claim, error) {
	return s.store.List(ctx, filter)
}

// CreateClaim creates a new available claim.
func (s *ClaimService) CreateClaim(ctx context.Context, spec infra.ClaimSpec) (*domain.Claim, error) {
	now := s.clock()
	claim, err := s.store.Create(ctx, spec, now)
	if err != nil {
		return nil, domain.NewOpError("create", nil, err)
	}

	s.log.Debug().Str("claim", claim.ID).Str("type", string(claim.Type)).
		Str("domain", claim.Domain).Msg("claim created")
	s.bus.Emit(domain.NewEvent(domain.EventCreated, claim.ID, "producer", "", domain.StatusAvailable, "", now))
	return claim, nil
}

// Claim takes exclusive ownership of an available claim, assigning the
// per-kind default inactivity lease.
func (s *ClaimService) Claim(ctx context.Context, id string, claimant domain.Claimant) (*domain.Claim, error) {
	return s.ClaimWithTTL(ctx, id, claimant, 0)
}

// ClaimWithTTL takes ownership with an explicit lease override. A zero ttl
// means the per-kind default.
func (s *ClaimService) ClaimWithTTL(ctx context.Context, id string, claimant domain.Claimant, ttl time.Duration) (*domain.Claim, error) {
	const op = "claim"

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, domain.NewOpError(op, nil, err)
	}
	if current.Status != domain.StatusAvailable {
		if current.IsOwned() {
			return nil, domain.NewOpError(op, current, domain.ErrAlreadyClaimed)
		}
		return nil, domain.NewOpError(op, current, domain.ErrInvalidTransition)
	}

	if ttl <= 0 {
		ttl = s.policy.TTLFor(claimant.Kind)
	}
	now := s.clock()
	prev := current.Status

	updated, err := s.store.Update(ctx, id, current.Version, func(c *domain.Claim) error {
		if c.Status != domain.StatusAvailable {
			return domain.ErrAlreadyClaimed
		}
		c.Claimant = claimant.Ref()
		c.ClaimedAt = now
		c.LastActivityAt = now
		c.TTL = ttl
		c.Record(domain.StatusClaimed, claimant.ID, "claimed", now)
		return nil
	})
	if err != nil {
		return nil, domain.NewOpError(op, current, err)
	}

	s.tracker.ClaimOpened(claimant.ID, now)
	s.log.Debug().Str("claim", id).Str("claimant", claimant.ID).Msg("claim taken")
	s.bus.Emit(domain.NewEvent(domain.EventClaimed, id, claimant.ID, prev, domain.StatusClaimed, "", now))
	return updated, nil
}

// Touch is the owner heartbeat: it advances LastActivityAt and nothing
// else. Repeated touches never change status.
func (s *ClaimService) Touch(ctx context.Context, id string, claimant domain.Claimant) (*domain.Claim, error) {
	const op = "touch"

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, domain.NewOpError(op, nil, err)
	}
	if err := checkOwner(op, current, claimant.ID); err != nil {
		return nil, err
	}

	now := s.clock()
	updated, err := s.store.Update(ctx, id, current.Version, func(c *domain.Claim) error {
		if now.After(c.LastActivityAt) {
			c.LastActivityAt = now
		}
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, domain.NewOpError(op, current, err)
	}

	s.tracker.RecordActivity(claimant.ID, now)
	return updated, nil
}

// StartWork moves a claimed claim to in-progress.
func (s *ClaimService) StartWork(ctx context.Context, id string, claimant domain.Claimant) (*domain.Claim, error) {
	return s.shift(ctx, "start-work", id, claimant, domain.StatusClaimed, domain.StatusInProgress, "started")
}

// Block moves an in-progress claim to blocked.
func (s *ClaimService) Block(ctx context.Context, id string, claimant domain.Claimant, reason string) (*domain.Claim, error) {
	if reason == "" {
		reason = "blocked"
	}
	return s.shift(ctx, "block", id, claimant, domain.StatusInProgress, domain.StatusBlocked, reason)
}

// Unblock moves a blocked claim back to in-progress.
func (s *ClaimService) Unblock(ctx context.Context, id string, claimant domain.Claimant) (*domain.Claim, error) {
	return s.shift(ctx, "unblock", id, claimant, domain.StatusBlocked, domain.StatusInProgress, "unblocked")
}

// shift performs an owner-restricted transition with a fixed source
// status.
func (s *ClaimService) shift(ctx context.Context, op, id string, claimant domain.Claimant, from, to domain.ClaimStatus, reason string) (*domain.Claim, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, domain.NewOpError(op, nil, err)
	}
	if err := checkOwner(op, current, claimant.ID); err != nil {
		return nil, err
	}
	if current.Status != from {
		return nil, domain.NewOpError(op, current, domain.ErrInvalidTransition)
	}

	now := s.clock()
	updated, err := s.store.Update(ctx, id, current.Version, func(c *domain.Claim) error {
		if c.Status != from {
			return domain.ErrInvalidTransition
		}
		c.LastActivityAt = now
		c.Record(to, claimant.ID, reason, now)
		return nil
	})
	if err != nil {
		return nil, domain.NewOpError(op, current, err)
	}

	s.tracker.RecordActivity(claimant.ID, now)
	s.bus.Emit(domain.NewEvent(domain.EventStatusChanged, id, claimant.ID, from, to, reason, now))
	return updated, nil
}

// Complete finishes an owned claim. The result, if any, is kept in the
// claim metadata.
func (s *ClaimService) Complete(ctx context.Context, id string, claimant domain.Claimant, result map[string]any) (*domain.Claim, error) {
	const op = "complete"

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, domain.NewOpError(op, nil, err)
	}
	if err := checkOwner(op, current, claimant.ID); err != nil {
		return nil, err
	}

	now := s.clock()
	prev := current.Status
	updated, err := s.store.Update(ctx, id, current.Version, func(c *domain.Claim) error {
		if !c.IsOwned() {
			return domain.ErrInvalidTransition
		}
		if result != nil {
			if c.Metadata == nil {
				c.Metadata = make(map[string]any)
			}
			c.Metadata["result"] = result
		}
		c.LastActivityAt = now
		c.Record(domain.StatusCompleted, claimant.ID, "completed", now)
		return nil
	})
	if err != nil {
		return nil, domain.NewOpError(op, current, err)
	}

	s.tracker.ClaimClosed(claimant.ID, now)
	s.log.Debug().Str("claim", id).Str("claimant", claimant.ID).Msg("claim completed")
	s.bus.Emit(domain.NewEvent(domain.EventCompleted, id, claimant.ID, prev, domain.StatusCompleted, "", now))
	return updated, nil
}

// Release returns an owned claim to the pool, clearing ownership.
func (s *ClaimService) Release(ctx context.Context, id string, claimant domain.Claimant) (*domain.Claim, error) {
	const op = "release"

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, domain.NewOpError(op, nil, err)
	}
	if err := checkOwner(op, current, claimant.ID); err != nil {
		return nil, err
	}

	now := s.clock()
	prev := current.Status
	updated, err := s.store.Update(ctx, id, current.Version, func(c *domain.Claim) error {
		if !c.IsOwned() {
			return domain.ErrInvalidTransition
		}
		c.Claimant = nil
		c.TTL = 0
		c.Record(domain.StatusAvailable, claimant.ID, "released", now)
		return nil
	})
	if err != nil {
		return nil, domain.NewOpError(op, current, err)
	}

	s.tracker.ClaimClosed(claimant.ID, now)
	s.bus.Emit(domain.NewEvent(domain.EventReleased, id, claimant.ID, prev, domain.StatusAvailable, "", now))
	return updated, nil
}

// Abandon terminally gives up an owned claim. Depending on policy a fresh
// available claim is spawned for the same work.
func (s *ClaimService) Abandon(ctx context.Context, id string, claimant domain.Claimant, reason string) (*domain.Claim, error) {
	const op = "abandon"

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, domain.NewOpError(op, nil, err)
	}
	if err := checkOwner(op, current, claimant.ID); err != nil {
		return nil, err
	}

	now := s.clock()
	prev := current.Status
	updated, err := s.store.Update(ctx, id, current.Version, func(c *domain.Claim) error {
		if !c.IsOwned() {
			return domain.ErrInvalidTransition
		}
		c.LastActivityAt = now
		c.Record(domain.StatusAbandoned, claimant.ID, reason, now)
		return nil
	})
	if err != nil {
		return nil, domain.NewOpError(op, current, err)
	}

	s.tracker.ClaimClosed(claimant.ID, now)
	s.bus.Emit(domain.NewEvent(domain.EventAbandoned, id, claimant.ID, prev, domain.StatusAbandoned, reason, now))

	if s.policy.RequeueAbandoned {
		if err := s.requeue(ctx, updated, now); err != nil {
			s.log.Warn().Err(err).Str("claim", id).Msg("requeue after abandon failed")
		}
	}
	return updated, nil
}

// requeue spawns a fresh available claim for abandoned work.
func (s *ClaimService) requeue(ctx context.Context, abandoned *domain.Claim, now time.Time) error {
	meta := make(map[string]any, len(abandoned.Metadata)+1)
	for k, v := range abandoned.Metadata {
		meta[k] = v
	}
	meta["abandonedFrom"] = abandoned.ID

	fresh, err := s.store.Create(ctx, infra.ClaimSpec{
		Type:     abandoned.Type,
		Priority: abandoned.Priority,
		Domain:   abandoned.Domain,
		Title:    abandoned.Title,
		Metadata: meta,
	}, now)
	if err != nil {
		return err
	}
	s.bus.Emit(domain.NewEvent(domain.EventCreated, fresh.ID, "system", "", domain.StatusAvailable, "requeued", now))
	return nil
}

// EscalatePriority raises (or lowers) a claim's priority. Metadata-only:
// status and ownership are untouched and no history entry is appended.
func (s *ClaimService) EscalatePriority(ctx context.Context, id string, priority domain.Priority) (*domain.Claim, error) {
	const op = "escalate-priority"

	if !priority.Valid() {
		return nil, domain.NewOpError(op, nil, fmt.Errorf("%w: unknown priority %q", domain.ErrValidation, priority))
	}

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, domain.NewOpError(op, nil, err)
	}
	if current.IsTerminal() {
		return nil, domain.NewOpError(op, current, domain.ErrInvalidTransition)
	}

	now := s.clock()
	prevPriority := current.Priority
	updated, err := s.store.Update(ctx, id, current.Version, func(c *domain.Claim) error {
		c.Priority = priority
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, domain.NewOpError(op, current, err)
	}

	s.bus.Emit(domain.NewEvent(domain.EventPriorityEscalated, id, "system",
		updated.Status, updated.Status,
		fmt.Sprintf("%s -> %s", prevPriority, priority), now))
	return updated, nil
}

// Steal reassigns a stale claim to a new claimant. Valid only while the
// claim's lease has lapsed; status resets to claimed regardless of prior
// in-progress or blocked state, so the new owner re-confirms StartWork.
func (s *ClaimService) Steal(ctx context.Context, id string, newClaimant domain.Claimant, reason string) (*domain.Claim, error) {
	const op = "steal"

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, domain.NewOpError(op, nil, err)
	}
	now := s.clock()
	if !current.IsStale(now) {
		return nil, domain.NewOpError(op, current, domain.ErrInvalidTransition)
	}

	prevOwner := current.Claimant
	prevStatus := current.Status
	ttl := s.policy.TTLFor(newClaimant.Kind)

	updated, err := s.store.Update(ctx, id, current.Version, func(c *domain.Claim) error {
		if !c.IsOwned() {
			return domain.ErrInvalidTransition
		}
		if c.Metadata == nil {
			c.Metadata = make(map[string]any)
		}
		c.Metadata["stolenFrom"] = prevOwner.ID
		c.Claimant = newClaimant.Ref()
		c.ClaimedAt = now
		c.LastActivityAt = now
		c.TTL = ttl
		c.Record(domain.StatusClaimed, newClaimant.ID, reason, now)
		return nil
	})
	if err != nil {
		return nil, domain.NewOpError(op, current, err)
	}

	s.tracker.ClaimClosed(prevOwner.ID, now)
	s.tracker.ClaimOpened(newClaimant.ID, now)
	s.log.Info().Str("claim", id).Str("from", prevOwner.ID).
		Str("to", newClaimant.ID).Str("reason", reason).Msg("claim stolen")

	event := domain.NewEvent(domain.EventStolen, id, newClaimant.ID, prevStatus, domain.StatusClaimed, reason, now)
	event.Note = prevOwner.ID
	s.bus.Emit(event)
	return updated, nil
}

// Transfer executes an approved handoff: same atomic reassignment as a
// steal, but unconditioned on staleness and carrying the claim status
// forward. Callers go through the HandoffManager.
func (s *ClaimService) Transfer(ctx context.Context, id string, from domain.ClaimantRef, to domain.Claimant, note string) (*domain.Claim, error) {
	const op = "transfer"

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, domain.NewOpError(op, nil, err)
	}
	if current.IsTerminal() || !current.IsOwned() {
		return nil, domain.NewOpError(op, current, domain.ErrInvalidTransition)
	}
	if !current.IsOwnedBy(from.ID) {
		return nil, domain.NewOpError(op, current, domain.ErrClaimNotOwnedByRequester)
	}

	now := s.clock()
	status := current.Status
	ttl := s.policy.TTLFor(to.Kind)

	updated, err := s.store.Update(ctx, id, current.Version, func(c *domain.Claim) error {
		if !c.IsOwnedBy(from.ID) {
			return domain.ErrClaimNotOwnedByRequester
		}
		c.Claimant = to.Ref()
		c.LastActivityAt = now
		c.TTL = ttl
		// Status is carried forward; the history records the ownership
		// change as a same-status transition.
		c.Record(c.Status, to.ID, "handoff", now)
		return nil
	})
	if err != nil {
		return nil, domain.NewOpError(op, current, err)
	}

	s.tracker.ClaimClosed(from.ID, now)
	s.tracker.ClaimOpened(to.ID, now)

	event := domain.NewEvent(domain.EventHandoff, id, to.ID, status, status, "completed", now)
	event.Note = note
	s.bus.Emit(event)
	return updated, nil
}

// ExpireStale sweeps claims whose inactivity lease lapsed before now.
// Agent-held work goes back to the pool; human-held work expires and
// requires a deliberate re-claim. Version conflicts mean the owner raced
// the sweep and won; those claims are skipped.
func (s *ClaimService) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.store.FindStale(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, claim := range stale {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}

		owner := claim.Claimant
		prevStatus := claim.Status
		outcome := domain.ExpiryOutcome(owner.Kind)

		_, err := s.store.Update(ctx, claim.ID, claim.Version, func(c *domain.Claim) error {
			if !c.IsOwned() {
				return domain.ErrInvalidTransition
			}
			if outcome == domain.StatusAvailable {
				c.Claimant = nil
				c.TTL = 0
			}
			c.Record(outcome, "system:expiry", "lease expired", now)
			return nil
		})
		if err != nil {
			// A concurrent touch, complete or steal won the race.
			s.log.Debug().Err(err).Str("claim", claim.ID).Msg("expiry skipped")
			continue
		}

		s.tracker.ClaimClosed(owner.ID, now)
		s.log.Info().Str("claim", claim.ID).Str("claimant", owner.ID).
			Str("outcome", string(outcome)).Msg("claim expired")
		s.bus.Emit(domain.NewEvent(domain.EventExpired, claim.ID, "system:expiry", prevStatus, outcome, "lease expired", now))
		expired++
	}
	return expired, nil
}

// checkOwner validates an owner-restricted operation against the current
// claim snapshot.
func checkOwner(op string, claim *domain.Claim, claimantID string) error {
	if claim.IsTerminal() {
		return domain.NewOpError(op, claim, domain.ErrInvalidTransition)
	}
	if !claim.IsOwnedBy(claimantID) {
		return domain.NewOpError(op, claim, domain.ErrNotOwner)
	}
	return nil
}
