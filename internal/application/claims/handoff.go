package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	domain "github.com/proffesor-for-testing/agentic-qe-sub013/internal/domain/claims"
	infra "github.com/proffesor-for-testing/agentic-qe-sub013/internal/infrastructure/claims"
)

// HandoffManager manages explicit, consensual ownership transfers between
// claimant kinds, distinct from involuntary stealing. Requesting a handoff
// never changes the claim itself; only completion does, through a single
// atomic transfer.
type HandoffManager struct {
	service  *ClaimService
	handoffs infra.HandoffStore
	clock    func() time.Time
	log      zerolog.Logger
}

// NewHandoffManager creates a handoff manager.
func NewHandoffManager(service *ClaimService, handoffs infra.HandoffStore, log zerolog.Logger) *HandoffManager {
	return &HandoffManager{
		service:  service,
		handoffs: handoffs,
		clock:    time.Now,
		log:      log.With().Str("component", "handoff").Logger(),
	}
}

// SetClock overrides the time source for tests.
func (m *HandoffManager) SetClock(clock func() time.Time) {
	m.clock = clock
}

// RequestHumanReview asks for a human to take over the claim. The
// requester must currently own the claim; its status is left untouched.
func (m *HandoffManager) RequestHumanReview(ctx context.Context, claimID string, requester domain.Claimant, note string) (*domain.PendingHandoff, error) {
	return m.request(ctx, claimID, requester, domain.ClaimantHuman, note)
}

// RequestAgentAssist asks for an agent to take over the claim.
func (m *HandoffManager) RequestAgentAssist(ctx context.Context, claimID string, requester domain.Claimant, note string) (*domain.PendingHandoff, error) {
	return m.request(ctx, claimID, requester, domain.ClaimantAgent, note)
}

func (m *HandoffManager) request(ctx context.Context, claimID string, requester domain.Claimant, toKind domain.ClaimantKind, note string) (*domain.PendingHandoff, error) {
	claim, err := m.service.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !claim.IsOwnedBy(requester.ID) {
		return nil, domain.NewOpError("request-handoff", claim, domain.ErrClaimNotOwnedByRequester)
	}

	now := m.clock()
	handoff := domain.NewPendingHandoff(uuid.New().String(), claimID, *requester.Ref(), toKind, note, now)
	if err := m.handoffs.Save(handoff); err != nil {
		return nil, err
	}

	m.log.Info().Str("claim", claimID).Str("from", requester.ID).
		Str("toKind", string(toKind)).Msg("handoff requested")

	// Announce the request; the claim itself is not mutated.
	event := domain.NewEvent(domain.EventHandoff, claimID, requester.ID, claim.Status, claim.Status, "requested", now)
	event.Note = note
	m.service.bus.Emit(event)
	return handoff, nil
}

// PendingByTargetKind returns pending handoffs addressed to the given
// claimant kind, for polling by eligible acceptors.
func (m *HandoffManager) PendingByTargetKind(kind domain.ClaimantKind) ([]*domain.PendingHandoff, error) {
	return m.handoffs.PendingByTargetKind(kind)
}

// CompleteHandoff transfers claim ownership to the accepting claimant,
// carrying the claim status forward, and resolves the handoff.
func (m *HandoffManager) CompleteHandoff(ctx context.Context, handoffID string, newClaimant domain.Claimant) (*domain.Claim, error) {
	handoff, err := m.handoffs.Get(handoffID)
	if err != nil {
		return nil, err
	}
	if !handoff.IsPending() {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrHandoffAlreadyResolved, handoffID, handoff.Status)
	}
	if newClaimant.Kind != handoff.RequestedToKind {
		return nil, fmt.Errorf("%w: handoff %s requested a %s claimant",
			domain.ErrValidation, handoffID, handoff.RequestedToKind)
	}

	claim, err := m.service.Transfer(ctx, handoff.ClaimID, handoff.From, newClaimant, handoff.Note)
	if err != nil {
		return nil, err
	}

	handoff.Complete(m.clock())
	if err := m.handoffs.Save(handoff); err != nil {
		return nil, err
	}

	m.log.Info().Str("claim", claim.ID).Str("handoff", handoffID).
		Str("to", newClaimant.ID).Msg("handoff completed")
	return claim, nil
}

// CancelHandoff resolves a pending handoff without a transfer, typically
// because the claim reached a terminal state before anyone accepted.
func (m *HandoffManager) CancelHandoff(handoffID string) error {
	handoff, err := m.handoffs.Get(handoffID)
	if err != nil {
		return err
	}
	if !handoff.IsPending() {
		return fmt.Errorf("%w: %s is %s", domain.ErrHandoffAlreadyResolved, handoffID, handoff.Status)
	}

	handoff.Cancel(m.clock())
	if err := m.handoffs.Save(handoff); err != nil {
		return err
	}

	m.log.Info().Str("handoff", handoffID).Msg("handoff cancelled")
	return nil
}
