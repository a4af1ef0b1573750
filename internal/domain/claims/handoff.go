package claims

import "time"

// PendingHandoff is an explicit, consensual request to transfer claim
// ownership to a claimant of another kind. Unlike a steal it never fires
// involuntarily and it carries the claim status forward on completion.
type PendingHandoff struct {
	ID              string        `json:"id"`
	ClaimID         string        `json:"claimId"`
	From            ClaimantRef   `json:"from"`
	RequestedToKind ClaimantKind  `json:"requestedToKind"`
	Note            string        `json:"note,omitempty"`
	Status          HandoffStatus `json:"status"`
	CreatedAt       time.Time     `json:"createdAt"`
	ResolvedAt      *time.Time    `json:"resolvedAt,omitempty"`
}

// NewPendingHandoff creates a pending handoff request.
func NewPendingHandoff(id, claimID string, from ClaimantRef, toKind ClaimantKind, note string, at time.Time) *PendingHandoff {
	return &PendingHandoff{
		ID:              id,
		ClaimID:         claimID,
		From:            from,
		RequestedToKind: toKind,
		Note:            note,
		Status:          HandoffPending,
		CreatedAt:       at,
	}
}

// IsPending returns true while the handoff awaits an acceptor.
func (h *PendingHandoff) IsPending() bool { return h.Status == HandoffPending }

// Complete marks the handoff completed.
func (h *PendingHandoff) Complete(at time.Time) {
	h.Status = HandoffCompleted
	h.ResolvedAt = &at
}

// Cancel marks the handoff cancelled.
func (h *PendingHandoff) Cancel(at time.Time) {
	h.Status = HandoffCancelled
	h.ResolvedAt = &at
}
