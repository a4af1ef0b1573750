package claims

import (
	"time"

	"github.com/google/uuid"
)

// EventKind identifies a domain event on the observer stream.
type EventKind string

const (
	EventCreated           EventKind = "claim:created"
	EventClaimed           EventKind = "claim:claimed"
	EventReleased          EventKind = "claim:released"
	EventCompleted         EventKind = "claim:completed"
	EventAbandoned         EventKind = "claim:abandoned"
	EventExpired           EventKind = "claim:expired"
	EventStolen            EventKind = "claim:stolen"
	EventHandoff           EventKind = "claim:handoff"
	EventStatusChanged     EventKind = "claim:status-changed"
	EventPriorityEscalated EventKind = "claim:priority-escalated"
)

// Event is a domain event emitted after a committed claim mutation.
// Delivery is at-least-once; subscribers must be idempotent.
type Event struct {
	ID             string      `json:"id"`
	Kind           EventKind   `json:"kind"`
	ClaimID        string      `json:"claimId"`
	Actor          string      `json:"actor"`
	PreviousStatus ClaimStatus `json:"previousStatus,omitempty"`
	NewStatus      ClaimStatus `json:"newStatus,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	Note           string      `json:"note,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// NewEvent creates a domain event.
func NewEvent(kind EventKind, claimID, actor string, prev, next ClaimStatus, reason string, at time.Time) Event {
	return Event{
		ID:             uuid.New().String(),
		Kind:           kind,
		ClaimID:        claimID,
		Actor:          actor,
		PreviousStatus: prev,
		NewStatus:      next,
		Reason:         reason,
		Timestamp:      at,
	}
}

// EventHandler handles domain events delivered in-process.
type EventHandler func(event Event)
