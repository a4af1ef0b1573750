package claims

import "time"

// Transition is one entry in a claim's append-only history log.
type Transition struct {
	From      ClaimStatus `json:"from"`
	To        ClaimStatus `json:"to"`
	Actor     string      `json:"actor"`
	Reason    string      `json:"reason,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Claim is an exclusive, leased unit of ownership over a piece of QE work.
type Claim struct {
	ID             string         `json:"id"`
	Type           ClaimType      `json:"type"`
	Status         ClaimStatus    `json:"status"`
	Priority       Priority       `json:"priority"`
	Domain         string         `json:"domain"`
	Title          string         `json:"title"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Claimant       *ClaimantRef   `json:"claimant,omitempty"`
	ClaimedAt      time.Time      `json:"claimedAt,omitempty"`
	LastActivityAt time.Time      `json:"lastActivityAt,omitempty"`
	TTL            time.Duration  `json:"ttl"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	Version        int            `json:"version"`
	History        []Transition   `json:"history,omitempty"`
}

// Record appends a transition to the history and moves the claim to the
// target status. History is append-only; existing entries are never
// rewritten.
func (c *Claim) Record(to ClaimStatus, actor, reason string, at time.Time) {
	c.History = append(c.History, Transition{
		From:      c.Status,
		To:        to,
		Actor:     actor,
		Reason:    reason,
		Timestamp: at,
	})
	c.Status = to
	c.UpdatedAt = at
}

// IsOwned returns true while a claimant holds the claim.
func (c *Claim) IsOwned() bool { return c.Status.IsOwned() }

// IsTerminal returns true once the claim reached a terminal status.
func (c *Claim) IsTerminal() bool { return c.Status.IsTerminal() }

// IsOwnedBy returns true if the claim is currently held by the given
// claimant.
func (c *Claim) IsOwnedBy(claimantID string) bool {
	return c.Claimant != nil && c.Claimant.ID == claimantID
}

// IsStale reports whether the claim's inactivity lease has lapsed at the
// given instant. Only owned claims can be stale.
func (c *Claim) IsStale(now time.Time) bool {
	if !c.IsOwned() || c.TTL <= 0 {
		return false
	}
	return now.Sub(c.LastActivityAt) > c.TTL
}

// Staleness returns how far past its last activity the claim is.
func (c *Claim) Staleness(now time.Time) time.Duration {
	return now.Sub(c.LastActivityAt)
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate persisted state in place.
func (c *Claim) Clone() *Claim {
	cp := *c
	if c.Claimant != nil {
		ref := *c.Claimant
		cp.Claimant = &ref
	}
	if c.Metadata != nil {
		cp.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	if c.History != nil {
		cp.History = make([]Transition, len(c.History))
		copy(cp.History, c.History)
	}
	return &cp
}
