package claims

import "time"

// ClaimantKind represents the kind of claimant.
type ClaimantKind string

const (
	ClaimantAgent ClaimantKind = "agent"
	ClaimantHuman ClaimantKind = "human"
)

// Valid returns true for a known claimant kind.
func (k ClaimantKind) Valid() bool {
	return k == ClaimantAgent || k == ClaimantHuman
}

// Per-kind inactivity lease defaults. Agents are expected to heartbeat
// frequently; humans get a long leash.
const (
	AgentTTL = 5 * time.Minute
	HumanTTL = time.Hour
)

// DefaultTTL returns the inactivity lease for a claimant kind.
func DefaultTTL(kind ClaimantKind) time.Duration {
	if kind == ClaimantHuman {
		return HumanTTL
	}
	return AgentTTL
}

// Claimant is an entity that can hold claims: an autonomous agent or a
// human. It is a tagged variant, not a hierarchy; AgentType is meaningful
// only when Kind is agent.
type Claimant struct {
	ID        string       `json:"id"`
	Kind      ClaimantKind `json:"kind"`
	Name      string       `json:"name"`
	Domain    string       `json:"domain"`
	AgentType string       `json:"agentType,omitempty"`
}

// IsAgent returns true if the claimant is an agent.
func (c Claimant) IsAgent() bool { return c.Kind == ClaimantAgent }

// IsHuman returns true if the claimant is a human.
func (c Claimant) IsHuman() bool { return c.Kind == ClaimantHuman }

// Ref returns the reference stored on claims. Claims reference claimants by
// identity, they never own them.
func (c Claimant) Ref() *ClaimantRef {
	return &ClaimantRef{ID: c.ID, Kind: c.Kind, Name: c.Name, Domain: c.Domain}
}

// ClaimantRef is the claimant identity embedded in a claim record.
type ClaimantRef struct {
	ID     string       `json:"id"`
	Kind   ClaimantKind `json:"kind"`
	Name   string       `json:"name,omitempty"`
	Domain string       `json:"domain,omitempty"`
}
