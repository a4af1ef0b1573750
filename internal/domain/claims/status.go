// Package claims provides the domain model for the claim coordination engine.
package claims

// ClaimStatus represents the status of a claim.
type ClaimStatus string

const (
	StatusAvailable  ClaimStatus = "available"
	StatusClaimed    ClaimStatus = "claimed"
	StatusInProgress ClaimStatus = "in-progress"
	StatusBlocked    ClaimStatus = "blocked"
	StatusCompleted  ClaimStatus = "completed"
	StatusReleased   ClaimStatus = "released"
	StatusExpired    ClaimStatus = "expired"
	StatusAbandoned  ClaimStatus = "abandoned"
)

// IsOwned returns true if the status represents a claim currently held by a
// claimant.
func (s ClaimStatus) IsOwned() bool {
	return s == StatusClaimed || s == StatusInProgress || s == StatusBlocked
}

// IsTerminal returns true if the status permits no further transitions.
func (s ClaimStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusAbandoned
}

// Valid returns true for a known status value.
func (s ClaimStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusClaimed, StatusInProgress, StatusBlocked,
		StatusCompleted, StatusReleased, StatusExpired, StatusAbandoned:
		return true
	}
	return false
}

// ClaimType represents the kind of QE work behind a claim.
type ClaimType string

const (
	TypeCoverageGap         ClaimType = "coverage-gap"
	TypeFlakyTest           ClaimType = "flaky-test"
	TypeDefectInvestigation ClaimType = "defect-investigation"
	TypeTestReview          ClaimType = "test-review"
)

// Valid returns true for a known claim type.
func (t ClaimType) Valid() bool {
	switch t {
	case TypeCoverageGap, TypeFlakyTest, TypeDefectInvestigation, TypeTestReview:
		return true
	}
	return false
}

// Priority represents a claim priority tier.
type Priority string

const (
	PriorityP0 Priority = "p0"
	PriorityP1 Priority = "p1"
	PriorityP2 Priority = "p2"
	PriorityP3 Priority = "p3"
)

// Weight returns a numeric weight for priority comparison; higher is more
// urgent.
func (p Priority) Weight() int {
	switch p {
	case PriorityP0:
		return 4
	case PriorityP1:
		return 3
	case PriorityP2:
		return 2
	case PriorityP3:
		return 1
	default:
		return 0
	}
}

// Valid returns true for a known priority tier.
func (p Priority) Valid() bool {
	return p.Weight() > 0
}

// HandoffStatus represents the status of a pending handoff.
type HandoffStatus string

const (
	HandoffPending   HandoffStatus = "pending"
	HandoffCompleted HandoffStatus = "completed"
	HandoffCancelled HandoffStatus = "cancelled"
)
