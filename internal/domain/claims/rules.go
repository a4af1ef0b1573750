package claims

// validTransitions defines the claim state machine. Any transition not
// listed here is not representable.
var validTransitions = map[ClaimStatus][]ClaimStatus{
	StatusAvailable: {
		StatusClaimed,
	},
	StatusClaimed: {
		StatusInProgress,
		StatusCompleted,
		StatusAvailable, // release, or agent expiry requeue
		StatusAbandoned,
		StatusExpired,
		StatusClaimed, // steal resets ownership
	},
	StatusInProgress: {
		StatusBlocked,
		StatusCompleted,
		StatusAvailable,
		StatusAbandoned,
		StatusExpired,
		StatusClaimed, // steal
	},
	StatusBlocked: {
		StatusInProgress, // unblock
		StatusCompleted,
		StatusAvailable,
		StatusAbandoned,
		StatusExpired,
		StatusClaimed, // steal
	},
	// Terminal states have no outgoing transitions.
	StatusCompleted: {},
	StatusExpired:   {},
	StatusAbandoned: {},
}

// CanTransition checks whether the state machine permits moving a claim
// from one status to another.
func CanTransition(from, to ClaimStatus) bool {
	for _, valid := range validTransitions[from] {
		if valid == to {
			return true
		}
	}
	return false
}

// ValidTransitions returns the permitted target statuses from a status.
func ValidTransitions(from ClaimStatus) []ClaimStatus {
	return validTransitions[from]
}

// OwnedStatuses are the statuses an expiry sweep and the work-stealing
// coordinator consider active ownership.
func OwnedStatuses() []ClaimStatus {
	return []ClaimStatus{StatusClaimed, StatusInProgress, StatusBlocked}
}

// ExpiryOutcome returns the status a stale claim moves to when the sweep
// expires it. Agent work is retryable and goes back to the pool; human
// work requires a deliberate re-claim.
func ExpiryOutcome(kind ClaimantKind) ClaimStatus {
	if kind == ClaimantHuman {
		return StatusExpired
	}
	return StatusAvailable
}
