// Package claims provides persistence for the claim coordination engine.
package claims

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	domain "github.com/proffesor-for-testing/agentic-qe-sub013/internal/domain/claims"
)

// ClaimSpec describes a claim to create.
type ClaimSpec struct {
	Type     domain.ClaimType
	Priority domain.Priority
	Domain   string
	Title    string
	Metadata map[string]any
}

// Filter narrows a List query. Zero values match everything.
type Filter struct {
	Status   []domain.ClaimStatus
	Domain   string
	Priority domain.Priority
	Claimant string
}

// Mutation is applied to a claim inside an atomic update. It must be pure:
// it may be re-applied by callers after a conflict re-read.
type Mutation func(*domain.Claim) error

// ClaimStore is the single source of truth for claim existence and
// exclusivity. Update is the only way state changes; it is a
// compare-and-set keyed on the claim version and fails with
// domain.ErrConflict when the stored version moved.
type ClaimStore interface {
	Create(ctx context.Context, spec ClaimSpec, now time.Time) (*domain.Claim, error)
	Get(ctx context.Context, id string) (*domain.Claim, error)
	Update(ctx context.Context, id string, expectedVersion int, mutate Mutation) (*domain.Claim, error)
	List(ctx context.Context, filter Filter) ([]*domain.Claim, error)
	FindStale(ctx context.Context, now time.Time) ([]*domain.Claim, error)
	Close() error
}

// newClaim validates a spec and builds the initial record. Shared by all
// backends so they agree on required fields and initial state.
func newClaim(spec ClaimSpec, now time.Time) (*domain.Claim, error) {
	if !spec.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown claim type %q", domain.ErrValidation, spec.Type)
	}
	if !spec.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", domain.ErrValidation, spec.Priority)
	}
	if spec.Domain == "" {
		return nil, fmt.Errorf("%w: domain is required", domain.ErrValidation)
	}
	if spec.Title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}

	return &domain.Claim{
		ID:        uuid.New().String(),
		Type:      spec.Type,
		Status:    domain.StatusAvailable,
		Priority:  spec.Priority,
		Domain:    spec.Domain,
		Title:     spec.Title,
		Metadata:  spec.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}, nil
}

// matches applies a filter to a claim.
func (f Filter) matches(c *domain.Claim) bool {
	if len(f.Status) > 0 {
		ok := false
		for _, s := range f.Status {
			if c.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Domain != "" && c.Domain != f.Domain {
		return false
	}
	if f.Priority != "" && c.Priority != f.Priority {
		return false
	}
	if f.Claimant != "" && (c.Claimant == nil || c.Claimant.ID != f.Claimant) {
		return false
	}
	return true
}

// sortClaims orders claims by priority descending, then CreatedAt
// ascending. All backends return List results in this order.
func sortClaims(cs []*domain.Claim) {
	sort.SliceStable(cs, func(i, j int) bool {
		wi, wj := cs[i].Priority.Weight(), cs[j].Priority.Weight()
		if wi != wj {
			return wi > wj
		}
		return cs[i].CreatedAt.Before(cs[j].CreatedAt)
	})
}
