package claims

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	domain "github.com/proffesor-for-testing/agentic-qe-sub013/internal/domain/claims"
	infra "github.com/proffesor-for-testing/agentic-qe-sub013/internal/infrastructure/claims"
)

// StealingConfig configures the work-stealing coordinator.
type StealingConfig struct {
	// Interval between reconciliation cycles.
	Interval time.Duration

	// IdleThreshold is how long a claimant must be inactive (with zero
	// active claims) to be offered stolen work.
	IdleThreshold time.Duration

	// StaleThreshold, when set, additionally requires a claim's inactivity
	// to exceed it before the claim is eligible; the per-claim lease is
	// always required.
	StaleThreshold time.Duration

	// AllowCrossDomain lets an idle claimant receive stale work from
	// another domain when its own domain has none.
	AllowCrossDomain bool

	// MaxStealsPerCycle bounds reassignments per cycle. Zero means no cap.
	MaxStealsPerCycle int

	// CycleTimeout bounds a single cycle.
	CycleTimeout time.Duration
}

// DefaultStealingConfig returns the default coordinator configuration.
func DefaultStealingConfig() StealingConfig {
	return StealingConfig{
		Interval:          30 * time.Second,
		IdleThreshold:     time.Minute,
		MaxStealsPerCycle: 10,
		CycleTimeout:      20 * time.Second,
	}
}

// CycleStats summarizes one reconciliation cycle.
type CycleStats struct {
	IdleClaimants int
	StaleClaims   int
	Attempted     int
	Stolen        int
	Conflicts     int
	Skipped       bool // another cycle was still in flight
}

// WorkStealingCoordinator periodically matches idle claimants to stale
// claims and reassigns them through ClaimService.Steal. Cycles are
// single-flight: a new cycle never starts while the previous one runs.
type WorkStealingCoordinator struct {
	service *ClaimService
	store   infra.ClaimStore
	tracker *ActivityTracker
	config  StealingConfig
	clock   func() time.Time
	log     zerolog.Logger

	runMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkStealingCoordinator creates a coordinator.
func NewWorkStealingCoordinator(service *ClaimService, store infra.ClaimStore, tracker *ActivityTracker, config StealingConfig, log zerolog.Logger) *WorkStealingCoordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkStealingCoordinator{
		service: service,
		store:   store,
		tracker: tracker,
		config:  config,
		clock:   time.Now,
		log:     log.With().Str("component", "work-stealing").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetClock overrides the time source for tests.
func (c *WorkStealingCoordinator) SetClock(clock func() time.Time) {
	c.clock = clock
}

// Start begins the background reconciliation loop.
func (c *WorkStealingCoordinator) Start() {
	c.wg.Add(1)
	go c.loop()
}

// Stop cancels the loop and waits for the in-flight cycle to finish. A
// cycle is cancellable between claims, never mid-mutation.
func (c *WorkStealingCoordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}

func (c *WorkStealingCoordinator) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			ctx := c.ctx
			cancel := context.CancelFunc(func() {})
			if c.config.CycleTimeout > 0 {
				ctx, cancel = context.WithTimeout(c.ctx, c.config.CycleTimeout)
			}
			if _, err := c.RunCycle(ctx); err != nil {
				c.log.Warn().Err(err).Msg("steal cycle failed")
			}
			cancel()
		}
	}
}

// RunCycle executes one reconciliation cycle. Per-claim failures are
// isolated: a conflict means the claim was touched or completed
// concurrently and is simply skipped.
func (c *WorkStealingCoordinator) RunCycle(ctx context.Context) (CycleStats, error) {
	if !c.runMu.TryLock() {
		return CycleStats{Skipped: true}, nil
	}
	defer c.runMu.Unlock()

	now := c.clock()
	stats := CycleStats{}

	idle := c.tracker.IdleClaimants(c.config.IdleThreshold, now)
	stats.IdleClaimants = len(idle)
	if len(idle) == 0 {
		return stats, nil
	}

	stale, err := c.store.FindStale(ctx, now)
	if err != nil {
		return stats, err
	}
	if c.config.StaleThreshold > 0 {
		filtered := stale[:0]
		for _, claim := range stale {
			if claim.Staleness(now) > c.config.StaleThreshold {
				filtered = append(filtered, claim)
			}
		}
		stale = filtered
	}
	stats.StaleClaims = len(stale)
	if len(stale) == 0 {
		return stats, nil
	}

	// Priority first, then the longest-stalled work, oldest claim on ties.
	sort.SliceStable(stale, func(i, j int) bool {
		wi, wj := stale[i].Priority.Weight(), stale[j].Priority.Weight()
		if wi != wj {
			return wi > wj
		}
		si, sj := stale[i].Staleness(now), stale[j].Staleness(now)
		if si != sj {
			return si > sj
		}
		return stale[i].CreatedAt.Before(stale[j].CreatedAt)
	})

	matched := make(map[string]bool, len(stale))
	for _, claimant := range idle {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if c.config.MaxStealsPerCycle > 0 && stats.Attempted >= c.config.MaxStealsPerCycle {
			break
		}

		claim := pickClaim(stale, matched, claimant.Domain, c.config.AllowCrossDomain)
		if claim == nil {
			continue
		}
		// First match wins: even a failed attempt keeps the claim out of
		// this cycle's working set.
		matched[claim.ID] = true
		stats.Attempted++

		if _, err := c.service.Steal(ctx, claim.ID, claimant, "stale"); err != nil {
			if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrInvalidTransition) {
				stats.Conflicts++
				c.log.Debug().Str("claim", claim.ID).Str("claimant", claimant.ID).
					Msg("steal lost race, skipping")
			} else {
				c.log.Warn().Err(err).Str("claim", claim.ID).
					Str("claimant", claimant.ID).Msg("steal failed")
			}
			continue
		}
		stats.Stolen++
	}

	if stats.Attempted > 0 {
		c.log.Info().Int("idle", stats.IdleClaimants).Int("stale", stats.StaleClaims).
			Int("stolen", stats.Stolen).Int("conflicts", stats.Conflicts).
			Msg("steal cycle done")
	}
	return stats, nil
}

// pickClaim selects the first unmatched stale claim for a claimant:
// same-domain first, any domain if cross-domain stealing is enabled.
func pickClaim(stale []*domain.Claim, matched map[string]bool, claimantDomain string, crossDomain bool) *domain.Claim {
	for _, claim := range stale {
		if !matched[claim.ID] && claim.Domain == claimantDomain {
			return claim
		}
	}
	if !crossDomain {
		return nil
	}
	for _, claim := range stale {
		if !matched[claim.ID] {
			return claim
		}
	}
	return nil
}
