// Package claimengine provides the public API of the claim coordination
// engine.
//
// Example:
//
//	engine, err := claimengine.New(claimengine.DefaultConfig(), logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Shutdown()
//
//	engine.Register(claimengine.Claimant{
//	    ID: "agent-1", Kind: claimengine.ClaimantAgent, Domain: "api",
//	})
//	engine.Start()
package claimengine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	app "github.com/proffesor-for-testing/agentic-qe-sub013/internal/application/claims"
	domain "github.com/proffesor-for-testing/agentic-qe-sub013/internal/domain/claims"
	infra "github.com/proffesor-for-testing/agentic-qe-sub013/internal/infrastructure/claims"
	"github.com/proffesor-for-testing/agentic-qe-sub013/internal/infrastructure/events"
	"github.com/proffesor-for-testing/agentic-qe-sub013/internal/shared"
)

// Re-exported domain types.
type (
	Claim          = domain.Claim
	Claimant       = domain.Claimant
	ClaimantRef    = domain.ClaimantRef
	ClaimStatus    = domain.ClaimStatus
	ClaimType      = domain.ClaimType
	Priority       = domain.Priority
	PendingHandoff = domain.PendingHandoff
	Event          = domain.Event
	EventKind      = domain.EventKind
	ClaimSpec      = infra.ClaimSpec
	Filter         = infra.Filter
	Config         = shared.Config
)

// Re-exported enum values.
const (
	ClaimantAgent = domain.ClaimantAgent
	ClaimantHuman = domain.ClaimantHuman

	StatusAvailable  = domain.StatusAvailable
	StatusClaimed    = domain.StatusClaimed
	StatusInProgress = domain.StatusInProgress
	StatusBlocked    = domain.StatusBlocked
	StatusCompleted  = domain.StatusCompleted
	StatusExpired    = domain.StatusExpired
	StatusAbandoned  = domain.StatusAbandoned

	TypeCoverageGap         = domain.TypeCoverageGap
	TypeFlakyTest           = domain.TypeFlakyTest
	TypeDefectInvestigation = domain.TypeDefectInvestigation
	TypeTestReview          = domain.TypeTestReview

	PriorityP0 = domain.PriorityP0
	PriorityP1 = domain.PriorityP1
	PriorityP2 = domain.PriorityP2
	PriorityP3 = domain.PriorityP3
)

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config { return shared.DefaultConfig() }

// Engine wires the claim store, service, tracker, background cycles and
// handoff manager into one unit with a single lifecycle.
type Engine struct {
	store    infra.ClaimStore
	bus      *events.Bus
	tracker  *app.ActivityTracker
	service  *app.ClaimService
	stealing *app.WorkStealingCoordinator
	expiry   *app.ExpirySweeper
	handoffs *app.HandoffManager
}

// New builds an engine from config.
func New(config Config, log zerolog.Logger) (*Engine, error) {
	store, err := openStore(config.Storage)
	if err != nil {
		return nil, err
	}

	bus := events.New()
	tracker := app.NewActivityTracker()

	policy := app.DefaultPolicy()
	if config.Lease.AgentTTL > 0 {
		policy.AgentTTL = config.Lease.AgentTTL
	}
	if config.Lease.HumanTTL > 0 {
		policy.HumanTTL = config.Lease.HumanTTL
	}
	policy.RequeueAbandoned = config.Lease.RequeueAbandoned

	service := app.NewClaimService(store, bus, tracker, policy, log)
	stealing := app.NewWorkStealingCoordinator(service, store, tracker, app.StealingConfig{
		Interval:          config.Stealing.Interval,
		IdleThreshold:     config.Stealing.IdleThreshold,
		StaleThreshold:    config.Stealing.StaleThreshold,
		AllowCrossDomain:  config.Stealing.AllowCrossDomain,
		MaxStealsPerCycle: config.Stealing.MaxStealsPerCycle,
		CycleTimeout:      config.Stealing.CycleTimeout,
	}, log)
	expiry := app.NewExpirySweeper(service, app.ExpiryConfig{
		Interval:     config.Expiry.Interval,
		CycleTimeout: config.Expiry.CycleTimeout,
	}, log)
	handoffs := app.NewHandoffManager(service, infra.NewMemoryHandoffStore(), log)

	return &Engine{
		store:    store,
		bus:      bus,
		tracker:  tracker,
		service:  service,
		stealing: stealing,
		expiry:   expiry,
		handoffs: handoffs,
	}, nil
}

func openStore(config shared.StorageConfig) (infra.ClaimStore, error) {
	switch config.Backend {
	case shared.StorageMemory, "":
		return infra.NewMemoryClaimStore(), nil
	case shared.StorageSQLite:
		return infra.NewSQLiteClaimStore(config.SQLitePath)
	case shared.StoragePostgres:
		return infra.NewPostgresClaimStore(context.Background(), infra.PostgresConfig{
			Host:     config.Postgres.Host,
			Port:     config.Postgres.Port,
			User:     config.Postgres.User,
			Password: config.Postgres.Password,
			Database: config.Postgres.Database,
			SSL:      config.Postgres.SSL,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", config.Backend)
	}
}

// Service returns the claim service.
func (e *Engine) Service() *app.ClaimService { return e.service }

// Handoffs returns the handoff manager.
func (e *Engine) Handoffs() *app.HandoffManager { return e.handoffs }

// Stealing returns the work-stealing coordinator.
func (e *Engine) Stealing() *app.WorkStealingCoordinator { return e.stealing }

// Expiry returns the expiry sweeper.
func (e *Engine) Expiry() *app.ExpirySweeper { return e.expiry }

// Tracker returns the claimant activity registry.
func (e *Engine) Tracker() *app.ActivityTracker { return e.tracker }

// Bus returns the domain event bus for observers.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Register adds a claimant to the activity registry.
func (e *Engine) Register(claimant Claimant) {
	e.tracker.Register(claimant, time.Now())
}

// Start launches the background cycles.
func (e *Engine) Start() {
	e.stealing.Start()
	e.expiry.Start()
}

// Shutdown stops the background cycles, closes the bus and the store.
func (e *Engine) Shutdown() error {
	e.stealing.Stop()
	e.expiry.Stop()
	e.bus.Close()
	return e.store.Close()
}
