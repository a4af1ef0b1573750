package claims

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ExpiryConfig configures the expiry sweeper.
type ExpiryConfig struct {
	Interval     time.Duration
	CycleTimeout time.Duration
}

// DefaultExpiryConfig returns the default sweeper configuration.
func DefaultExpiryConfig() ExpiryConfig {
	return ExpiryConfig{
		Interval:     time.Minute,
		CycleTimeout: 30 * time.Second,
	}
}

// ExpirySweeper periodically expires claims whose inactivity lease has
// lapsed. It runs independently of the work-stealing coordinator with the
// same single-flight contract.
type ExpirySweeper struct {
	service *ClaimService
	config  ExpiryConfig
	clock   func() time.Time
	log     zerolog.Logger

	runMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExpirySweeper creates a sweeper.
func NewExpirySweeper(service *ClaimService, config ExpiryConfig, log zerolog.Logger) *ExpirySweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &ExpirySweeper{
		service: service,
		config:  config,
		clock:   time.Now,
		log:     log.With().Str("component", "expiry-sweep").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetClock overrides the time source for tests.
func (e *ExpirySweeper) SetClock(clock func() time.Time) {
	e.clock = clock
}

// Start begins the background sweep loop.
func (e *ExpirySweeper) Start() {
	e.wg.Add(1)
	go e.loop()
}

// Stop cancels the loop and waits for the in-flight sweep to finish.
func (e *ExpirySweeper) Stop() {
	e.cancel()
	e.wg.Wait()
}

func (e *ExpirySweeper) loop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			ctx := e.ctx
			cancel := context.CancelFunc(func() {})
			if e.config.CycleTimeout > 0 {
				ctx, cancel = context.WithTimeout(e.ctx, e.config.CycleTimeout)
			}
			if _, err := e.RunSweep(ctx); err != nil {
				e.log.Warn().Err(err).Msg("expiry sweep failed")
			}
			cancel()
		}
	}
}

// RunSweep executes one sweep, returning how many claims were expired.
func (e *ExpirySweeper) RunSweep(ctx context.Context) (int, error) {
	if !e.runMu.TryLock() {
		return 0, nil
	}
	defer e.runMu.Unlock()

	expired, err := e.service.ExpireStale(ctx, e.clock())
	if expired > 0 {
		e.log.Info().Int("expired", expired).Msg("expiry sweep done")
	}
	return expired, err
}
