package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/proffesor-for-testing/agentic-qe-sub013/pkg/claimengine"
)

// RunCmd runs the coordination daemon: the expiry sweep and the
// work-stealing cycle against the configured store.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the claim coordination daemon",
	Long: `Run the claim coordination daemon.

Starts the expiry sweep and the work-stealing reconciliation loop against
the configured claim store and blocks until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := NewLogger(cfg)

		engine, err := claimengine.New(cfg, log)
		if err != nil {
			return fmt.Errorf("create engine: %w", err)
		}
		defer engine.Shutdown()

		// Log the observer stream for audit.
		engine.Bus().OnAll(func(event claimengine.Event) {
			log.Info().
				Str("event", string(event.Kind)).
				Str("claim", event.ClaimID).
				Str("actor", event.Actor).
				Str("from", string(event.PreviousStatus)).
				Str("to", string(event.NewStatus)).
				Msg("claim event")
		})

		engine.Start()
		log.Info().
			Str("backend", string(cfg.Storage.Backend)).
			Dur("stealInterval", cfg.Stealing.Interval).
			Dur("expiryInterval", cfg.Expiry.Interval).
			Msg("claimd running")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("shutting down")
		return nil
	},
}
