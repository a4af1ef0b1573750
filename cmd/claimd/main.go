// Package main provides the CLI entry point for claimd.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/proffesor-for-testing/agentic-qe-sub013/cmd/claimd/commands"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "claimd",
	Short: "claimd - claim-based QE work coordination",
	Long: `claimd coordinates exclusive, leased ownership of QE work units
between autonomous agents and humans.

It provides:
  - Atomic claim / release / complete operations with optimistic locking
  - Stale-claim detection and work stealing to idle claimants
  - Explicit human/agent ownership handoffs
  - A domain event stream for dashboards and audit`,
	Version: version,
}

func init() {
	cobra.OnInitialize(commands.InitConfig)
	rootCmd.PersistentFlags().StringVar(&commands.ConfigFile, "config", "", "config file (default $HOME/.claimd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&commands.LogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ClaimsCmd)
}
