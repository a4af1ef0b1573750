// Package commands provides CLI command implementations.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/proffesor-for-testing/agentic-qe-sub013/internal/shared"
)

// Flags bound by the root command.
var (
	ConfigFile string
	LogLevel   string
)

// InitConfig wires viper to the config file and environment.
func InitConfig() {
	if ConfigFile != "" {
		viper.SetConfigFile(ConfigFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".claimd"))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CLAIMD")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config is fine; defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && ConfigFile != "" {
			fmt.Fprintf(os.Stderr, "read config: %v\n", err)
		}
	}
}

func setDefaults() {
	defaults := shared.DefaultConfig()

	viper.SetDefault("storage.backend", string(defaults.Storage.Backend))
	viper.SetDefault("storage.sqlite_path", defaults.Storage.SQLitePath)

	viper.SetDefault("lease.agent_ttl", defaults.Lease.AgentTTL)
	viper.SetDefault("lease.human_ttl", defaults.Lease.HumanTTL)
	viper.SetDefault("lease.requeue_abandoned", defaults.Lease.RequeueAbandoned)

	viper.SetDefault("stealing.interval", defaults.Stealing.Interval)
	viper.SetDefault("stealing.idle_threshold", defaults.Stealing.IdleThreshold)
	viper.SetDefault("stealing.stale_threshold", defaults.Stealing.StaleThreshold)
	viper.SetDefault("stealing.allow_cross_domain", defaults.Stealing.AllowCrossDomain)
	viper.SetDefault("stealing.max_steals_per_cycle", defaults.Stealing.MaxStealsPerCycle)
	viper.SetDefault("stealing.cycle_timeout", defaults.Stealing.CycleTimeout)

	viper.SetDefault("expiry.interval", defaults.Expiry.Interval)
	viper.SetDefault("expiry.cycle_timeout", defaults.Expiry.CycleTimeout)

	viper.SetDefault("log_level", defaults.LogLevel)
}

// LoadConfig reads the effective configuration.
func LoadConfig() (shared.Config, error) {
	var cfg shared.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return shared.DefaultConfig(), err
	}
	return cfg, nil
}

// NewLogger builds the process logger from config and flags.
func NewLogger(cfg shared.Config) zerolog.Logger {
	level := cfg.LogLevel
	if LogLevel != "" {
		level = LogLevel
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(parsed).With().Timestamp().Logger()
}
