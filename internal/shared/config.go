// Package shared provides configuration types for the claim engine.
package shared

import "time"

// StorageBackend selects a ClaimStore implementation.
type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StorageSQLite   StorageBackend = "sqlite"
	StoragePostgres StorageBackend = "postgres"
)

// StorageConfig selects and configures the durable backend.
type StorageConfig struct {
	Backend    StorageBackend `json:"backend" mapstructure:"backend"`
	SQLitePath string         `json:"sqlitePath" mapstructure:"sqlite_path"`

	Postgres PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// PostgresConfig mirrors the connection settings of the postgres store.
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	User     string `json:"user" mapstructure:"user"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSL      bool   `json:"ssl" mapstructure:"ssl"`
}

// LeaseConfig holds per-kind TTL defaults and the abandon requeue policy.
type LeaseConfig struct {
	AgentTTL         time.Duration `json:"agentTtl" mapstructure:"agent_ttl"`
	HumanTTL         time.Duration `json:"humanTtl" mapstructure:"human_ttl"`
	RequeueAbandoned bool          `json:"requeueAbandoned" mapstructure:"requeue_abandoned"`
}

// StealingConfig holds the work-stealing cycle parameters.
type StealingConfig struct {
	Interval          time.Duration `json:"interval" mapstructure:"interval"`
	IdleThreshold     time.Duration `json:"idleThreshold" mapstructure:"idle_threshold"`
	StaleThreshold    time.Duration `json:"staleThreshold" mapstructure:"stale_threshold"`
	AllowCrossDomain  bool          `json:"allowCrossDomain" mapstructure:"allow_cross_domain"`
	MaxStealsPerCycle int           `json:"maxStealsPerCycle" mapstructure:"max_steals_per_cycle"`
	CycleTimeout      time.Duration `json:"cycleTimeout" mapstructure:"cycle_timeout"`
}

// ExpiryConfig holds the expiry sweep parameters.
type ExpiryConfig struct {
	Interval     time.Duration `json:"interval" mapstructure:"interval"`
	CycleTimeout time.Duration `json:"cycleTimeout" mapstructure:"cycle_timeout"`
}

// Config is the engine configuration surface.
type Config struct {
	Storage  StorageConfig  `json:"storage" mapstructure:"storage"`
	Lease    LeaseConfig    `json:"lease" mapstructure:"lease"`
	Stealing StealingConfig `json:"stealing" mapstructure:"stealing"`
	Expiry   ExpiryConfig   `json:"expiry" mapstructure:"expiry"`
	LogLevel string         `json:"logLevel" mapstructure:"log_level"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			Backend:    StorageMemory,
			SQLitePath: ".data/claims.db",
		},
		Lease: LeaseConfig{
			AgentTTL: 5 * time.Minute,
			HumanTTL: time.Hour,
		},
		Stealing: StealingConfig{
			Interval:          30 * time.Second,
			IdleThreshold:     time.Minute,
			MaxStealsPerCycle: 10,
			CycleTimeout:      20 * time.Second,
		},
		Expiry: ExpiryConfig{
			Interval:     time.Minute,
			CycleTimeout: 30 * time.Second,
		},
		LogLevel: "info",
	}
}
