package config

import (
	"errors"
	"time"
)

// Config represents the migration orchestrator configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Regions   RegionsConfig   `mapstructure:"regions"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig represents the PostgreSQL catalog configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RegionsConfig names the two sides of the recovery pair
type RegionsConfig struct {
	Origin   string `mapstructure:"origin"`
	Recovery string `mapstructure:"recovery"`
}

// SchedulerConfig represents bounded-concurrency scheduler configuration
type SchedulerConfig struct {
	MaxConcurrentOperations int           `mapstructure:"max_concurrent_operations"`
	PollInterval            time.Duration `mapstructure:"poll_interval"`
	// OperationTimeout of zero disables per-operation deadlines
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Database == "" {
		return errors.New("database.database is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Regions.Origin == "" {
		return errors.New("regions.origin is required")
	}
	if c.Regions.Recovery == "" {
		return errors.New("regions.recovery is required")
	}
	if c.Regions.Origin == c.Regions.Recovery {
		return errors.New("regions.origin and regions.recovery must differ")
	}
	if c.Scheduler.MaxConcurrentOperations <= 0 {
		return errors.New("scheduler.max_concurrent_operations must be positive")
	}
	if c.Scheduler.PollInterval <= 0 {
		return errors.New("scheduler.poll_interval must be positive")
	}
	if c.Scheduler.OperationTimeout < 0 {
		return errors.New("scheduler.operation_timeout must not be negative")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "tenant_catalog",
			User:            "orchestrator",
			Password:        "",
			MaxConnections:  20,
			MinConnections:  5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Regions: RegionsConfig{
			Origin:   "",
			Recovery: "",
		},
		Scheduler: SchedulerConfig{
			MaxConcurrentOperations: 50,
			PollInterval:            5 * time.Second,
			OperationTimeout:        0,
			ProbeTimeout:            30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
