package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Logging  LoggingConfig
	Ledger   LedgerConfig
	Rollback RollbackConfig
	Probes   ProbesConfig
	Metrics  MetricsConfig
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// For SQLite
	Path string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// LedgerConfig contains version ledger configuration
type LedgerConfig struct {
	// DocumentPath is the live configuration document the ledger owns
	DocumentPath string
	Author       string
	// Retention guards for cleanup
	RetentionKeep int
	RetentionDays int
	// Cron expression for the retention worker, empty disables it
	CleanupSchedule string
}

// RollbackConfig contains rollback manager configuration
type RollbackConfig struct {
	// MinFreeDiskBytes is the free-space floor for the disk precondition
	MinFreeDiskBytes uint64
	StepTimeout      time.Duration
	// TestCommand runs for test-kind rollback steps, empty skips them
	TestCommand string
}

// ProbesConfig contains impact tester configuration
type ProbesConfig struct {
	WorkDirRoot    string
	DefaultTimeout time.Duration
	// BatteryPath is a YAML file listing the scenario probes to run
	BatteryPath string
}

// MetricsConfig contains metrics listener configuration
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors as it's optional)
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "confledger"),
			User:            getEnv("DB_USER", ""),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			Path:            getEnv("DB_PATH", "./confledger.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Ledger: LedgerConfig{
			DocumentPath:    getEnv("LEDGER_DOCUMENT_PATH", "./config.yaml"),
			Author:          getEnv("LEDGER_AUTHOR", "confledger"),
			RetentionKeep:   getEnvAsInt("LEDGER_RETENTION_KEEP", 10),
			RetentionDays:   getEnvAsInt("LEDGER_RETENTION_DAYS", 30),
			CleanupSchedule: getEnv("LEDGER_CLEANUP_SCHEDULE", ""),
		},
		Rollback: RollbackConfig{
			MinFreeDiskBytes: uint64(getEnvAsInt("ROLLBACK_MIN_FREE_DISK_BYTES", 100*1024*1024)),
			StepTimeout:      getEnvAsDuration("ROLLBACK_STEP_TIMEOUT", 2*time.Minute),
			TestCommand:      getEnv("ROLLBACK_TEST_COMMAND", ""),
		},
		Probes: ProbesConfig{
			WorkDirRoot:    getEnv("PROBES_WORKDIR", os.TempDir()),
			DefaultTimeout: getEnvAsDuration("PROBES_DEFAULT_TIMEOUT", 30*time.Second),
			BatteryPath:    getEnv("PROBES_BATTERY_PATH", "./probes.yaml"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", false),
			Addr:    getEnv("METRICS_ADDR", ":9090"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Ledger.DocumentPath == "" {
		return fmt.Errorf("ledger document path must be set")
	}
	if c.Ledger.RetentionKeep < 1 {
		return fmt.Errorf("retention must keep at least one version")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
