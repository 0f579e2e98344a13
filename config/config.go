package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/epeers/navgraph/internal/models"
	"github.com/epeers/navgraph/internal/returns"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var ErrInvalidEngineConfig = errors.New("invalid engine configuration")

// Config holds application configuration loaded from environment variables
type Config struct {
	PGURL      string
	SQLitePath string
	Port       string
	APIKey     string
	LogLevel   log.Level
	Engine     EngineConfig
}

// EngineConfig tunes the calculation engine. Every field has a usable default.
type EngineConfig struct {
	Workers               int           `yaml:"workers"`
	OwnershipTolerance    float64       `yaml:"ownership_tolerance"` // percentage points
	ZeroTolerance         float64       `yaml:"zero_tolerance"`
	EODOffset             int           `yaml:"eod_offset"`
	BODOffset             int           `yaml:"bod_offset"`
	FirstOfMonthOffset    int           `yaml:"first_of_month_offset"`
	DefaultOffset         int           `yaml:"default_offset"`
	NoStartOffset         int           `yaml:"no_start_offset"`
	BalancePrecedence     []string      `yaml:"balance_precedence"`
	CommitmentTypes       []string      `yaml:"commitment_types"`
	UnfundedReducingTypes []string      `yaml:"unfunded_reducing_types"`
	VehicleTimeout        time.Duration `yaml:"vehicle_timeout"`
	CancelGrace           time.Duration `yaml:"cancel_grace"`
	ProgressInterval      time.Duration `yaml:"progress_interval"`
	FailOnCycle           bool          `yaml:"fail_on_cycle"`
	DaysPerYear           float64       `yaml:"days_per_year"`
}

// DefaultEngineConfig returns the engine settings used when no file is given
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Workers:            runtime.NumCPU(),
		OwnershipTolerance: 0.01,
		ZeroTolerance:      1e-6,
		EODOffset:          returns.DefaultOffsets.EOD,
		BODOffset:          returns.DefaultOffsets.BOD,
		FirstOfMonthOffset: returns.DefaultOffsets.FirstOfMonth,
		DefaultOffset:      returns.DefaultOffsets.Default,
		NoStartOffset:      returns.DefaultOffsets.NoStart,
		BalancePrecedence: []string{
			string(models.BalanceCalculated),
			string(models.BalanceActual),
			string(models.BalanceEstimate),
			string(models.BalanceSynthetic),
		},
		CommitmentTypes: []string{
			string(models.TxnCommitment),
			string(models.TxnCommitmentAdjustment),
		},
		UnfundedReducingTypes: []string{
			string(models.TxnCapitalCall),
			string(models.TxnContribution),
		},
		CancelGrace:      5 * time.Second,
		ProgressInterval: 250 * time.Millisecond,
		DaysPerYear:      365,
	}
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first; variables already set in
// the shell take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("failed to read .env: %v", err)
	}

	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "navgraph.db"
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	level := log.InfoLevel
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		parsed, err := log.ParseLevel(s)
		if err != nil {
			return nil, fmt.Errorf("LOG_LEVEL: %w", err)
		}
		level = parsed
	}

	engine := DefaultEngineConfig()
	if path := os.Getenv("ENGINE_CONFIG"); path != "" {
		loaded, err := LoadEngineConfig(path)
		if err != nil {
			return nil, err
		}
		engine = *loaded
	}
	if err := engine.applyEnv(); err != nil {
		return nil, err
	}
	if err := engine.Validate(); err != nil {
		return nil, err
	}

	return &Config{
		PGURL:      os.Getenv("PG_URL"),
		SQLitePath: sqlitePath,
		Port:       port,
		APIKey:     os.Getenv("API_KEY"),
		LogLevel:   level,
		Engine:     engine,
	}, nil
}

// LoadEngineConfig reads a YAML engine config. Fields missing from the file keep their defaults.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine config: %w", err)
	}
	cfg := DefaultEngineConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse engine config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *EngineConfig) applyEnv() error {
	if s := os.Getenv("NAV_WORKERS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("%w: NAV_WORKERS=%q", ErrInvalidEngineConfig, s)
		}
		c.Workers = n
	}
	if s := os.Getenv("NAV_VEHICLE_TIMEOUT"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%w: NAV_VEHICLE_TIMEOUT=%q", ErrInvalidEngineConfig, s)
		}
		c.VehicleTimeout = d
	}
	return nil
}

// Validate rejects settings the engine cannot run with
func (c EngineConfig) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidEngineConfig, c.Workers)
	case c.OwnershipTolerance < 0 || c.ZeroTolerance < 0:
		return fmt.Errorf("%w: tolerances must not be negative", ErrInvalidEngineConfig)
	case c.EODOffset < 0 || c.BODOffset < 0 || c.FirstOfMonthOffset < 0 || c.DefaultOffset < 0 || c.NoStartOffset < 0:
		return fmt.Errorf("%w: offsets must not be negative", ErrInvalidEngineConfig)
	case c.VehicleTimeout < 0 || c.CancelGrace < 0:
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidEngineConfig)
	case c.DaysPerYear <= 0:
		return fmt.Errorf("%w: days_per_year must be positive", ErrInvalidEngineConfig)
	}
	return nil
}

// Offsets returns the backdating offsets in the form the returns package uses
func (c EngineConfig) Offsets() returns.Offsets {
	return returns.Offsets{
		EOD:          c.EODOffset,
		BOD:          c.BODOffset,
		FirstOfMonth: c.FirstOfMonthOffset,
		Default:      c.DefaultOffset,
		NoStart:      c.NoStartOffset,
	}
}

// Precedence ranks a balance type for duplicate resolution; lower wins.
// Types not listed rank after every listed type, Prior last of all.
func (c EngineConfig) Precedence(bt models.BalanceType) int {
	for i, name := range c.BalancePrecedence {
		if name == string(bt) {
			return i
		}
	}
	if bt == models.BalancePrior {
		return len(c.BalancePrecedence) + 1
	}
	return len(c.BalancePrecedence)
}

// IsCommitmentType reports whether t changes commitment and unfunded by its delta
func (c EngineConfig) IsCommitmentType(t models.TransactionType) bool {
	return contains(c.CommitmentTypes, string(t))
}

// ReducesUnfunded reports whether t draws down unfunded commitment by its cash flow
func (c EngineConfig) ReducesUnfunded(t models.TransactionType) bool {
	return contains(c.UnfundedReducingTypes, string(t))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
