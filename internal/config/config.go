package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the config file at the workspace root.
const FileName = "quickyel.yaml"

// Environment overrides, applied after the file is read.
const (
	EnvDatabaseURL   = "QUICKYEL_DATABASE_URL"
	EnvStorageDriver = "QUICKYEL_STORAGE_DRIVER"
	EnvRatesURL      = "QUICKYEL_RATES_URL"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config represents the top-level quickyel.yaml configuration.
type Config struct {
	Business  BusinessConfig  `yaml:"business"`
	Reporting ReportingConfig `yaml:"reporting"`
	Rates     RatesConfig     `yaml:"rates"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Import    ImportConfig    `yaml:"import"`
	Linker    LinkerConfig    `yaml:"linker"`
	Storage   StorageConfig   `yaml:"storage"`
	Git       GitConfig       `yaml:"git"`
}

// BusinessConfig identifies the business.
type BusinessConfig struct {
	Name     string `yaml:"name"`
	Province string `yaml:"province,omitempty"`
}

// ReportingConfig is the currency the books are kept in.
type ReportingConfig struct {
	Currency     string `yaml:"currency"`
	FallbackRate string `yaml:"fallback_rate"` // decimal string, e.g. "1.40"
	WindowDays   int    `yaml:"window_days"`
}

// RatesConfig points at the exchange rate feed.
type RatesConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LedgerConfig tunes duplicate lookups.
type LedgerConfig struct {
	ChunkSize int `yaml:"chunk_size"`
}

// ImportConfig controls import runs.
type ImportConfig struct {
	Workers int `yaml:"workers"`
	// FactoringSelection lists the non-fee factoring kinds imported by
	// default. Fees are always imported.
	FactoringSelection []string `yaml:"factoring_selection"`
	BankCurrency       string   `yaml:"bank_currency"`
}

// LinkerConfig controls receipt/bank matching.
type LinkerConfig struct {
	Enabled           bool   `yaml:"enabled"`
	DateToleranceDays int    `yaml:"date_tolerance_days"`
	AmountTolerance   string `yaml:"amount_tolerance"`
	VendorMatch       bool   `yaml:"vendor_match"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn,omitempty"`
}

// GitConfig controls git integration.
type GitConfig struct {
	AutoCommit  bool   `yaml:"auto_commit"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// Load reads a quickyel.yaml file from disk, then applies a .env file next to
// it (if any) and environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		c.Storage.DSN = v
		if c.Storage.Driver == DriverFile {
			c.Storage.Driver = DriverPostgres
		}
	}
	if v := os.Getenv(EnvStorageDriver); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv(EnvRatesURL); v != "" {
		c.Rates.BaseURL = v
	}
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new workspace.
func Default(businessName string) *Config {
	return &Config{
		Business: BusinessConfig{
			Name: businessName,
		},
		Reporting: ReportingConfig{
			Currency:     "CAD",
			FallbackRate: "1.40",
			WindowDays:   7,
		},
		Rates: RatesConfig{
			BaseURL: "https://www.bankofcanada.ca/valet",
			Timeout: 10 * time.Second,
		},
		Ledger: LedgerConfig{
			ChunkSize: 30,
		},
		Import: ImportConfig{
			Workers:            4,
			FactoringSelection: []string{"purchase"},
			BankCurrency:       "CAD",
		},
		Linker: LinkerConfig{
			Enabled:           true,
			DateToleranceDays: 3,
			AmountTolerance:   "0.05",
			VendorMatch:       true,
		},
		Storage: StorageConfig{
			Driver: DriverFile,
		},
		Git: GitConfig{
			AutoCommit:  true,
			AuthorName:  "quickyel",
			AuthorEmail: "import@quickyel.local",
		},
	}
}
