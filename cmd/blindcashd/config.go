// config.go - Configuration management for the blindcash daemon
package main

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"blindcash/internal/ecash"
	"blindcash/internal/random"
)

// Config represents the application configuration
type Config struct {
	// Authority
	BankName string `yaml:"bank_name"`
	KeyBits  int    `yaml:"key_bits"`

	// Coin protocol
	RISLength  int      `yaml:"ris_length"`
	ShareHash  string   `yaml:"share_hash"`
	Payer      string   `yaml:"payer"`
	CoinAmount uint64   `yaml:"coin_amount"`
	Merchants  []string `yaml:"merchants"`

	// Cut-and-choose signing
	CoverNames []string `yaml:"cover_names"`

	// Logging
	LogLevel     string `yaml:"log_level"`
	LogFile      string `yaml:"log_file"`
	AuditLogPath string `yaml:"audit_log_path"`

	// Performance
	MaxConcurrency int `yaml:"max_concurrency"`

	// Deposit rate limiting, per merchant
	DepositTokens        int `yaml:"deposit_tokens"`
	DepositRefillRate    int `yaml:"deposit_refill_rate"`
	DepositRefillSeconds int `yaml:"deposit_refill_seconds"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		BankName:   "bank",
		KeyBits:    2048,
		RISLength:  ecash.DefaultRISLength,
		ShareHash:  ecash.HashSHA256,
		Payer:      "alice",
		CoinAmount: 20,
		Merchants:  []string{"merchant-a", "merchant-b"},
		CoverNames: []string{
			"James Bond",
			"Jason Bourne",
			"Ethan Hunt",
			"Natasha Romanoff",
			"Jack Ryan",
			"Sydney Bristow",
			"George Smiley",
			"Napoleon Solo",
			"Aaron Cross",
			"Evelyn Salt",
		},
		LogLevel:             "info",
		LogFile:              "",
		AuditLogPath:         "audit.log",
		MaxConcurrency:       4,
		DepositTokens:        10,
		DepositRefillRate:    1,
		DepositRefillSeconds: 1,
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		config := DefaultConfig()
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.Wrap(err, "failed to decode config file")
		}
		return config, nil
	}

	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, errors.Wrap(err, "failed to save default config")
	}
	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.KeyBits < 1024 {
		return errors.New("key_bits must be at least 1024")
	}
	if c.RISLength < 1 {
		return errors.New("ris_length must be positive")
	}
	if !slices.Contains(ecash.HashNames(), c.ShareHash) {
		return errors.Errorf("share_hash must be one of %v", ecash.HashNames())
	}
	if c.Payer == "" {
		return errors.New("payer must be set")
	}
	if c.CoinAmount == 0 {
		return errors.New("coin_amount must be positive")
	}
	if len(c.Merchants) < 1 {
		return errors.New("at least one merchant is required")
	}
	if len(c.CoverNames) < 2 || len(c.CoverNames) > random.MaxRange {
		return errors.Errorf("cover_names must hold between 2 and %d entries", random.MaxRange)
	}
	if c.MaxConcurrency <= 0 {
		return errors.New("max_concurrency must be positive")
	}
	if c.DepositTokens <= 0 || c.DepositRefillRate <= 0 || c.DepositRefillSeconds <= 0 {
		return errors.New("deposit rate limit settings must be positive")
	}
	return nil
}
