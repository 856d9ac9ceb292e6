// Package config loads client settings from a YAML file overlaid by
// environment variables, and parses Archipelago connection strings.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"pharcryption.gg/internal/readiness"
)

type Config struct {
	Address  string `yaml:"address" env:"PHARCRYPTION_ADDRESS"`
	Username string `yaml:"username" env:"PHARCRYPTION_USERNAME"`
	Password string `yaml:"password" env:"PHARCRYPTION_PASSWORD"`

	// Barrier is "delay" (wait SettleDelay) or "signal" (wait for the data
	// package of every game).
	Barrier     string        `yaml:"barrier" env:"PHARCRYPTION_BARRIER"`
	SettleDelay time.Duration `yaml:"settle_delay" env:"PHARCRYPTION_SETTLE_DELAY"`

	PurchaseCooldown time.Duration `yaml:"purchase_cooldown" env:"PHARCRYPTION_PURCHASE_COOLDOWN"`
	TickInterval     time.Duration `yaml:"tick_interval" env:"PHARCRYPTION_TICK_INTERVAL"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"PHARCRYPTION_HANDSHAKE_TIMEOUT"`

	// JournalDir and IndexDB are optional; empty disables them.
	JournalDir string `yaml:"journal_dir" env:"PHARCRYPTION_JOURNAL_DIR"`
	IndexDB    string `yaml:"index_db" env:"PHARCRYPTION_INDEX_DB"`
}

func Default() Config {
	return Config{
		Barrier:          "delay",
		SettleDelay:      readiness.DefaultDelay,
		PurchaseCooldown: time.Second,
		TickInterval:     time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// PHARCRYPTION_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ParseEnv overlays environment variables onto target. Unset variables leave
// fields untouched.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ReadinessBarrier maps Barrier and SettleDelay to a barrier.
func (c Config) ReadinessBarrier() (readiness.Barrier, error) {
	switch c.Barrier {
	case "", "delay":
		if c.SettleDelay < 0 {
			return nil, fmt.Errorf("settle_delay %s: negative", c.SettleDelay)
		}
		return readiness.Delay(c.SettleDelay), nil
	default:
		return readiness.Parse(c.Barrier)
	}
}

// Endpoint validates the login fields and parses Address.
func (c Config) Endpoint() (Address, error) {
	addr, err := ParseAddress(c.Address)
	if err != nil {
		return Address{}, err
	}
	if c.Username == "" {
		return Address{}, fmt.Errorf("username: %w", ErrMissingField)
	}
	return addr, nil
}
