package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Config holds process-wide settings loaded from the environment.
// VAT rate and rounding tolerance apply to every orchestrator in the process;
// per-transaction overrides are intentionally not supported.
type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// VATRate is the VAT-inclusive rate as a decimal string, e.g. "0.12".
	VATRate string `envconfig:"VAT_RATE" default:"0.12"`

	// RoundingToleranceCents is the largest residual (in cents) a journal
	// entry builder may absorb onto its designated balancing line. Anything
	// larger is rejected as a real imbalance.
	RoundingToleranceCents int `envconfig:"ROUNDING_TOLERANCE_CENTS" default:"1"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if _, err := decimal.NewFromString(cfg.VATRate); err != nil {
		return nil, fmt.Errorf("invalid VAT_RATE %q: %w", cfg.VATRate, err)
	}
	if cfg.RoundingToleranceCents < 0 {
		return nil, fmt.Errorf("ROUNDING_TOLERANCE_CENTS must be >= 0, got %d", cfg.RoundingToleranceCents)
	}
	return &cfg, nil
}

// VAT returns the parsed VAT rate. Load has already validated the string.
func (c *Config) VAT() decimal.Decimal {
	rate, _ := decimal.NewFromString(c.VATRate)
	return rate
}
