package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.PriceTTL != 5*time.Minute {
		t.Errorf("expected default price TTL 5m, got %s", cfg.PriceTTL)
	}
	if cfg.RateBurst != 10 {
		t.Errorf("expected default rate burst 10, got %d", cfg.RateBurst)
	}
	if cfg.MinValueUSD != 100 {
		t.Errorf("expected default value floor 100, got %f", cfg.MinValueUSD)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if len(cfg.EthereumRPCURLs) != 0 {
		t.Errorf("expected no RPC overrides, got %v", cfg.EthereumRPCURLs)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ETHEREUM_RPC_URLS", "https://a.example, https://b.example ,")
	t.Setenv("PRICE_TTL", "90s")
	t.Setenv("YIELD_MIN_IMPROVEMENT", "0.01")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	if len(cfg.EthereumRPCURLs) != 2 || cfg.EthereumRPCURLs[0] != "https://a.example" {
		t.Errorf("unexpected RPC override parse: %v", cfg.EthereumRPCURLs)
	}
	if cfg.PriceTTL != 90*time.Second {
		t.Errorf("expected price TTL 90s, got %s", cfg.PriceTTL)
	}
	if cfg.MinImprovement != 0.01 {
		t.Errorf("expected min improvement 0.01, got %f", cfg.MinImprovement)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.LogLevel)
	}
}

func TestLoadExplicitZero(t *testing.T) {
	t.Setenv("YIELD_MIN_IMPROVEMENT", "0")
	t.Setenv("YIELD_MIN_VALUE_USD", "0")

	cfg := Load()

	if cfg.MinImprovement != 0 {
		t.Errorf("explicit zero improvement should stick, got %f", cfg.MinImprovement)
	}
	if cfg.MinValueUSD != 0 {
		t.Errorf("explicit zero floor should stick, got %f", cfg.MinValueUSD)
	}
}

func TestLoadMalformedFallsBack(t *testing.T) {
	t.Setenv("PRICE_TTL", "soon")
	t.Setenv("PRICE_RATE_BURST", "-3")
	t.Setenv("YIELD_MIN_VALUE_USD", "lots")

	cfg := Load()

	if cfg.PriceTTL != 5*time.Minute {
		t.Errorf("malformed TTL should fall back, got %s", cfg.PriceTTL)
	}
	if cfg.RateBurst != 10 {
		t.Errorf("negative burst should fall back, got %d", cfg.RateBurst)
	}
	if cfg.MinValueUSD != 100 {
		t.Errorf("malformed floor should fall back, got %f", cfg.MinValueUSD)
	}
}
