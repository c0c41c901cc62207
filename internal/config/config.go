// Package config loads runtime settings from the environment. Every field
// has a working default so the binary runs against public RPCs with no
// configuration at all.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable the services accept.
type Config struct {
	// Per-chain RPC override lists, comma separated, primary first. Empty
	// means the built-in public endpoints.
	EthereumRPCURLs []string
	PolygonRPCURLs  []string
	ArbitrumRPCURLs []string
	SolanaRPCURLs   []string

	// RedisAddr enables the Redis cache backend when non-empty; otherwise
	// caching is in-process.
	RedisAddr     string
	RedisPassword string

	PriceTTL       time.Duration
	PortfolioTTL   time.Duration
	RequestTimeout time.Duration

	// Price oracle rate limiting.
	RateBurst  int
	RatePerSec float64

	// Yield analyzer thresholds.
	MinValueUSD    float64
	MinImprovement float64

	// Curated liquid-staking rates; protocols that post no on-chain rate.
	LidoAPR     float64
	EtherFiAPR  float64
	MarinadeAPR float64

	LogLevel string
}

// Load reads the environment. Unset or malformed values fall back to
// defaults; Load never fails.
func Load() Config {
	return Config{
		EthereumRPCURLs: envList("ETHEREUM_RPC_URLS"),
		PolygonRPCURLs:  envList("POLYGON_RPC_URLS"),
		ArbitrumRPCURLs: envList("ARBITRUM_RPC_URLS"),
		SolanaRPCURLs:   envList("SOLANA_RPC_URLS"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		PriceTTL:       envDuration("PRICE_TTL", 5*time.Minute),
		PortfolioTTL:   envDuration("PORTFOLIO_TTL", 2*time.Minute),
		RequestTimeout: envDuration("REQUEST_TIMEOUT", 45*time.Second),

		RateBurst:  envInt("PRICE_RATE_BURST", 10),
		RatePerSec: envFloat("PRICE_RATE_PER_SEC", 0.5),

		MinValueUSD:    envFloat("YIELD_MIN_VALUE_USD", 100),
		MinImprovement: envFloat("YIELD_MIN_IMPROVEMENT", 0.005),

		LidoAPR:     envFloat("LIDO_APR", 0.029),
		EtherFiAPR:  envFloat("ETHERFI_APR", 0.032),
		MarinadeAPR: envFloat("MARINADE_APR", 0.072),

		LogLevel: envDefault("LOG_LEVEL", "info"),
	}
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	// An explicit zero is a valid setting; only malformed or negative values
	// fall back.
	if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 {
		return v
	}
	return fallback
}
