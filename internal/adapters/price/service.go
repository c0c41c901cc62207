package price

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/defolio/defolio/internal/adapters/cache"
	"github.com/defolio/defolio/internal/core/domain"
)

const (
	// DefaultTTL bounds how long a resolved price is reused.
	DefaultTTL = 5 * time.Minute

	// Default token-bucket parameters for outbound oracle reads. Public RPC
	// endpoints rate-limit aggressively; callers block rather than fail.
	DefaultRateBurst  = 10
	DefaultRatePerSec = 0.5
)

// Service resolves USD prices through the fixed tier order. Every resolution,
// including a synthesized or unknown price, is written to the cache so
// repeated lookups within the TTL cost zero remote calls.
type Service struct {
	oracle  OracleReader
	store   cache.Store
	limiter *rate.Limiter
	ttl     time.Duration
	log     zerolog.Logger

	pegs        map[string]float64
	derivatives map[string]Derivative
}

// Option customizes a Service.
type Option func(*Service)

// WithTTL overrides the cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithRateLimit overrides the token bucket gating oracle reads.
func WithRateLimit(perSec float64, burst int) Option {
	return func(s *Service) { s.limiter = rate.NewLimiter(rate.Limit(perSec), burst) }
}

// WithStablePegs replaces the stablecoin peg table.
func WithStablePegs(pegs map[string]float64) Option {
	return func(s *Service) { s.pegs = pegs }
}

// WithDerivativePremiums replaces the base-asset premium table. Keys are
// derivative symbols mapped to their base symbol and premium.
func WithDerivativePremiums(premiums map[string]Derivative) Option {
	return func(s *Service) {
		s.derivatives = make(map[string]Derivative, len(premiums))
		for sym, p := range premiums {
			s.derivatives[strings.ToUpper(sym)] = p
		}
	}
}

// NewService builds the tiered resolver.
func NewService(oracle OracleReader, store cache.Store, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		oracle:      oracle,
		store:       store,
		limiter:     rate.NewLimiter(rate.Limit(DefaultRatePerSec), DefaultRateBurst),
		ttl:         DefaultTTL,
		log:         log.With().Str("component", "price_service").Logger(),
		pegs:        defaultStablePegs,
		derivatives: defaultDerivatives,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type cachedQuote struct {
	PriceUSD float64            `json:"price_usd"`
	Source   domain.PriceSource `json:"source"`
}

func priceKey(chainID domain.ChainID, address string) string {
	return fmt.Sprintf("price:%s:%s", chainID, strings.ToLower(address))
}

// Resolve walks the tiers in fixed order, short-circuiting on the first
// success. A zero price with SourceUnknown is a legitimate terminal outcome;
// the only error cases are context cancellation and limiter failure.
func (s *Service) Resolve(ctx context.Context, chainID domain.ChainID, symbol, address string) (domain.PriceQuote, error) {
	key := priceKey(chainID, address)

	// Tier 1: cache.
	if raw, ok := s.store.Get(ctx, key); ok {
		var cached cachedQuote
		if err := json.Unmarshal(raw, &cached); err == nil {
			return domain.PriceQuote{PriceUSD: cached.PriceUSD, Source: domain.SourceCache}, nil
		}
		// Corrupt entry: fall through and overwrite it.
	}

	quote, err := s.resolveFresh(ctx, chainID, symbol)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	s.writeCache(ctx, key, quote)
	return quote, nil
}

func (s *Service) resolveFresh(ctx context.Context, chainID domain.ChainID, symbol string) (domain.PriceQuote, error) {
	upper := strings.ToUpper(strings.TrimSpace(symbol))

	// Tier 2: on-chain oracle feed.
	price, err := s.oraclePrice(ctx, chainID, upper)
	if err == nil {
		return domain.PriceQuote{PriceUSD: price, Source: domain.SourceOracle}, nil
	}
	if ctx.Err() != nil {
		return domain.PriceQuote{}, ctx.Err()
	}
	s.log.Debug().Err(err).Str("symbol", upper).Str("chain", string(chainID)).
		Msg("oracle tier missed")

	// Tier 3: stablecoin peg.
	if peg, ok := s.pegs[upper]; ok {
		return domain.PriceQuote{PriceUSD: peg, Source: domain.SourceSynthetic}, nil
	}

	// Tier 4: correlated derivative over its base asset's oracle price.
	if deriv, ok := s.derivatives[upper]; ok {
		basePrice, err := s.oraclePrice(ctx, chainID, deriv.Base)
		if err != nil && chainID != domain.ChainEthereum {
			// Base feeds are densest on mainnet.
			basePrice, err = s.oraclePrice(ctx, domain.ChainEthereum, deriv.Base)
		}
		if err == nil {
			return domain.PriceQuote{PriceUSD: basePrice * deriv.Premium, Source: domain.SourceSynthetic}, nil
		}
		if ctx.Err() != nil {
			return domain.PriceQuote{}, ctx.Err()
		}
		s.log.Debug().Err(err).Str("symbol", upper).Str("base", deriv.Base).
			Msg("derivative tier missed")
	}

	// Tier 5: unknown. Cached too, so known-unpriced tokens stop costing
	// remote calls.
	return domain.PriceQuote{PriceUSD: 0, Source: domain.SourceUnknown}, nil
}

func (s *Service) oraclePrice(ctx context.Context, chainID domain.ChainID, symbol string) (float64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}
	return s.oracle.LatestPrice(ctx, chainID, symbol)
}

func (s *Service) writeCache(ctx context.Context, key string, quote domain.PriceQuote) {
	raw, err := json.Marshal(cachedQuote{PriceUSD: quote.PriceUSD, Source: quote.Source})
	if err != nil {
		return
	}
	s.store.Set(ctx, key, raw, s.ttl)
}
