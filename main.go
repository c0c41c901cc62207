package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/defolio/defolio/internal/adapters/cache"
	"github.com/defolio/defolio/internal/adapters/chain"
	"github.com/defolio/defolio/internal/adapters/price"
	"github.com/defolio/defolio/internal/adapters/protocol"
	"github.com/defolio/defolio/internal/config"
	"github.com/defolio/defolio/internal/core/domain"
	"github.com/defolio/defolio/internal/core/service"
	"github.com/defolio/defolio/pkg/version"
)

func main() {
	_ = godotenv.Load() // Load .env if present

	var (
		chainsFlag  = flag.String("chains", "", "comma-separated chain ids (default: all)")
		analyzeFlag = flag.Bool("analyze", false, "run yield analysis on top of the portfolio")
		versionFlag = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.String())
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <wallet-address>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	address := flag.Arg(0)

	cfg := config.Load()
	log := newLogger(cfg.LogLevel)

	ctx := context.Background()

	registry := chain.NewRegistry(chainConfigs(cfg), log)

	store := newStore(ctx, cfg, log)
	priceService := price.NewService(
		price.NewChainlinkReader(registry, log),
		store,
		log,
		price.WithTTL(cfg.PriceTTL),
		price.WithRateLimit(cfg.RatePerSec, cfg.RateBurst),
	)

	protocols := protocol.NewRegistry(
		protocol.NewAave(registry, log),
		protocol.NewLido(registry, cfg.LidoAPR, log),
		protocol.NewEtherFi(registry, cfg.EtherFiAPR, log),
		protocol.NewUniswapV3(registry, log),
		protocol.NewMarinade(registry, cfg.MarinadeAPR, log),
	)

	portfolioService := service.NewPortfolioService(
		registry,
		protocols,
		service.NewBalanceService(registry, log),
		priceService,
		log,
		service.WithRequestTimeout(cfg.RequestTimeout),
		service.WithSnapshotCache(store, cfg.PortfolioTTL),
	)

	portfolio, err := portfolioService.GetPortfolio(ctx, address, parseChains(*chainsFlag))
	if err != nil {
		log.Fatal().Err(err).Msg("portfolio aggregation failed")
	}

	output := struct {
		Portfolio *domain.Portfolio     `json:"portfolio"`
		Analysis  *domain.YieldAnalysis `json:"yield_analysis,omitempty"`
	}{Portfolio: portfolio}

	if *analyzeFlag {
		yieldService := service.NewYieldService(
			protocols,
			log,
			service.WithMinValueUSD(cfg.MinValueUSD),
			service.WithMinImprovement(cfg.MinImprovement),
		)
		analysis, err := yieldService.Analyze(ctx, portfolio, address)
		if err != nil {
			log.Fatal().Err(err).Msg("yield analysis failed")
		}
		output.Analysis = analysis
	}

	encoded, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("encoding output failed")
	}
	fmt.Println(string(encoded))
}

func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(parsed).
		With().Timestamp().Logger()
}

// chainConfigs applies env RPC overrides onto the built-in chain set.
func chainConfigs(cfg config.Config) []domain.ChainConfig {
	overrides := map[domain.ChainID][]string{
		domain.ChainEthereum: cfg.EthereumRPCURLs,
		domain.ChainPolygon:  cfg.PolygonRPCURLs,
		domain.ChainArbitrum: cfg.ArbitrumRPCURLs,
		domain.ChainSolana:   cfg.SolanaRPCURLs,
	}
	configs := chain.DefaultChains()
	for i, c := range configs {
		if urls := overrides[c.ID]; len(urls) > 0 {
			configs[i].RPCURLs = urls
		}
	}
	return configs
}

func newStore(ctx context.Context, cfg config.Config, log zerolog.Logger) cache.Store {
	if cfg.RedisAddr == "" {
		return cache.NewMemory()
	}
	store, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, log)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).
			Msg("redis unreachable, falling back to in-process cache")
		return cache.NewMemory()
	}
	return store
}

func parseChains(raw string) []domain.ChainID {
	if raw == "" {
		return nil
	}
	var ids []domain.ChainID
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, domain.ChainID(part))
		}
	}
	return ids
}
