// Command rates scrapes the posted supply rates from every registered
// protocol on every chain and prints them as JSON. Useful for eyeballing
// adapter health without running a full aggregation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/defolio/defolio/internal/adapters/chain"
	"github.com/defolio/defolio/internal/adapters/protocol"
	"github.com/defolio/defolio/internal/config"
	"github.com/defolio/defolio/internal/core/domain"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	registry := chain.NewRegistry(chain.DefaultChains(), log)
	protocols := protocol.NewRegistry(
		protocol.NewAave(registry, log),
		protocol.NewLido(registry, cfg.LidoAPR, log),
		protocol.NewEtherFi(registry, cfg.EtherFiAPR, log),
		protocol.NewUniswapV3(registry, log),
		protocol.NewMarinade(registry, cfg.MarinadeAPR, log),
	)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	var rates []domain.YieldRate
	for _, chainID := range registry.Chains() {
		for _, adapter := range protocols.ForChain(chainID) {
			scraped, err := adapter.GetYieldRates(ctx, chainID)
			if err != nil {
				log.Warn().Err(err).
					Str("protocol", adapter.Protocol().ID).
					Str("chain", string(chainID)).
					Msg("rate scrape failed")
				continue
			}
			rates = append(rates, scraped...)
		}
	}

	encoded, err := json.MarshalIndent(rates, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("encoding rates failed")
	}
	fmt.Println(string(encoded))
}
