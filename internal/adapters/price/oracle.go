package price

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/defolio/defolio/internal/adapters/chain"
	"github.com/defolio/defolio/internal/core/domain"
)

// ErrNoFeed means no oracle feed is configured for (symbol, chain).
var ErrNoFeed = errors.New("no oracle feed for symbol on chain")

// maxFeedAge rejects oracle answers that have not updated recently. Chainlink
// USD feeds heartbeat at one hour or faster; a day-old answer means the feed
// is dead.
const maxFeedAge = 24 * time.Hour

var aggregatorABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(`[
		{"inputs":[],"name":"latestRoundData","outputs":[{"name":"roundId","type":"uint80"},{"name":"answer","type":"int256"},{"name":"startedAt","type":"uint256"},{"name":"updatedAt","type":"uint256"},{"name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
	]`))
	if err != nil {
		panic(fmt.Sprintf("bad aggregator ABI: %v", err))
	}
	return parsed
}()

// OracleReader reads the latest USD price for a symbol from an on-chain feed.
type OracleReader interface {
	LatestPrice(ctx context.Context, chainID domain.ChainID, symbol string) (float64, error)
}

// ChainlinkReader resolves prices from Chainlink aggregator contracts through
// the chain registry's failover path.
type ChainlinkReader struct {
	registry *chain.Registry
	feeds    map[feedKey]common.Address
	log      zerolog.Logger
}

// NewChainlinkReader builds a reader over the default feed table.
func NewChainlinkReader(registry *chain.Registry, log zerolog.Logger) *ChainlinkReader {
	return &ChainlinkReader{
		registry: registry,
		feeds:    chainlinkFeeds,
		log:      log.With().Str("component", "chainlink_reader").Logger(),
	}
}

// LatestPrice reads latestRoundData from the configured aggregator and
// normalizes the answer by the feed's declared decimal precision.
func (r *ChainlinkReader) LatestPrice(ctx context.Context, chainID domain.ChainID, symbol string) (float64, error) {
	feed, ok := r.feeds[feedKey{Chain: chainID, Symbol: strings.ToUpper(symbol)}]
	if !ok {
		return 0, fmt.Errorf("%w: %s on %s", ErrNoFeed, symbol, chainID)
	}

	var price float64
	err := r.registry.WithEVM(ctx, chainID, func(ctx context.Context, client *chain.EVMClient) error {
		var decimals uint8
		if err := client.Call(ctx, aggregatorABI, feed, "decimals", []interface{}{&decimals}); err != nil {
			return err
		}

		var (
			roundID, answer, startedAt, updatedAt, answeredIn *big.Int
		)
		outs := []interface{}{&roundID, &answer, &startedAt, &updatedAt, &answeredIn}
		if err := client.Call(ctx, aggregatorABI, feed, "latestRoundData", outs); err != nil {
			return err
		}

		if answer.Sign() <= 0 {
			return fmt.Errorf("feed %s reported non-positive answer", feed.Hex())
		}
		updated := time.Unix(updatedAt.Int64(), 0)
		if time.Since(updated) > maxFeedAge {
			return fmt.Errorf("feed %s stale, last updated %s", feed.Hex(), updated)
		}

		answerF, _ := new(big.Float).SetInt(answer).Float64()
		price = answerF / math.Pow10(int(decimals))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return price, nil
}
