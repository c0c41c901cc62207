package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/defolio/defolio/internal/adapters/cache"
	"github.com/defolio/defolio/internal/adapters/chain"
	"github.com/defolio/defolio/internal/adapters/protocol"
	"github.com/defolio/defolio/internal/core/domain"
)

const (
	// DefaultRequestTimeout bounds one aggregation end to end.
	DefaultRequestTimeout = 45 * time.Second

	// DefaultSnapshotTTL bounds reuse of a cached portfolio.
	DefaultSnapshotTTL = 2 * time.Minute
)

// PortfolioService is the top-level orchestrator: it fans balance and
// position discovery out across chains and adapters, prices the results, and
// merges them into the Portfolio read-model. Failures degrade coverage, not
// correctness: a dead chain or adapter yields an empty slice, never an
// aborted request.
type PortfolioService struct {
	chains    *chain.Registry
	protocols *protocol.Registry
	balances  domain.BalanceFetcher
	prices    domain.PriceResolver
	snapshots cache.Store // nil disables snapshot caching

	timeout     time.Duration
	snapshotTTL time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

// PortfolioOption customizes a PortfolioService.
type PortfolioOption func(*PortfolioService)

// WithRequestTimeout overrides the per-request deadline.
func WithRequestTimeout(timeout time.Duration) PortfolioOption {
	return func(s *PortfolioService) { s.timeout = timeout }
}

// WithSnapshotCache enables the (address, chain set) snapshot cache.
func WithSnapshotCache(store cache.Store, ttl time.Duration) PortfolioOption {
	return func(s *PortfolioService) {
		s.snapshots = store
		if ttl > 0 {
			s.snapshotTTL = ttl
		}
	}
}

// WithPortfolioClock injects a clock for tests.
func WithPortfolioClock(now func() time.Time) PortfolioOption {
	return func(s *PortfolioService) { s.now = now }
}

// NewPortfolioService wires the aggregator's collaborators explicitly.
func NewPortfolioService(
	chains *chain.Registry,
	protocols *protocol.Registry,
	balances domain.BalanceFetcher,
	prices domain.PriceResolver,
	log zerolog.Logger,
	opts ...PortfolioOption,
) *PortfolioService {
	s := &PortfolioService{
		chains:      chains,
		protocols:   protocols,
		balances:    balances,
		prices:      prices,
		timeout:     DefaultRequestTimeout,
		snapshotTTL: DefaultSnapshotTTL,
		now:         time.Now,
		log:         log.With().Str("component", "portfolio_service").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type chainResult struct {
	chainID   domain.ChainID
	balances  []domain.TokenBalance
	positions []domain.Position
	err       error // total failure of this chain's branch
}

// GetPortfolio discovers and values every holding of address on the given
// chains (default: all registered chains). Invalid input is rejected before
// any remote call; remote failures degrade to empty branches.
func (s *PortfolioService) GetPortfolio(ctx context.Context, address string, chainIDs []domain.ChainID) (*domain.Portfolio, error) {
	family := chain.DetectFamily(address)
	if family == "" {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, address)
	}
	if len(chainIDs) == 0 {
		chainIDs = s.chains.Chains()
	}
	for _, id := range chainIDs {
		if _, err := s.chains.Config(id); err != nil {
			return nil, err
		}
	}

	key := snapshotKey(address, chainIDs)
	if s.snapshots != nil {
		if raw, ok := s.snapshots.Get(ctx, key); ok {
			var cached domain.Portfolio
			if err := json.Unmarshal(raw, &cached); err == nil {
				s.log.Debug().Str("address", address).Msg("serving portfolio from snapshot cache")
				return &cached, nil
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := make([]chainResult, len(chainIDs))
	var wg sync.WaitGroup
	for i, id := range chainIDs {
		wg.Add(1)
		go func(i int, id domain.ChainID) {
			defer wg.Done()
			results[i] = s.fetchChain(ctx, address, id, family)
		}(i, id)
	}
	wg.Wait()

	// Partial results are discarded on timeout rather than returned
	// half-built.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("portfolio aggregation aborted: %w", err)
	}

	portfolio := s.assemble(ctx, address, chainIDs, results)

	if s.snapshots != nil {
		if raw, err := json.Marshal(portfolio); err == nil {
			s.snapshots.Set(ctx, key, raw, s.snapshotTTL)
		}
	}
	return portfolio, nil
}

// fetchChain runs one chain's branch: wallet balances concurrently with the
// adapter probe phase, then full reads for adapters whose probe hit. The
// probe phase fully completes before any full read starts, because pruning
// depends on probe results.
func (s *PortfolioService) fetchChain(ctx context.Context, address string, chainID domain.ChainID, family domain.ChainFamily) chainResult {
	result := chainResult{chainID: chainID}

	cfg, err := s.chains.Config(chainID)
	if err != nil {
		result.err = err
		return result
	}
	if cfg.Family != family {
		// The address cannot exist on this chain family; an empty branch,
		// not an error.
		return result
	}

	var balanceWG sync.WaitGroup
	var balanceErr error
	balanceWG.Add(1)
	go func() {
		defer balanceWG.Done()
		result.balances, balanceErr = s.balances.FetchBalances(ctx, address, chainID)
	}()

	adapters := s.protocols.ForChain(chainID)
	probeHits := make([]bool, len(adapters))
	var probeWG sync.WaitGroup
	for i, adapter := range adapters {
		probeWG.Add(1)
		go func(i int, adapter domain.ProtocolAdapter) {
			defer probeWG.Done()
			probeHits[i] = adapter.HasPositions(ctx, address, chainID)
		}(i, adapter)
	}
	probeWG.Wait()

	var (
		mu     sync.Mutex
		readWG sync.WaitGroup
	)
	for i, adapter := range adapters {
		if !probeHits[i] {
			continue
		}
		readWG.Add(1)
		go func(adapter domain.ProtocolAdapter) {
			defer readWG.Done()
			positions, err := adapter.GetPositions(ctx, address, chainID)
			if err != nil {
				// One failing adapter must not discard its siblings' work.
				s.log.Warn().Err(err).
					Str("chain", string(chainID)).
					Str("protocol", adapter.Protocol().ID).
					Msg("adapter read failed, dropping branch")
				return
			}
			mu.Lock()
			result.positions = append(result.positions, positions...)
			mu.Unlock()
		}(adapter)
	}
	readWG.Wait()
	balanceWG.Wait()

	if balanceErr != nil {
		s.log.Warn().Err(balanceErr).
			Str("chain", string(chainID)).
			Msg("wallet balance fetch failed, continuing without")
		result.balances = nil
	}
	return result
}

// assemble prices every holding and builds the groupings. The by-chain map
// carries an entry for every requested chain, zero-valued when empty.
func (s *PortfolioService) assemble(ctx context.Context, address string, chainIDs []domain.ChainID, results []chainResult) *domain.Portfolio {
	portfolio := &domain.Portfolio{
		Address:    address,
		ByChain:    make(map[domain.ChainID]domain.ChainGroup, len(chainIDs)),
		ByProtocol: make(map[string]domain.ProtocolGroup),
		ByType:     make(map[domain.PositionType]domain.TypeGroup),
		Wallet: domain.WalletBalances{
			ByChain: make(map[domain.ChainID]domain.ChainBalances, len(chainIDs)),
		},
		FetchedAt: s.now().UTC(),
	}
	for _, id := range chainIDs {
		portfolio.ByChain[id] = domain.ChainGroup{ChainID: id}
		portfolio.Wallet.ByChain[id] = domain.ChainBalances{ChainID: id}
	}

	for _, result := range results {
		if result.err != nil {
			s.log.Warn().Err(result.err).
				Str("chain", string(result.chainID)).
				Msg("chain branch failed, keeping zero entry")
			continue
		}

		walletGroup := portfolio.Wallet.ByChain[result.chainID]
		for _, balance := range result.balances {
			priced := s.priceBalance(ctx, result.chainID, balance)
			walletGroup.Balances = append(walletGroup.Balances, priced)
			walletGroup.TotalValueUSD += priced.ValueUSD
		}
		portfolio.Wallet.ByChain[result.chainID] = walletGroup
		portfolio.Wallet.TotalValueUSD += walletGroup.TotalValueUSD

		chainGroup := portfolio.ByChain[result.chainID]
		for _, position := range result.positions {
			priced := s.pricePosition(ctx, position)
			portfolio.Positions = append(portfolio.Positions, priced)

			chainGroup.Positions = append(chainGroup.Positions, priced)
			chainGroup.TotalValueUSD += priced.ValueUSD

			protoGroup := portfolio.ByProtocol[priced.Protocol.ID]
			protoGroup.Protocol = priced.Protocol
			protoGroup.Positions = append(protoGroup.Positions, priced)
			protoGroup.TotalValueUSD += priced.ValueUSD
			portfolio.ByProtocol[priced.Protocol.ID] = protoGroup

			typeGroup := portfolio.ByType[priced.Type]
			typeGroup.Type = priced.Type
			typeGroup.Positions = append(typeGroup.Positions, priced)
			typeGroup.TotalValueUSD += priced.ValueUSD
			portfolio.ByType[priced.Type] = typeGroup
		}
		portfolio.ByChain[result.chainID] = chainGroup
	}

	// Deterministic order across runs with unchanged inputs.
	sort.SliceStable(portfolio.Positions, func(i, j int) bool {
		return portfolio.Positions[i].ID < portfolio.Positions[j].ID
	})

	for _, group := range portfolio.ByChain {
		portfolio.TotalValueUSD += group.TotalValueUSD
	}
	portfolio.TotalValueUSD += portfolio.Wallet.TotalValueUSD
	return portfolio
}

func (s *PortfolioService) priceBalance(ctx context.Context, chainID domain.ChainID, balance domain.TokenBalance) domain.TokenBalance {
	quote, err := s.prices.Resolve(ctx, chainID, balance.Symbol, balance.Address)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", balance.Symbol).Msg("price resolution failed, leaving unpriced")
		return balance
	}
	balance.PriceUSD = quote.PriceUSD
	balance.ValueUSD = balance.FormattedBalance * quote.PriceUSD
	return balance
}

func (s *PortfolioService) pricePosition(ctx context.Context, position domain.Position) domain.Position {
	total := 0.0
	for i, token := range position.Tokens {
		priced := s.priceBalance(ctx, position.ChainID, token)
		position.Tokens[i] = priced
		total += priced.ValueUSD
	}
	if position.Type == domain.PositionBorrow {
		total = -total
	}
	position.ValueUSD = total
	return position
}

func snapshotKey(address string, chainIDs []domain.ChainID) string {
	ids := make([]string, len(chainIDs))
	for i, id := range chainIDs {
		ids[i] = string(id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("portfolio:%s:%s", strings.ToLower(address), strings.Join(ids, ","))
}
