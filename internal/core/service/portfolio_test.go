package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defolio/defolio/internal/adapters/cache"
	"github.com/defolio/defolio/internal/adapters/chain"
	"github.com/defolio/defolio/internal/adapters/protocol"
	"github.com/defolio/defolio/internal/core/domain"
)

const testAddress = "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045"

func testRegistry() *chain.Registry {
	return chain.NewRegistry([]domain.ChainConfig{
		{
			ID: domain.ChainEthereum, Name: "Ethereum", Family: domain.FamilyEVM,
			RPCURLs: []string{"http://unused"}, NativeSymbol: "ETH", NativeDecimals: 18,
		},
		{
			ID: domain.ChainArbitrum, Name: "Arbitrum One", Family: domain.FamilyEVM,
			RPCURLs: []string{"http://unused"}, NativeSymbol: "ETH", NativeDecimals: 18,
		},
		{
			ID: domain.ChainSolana, Name: "Solana", Family: domain.FamilySolana,
			RPCURLs: []string{"http://unused"}, NativeSymbol: "SOL", NativeDecimals: 9,
		},
	}, zerolog.Nop())
}

// stubAdapter is a canned ProtocolAdapter that records probe and read calls.
type stubAdapter struct {
	mu        sync.Mutex
	proto     domain.Protocol
	chains    []domain.ChainID
	has       bool
	positions []domain.Position
	rates     []domain.YieldRate
	readErr   error
	rateErr   error
	reads     int
}

func (s *stubAdapter) Protocol() domain.Protocol { return s.proto }

func (s *stubAdapter) SupportedChains() []domain.ChainID { return s.chains }

func (s *stubAdapter) HasPositions(context.Context, string, domain.ChainID) bool { return s.has }

func (s *stubAdapter) GetPositions(context.Context, string, domain.ChainID) ([]domain.Position, error) {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return s.positions, s.readErr
}

func (s *stubAdapter) GetYieldRates(context.Context, domain.ChainID) ([]domain.YieldRate, error) {
	return s.rates, s.rateErr
}

func (s *stubAdapter) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// stubBalances serves canned wallet balances per chain.
type stubBalances struct {
	byChain map[domain.ChainID][]domain.TokenBalance
	err     error
}

func (s *stubBalances) FetchBalances(_ context.Context, _ string, chainID domain.ChainID) ([]domain.TokenBalance, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byChain[chainID], nil
}

// stubPrices resolves from a symbol table; unknown symbols price at zero.
type stubPrices struct {
	prices map[string]float64
}

func (s *stubPrices) Resolve(_ context.Context, _ domain.ChainID, symbol, _ string) (domain.PriceQuote, error) {
	if price, ok := s.prices[symbol]; ok {
		return domain.PriceQuote{PriceUSD: price, Source: domain.SourceOracle}, nil
	}
	return domain.PriceQuote{Source: domain.SourceUnknown}, nil
}

func balance(symbol string, decimals int, formatted float64) domain.TokenBalance {
	return domain.TokenBalance{
		Address: "0x" + symbol, Symbol: symbol, Decimals: decimals,
		FormattedBalance: formatted,
	}
}

func supplyPosition(protoID string, chainID domain.ChainID, symbol string, amount, apy float64) domain.Position {
	proto := domain.Protocol{ID: protoID, Name: protoID, Category: domain.CategoryLending, EarnsYield: true}
	return domain.Position{
		ID:       domain.PositionID(protoID, chainID, symbol, domain.PositionSupply),
		Protocol: proto,
		ChainID:  chainID,
		Type:     domain.PositionSupply,
		Tokens:   []domain.TokenBalance{balance(symbol, 18, amount)},
		APY:      apy,
	}
}

func newTestPortfolioService(adapters []domain.ProtocolAdapter, balances domain.BalanceFetcher, prices domain.PriceResolver, opts ...PortfolioOption) *PortfolioService {
	return NewPortfolioService(
		testRegistry(),
		protocol.NewRegistry(adapters...),
		balances,
		prices,
		zerolog.Nop(),
		opts...,
	)
}

func TestGetPortfolioRejectsInvalidAddress(t *testing.T) {
	svc := newTestPortfolioService(nil, &stubBalances{}, &stubPrices{})

	_, err := svc.GetPortfolio(context.Background(), "not-an-address", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestGetPortfolioRejectsUnknownChain(t *testing.T) {
	svc := newTestPortfolioService(nil, &stubBalances{}, &stubPrices{})

	_, err := svc.GetPortfolio(context.Background(), testAddress, []domain.ChainID{"base"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedChain)
}

func TestGetPortfolioValuesWallet(t *testing.T) {
	balances := &stubBalances{byChain: map[domain.ChainID][]domain.TokenBalance{
		domain.ChainEthereum: {
			balance("ETH", 18, 1),
			balance("USDC", 6, 10000),
		},
	}}
	prices := &stubPrices{prices: map[string]float64{"ETH": 2500, "USDC": 1}}
	svc := newTestPortfolioService(nil, balances, prices)

	portfolio, err := svc.GetPortfolio(context.Background(), testAddress, []domain.ChainID{domain.ChainEthereum})
	require.NoError(t, err)

	assert.InDelta(t, 12500.0, portfolio.TotalValueUSD, 1e-9)
	assert.InDelta(t, 12500.0, portfolio.Wallet.TotalValueUSD, 1e-9)

	eth := portfolio.Wallet.ByChain[domain.ChainEthereum]
	require.Len(t, eth.Balances, 2)
	assert.InDelta(t, 2500.0, eth.Balances[0].ValueUSD, 1e-9)
	assert.InDelta(t, 2500.0, eth.Balances[0].PriceUSD, 1e-9)
	assert.InDelta(t, 10000.0, eth.Balances[1].ValueUSD, 1e-9)
}

func TestGetPortfolioSkipsProbeMisses(t *testing.T) {
	hit := &stubAdapter{
		proto:     domain.Protocol{ID: "hit", EarnsYield: true},
		chains:    []domain.ChainID{domain.ChainEthereum},
		has:       true,
		positions: []domain.Position{supplyPosition("hit", domain.ChainEthereum, "USDC", 100, 0.03)},
	}
	miss := &stubAdapter{
		proto:  domain.Protocol{ID: "miss"},
		chains: []domain.ChainID{domain.ChainEthereum},
		has:    false,
	}
	svc := newTestPortfolioService(
		[]domain.ProtocolAdapter{hit, miss},
		&stubBalances{},
		&stubPrices{prices: map[string]float64{"USDC": 1}},
	)

	portfolio, err := svc.GetPortfolio(context.Background(), testAddress, []domain.ChainID{domain.ChainEthereum})
	require.NoError(t, err)

	assert.Len(t, portfolio.Positions, 1)
	assert.Equal(t, 1, hit.readCount())
	assert.Equal(t, 0, miss.readCount(), "probe miss must skip the full read")
}

func TestGetPortfolioIsolatesAdapterFailures(t *testing.T) {
	healthy := &stubAdapter{
		proto:     domain.Protocol{ID: "healthy", EarnsYield: true},
		chains:    []domain.ChainID{domain.ChainEthereum},
		has:       true,
		positions: []domain.Position{supplyPosition("healthy", domain.ChainEthereum, "USDC", 500, 0.02)},
	}
	broken := &stubAdapter{
		proto:   domain.Protocol{ID: "broken"},
		chains:  []domain.ChainID{domain.ChainEthereum},
		has:     true,
		readErr: errors.New("contract call reverted"),
	}
	svc := newTestPortfolioService(
		[]domain.ProtocolAdapter{healthy, broken},
		&stubBalances{},
		&stubPrices{prices: map[string]float64{"USDC": 1}},
	)

	portfolio, err := svc.GetPortfolio(context.Background(), testAddress, []domain.ChainID{domain.ChainEthereum})
	require.NoError(t, err)

	require.Len(t, portfolio.Positions, 1)
	assert.Equal(t, "healthy", portfolio.Positions[0].Protocol.ID)
	assert.InDelta(t, 500.0, portfolio.TotalValueUSD, 1e-9)
}

func TestGetPortfolioTotalFailureReturnsEmpty(t *testing.T) {
	broken := &stubAdapter{
		proto:   domain.Protocol{ID: "broken"},
		chains:  []domain.ChainID{domain.ChainEthereum},
		has:     true,
		readErr: errors.New("rpc down"),
	}
	svc := newTestPortfolioService(
		[]domain.ProtocolAdapter{broken},
		&stubBalances{err: errors.New("rpc down")},
		&stubPrices{},
	)

	portfolio, err := svc.GetPortfolio(context.Background(), testAddress, []domain.ChainID{domain.ChainEthereum, domain.ChainArbitrum})
	require.NoError(t, err, "degraded coverage is not an error")

	assert.Equal(t, 0.0, portfolio.TotalValueUSD)
	assert.Empty(t, portfolio.Positions)
	// Every requested chain still has a zero-valued entry.
	require.Contains(t, portfolio.ByChain, domain.ChainEthereum)
	require.Contains(t, portfolio.ByChain, domain.ChainArbitrum)
	assert.Equal(t, 0.0, portfolio.ByChain[domain.ChainEthereum].TotalValueUSD)
	require.Contains(t, portfolio.Wallet.ByChain, domain.ChainArbitrum)
	assert.False(t, portfolio.FetchedAt.IsZero())
}

func TestGetPortfolioSkipsForeignFamilyChains(t *testing.T) {
	solAdapter := &stubAdapter{
		proto:  domain.Protocol{ID: "marinade"},
		chains: []domain.ChainID{domain.ChainSolana},
		has:    true,
	}
	svc := newTestPortfolioService(
		[]domain.ProtocolAdapter{solAdapter},
		&stubBalances{},
		&stubPrices{},
	)

	// EVM address requesting a Solana chain: quiet zero entry, no probes.
	portfolio, err := svc.GetPortfolio(context.Background(), testAddress, []domain.ChainID{domain.ChainSolana})
	require.NoError(t, err)
	assert.Equal(t, 0, solAdapter.readCount())
	assert.Contains(t, portfolio.ByChain, domain.ChainSolana)
	assert.Equal(t, 0.0, portfolio.TotalValueUSD)
}

func TestGetPortfolioGroupings(t *testing.T) {
	lending := &stubAdapter{
		proto:  domain.Protocol{ID: "aave-v3", Name: "Aave V3", Category: domain.CategoryLending, EarnsYield: true},
		chains: []domain.ChainID{domain.ChainEthereum, domain.ChainArbitrum},
		has:    true,
		positions: []domain.Position{
			supplyPosition("aave-v3", domain.ChainEthereum, "USDC", 1000, 0.03),
		},
	}
	svc := newTestPortfolioService(
		[]domain.ProtocolAdapter{lending},
		&stubBalances{},
		&stubPrices{prices: map[string]float64{"USDC": 1}},
	)

	portfolio, err := svc.GetPortfolio(context.Background(), testAddress, []domain.ChainID{domain.ChainEthereum, domain.ChainArbitrum})
	require.NoError(t, err)

	// Both adapter reads returned the same canned position; the groupings
	// must account for every returned position exactly once each.
	require.Len(t, portfolio.Positions, 2)

	byProto, ok := portfolio.ByProtocol["aave-v3"]
	require.True(t, ok)
	assert.Equal(t, "Aave V3", byProto.Protocol.Name)
	assert.Len(t, byProto.Positions, 2)

	byType, ok := portfolio.ByType[domain.PositionSupply]
	require.True(t, ok)
	assert.Len(t, byType.Positions, 2)
	assert.InDelta(t, 2000.0, byType.TotalValueUSD, 1e-9)

	// Empty groupings carry no entry.
	_, ok = portfolio.ByType[domain.PositionBorrow]
	assert.False(t, ok)
}

func TestGetPortfolioBorrowIsNegative(t *testing.T) {
	borrow := supplyPosition("aave-v3", domain.ChainEthereum, "USDC", 400, 0)
	borrow.Type = domain.PositionBorrow
	borrow.ID = domain.PositionID("aave-v3", domain.ChainEthereum, "USDC", domain.PositionBorrow)

	adapter := &stubAdapter{
		proto:  domain.Protocol{ID: "aave-v3", EarnsYield: true},
		chains: []domain.ChainID{domain.ChainEthereum},
		has:    true,
		positions: []domain.Position{
			supplyPosition("aave-v3", domain.ChainEthereum, "ETH", 1, 0.01),
			borrow,
		},
	}
	svc := newTestPortfolioService(
		[]domain.ProtocolAdapter{adapter},
		&stubBalances{},
		&stubPrices{prices: map[string]float64{"ETH": 2500, "USDC": 1}},
	)

	portfolio, err := svc.GetPortfolio(context.Background(), testAddress, []domain.ChainID{domain.ChainEthereum})
	require.NoError(t, err)

	// 2500 supplied minus 400 borrowed.
	assert.InDelta(t, 2100.0, portfolio.TotalValueUSD, 1e-9)

	byType := portfolio.ByType[domain.PositionBorrow]
	require.Len(t, byType.Positions, 1)
	assert.InDelta(t, -400.0, byType.Positions[0].ValueUSD, 1e-9)
}

func TestGetPortfolioPositionsSortedByID(t *testing.T) {
	adapter := &stubAdapter{
		proto:  domain.Protocol{ID: "aave-v3", EarnsYield: true},
		chains: []domain.ChainID{domain.ChainEthereum},
		has:    true,
		positions: []domain.Position{
			supplyPosition("aave-v3", domain.ChainEthereum, "zz", 1, 0),
			supplyPosition("aave-v3", domain.ChainEthereum, "aa", 1, 0),
		},
	}
	svc := newTestPortfolioService([]domain.ProtocolAdapter{adapter}, &stubBalances{}, &stubPrices{})

	portfolio, err := svc.GetPortfolio(context.Background(), testAddress, []domain.ChainID{domain.ChainEthereum})
	require.NoError(t, err)
	require.Len(t, portfolio.Positions, 2)
	assert.Less(t, portfolio.Positions[0].ID, portfolio.Positions[1].ID)
}

func TestGetPortfolioSnapshotCache(t *testing.T) {
	adapter := &stubAdapter{
		proto:     domain.Protocol{ID: "aave-v3", EarnsYield: true},
		chains:    []domain.ChainID{domain.ChainEthereum},
		has:       true,
		positions: []domain.Position{supplyPosition("aave-v3", domain.ChainEthereum, "USDC", 100, 0.03)},
	}
	store := cache.NewMemory()
	svc := newTestPortfolioService(
		[]domain.ProtocolAdapter{adapter},
		&stubBalances{},
		&stubPrices{prices: map[string]float64{"USDC": 1}},
		WithSnapshotCache(store, time.Minute),
	)
	ctx := context.Background()

	first, err := svc.GetPortfolio(ctx, testAddress, []domain.ChainID{domain.ChainEthereum})
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.readCount())

	second, err := svc.GetPortfolio(ctx, testAddress, []domain.ChainID{domain.ChainEthereum})
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.readCount(), "second call must be served from the snapshot")
	assert.Equal(t, first.TotalValueUSD, second.TotalValueUSD)
	assert.Len(t, second.Positions, 1)
}

func TestSnapshotKeyIsOrderInsensitive(t *testing.T) {
	a := snapshotKey(testAddress, []domain.ChainID{domain.ChainEthereum, domain.ChainSolana})
	b := snapshotKey(testAddress, []domain.ChainID{domain.ChainSolana, domain.ChainEthereum})
	assert.Equal(t, a, b)

	c := snapshotKey(testAddress, []domain.ChainID{domain.ChainEthereum})
	assert.NotEqual(t, a, c)
}
