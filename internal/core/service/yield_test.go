package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defolio/defolio/internal/adapters/protocol"
	"github.com/defolio/defolio/internal/core/domain"
)

func rate(protoID string, chainID domain.ChainID, symbol string, apy float64) domain.YieldRate {
	return domain.YieldRate{
		ProtocolID:  protoID,
		ChainID:     chainID,
		AssetSymbol: symbol,
		Type:        domain.PositionSupply,
		APY:         apy,
		APR:         apy,
	}
}

func yieldPortfolio(positions []domain.Position, wallet map[domain.ChainID][]domain.TokenBalance) *domain.Portfolio {
	p := &domain.Portfolio{
		Address:   testAddress,
		Positions: positions,
		ByChain:   map[domain.ChainID]domain.ChainGroup{},
		Wallet:    domain.WalletBalances{ByChain: map[domain.ChainID]domain.ChainBalances{}},
		FetchedAt: time.Now(),
	}
	for _, pos := range positions {
		group := p.ByChain[pos.ChainID]
		group.ChainID = pos.ChainID
		group.Positions = append(group.Positions, pos)
		p.ByChain[pos.ChainID] = group
	}
	for chainID, balances := range wallet {
		if _, ok := p.ByChain[chainID]; !ok {
			p.ByChain[chainID] = domain.ChainGroup{ChainID: chainID}
		}
		p.Wallet.ByChain[chainID] = domain.ChainBalances{ChainID: chainID, Balances: balances}
	}
	return p
}

func pricedPosition(protoID string, chainID domain.ChainID, symbol string, valueUSD, apy float64) domain.Position {
	pos := supplyPosition(protoID, chainID, symbol, valueUSD, apy)
	pos.Tokens[0].PriceUSD = 1
	pos.Tokens[0].ValueUSD = valueUSD
	pos.ValueUSD = valueUSD
	return pos
}

func pricedBalance(symbol string, valueUSD float64) domain.TokenBalance {
	b := balance(symbol, 18, valueUSD)
	b.PriceUSD = 1
	b.ValueUSD = valueUSD
	return b
}

func TestAnalyzeFindsBetterRate(t *testing.T) {
	// $10,000 of USDC earning 3% while another protocol posts 8%.
	held := pricedPosition("aave-v3", domain.ChainEthereum, "USDC", 10000, 0.03)
	better := &stubAdapter{
		proto:  domain.Protocol{ID: "other-lender", Name: "Other Lender", EarnsYield: true},
		chains: []domain.ChainID{domain.ChainEthereum},
		rates:  []domain.YieldRate{rate("other-lender", domain.ChainEthereum, "USDT", 0.08)},
	}
	svc := NewYieldService(protocol.NewRegistry(better), zerolog.Nop())

	analysis, err := svc.Analyze(context.Background(), yieldPortfolio([]domain.Position{held}, nil), testAddress)
	require.NoError(t, err)

	require.Len(t, analysis.Opportunities, 1)
	opp := analysis.Opportunities[0]
	assert.Equal(t, held.ID, opp.Position.ID)
	require.Len(t, opp.BetterAlternatives, 1)

	alt := opp.BetterAlternatives[0]
	assert.Equal(t, "other-lender", alt.ProtocolID)
	assert.Equal(t, "Other Lender", alt.ProtocolName)
	assert.InDelta(t, 0.05, alt.APYImprovement, 1e-9)
	assert.InDelta(t, 500.0, alt.AnnualGainUSD, 1e-9)
	assert.Equal(t, domain.RiskHigh, alt.Risk, "unknown protocols default to high risk")

	assert.InDelta(t, 500.0, opp.PotentialGainUSD, 1e-9)
	assert.InDelta(t, 300.0, analysis.TotalCurrentYield, 1e-9)
	assert.InDelta(t, 800.0, analysis.TotalPotentialYield, 1e-9)
}

func TestAnalyzeImprovementThreshold(t *testing.T) {
	held := pricedPosition("aave-v3", domain.ChainEthereum, "USDC", 10000, 0.030)
	marginal := &stubAdapter{
		proto:  domain.Protocol{ID: "marginal", EarnsYield: true},
		chains: []domain.ChainID{domain.ChainEthereum},
		// 0.4 points better: under the 0.5-point threshold, so not flagged.
		rates: []domain.YieldRate{rate("marginal", domain.ChainEthereum, "USDC", 0.034)},
	}
	svc := NewYieldService(protocol.NewRegistry(marginal), zerolog.Nop())

	analysis, err := svc.Analyze(context.Background(), yieldPortfolio([]domain.Position{held}, nil), testAddress)
	require.NoError(t, err)
	assert.Empty(t, analysis.Opportunities)

	// Clearly above the threshold flips it.
	marginal.rates = []domain.YieldRate{rate("marginal", domain.ChainEthereum, "USDC", 0.040)}
	analysis, err = svc.Analyze(context.Background(), yieldPortfolio([]domain.Position{held}, nil), testAddress)
	require.NoError(t, err)
	assert.Len(t, analysis.Opportunities, 1)
}

func TestAnalyzeIgnoresSmallAndBorrowAndSameProtocol(t *testing.T) {
	small := pricedPosition("aave-v3", domain.ChainEthereum, "USDC", 50, 0.01) // below floor
	borrow := pricedPosition("aave-v3", domain.ChainEthereum, "DAI", 5000, 0)
	borrow.Type = domain.PositionBorrow
	borrow.ValueUSD = -5000
	samePlace := pricedPosition("lender", domain.ChainEthereum, "USDT", 5000, 0.01)

	adapter := &stubAdapter{
		proto:  domain.Protocol{ID: "lender", Name: "Lender", EarnsYield: true},
		chains: []domain.ChainID{domain.ChainEthereum},
		rates:  []domain.YieldRate{rate("lender", domain.ChainEthereum, "USDC", 0.10)},
	}
	svc := NewYieldService(protocol.NewRegistry(adapter), zerolog.Nop())

	analysis, err := svc.Analyze(context.Background(), yieldPortfolio([]domain.Position{small, borrow, samePlace}, nil), testAddress)
	require.NoError(t, err)
	// small is under the floor, borrow earns nothing to move, and samePlace
	// already sits in the protocol posting the rate.
	assert.Empty(t, analysis.Opportunities)
}

func TestAnalyzeRequiresEquivalentAsset(t *testing.T) {
	held := pricedPosition("aave-v3", domain.ChainEthereum, "WBTC", 20000, 0.001)
	adapter := &stubAdapter{
		proto:  domain.Protocol{ID: "eth-lender", EarnsYield: true},
		chains: []domain.ChainID{domain.ChainEthereum},
		rates:  []domain.YieldRate{rate("eth-lender", domain.ChainEthereum, "ETH", 0.05)},
	}
	svc := NewYieldService(protocol.NewRegistry(adapter), zerolog.Nop())

	analysis, err := svc.Analyze(context.Background(), yieldPortfolio([]domain.Position{held}, nil), testAddress)
	require.NoError(t, err)
	assert.Empty(t, analysis.Opportunities, "ETH rates are no alternative for BTC exposure")
}

func TestAnalyzeRanksAlternativesAndOpportunities(t *testing.T) {
	large := pricedPosition("aave-v3", domain.ChainEthereum, "USDC", 10000, 0.01)
	small := pricedPosition("aave-v3", domain.ChainEthereum, "DAI", 1000, 0.01)

	adapter := &stubAdapter{
		proto:  domain.Protocol{ID: "lender", Name: "Lender", EarnsYield: true},
		chains: []domain.ChainID{domain.ChainEthereum},
		rates: []domain.YieldRate{
			rate("lender", domain.ChainEthereum, "USDT", 0.04),
			rate("lender", domain.ChainEthereum, "USDC", 0.07),
		},
	}
	svc := NewYieldService(protocol.NewRegistry(adapter), zerolog.Nop())

	analysis, err := svc.Analyze(context.Background(), yieldPortfolio([]domain.Position{small, large}, nil), testAddress)
	require.NoError(t, err)

	require.Len(t, analysis.Opportunities, 2)
	// Largest potential gain first: $10,000 x 6% beats $1,000 x 6%.
	assert.Equal(t, large.ID, analysis.Opportunities[0].Position.ID)
	assert.Greater(t, analysis.Opportunities[0].PotentialGainUSD, analysis.Opportunities[1].PotentialGainUSD)

	// Alternatives ranked by APY descending.
	alts := analysis.Opportunities[0].BetterAlternatives
	require.Len(t, alts, 2)
	assert.Equal(t, 0.07, alts[0].APY)
	assert.Equal(t, 0.04, alts[1].APY)
	assert.InDelta(t, 600.0, analysis.Opportunities[0].PotentialGainUSD, 1e-9)
}

func TestAnalyzeIdleAssets(t *testing.T) {
	wallet := map[domain.ChainID][]domain.TokenBalance{
		domain.ChainEthereum: {
			pricedBalance("USDC", 5000),   // idle, flagged
			pricedBalance("wstETH", 3000), // accrues on its own
			pricedBalance("DAI", 20),      // under the floor
		},
	}
	adapter := &stubAdapter{
		proto:  domain.Protocol{ID: "lender", Name: "Lender", EarnsYield: true},
		chains: []domain.ChainID{domain.ChainEthereum},
		rates: []domain.YieldRate{
			rate("lender", domain.ChainEthereum, "USDC", 0.03),
			rate("lender", domain.ChainEthereum, "USDT", 0.05),
			rate("lender", domain.ChainEthereum, "DAI", 0.04),
			rate("lender", domain.ChainEthereum, "FRAX", 0.02),
		},
	}
	svc := NewYieldService(protocol.NewRegistry(adapter), zerolog.Nop())

	analysis, err := svc.Analyze(context.Background(), yieldPortfolio(nil, wallet), testAddress)
	require.NoError(t, err)

	require.Len(t, analysis.IdleAssets, 1)
	idle := analysis.IdleAssets[0]
	assert.Equal(t, "USDC", idle.Symbol)
	assert.InDelta(t, 5000.0, idle.ValueUSD, 1e-9)

	// Top three equivalent options, best APY first.
	require.Len(t, idle.Alternatives, 3)
	assert.Equal(t, 0.05, idle.Alternatives[0].APY)
	assert.Equal(t, 0.04, idle.Alternatives[1].APY)
	assert.Equal(t, 0.03, idle.Alternatives[2].APY)
	assert.InDelta(t, 250.0, idle.Alternatives[0].AnnualGainUSD, 1e-9)
}

func TestAnalyzeIdleCoversNonYieldingPositions(t *testing.T) {
	// $5,000 of USDC parked in a protocol that pays nothing, with a 5% rate
	// posted elsewhere: not an opportunity (there is no current APY to beat
	// the threshold against a non-yielding protocol's books), but idle.
	parked := pricedPosition("escrow-vault", domain.ChainEthereum, "USDC", 5000, 0)
	parked.Protocol.EarnsYield = false
	parked.Type = domain.PositionCollateral

	// Non-yielding protocol holding a self-accruing token: not idle either.
	staked := pricedPosition("escrow-vault", domain.ChainEthereum, "wstETH", 4000, 0)
	staked.Protocol.EarnsYield = false

	adapter := &stubAdapter{
		proto:  domain.Protocol{ID: "lender", Name: "Lender", EarnsYield: true},
		chains: []domain.ChainID{domain.ChainEthereum},
		rates: []domain.YieldRate{
			rate("lender", domain.ChainEthereum, "USDC", 0.05),
			rate("lender", domain.ChainEthereum, "ETH", 0.03),
		},
	}
	svc := NewYieldService(protocol.NewRegistry(adapter), zerolog.Nop())

	analysis, err := svc.Analyze(context.Background(), yieldPortfolio([]domain.Position{parked, staked}, nil), testAddress)
	require.NoError(t, err)

	assert.Empty(t, analysis.Opportunities)
	require.Len(t, analysis.IdleAssets, 1)
	idle := analysis.IdleAssets[0]
	assert.Equal(t, "USDC", idle.Symbol)
	assert.InDelta(t, 5000.0, idle.ValueUSD, 1e-9)
	require.NotEmpty(t, idle.Alternatives)
	assert.Equal(t, 0.05, idle.Alternatives[0].APY)
	assert.InDelta(t, 250.0, idle.Alternatives[0].AnnualGainUSD, 1e-9)
}

func TestAnalyzeIdleAssetNeedsOptions(t *testing.T) {
	wallet := map[domain.ChainID][]domain.TokenBalance{
		domain.ChainEthereum: {pricedBalance("WBTC", 30000)},
	}
	adapter := &stubAdapter{
		proto:  domain.Protocol{ID: "lender", EarnsYield: true},
		chains: []domain.ChainID{domain.ChainEthereum},
		rates:  []domain.YieldRate{rate("lender", domain.ChainEthereum, "USDC", 0.04)},
	}
	svc := NewYieldService(protocol.NewRegistry(adapter), zerolog.Nop())

	analysis, err := svc.Analyze(context.Background(), yieldPortfolio(nil, wallet), testAddress)
	require.NoError(t, err)
	assert.Empty(t, analysis.IdleAssets, "idle without any equivalent option is not actionable")
}

func TestAnalyzeSurvivesRateScrapeFailure(t *testing.T) {
	held := pricedPosition("aave-v3", domain.ChainEthereum, "USDC", 10000, 0.03)
	broken := &stubAdapter{
		proto:   domain.Protocol{ID: "broken", EarnsYield: true},
		chains:  []domain.ChainID{domain.ChainEthereum},
		rateErr: errors.New("rpc down"),
	}
	working := &stubAdapter{
		proto:  domain.Protocol{ID: "working", Name: "Working", EarnsYield: true},
		chains: []domain.ChainID{domain.ChainEthereum},
		rates:  []domain.YieldRate{rate("working", domain.ChainEthereum, "USDC", 0.08)},
	}
	svc := NewYieldService(protocol.NewRegistry(broken, working), zerolog.Nop())

	analysis, err := svc.Analyze(context.Background(), yieldPortfolio([]domain.Position{held}, nil), testAddress)
	require.NoError(t, err)
	require.Len(t, analysis.Opportunities, 1)
	assert.Equal(t, "working", analysis.Opportunities[0].BetterAlternatives[0].ProtocolID)
}

func TestRiskTierFor(t *testing.T) {
	assert.Equal(t, domain.RiskLow, riskTierFor("aave-v3"))
	assert.Equal(t, domain.RiskLow, riskTierFor("lido"))
	assert.Equal(t, domain.RiskMedium, riskTierFor("uniswap-v3"))
	assert.Equal(t, domain.RiskMedium, riskTierFor("marinade"))
	assert.Equal(t, domain.RiskHigh, riskTierFor("brand-new-farm"))
}
