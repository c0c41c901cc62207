package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/defolio/defolio/internal/adapters/protocol"
	"github.com/defolio/defolio/internal/core/domain"
)

const (
	// DefaultMinValueUSD is the position/balance floor below which moving
	// funds is not worth the gas.
	DefaultMinValueUSD = 100.0

	// DefaultMinImprovement is the APY delta (absolute, 0.005 = 0.5
	// percentage points) required before an alternative counts as better.
	DefaultMinImprovement = 0.005

	// maxIdleAlternatives caps the options listed per idle asset.
	maxIdleAlternatives = 3
)

// YieldService compares a portfolio's current yields against the rates posted
// across the registered protocols and surfaces better options. Advisory only:
// it never moves funds.
type YieldService struct {
	protocols *protocol.Registry

	minValueUSD    float64
	minImprovement float64
	now            func() time.Time
	log            zerolog.Logger
}

// YieldOption customizes a YieldService.
type YieldOption func(*YieldService)

// WithMinValueUSD overrides the value floor for consideration.
func WithMinValueUSD(v float64) YieldOption {
	return func(s *YieldService) { s.minValueUSD = v }
}

// WithMinImprovement overrides the required APY delta.
func WithMinImprovement(v float64) YieldOption {
	return func(s *YieldService) { s.minImprovement = v }
}

// WithYieldClock injects a clock for tests.
func WithYieldClock(now func() time.Time) YieldOption {
	return func(s *YieldService) { s.now = now }
}

// NewYieldService builds the analyzer.
func NewYieldService(protocols *protocol.Registry, log zerolog.Logger, opts ...YieldOption) *YieldService {
	s := &YieldService{
		protocols:      protocols,
		minValueUSD:    DefaultMinValueUSD,
		minImprovement: DefaultMinImprovement,
		now:            time.Now,
		log:            log.With().Str("component", "yield_service").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze scans the portfolio for positions that could earn more elsewhere
// and for idle assets with equivalent yielding options. Rates are scraped
// fresh per call. address identifies the analyzed wallet independently of the
// portfolio snapshot.
func (s *YieldService) Analyze(ctx context.Context, portfolio *domain.Portfolio, address string) (*domain.YieldAnalysis, error) {
	rates := s.collectRates(ctx, portfolio)

	analysis := &domain.YieldAnalysis{
		Address:    address,
		AnalyzedAt: s.now().UTC(),
	}

	for _, position := range portfolio.Positions {
		analysis.TotalCurrentYield += position.APY * positionAssetValue(position)

		opportunity, ok := s.scanPosition(position, rates)
		if !ok {
			continue
		}
		analysis.Opportunities = append(analysis.Opportunities, opportunity)
	}

	sort.SliceStable(analysis.Opportunities, func(i, j int) bool {
		return analysis.Opportunities[i].PotentialGainUSD > analysis.Opportunities[j].PotentialGainUSD
	})

	analysis.TotalPotentialYield = analysis.TotalCurrentYield
	for _, opportunity := range analysis.Opportunities {
		analysis.TotalPotentialYield += opportunity.PotentialGainUSD
	}

	analysis.IdleAssets = s.scanIdle(portfolio, rates)
	return analysis, nil
}

// collectRates asks every adapter active on the portfolio's chains for its
// posted rates. Failures shrink the option set, never the analysis.
func (s *YieldService) collectRates(ctx context.Context, portfolio *domain.Portfolio) []domain.YieldRate {
	type rateJob struct {
		adapter domain.ProtocolAdapter
		chainID domain.ChainID
	}
	var jobs []rateJob
	for chainID := range portfolio.ByChain {
		for _, adapter := range s.protocols.ForChain(chainID) {
			jobs = append(jobs, rateJob{adapter: adapter, chainID: chainID})
		}
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		rates []domain.YieldRate
	)
	for _, job := range jobs {
		wg.Add(1)
		go func(job rateJob) {
			defer wg.Done()
			scraped, err := job.adapter.GetYieldRates(ctx, job.chainID)
			if err != nil {
				s.log.Warn().Err(err).
					Str("protocol", job.adapter.Protocol().ID).
					Str("chain", string(job.chainID)).
					Msg("rate scrape failed, skipping")
				return
			}
			mu.Lock()
			rates = append(rates, scraped...)
			mu.Unlock()
		}(job)
	}
	wg.Wait()
	return rates
}

// scanPosition finds rates on equivalent assets that beat the position's
// current APY by more than the improvement threshold.
func (s *YieldService) scanPosition(position domain.Position, rates []domain.YieldRate) (domain.YieldOpportunity, bool) {
	if !position.Protocol.EarnsYield || position.Type == domain.PositionBorrow {
		return domain.YieldOpportunity{}, false
	}
	value := positionAssetValue(position)
	if value < s.minValueUSD || len(position.Tokens) == 0 {
		return domain.YieldOpportunity{}, false
	}
	primary := position.Tokens[0].Symbol

	var alternatives []domain.YieldAlternative
	for _, rate := range rates {
		if rate.ProtocolID == position.Protocol.ID && rate.ChainID == position.ChainID {
			// Same protocol on the same chain is not a move.
			continue
		}
		if !domain.IsEquivalentAsset(primary, rate.AssetSymbol) {
			continue
		}
		improvement := rate.APY - position.APY
		if improvement <= s.minImprovement {
			continue
		}
		alternatives = append(alternatives, domain.YieldAlternative{
			ProtocolID:     rate.ProtocolID,
			ProtocolName:   s.protocolName(rate.ProtocolID),
			ChainID:        rate.ChainID,
			AssetSymbol:    rate.AssetSymbol,
			APY:            rate.APY,
			APYImprovement: improvement,
			AnnualGainUSD:  improvement * value,
			Risk:           riskTierFor(rate.ProtocolID),
		})
	}
	if len(alternatives) == 0 {
		return domain.YieldOpportunity{}, false
	}
	sort.SliceStable(alternatives, func(i, j int) bool {
		return alternatives[i].APY > alternatives[j].APY
	})
	return domain.YieldOpportunity{
		Position:           position,
		BetterAlternatives: alternatives,
		PotentialGainUSD:   alternatives[0].AnnualGainUSD,
	}, true
}

// scanIdle surfaces holdings above the value floor that earn nothing on
// their own yet have equivalent yielding options somewhere: wallet balances,
// and positions held in protocols that pay no yield.
func (s *YieldService) scanIdle(portfolio *domain.Portfolio, rates []domain.YieldRate) []domain.IdleAsset {
	var idle []domain.IdleAsset
	for _, chainID := range sortedChainIDs(portfolio.Wallet.ByChain) {
		group := portfolio.Wallet.ByChain[chainID]
		for _, balance := range group.Balances {
			if asset, ok := s.idleAsset(chainID, balance.Symbol, balance.ValueUSD, rates); ok {
				idle = append(idle, asset)
			}
		}
	}
	for _, position := range portfolio.Positions {
		// Borrow positions carry negative value and fall under the floor.
		if position.Protocol.EarnsYield || len(position.Tokens) == 0 {
			continue
		}
		primary := position.Tokens[0]
		if asset, ok := s.idleAsset(position.ChainID, primary.Symbol, position.ValueUSD, rates); ok {
			idle = append(idle, asset)
		}
	}
	return idle
}

func (s *YieldService) idleAsset(chainID domain.ChainID, symbol string, valueUSD float64, rates []domain.YieldRate) (domain.IdleAsset, bool) {
	if valueUSD < s.minValueUSD || domain.IsYieldAccruing(symbol) {
		return domain.IdleAsset{}, false
	}
	alternatives := s.idleAlternatives(symbol, valueUSD, rates)
	if len(alternatives) == 0 {
		return domain.IdleAsset{}, false
	}
	return domain.IdleAsset{
		ChainID:      chainID,
		Symbol:       symbol,
		ValueUSD:     valueUSD,
		Alternatives: alternatives,
	}, true
}

func (s *YieldService) idleAlternatives(symbol string, valueUSD float64, rates []domain.YieldRate) []domain.YieldAlternative {
	var alternatives []domain.YieldAlternative
	for _, rate := range rates {
		if rate.APY <= 0 || !domain.IsEquivalentAsset(symbol, rate.AssetSymbol) {
			continue
		}
		alternatives = append(alternatives, domain.YieldAlternative{
			ProtocolID:     rate.ProtocolID,
			ProtocolName:   s.protocolName(rate.ProtocolID),
			ChainID:        rate.ChainID,
			AssetSymbol:    rate.AssetSymbol,
			APY:            rate.APY,
			APYImprovement: rate.APY,
			AnnualGainUSD:  rate.APY * valueUSD,
			Risk:           riskTierFor(rate.ProtocolID),
		})
	}
	sort.SliceStable(alternatives, func(i, j int) bool {
		return alternatives[i].APY > alternatives[j].APY
	})
	if len(alternatives) > maxIdleAlternatives {
		alternatives = alternatives[:maxIdleAlternatives]
	}
	return alternatives
}

func (s *YieldService) protocolName(id string) string {
	if adapter, ok := s.protocols.ByID(id); ok {
		return adapter.Protocol().Name
	}
	return id
}

// positionAssetValue is the unsigned asset value a rate applies to. Borrow
// positions carry negative ValueUSD and yield no supply income.
func positionAssetValue(position domain.Position) float64 {
	if position.ValueUSD < 0 {
		return 0
	}
	return position.ValueUSD
}

func sortedChainIDs(m map[domain.ChainID]domain.ChainBalances) []domain.ChainID {
	ids := make([]domain.ChainID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
