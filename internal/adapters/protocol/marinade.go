package protocol

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/defolio/defolio/internal/adapters/chain"
	"github.com/defolio/defolio/internal/core/domain"
)

const (
	msolMint     = "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So"
	msolDecimals = 9
)

// Marinade discovers mSOL liquid-staking positions on Solana. The position
// read is a single token-account lookup, so the existence probe is derived
// from the full read rather than duplicated.
type Marinade struct {
	registry *chain.Registry
	apr      float64
	log      zerolog.Logger
}

// NewMarinade builds the Marinade adapter. apr is the curated staking rate.
func NewMarinade(registry *chain.Registry, apr float64, log zerolog.Logger) *Marinade {
	return &Marinade{
		registry: registry,
		apr:      apr,
		log:      log.With().Str("adapter", "marinade").Logger(),
	}
}

func (m *Marinade) Protocol() domain.Protocol {
	return domain.Protocol{
		ID:         "marinade",
		Name:       "Marinade",
		Category:   domain.CategoryLiquidStaking,
		EarnsYield: true,
	}
}

func (m *Marinade) SupportedChains() []domain.ChainID {
	return []domain.ChainID{domain.ChainSolana}
}

func (m *Marinade) HasPositions(ctx context.Context, address string, chainID domain.ChainID) bool {
	return FallbackProbe(ctx, m, address, chainID)
}

func (m *Marinade) GetPositions(ctx context.Context, address string, chainID domain.ChainID) ([]domain.Position, error) {
	if chainID != domain.ChainSolana {
		return nil, fmt.Errorf("marinade not deployed on %s", chainID)
	}
	proto := m.Protocol()

	var positions []domain.Position
	err := m.registry.WithSolana(ctx, chainID, func(ctx context.Context, client *chain.SolanaClient) error {
		positions = positions[:0]

		accounts, err := client.GetTokenAccountsByOwner(ctx, address, msolMint)
		if err != nil {
			return err
		}

		total := new(big.Int)
		for _, account := range accounts {
			total.Add(total, account.Amount)
		}
		if total.Sign() == 0 {
			return nil
		}

		positions = append(positions, domain.Position{
			ID:       domain.PositionID(proto.ID, chainID, "msol", domain.PositionStake),
			Protocol: proto,
			ChainID:  chainID,
			Type:     domain.PositionStake,
			Tokens: []domain.TokenBalance{
				unpriced(msolMint, "mSOL", msolDecimals, total),
			},
			APY:      m.apr,
			APR:      m.apr,
			Metadata: map[string]string{"mint": msolMint},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("marinade positions: %w", err)
	}
	return positions, nil
}

func (m *Marinade) GetYieldRates(_ context.Context, chainID domain.ChainID) ([]domain.YieldRate, error) {
	if chainID != domain.ChainSolana {
		return nil, nil
	}
	return []domain.YieldRate{{
		ProtocolID:   "marinade",
		ChainID:      chainID,
		AssetAddress: msolMint,
		AssetSymbol:  "mSOL",
		Type:         domain.PositionStake,
		APY:          m.apr,
		APR:          m.apr,
	}}, nil
}
