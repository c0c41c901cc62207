package protocol

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/defolio/defolio/internal/adapters/chain"
	"github.com/defolio/defolio/internal/core/domain"
)

// stakedToken covers protocols whose positions are plain balances of a
// yield-accruing token (liquid staking and liquid restaking). The protocol
// APR is a hand-maintained configuration input, not an on-chain fact; its
// staleness is an ops concern.
type stakedToken struct {
	registry *chain.Registry
	proto    domain.Protocol
	chainID  domain.ChainID
	posType  domain.PositionType
	tokens   []domain.TokenInfo
	apr      float64
	log      zerolog.Logger
}

// NewLido builds the Lido stETH/wstETH adapter. apr is the curated protocol
// staking rate (fraction, e.g. 0.029).
func NewLido(registry *chain.Registry, apr float64, log zerolog.Logger) domain.ProtocolAdapter {
	return &stakedToken{
		registry: registry,
		proto: domain.Protocol{
			ID:         "lido",
			Name:       "Lido",
			Category:   domain.CategoryLiquidStaking,
			EarnsYield: true,
		},
		chainID: domain.ChainEthereum,
		posType: domain.PositionStake,
		tokens: []domain.TokenInfo{
			{Address: "0xae7ab96520DE3A18E5e111B5EaAb095312D7fE84", Symbol: "stETH", Decimals: 18},
			{Address: "0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0", Symbol: "wstETH", Decimals: 18},
		},
		apr: apr,
		log: log.With().Str("adapter", "lido").Logger(),
	}
}

// NewEtherFi builds the ether.fi eETH/weETH restaking adapter.
func NewEtherFi(registry *chain.Registry, apr float64, log zerolog.Logger) domain.ProtocolAdapter {
	return &stakedToken{
		registry: registry,
		proto: domain.Protocol{
			ID:         "etherfi",
			Name:       "ether.fi",
			Category:   domain.CategoryRestaking,
			EarnsYield: true,
		},
		chainID: domain.ChainEthereum,
		posType: domain.PositionRestake,
		tokens: []domain.TokenInfo{
			{Address: "0x35fA164735182de50811E8e2E824cFb9B6118ac2", Symbol: "eETH", Decimals: 18},
			{Address: "0xCd5fE23C85820F7B72D0926FC9b05b43E359b7ee", Symbol: "weETH", Decimals: 18},
		},
		apr: apr,
		log: log.With().Str("adapter", "etherfi").Logger(),
	}
}

func (s *stakedToken) Protocol() domain.Protocol {
	return s.proto
}

func (s *stakedToken) SupportedChains() []domain.ChainID {
	return []domain.ChainID{s.chainID}
}

// HasPositions probes with one balanceOf per tracked token, stopping at the
// first hit.
func (s *stakedToken) HasPositions(ctx context.Context, address string, chainID domain.ChainID) bool {
	if chainID != s.chainID {
		return false
	}
	owner := common.HexToAddress(address)

	var has bool
	err := s.registry.WithEVM(ctx, chainID, func(ctx context.Context, client *chain.EVMClient) error {
		for _, token := range s.tokens {
			balance, err := client.ERC20Balance(ctx, common.HexToAddress(token.Address), owner)
			if err != nil {
				return err
			}
			if balance.Sign() > 0 {
				has = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		s.log.Debug().Err(err).Msg("probe failed, assuming no positions")
		return false
	}
	return has
}

func (s *stakedToken) GetPositions(ctx context.Context, address string, chainID domain.ChainID) ([]domain.Position, error) {
	if chainID != s.chainID {
		return nil, fmt.Errorf("%s not deployed on %s", s.proto.ID, chainID)
	}
	owner := common.HexToAddress(address)

	var positions []domain.Position
	err := s.registry.WithEVM(ctx, chainID, func(ctx context.Context, client *chain.EVMClient) error {
		positions = positions[:0]
		for _, token := range s.tokens {
			balance, err := client.ERC20Balance(ctx, common.HexToAddress(token.Address), owner)
			if err != nil {
				s.log.Warn().Err(err).Str("token", token.Symbol).Msg("skipping token, read failed")
				continue
			}
			if balance.Sign() == 0 {
				continue
			}
			positions = append(positions, domain.Position{
				ID:       domain.PositionID(s.proto.ID, chainID, strings.ToLower(token.Symbol), s.posType),
				Protocol: s.proto,
				ChainID:  chainID,
				Type:     s.posType,
				Tokens: []domain.TokenBalance{
					unpriced(token.Address, token.Symbol, token.Decimals, balance),
				},
				APY:      s.apr,
				APR:      s.apr,
				Metadata: map[string]string{"token": token.Symbol},
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s positions on %s: %w", s.proto.ID, chainID, err)
	}
	return positions, nil
}

// GetYieldRates reports the curated staking rate for the primary token.
func (s *stakedToken) GetYieldRates(_ context.Context, chainID domain.ChainID) ([]domain.YieldRate, error) {
	if chainID != s.chainID {
		return nil, nil
	}
	primary := s.tokens[0]
	return []domain.YieldRate{{
		ProtocolID:   s.proto.ID,
		ChainID:      chainID,
		AssetAddress: primary.Address,
		AssetSymbol:  primary.Symbol,
		Type:         s.posType,
		APY:          s.apr,
		APR:          s.apr,
	}}, nil
}
