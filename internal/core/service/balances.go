// Package service contains the orchestration layer: wallet balance fetching,
// portfolio aggregation, and yield analysis.
package service

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/defolio/defolio/internal/adapters/chain"
	"github.com/defolio/defolio/internal/core/domain"
)

// BalanceService reads native plus catalog-token balances for one wallet on
// one chain. Individual token read failures skip that token; only a dead
// chain fails the whole fetch.
type BalanceService struct {
	registry *chain.Registry
	log      zerolog.Logger
}

// NewBalanceService builds the fetcher.
func NewBalanceService(registry *chain.Registry, log zerolog.Logger) *BalanceService {
	return &BalanceService{
		registry: registry,
		log:      log.With().Str("component", "balance_service").Logger(),
	}
}

// FetchBalances returns the non-zero balances for the chain's catalog.
// Returned balances are unpriced.
func (s *BalanceService) FetchBalances(ctx context.Context, address string, chainID domain.ChainID) ([]domain.TokenBalance, error) {
	cfg, err := s.registry.Config(chainID)
	if err != nil {
		return nil, err
	}

	switch cfg.Family {
	case domain.FamilyEVM:
		return s.fetchEVM(ctx, cfg, address)
	case domain.FamilySolana:
		return s.fetchSolana(ctx, cfg, address)
	default:
		return nil, fmt.Errorf("unknown chain family %q", cfg.Family)
	}
}

func (s *BalanceService) fetchEVM(ctx context.Context, cfg domain.ChainConfig, address string) ([]domain.TokenBalance, error) {
	owner := common.HexToAddress(address)

	var balances []domain.TokenBalance
	err := s.registry.WithEVM(ctx, cfg.ID, func(ctx context.Context, client *chain.EVMClient) error {
		balances = balances[:0]

		native, err := client.NativeBalance(ctx, owner)
		if err != nil {
			return err
		}
		if native.Sign() > 0 {
			balances = append(balances, newBalance(chain.NativeTokenAddress, cfg.NativeSymbol, cfg.NativeDecimals, native))
		}

		for _, token := range chain.TokensFor(cfg.ID) {
			balance, err := client.ERC20Balance(ctx, common.HexToAddress(token.Address), owner)
			if err != nil {
				s.log.Warn().Err(err).
					Str("chain", string(cfg.ID)).
					Str("token", token.Symbol).
					Msg("skipping token, balance read failed")
				continue
			}
			if balance.Sign() > 0 {
				balances = append(balances, newBalance(token.Address, token.Symbol, token.Decimals, balance))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("balances on %s: %w", cfg.ID, err)
	}
	return balances, nil
}

func (s *BalanceService) fetchSolana(ctx context.Context, cfg domain.ChainConfig, address string) ([]domain.TokenBalance, error) {
	var balances []domain.TokenBalance
	err := s.registry.WithSolana(ctx, cfg.ID, func(ctx context.Context, client *chain.SolanaClient) error {
		balances = balances[:0]

		lamports, err := client.GetBalance(ctx, address)
		if err != nil {
			return err
		}
		if lamports > 0 {
			balances = append(balances, newBalance(
				chain.NativeTokenAddress, cfg.NativeSymbol, cfg.NativeDecimals,
				new(big.Int).SetUint64(lamports),
			))
		}

		for _, token := range chain.TokensFor(cfg.ID) {
			accounts, err := client.GetTokenAccountsByOwner(ctx, address, token.Address)
			if err != nil {
				s.log.Warn().Err(err).
					Str("chain", string(cfg.ID)).
					Str("token", token.Symbol).
					Msg("skipping token, account lookup failed")
				continue
			}
			total := new(big.Int)
			for _, account := range accounts {
				total.Add(total, account.Amount)
			}
			if total.Sign() > 0 {
				balances = append(balances, newBalance(token.Address, token.Symbol, token.Decimals, total))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("balances on %s: %w", cfg.ID, err)
	}
	return balances, nil
}

func newBalance(address, symbol string, decimals int, raw *big.Int) domain.TokenBalance {
	return domain.TokenBalance{
		Address:          address,
		Symbol:           symbol,
		Decimals:         decimals,
		RawBalance:       raw.String(),
		FormattedBalance: decimal.NewFromBigInt(raw, -int32(decimals)).InexactFloat64(),
	}
}
