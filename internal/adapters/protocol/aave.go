package protocol

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/defolio/defolio/internal/adapters/chain"
	"github.com/defolio/defolio/internal/core/domain"
)

var aavePoolABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(`[
		{"inputs":[{"name":"user","type":"address"}],"name":"getUserAccountData","outputs":[{"name":"totalCollateralBase","type":"uint256"},{"name":"totalDebtBase","type":"uint256"},{"name":"availableBorrowsBase","type":"uint256"},{"name":"currentLiquidationThreshold","type":"uint256"},{"name":"ltv","type":"uint256"},{"name":"healthFactor","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"name":"asset","type":"address"}],"name":"getReserveData","outputs":[{"components":[{"components":[{"name":"data","type":"uint256"}],"name":"configuration","type":"tuple"},{"name":"liquidityIndex","type":"uint128"},{"name":"currentLiquidityRate","type":"uint128"},{"name":"variableBorrowIndex","type":"uint128"},{"name":"currentVariableBorrowRate","type":"uint128"},{"name":"currentStableBorrowRate","type":"uint128"},{"name":"lastUpdateTimestamp","type":"uint40"},{"name":"id","type":"uint16"},{"name":"aTokenAddress","type":"address"},{"name":"stableDebtTokenAddress","type":"address"},{"name":"variableDebtTokenAddress","type":"address"},{"name":"interestRateStrategyAddress","type":"address"},{"name":"accruedToTreasury","type":"uint128"},{"name":"unbacked","type":"uint128"},{"name":"isolationModeTotalDebt","type":"uint128"}],"name":"","type":"tuple"}],"stateMutability":"view","type":"function"}
	]`))
	if err != nil {
		panic(fmt.Sprintf("bad aave pool ABI: %v", err))
	}
	return parsed
}()

// aaveReserveData mirrors the getReserveData return tuple.
type aaveReserveData struct {
	Configuration struct {
		Data *big.Int
	}
	LiquidityIndex              *big.Int
	CurrentLiquidityRate        *big.Int
	VariableBorrowIndex         *big.Int
	CurrentVariableBorrowRate   *big.Int
	CurrentStableBorrowRate     *big.Int
	LastUpdateTimestamp         *big.Int
	Id                          uint16
	ATokenAddress               common.Address
	StableDebtTokenAddress      common.Address
	VariableDebtTokenAddress    common.Address
	InterestRateStrategyAddress common.Address
	AccruedToTreasury           *big.Int
	Unbacked                    *big.Int
	IsolationModeTotalDebt      *big.Int
}

// aaveMarket is one reserve the adapter tracks.
type aaveMarket struct {
	Symbol     string
	Underlying common.Address
	AToken     common.Address
	DebtToken  common.Address // variable debt
	Decimals   int
}

var aavePools = map[domain.ChainID]common.Address{
	domain.ChainEthereum: common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"),
	domain.ChainPolygon:  common.HexToAddress("0x794a61358D6845594F94dc1DB02A252b5b4814aD"),
	domain.ChainArbitrum: common.HexToAddress("0x794a61358D6845594F94dc1DB02A252b5b4814aD"),
}

var aaveMarkets = map[domain.ChainID][]aaveMarket{
	domain.ChainEthereum: {
		{
			Symbol:     "USDC",
			Underlying: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
			AToken:     common.HexToAddress("0x98C23E9d8f34FEFb1B7BD6a91B7FF122F4e16F5c"),
			DebtToken:  common.HexToAddress("0x72E95b8931767C79bA4EeE721354d6E99a61D004"),
			Decimals:   6,
		},
		{
			Symbol:     "USDT",
			Underlying: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
			AToken:     common.HexToAddress("0x23878914EFE38d27C4D67Ab83ed1b93A74D4086a"),
			DebtToken:  common.HexToAddress("0x6df1C1E379bC5a00a7b4C6e67A203333772f45A8"),
			Decimals:   6,
		},
		{
			Symbol:     "DAI",
			Underlying: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
			AToken:     common.HexToAddress("0x018008bfb33d285247A21d44E50697654f754e63"),
			DebtToken:  common.HexToAddress("0xcF8d0c70c850859266f5C338b38F9D663181C314"),
			Decimals:   18,
		},
		{
			Symbol:     "WETH",
			Underlying: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
			AToken:     common.HexToAddress("0x4d5F47FA6A74757f35C14fD3a6Ef8E3C9BC514E8"),
			DebtToken:  common.HexToAddress("0xeA51d7853EEFb32b6ee06b1C12E6dcCA88Be0fFE"),
			Decimals:   18,
		},
		{
			Symbol:     "WBTC",
			Underlying: common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"),
			AToken:     common.HexToAddress("0x5Ee5bf7ae06D1Be5997A1A72006FE6C607eC6DE8"),
			DebtToken:  common.HexToAddress("0x40aAbEf1aa8f0eEc637E0E7d92fbfFB2F26A8b7B"),
			Decimals:   8,
		},
	},
	domain.ChainPolygon: {
		{
			Symbol:     "USDC",
			Underlying: common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"),
			AToken:     common.HexToAddress("0x625E7708f30cA75bfd92586e17077590C60eb4cD"),
			DebtToken:  common.HexToAddress("0xFCCf3cAbbe80101232d343252614b6A3eE81C989"),
			Decimals:   6,
		},
		{
			Symbol:     "WETH",
			Underlying: common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619"),
			AToken:     common.HexToAddress("0xe50fA9b3c56FfB159cB0FCA61F5c9D750e8128c8"),
			DebtToken:  common.HexToAddress("0x0c84331e39d6658Cd6e6b9ba04736cC4c4734351"),
			Decimals:   18,
		},
		{
			Symbol:     "DAI",
			Underlying: common.HexToAddress("0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063"),
			AToken:     common.HexToAddress("0x82E64f49Ed5EC1bC6e43DAD4FC8Af9bb3A2312EE"),
			DebtToken:  common.HexToAddress("0x8619d80FB0141ba7F184CbF22fd724116D9f7ffC"),
			Decimals:   18,
		},
	},
	domain.ChainArbitrum: {
		{
			Symbol:     "USDC",
			Underlying: common.HexToAddress("0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8"),
			AToken:     common.HexToAddress("0x625E7708f30cA75bfd92586e17077590C60eb4cD"),
			DebtToken:  common.HexToAddress("0xFCCf3cAbbe80101232d343252614b6A3eE81C989"),
			Decimals:   6,
		},
		{
			Symbol:     "WETH",
			Underlying: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
			AToken:     common.HexToAddress("0xe50fA9b3c56FfB159cB0FCA61F5c9D750e8128c8"),
			DebtToken:  common.HexToAddress("0x0c84331e39d6658Cd6e6b9ba04736cC4c4734351"),
			Decimals:   18,
		},
		{
			Symbol:     "DAI",
			Underlying: common.HexToAddress("0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1"),
			AToken:     common.HexToAddress("0x82E64f49Ed5EC1bC6e43DAD4FC8Af9bb3A2312EE"),
			DebtToken:  common.HexToAddress("0x8619d80FB0141ba7F184CbF22fd724116D9f7ffC"),
			Decimals:   18,
		},
	},
}

const (
	// ray is Aave's 1e27 fixed-point scale for rates.
	ray = 1e27
	// aaveSaneHealthFactor is the cutoff above which the health factor is
	// meaningless (no debt reports max uint256).
	aaveSaneHealthFactor = 1e6
	secondsPerYear       = 365 * 24 * 3600
)

// Aave discovers lending supply and borrow positions on Aave V3 pools.
type Aave struct {
	registry *chain.Registry
	log      zerolog.Logger
}

// NewAave builds the Aave V3 adapter.
func NewAave(registry *chain.Registry, log zerolog.Logger) *Aave {
	return &Aave{
		registry: registry,
		log:      log.With().Str("adapter", "aave-v3").Logger(),
	}
}

func (a *Aave) Protocol() domain.Protocol {
	return domain.Protocol{
		ID:         "aave-v3",
		Name:       "Aave V3",
		Category:   domain.CategoryLending,
		EarnsYield: true,
	}
}

func (a *Aave) SupportedChains() []domain.ChainID {
	return []domain.ChainID{domain.ChainEthereum, domain.ChainPolygon, domain.ChainArbitrum}
}

// HasPositions probes with a single getUserAccountData call.
func (a *Aave) HasPositions(ctx context.Context, address string, chainID domain.ChainID) bool {
	pool, ok := aavePools[chainID]
	if !ok {
		return false
	}
	user := common.HexToAddress(address)

	var has bool
	err := a.registry.WithEVM(ctx, chainID, func(ctx context.Context, client *chain.EVMClient) error {
		collateral, debt, _, err := a.accountData(ctx, client, pool, user)
		if err != nil {
			return err
		}
		has = collateral.Sign() > 0 || debt.Sign() > 0
		return nil
	})
	if err != nil {
		a.log.Debug().Err(err).Str("chain", string(chainID)).Msg("probe failed, assuming no positions")
		return false
	}
	return has
}

// GetPositions reads every tracked reserve. A failing market is skipped so
// one bad reserve cannot discard the rest.
func (a *Aave) GetPositions(ctx context.Context, address string, chainID domain.ChainID) ([]domain.Position, error) {
	pool, ok := aavePools[chainID]
	if !ok {
		return nil, fmt.Errorf("aave-v3 not deployed on %s", chainID)
	}
	user := common.HexToAddress(address)
	proto := a.Protocol()

	var positions []domain.Position
	err := a.registry.WithEVM(ctx, chainID, func(ctx context.Context, client *chain.EVMClient) error {
		positions = positions[:0]

		_, debt, healthFactor, err := a.accountData(ctx, client, pool, user)
		if err != nil {
			return err
		}
		hf := 0.0
		if debt.Sign() > 0 {
			hf = formatUnits(healthFactor, 18)
			if hf > aaveSaneHealthFactor {
				hf = 0
			}
		}

		for _, market := range aaveMarkets[chainID] {
			supplyAPY, borrowAPY, rateErr := a.reserveRates(ctx, client, pool, market.Underlying)
			if rateErr != nil {
				a.log.Warn().Err(rateErr).Str("market", market.Symbol).Msg("reserve rates unavailable")
			}

			supplied, err := client.ERC20Balance(ctx, market.AToken, user)
			if err != nil {
				a.log.Warn().Err(err).Str("market", market.Symbol).Msg("skipping market, aToken read failed")
				continue
			}
			if supplied.Sign() > 0 {
				positions = append(positions, domain.Position{
					ID:       domain.PositionID(proto.ID, chainID, strings.ToLower(market.Symbol), domain.PositionSupply),
					Protocol: proto,
					ChainID:  chainID,
					Type:     domain.PositionSupply,
					Tokens: []domain.TokenBalance{
						unpriced(market.Underlying.Hex(), market.Symbol, market.Decimals, supplied),
					},
					APY:          supplyAPY,
					HealthFactor: hf,
					Metadata:     map[string]string{"market": market.Symbol},
				})
			}

			borrowed, err := client.ERC20Balance(ctx, market.DebtToken, user)
			if err != nil {
				a.log.Warn().Err(err).Str("market", market.Symbol).Msg("skipping borrow side, debt token read failed")
				continue
			}
			if borrowed.Sign() > 0 {
				positions = append(positions, domain.Position{
					ID:       domain.PositionID(proto.ID, chainID, strings.ToLower(market.Symbol), domain.PositionBorrow),
					Protocol: proto,
					ChainID:  chainID,
					Type:     domain.PositionBorrow,
					Tokens: []domain.TokenBalance{
						unpriced(market.Underlying.Hex(), market.Symbol, market.Decimals, borrowed),
					},
					APY:          borrowAPY,
					HealthFactor: hf,
					Metadata:     map[string]string{"market": market.Symbol},
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("aave-v3 positions on %s: %w", chainID, err)
	}
	return positions, nil
}

// GetYieldRates returns the current supply APY for every tracked reserve.
func (a *Aave) GetYieldRates(ctx context.Context, chainID domain.ChainID) ([]domain.YieldRate, error) {
	pool, ok := aavePools[chainID]
	if !ok {
		return nil, fmt.Errorf("aave-v3 not deployed on %s", chainID)
	}
	proto := a.Protocol()

	var rates []domain.YieldRate
	err := a.registry.WithEVM(ctx, chainID, func(ctx context.Context, client *chain.EVMClient) error {
		rates = rates[:0]
		for _, market := range aaveMarkets[chainID] {
			supplyAPY, _, err := a.reserveRates(ctx, client, pool, market.Underlying)
			if err != nil {
				a.log.Warn().Err(err).Str("market", market.Symbol).Msg("skipping rate, reserve read failed")
				continue
			}
			rates = append(rates, domain.YieldRate{
				ProtocolID:   proto.ID,
				ChainID:      chainID,
				AssetAddress: market.Underlying.Hex(),
				AssetSymbol:  market.Symbol,
				Type:         domain.PositionSupply,
				APY:          supplyAPY,
				APR:          supplyAPY, // close enough at these magnitudes
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("aave-v3 rates on %s: %w", chainID, err)
	}
	return rates, nil
}

func (a *Aave) accountData(ctx context.Context, client *chain.EVMClient, pool, user common.Address) (collateral, debt, healthFactor *big.Int, err error) {
	var available, threshold, ltv *big.Int
	outs := []interface{}{&collateral, &debt, &available, &threshold, &ltv, &healthFactor}
	if err := client.Call(ctx, aavePoolABI, pool, "getUserAccountData", outs, user); err != nil {
		return nil, nil, nil, err
	}
	return collateral, debt, healthFactor, nil
}

// reserveRates converts the pool's ray-scaled per-second rates to APY.
func (a *Aave) reserveRates(ctx context.Context, client *chain.EVMClient, pool, asset common.Address) (supplyAPY, borrowAPY float64, err error) {
	var data aaveReserveData
	if err := client.CallInto(ctx, aavePoolABI, pool, "getReserveData", &data, asset); err != nil {
		return 0, 0, err
	}
	supplyAPY = rayRateToAPY(data.CurrentLiquidityRate)
	borrowAPY = rayRateToAPY(data.CurrentVariableBorrowRate)
	return supplyAPY, borrowAPY, nil
}

func rayRateToAPY(rate *big.Int) float64 {
	if rate == nil {
		return 0
	}
	apr, _ := new(big.Float).Quo(new(big.Float).SetInt(rate), big.NewFloat(ray)).Float64()
	// Aave quotes a per-second compounded APR; annualize it.
	return math.Pow(1+apr/secondsPerYear, secondsPerYear) - 1
}
