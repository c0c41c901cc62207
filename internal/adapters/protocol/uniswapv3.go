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
	"github.com/shopspring/decimal"

	"github.com/defolio/defolio/internal/adapters/chain"
	"github.com/defolio/defolio/internal/core/domain"
)

var uniPositionManagerABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(`[
		{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],"name":"tokenOfOwnerByIndex","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"name":"tokenId","type":"uint256"}],"name":"positions","outputs":[{"name":"nonce","type":"uint96"},{"name":"operator","type":"address"},{"name":"token0","type":"address"},{"name":"token1","type":"address"},{"name":"fee","type":"uint24"},{"name":"tickLower","type":"int24"},{"name":"tickUpper","type":"int24"},{"name":"liquidity","type":"uint128"},{"name":"feeGrowthInside0LastX128","type":"uint256"},{"name":"feeGrowthInside1LastX128","type":"uint256"},{"name":"tokensOwed0","type":"uint128"},{"name":"tokensOwed1","type":"uint128"}],"stateMutability":"view","type":"function"}
	]`))
	if err != nil {
		panic(fmt.Sprintf("bad position manager ABI: %v", err))
	}
	return parsed
}()

var uniFactoryABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(`[
		{"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"fee","type":"uint24"}],"name":"getPool","outputs":[{"name":"pool","type":"address"}],"stateMutability":"view","type":"function"}
	]`))
	if err != nil {
		panic(fmt.Sprintf("bad factory ABI: %v", err))
	}
	return parsed
}()

var uniPoolABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(`[
		{"inputs":[],"name":"slot0","outputs":[{"name":"sqrtPriceX96","type":"uint160"},{"name":"tick","type":"int24"},{"name":"observationIndex","type":"uint16"},{"name":"observationCardinality","type":"uint16"},{"name":"observationCardinalityNext","type":"uint16"},{"name":"feeProtocol","type":"uint8"},{"name":"unlocked","type":"bool"}],"stateMutability":"view","type":"function"}
	]`))
	if err != nil {
		panic(fmt.Sprintf("bad pool ABI: %v", err))
	}
	return parsed
}()

// uniPositionData mirrors the positions(tokenId) outputs.
type uniPositionData struct {
	Nonce                    *big.Int
	Operator                 common.Address
	Token0                   common.Address
	Token1                   common.Address
	Fee                      *big.Int
	TickLower                *big.Int
	TickUpper                *big.Int
	Liquidity                *big.Int
	FeeGrowthInside0LastX128 *big.Int
	FeeGrowthInside1LastX128 *big.Int
	TokensOwed0              *big.Int
	TokensOwed1              *big.Int
}

// Canonical deployments, identical across the supported EVM chains.
var (
	uniPositionManager = common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88")
	uniFactory         = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
)

// maxUniPositions caps NFT enumeration per wallet per chain so one
// LP-farming whale cannot stall an aggregation.
const maxUniPositions = 20

// UniswapV3 discovers concentrated-liquidity positions held as position-NFTs.
// Token amounts are derived from pool state with float tick math: values are
// point-in-time estimates, consistent with the rest of the pipeline.
type UniswapV3 struct {
	registry *chain.Registry
	log      zerolog.Logger
}

// NewUniswapV3 builds the Uniswap V3 adapter.
func NewUniswapV3(registry *chain.Registry, log zerolog.Logger) *UniswapV3 {
	return &UniswapV3{
		registry: registry,
		log:      log.With().Str("adapter", "uniswap-v3").Logger(),
	}
}

func (u *UniswapV3) Protocol() domain.Protocol {
	return domain.Protocol{
		ID:         "uniswap-v3",
		Name:       "Uniswap V3",
		Category:   domain.CategoryConcentratedLiquidity,
		EarnsYield: true,
	}
}

func (u *UniswapV3) SupportedChains() []domain.ChainID {
	return []domain.ChainID{domain.ChainEthereum, domain.ChainPolygon, domain.ChainArbitrum}
}

// HasPositions probes with a single position-NFT balanceOf.
func (u *UniswapV3) HasPositions(ctx context.Context, address string, chainID domain.ChainID) bool {
	owner := common.HexToAddress(address)

	var has bool
	err := u.registry.WithEVM(ctx, chainID, func(ctx context.Context, client *chain.EVMClient) error {
		var count *big.Int
		if err := client.Call(ctx, uniPositionManagerABI, uniPositionManager, "balanceOf", []interface{}{&count}, owner); err != nil {
			return err
		}
		has = count.Sign() > 0
		return nil
	})
	if err != nil {
		u.log.Debug().Err(err).Str("chain", string(chainID)).Msg("probe failed, assuming no positions")
		return false
	}
	return has
}

func (u *UniswapV3) GetPositions(ctx context.Context, address string, chainID domain.ChainID) ([]domain.Position, error) {
	owner := common.HexToAddress(address)
	proto := u.Protocol()

	var positions []domain.Position
	err := u.registry.WithEVM(ctx, chainID, func(ctx context.Context, client *chain.EVMClient) error {
		positions = positions[:0]

		var count *big.Int
		if err := client.Call(ctx, uniPositionManagerABI, uniPositionManager, "balanceOf", []interface{}{&count}, owner); err != nil {
			return err
		}
		n := int(count.Int64())
		if n > maxUniPositions {
			u.log.Warn().Int("count", n).Int("cap", maxUniPositions).Msg("capping position enumeration")
			n = maxUniPositions
		}

		for i := 0; i < n; i++ {
			var tokenID *big.Int
			if err := client.Call(ctx, uniPositionManagerABI, uniPositionManager, "tokenOfOwnerByIndex", []interface{}{&tokenID}, owner, big.NewInt(int64(i))); err != nil {
				u.log.Warn().Err(err).Int("index", i).Msg("skipping position, enumeration failed")
				continue
			}

			position, err := u.readPosition(ctx, client, chainID, proto, tokenID)
			if err != nil {
				u.log.Warn().Err(err).Str("token_id", tokenID.String()).Msg("skipping position, read failed")
				continue
			}
			if position != nil {
				positions = append(positions, *position)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("uniswap-v3 positions on %s: %w", chainID, err)
	}
	return positions, nil
}

// GetYieldRates returns nothing: LP fee yield depends on in-range volume and
// has no protocol-wide posted rate.
func (u *UniswapV3) GetYieldRates(_ context.Context, _ domain.ChainID) ([]domain.YieldRate, error) {
	return nil, nil
}

func (u *UniswapV3) readPosition(ctx context.Context, client *chain.EVMClient, chainID domain.ChainID, proto domain.Protocol, tokenID *big.Int) (*domain.Position, error) {
	var data uniPositionData
	if err := client.CallInto(ctx, uniPositionManagerABI, uniPositionManager, "positions", &data, tokenID); err != nil {
		return nil, err
	}
	if data.Liquidity.Sign() == 0 {
		// Closed position; the NFT lingers after liquidity is withdrawn.
		return nil, nil
	}

	var pool common.Address
	if err := client.Call(ctx, uniFactoryABI, uniFactory, "getPool", []interface{}{&pool}, data.Token0, data.Token1, data.Fee); err != nil {
		return nil, err
	}
	if pool == (common.Address{}) {
		return nil, fmt.Errorf("no pool for position %s", tokenID)
	}

	var (
		sqrtPriceX96 *big.Int
		tick         *big.Int
	)
	if err := client.Call(ctx, uniPoolABI, pool, "slot0", []interface{}{&sqrtPriceX96, &tick}); err != nil {
		return nil, err
	}

	amount0, amount1 := liquidityAmounts(
		data.Liquidity,
		sqrtPriceX96,
		int(data.TickLower.Int64()),
		int(data.TickUpper.Int64()),
	)
	// Uncollected fees belong to the position too.
	amount0 = new(big.Int).Add(amount0, data.TokensOwed0)
	amount1 = new(big.Int).Add(amount1, data.TokensOwed1)

	token0 := u.tokenInfo(ctx, client, chainID, data.Token0)
	token1 := u.tokenInfo(ctx, client, chainID, data.Token1)

	return &domain.Position{
		ID:       domain.PositionID(proto.ID, chainID, tokenID.String(), domain.PositionLiquidity),
		Protocol: proto,
		ChainID:  chainID,
		Type:     domain.PositionLiquidity,
		Tokens: []domain.TokenBalance{
			unpriced(token0.Address, token0.Symbol, token0.Decimals, amount0),
			unpriced(token1.Address, token1.Symbol, token1.Decimals, amount1),
		},
		Metadata: map[string]string{
			"token_id":   tokenID.String(),
			"fee_tier":   data.Fee.String(),
			"tick_lower": data.TickLower.String(),
			"tick_upper": data.TickUpper.String(),
			"tick":       tick.String(),
			"pool":       pool.Hex(),
		},
	}, nil
}

// tokenInfo resolves token metadata from the catalog, falling back to an
// on-chain read for pairs outside it.
func (u *UniswapV3) tokenInfo(ctx context.Context, client *chain.EVMClient, chainID domain.ChainID, token common.Address) domain.TokenInfo {
	if info, ok := chain.TokenByAddress(chainID, token.Hex()); ok {
		return info
	}
	symbol, decimals, err := client.ERC20Metadata(ctx, token)
	if err != nil {
		u.log.Debug().Err(err).Str("token", token.Hex()).Msg("metadata read failed, using address stub")
		return domain.TokenInfo{Address: token.Hex(), Symbol: shortAddress(token), Decimals: 18}
	}
	return domain.TokenInfo{Address: token.Hex(), Symbol: symbol, Decimals: decimals}
}

func shortAddress(a common.Address) string {
	hex := a.Hex()
	return hex[:6] + "…" + hex[len(hex)-4:]
}

// liquidityAmounts converts liquidity plus the current pool price into token
// amounts using the standard range formulas. Float math keeps this cheap;
// the result feeds a USD estimate, not an on-chain settlement.
func liquidityAmounts(liquidity, sqrtPriceX96 *big.Int, tickLower, tickUpper int) (amount0, amount1 *big.Int) {
	l, _ := new(big.Float).SetInt(liquidity).Float64()
	sqrtP, _ := new(big.Float).Quo(
		new(big.Float).SetInt(sqrtPriceX96),
		new(big.Float).SetFloat64(math.Pow(2, 96)),
	).Float64()

	sqrtLower := math.Pow(1.0001, float64(tickLower)/2)
	sqrtUpper := math.Pow(1.0001, float64(tickUpper)/2)

	var a0, a1 float64
	switch {
	case sqrtP <= sqrtLower:
		a0 = l * (sqrtUpper - sqrtLower) / (sqrtLower * sqrtUpper)
	case sqrtP >= sqrtUpper:
		a1 = l * (sqrtUpper - sqrtLower)
	default:
		a0 = l * (sqrtUpper - sqrtP) / (sqrtP * sqrtUpper)
		a1 = l * (sqrtP - sqrtLower)
	}
	return floatToInt(a0), floatToInt(a1)
}

func floatToInt(v float64) *big.Int {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return big.NewInt(0)
	}
	return decimal.NewFromFloat(v).BigInt()
}
