// Package price resolves USD prices through a tiered strategy: cache, then
// on-chain oracle feed, then stablecoin peg, then correlated-derivative
// premium, then unknown. A single oracle never covers every asset on every
// chain, so the tiers run from most trustworthy and freshest to least.
package price

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/defolio/defolio/internal/core/domain"
)

type feedKey struct {
	Chain  domain.ChainID
	Symbol string // upper-case
}

// chainlinkFeeds maps (chain, symbol) to the Chainlink aggregator that quotes
// it in USD. Hand-maintained; an absent entry just pushes resolution to the
// next tier.
var chainlinkFeeds = map[feedKey]common.Address{
	{domain.ChainEthereum, "ETH"}:   common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"),
	{domain.ChainEthereum, "BTC"}:   common.HexToAddress("0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c"),
	{domain.ChainEthereum, "USDC"}:  common.HexToAddress("0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6"),
	{domain.ChainEthereum, "USDT"}:  common.HexToAddress("0x3E7d1eAB13ad0104d2750B8863b489D65364e32D"),
	{domain.ChainEthereum, "DAI"}:   common.HexToAddress("0xAed0c38402a5d19df6E4c03F4E2DceD6e29c1ee9"),
	{domain.ChainEthereum, "STETH"}: common.HexToAddress("0xCfE54B5cD566aB89272946F602D76Ea879CAb4a8"),
	{domain.ChainEthereum, "SOL"}:   common.HexToAddress("0x4ffC43a60e009B551865A93d232E33Fce9f01507"),

	{domain.ChainPolygon, "POL"}:  common.HexToAddress("0xAB594600376Ec9fD91F8e885dADF0CE036862dE0"),
	{domain.ChainPolygon, "ETH"}:  common.HexToAddress("0xF9680D99D6C9589e2a93a78A04A279e509205945"),
	{domain.ChainPolygon, "BTC"}:  common.HexToAddress("0xc907E116054Ad103354f2D350FD2514433D57F6f"),
	{domain.ChainPolygon, "USDC"}: common.HexToAddress("0xfE4A8cc5b5B2366C1B58Bea3858e81843581b2F7"),

	{domain.ChainArbitrum, "ETH"}:  common.HexToAddress("0x639Fe6ab55C921f74e7fac1ee960C0B6293ba612"),
	{domain.ChainArbitrum, "BTC"}:  common.HexToAddress("0x6ce185860a4963106506C203335A2910413708e9"),
	{domain.ChainArbitrum, "USDC"}: common.HexToAddress("0x50834F3163758fcC1Df9973b6e91f0F0F0434aD3"),
}

// defaultStablePegs lists symbols assumed to hold their peg. EURC carries a
// fixed EUR/USD approximation rather than $1.
var defaultStablePegs = map[string]float64{
	"USDC":  1.0,
	"USDT":  1.0,
	"DAI":   1.0,
	"USDS":  1.0,
	"PYUSD": 1.0,
	"FRAX":  1.0,
	"EURC":  1.08,
}

// Derivative relates a wrapped or yield-accruing token to its base asset.
// Premiums are hand-maintained point estimates: auto-compounding derivatives
// trade structurally above their base, plain wrappers at parity.
type Derivative struct {
	Base    string
	Premium float64
}

var defaultDerivatives = map[string]Derivative{
	"WETH":    {Base: "ETH", Premium: 1.0},
	"STETH":   {Base: "ETH", Premium: 1.0},
	"WSTETH":  {Base: "ETH", Premium: 1.18},
	"EETH":    {Base: "ETH", Premium: 1.0},
	"WEETH":   {Base: "ETH", Premium: 1.04},
	"RETH":    {Base: "ETH", Premium: 1.10},
	"WBTC":    {Base: "BTC", Premium: 1.0},
	"CBBTC":   {Base: "BTC", Premium: 1.0},
	"TBTC":    {Base: "BTC", Premium: 1.0},
	"MSOL":    {Base: "SOL", Premium: 1.18},
	"JITOSOL": {Base: "SOL", Premium: 1.21},
}
