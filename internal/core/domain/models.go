package domain

import (
	"fmt"
	"time"
)

// ChainID identifies a supported network.
type ChainID string

const (
	ChainEthereum ChainID = "ethereum"
	ChainPolygon  ChainID = "polygon"
	ChainArbitrum ChainID = "arbitrum"
	ChainSolana   ChainID = "solana"
)

// ChainFamily distinguishes address formats and RPC dialects.
type ChainFamily string

const (
	FamilyEVM    ChainFamily = "evm"
	FamilySolana ChainFamily = "solana"
)

// ChainConfig describes one network. Loaded once at startup, never mutated.
type ChainConfig struct {
	ID             ChainID     `json:"id"`
	Name           string      `json:"name"`
	Family         ChainFamily `json:"family"`
	RPCURLs        []string    `json:"rpc_urls"` // ordered: primary first, then fallbacks
	NativeSymbol   string      `json:"native_symbol"`
	NativeDecimals int         `json:"native_decimals"`
}

// TokenInfo describes a known token on a chain. One static set per chain.
type TokenInfo struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	// CatalogID is an optional id for external price catalogs.
	CatalogID string `json:"catalog_id,omitempty"`
}

// TokenBalance is a priced holding of a single token. Immutable once produced.
type TokenBalance struct {
	Address          string  `json:"address"`
	Symbol           string  `json:"symbol"`
	Decimals         int     `json:"decimals"`
	RawBalance       string  `json:"raw_balance"` // integer base units, decimal string
	FormattedBalance float64 `json:"formatted_balance"`
	PriceUSD         float64 `json:"price_usd"`
	ValueUSD         float64 `json:"value_usd"`
}

// ProtocolCategory groups adapters by the kind of position they discover.
type ProtocolCategory string

const (
	CategoryLending               ProtocolCategory = "lending"
	CategoryLiquidStaking         ProtocolCategory = "liquid_staking"
	CategoryRestaking             ProtocolCategory = "restaking"
	CategoryConcentratedLiquidity ProtocolCategory = "concentrated_liquidity"
)

// Protocol describes a DeFi protocol an adapter reads from.
type Protocol struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Category   ProtocolCategory `json:"category"`
	EarnsYield bool             `json:"earns_yield"`
}

// PositionType classifies a single position within a protocol.
type PositionType string

const (
	PositionSupply     PositionType = "supply"
	PositionBorrow     PositionType = "borrow"
	PositionStake      PositionType = "stake"
	PositionRestake    PositionType = "restake"
	PositionLiquidity  PositionType = "liquidity"
	PositionCollateral PositionType = "collateral"
)

// Position is one structured holding inside a protocol. Created fresh each
// fetch; identity across fetches is carried only by ID, which is derived from
// protocol, chain, market and type so repeated fetches produce the same id.
type Position struct {
	ID       string         `json:"id"`
	Protocol Protocol       `json:"protocol"`
	ChainID  ChainID        `json:"chain_id"`
	Type     PositionType   `json:"type"`
	Tokens   []TokenBalance `json:"tokens"`
	// ValueUSD is signed: positive for assets, negative for liabilities.
	ValueUSD float64 `json:"value_usd"`
	APY      float64 `json:"apy,omitempty"`
	APR      float64 `json:"apr,omitempty"`
	// HealthFactor is the liquidation-risk ratio. Zero means not applicable.
	HealthFactor float64           `json:"health_factor,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// PositionID derives the stable position id.
func PositionID(protocolID string, chain ChainID, market string, typ PositionType) string {
	return fmt.Sprintf("%s-%s-%s-%s", protocolID, chain, market, typ)
}

// ChainGroup is the per-chain slice of a portfolio.
type ChainGroup struct {
	ChainID       ChainID    `json:"chain_id"`
	TotalValueUSD float64    `json:"total_value_usd"`
	Positions     []Position `json:"positions"`
}

// ProtocolGroup is the per-protocol slice of a portfolio.
type ProtocolGroup struct {
	Protocol      Protocol   `json:"protocol"`
	TotalValueUSD float64    `json:"total_value_usd"`
	Positions     []Position `json:"positions"`
}

// TypeGroup is the per-position-type slice of a portfolio.
type TypeGroup struct {
	Type          PositionType `json:"type"`
	TotalValueUSD float64      `json:"total_value_usd"`
	Positions     []Position   `json:"positions"`
}

// ChainBalances is the wallet-level (non-protocol) balance snapshot for a chain.
type ChainBalances struct {
	ChainID       ChainID        `json:"chain_id"`
	TotalValueUSD float64        `json:"total_value_usd"`
	Balances      []TokenBalance `json:"balances"`
}

// WalletBalances nests the wallet balance snapshot per chain.
type WalletBalances struct {
	TotalValueUSD float64                   `json:"total_value_usd"`
	ByChain       map[ChainID]ChainBalances `json:"by_chain"`
}

// Portfolio is the immutable read-model produced by one aggregation run.
type Portfolio struct {
	Address       string                     `json:"address"`
	TotalValueUSD float64                    `json:"total_value_usd"`
	Positions     []Position                 `json:"positions"`
	ByChain       map[ChainID]ChainGroup     `json:"by_chain"`
	ByProtocol    map[string]ProtocolGroup   `json:"by_protocol"`
	ByType        map[PositionType]TypeGroup `json:"by_type"`
	Wallet        WalletBalances             `json:"wallet"`
	FetchedAt     time.Time                  `json:"fetched_at"`
}

// YieldRate is a protocol-wide supply-side rate for one asset on one chain.
// Scraped fresh per analysis call, never cached across analyses.
type YieldRate struct {
	ProtocolID   string       `json:"protocol_id"`
	ChainID      ChainID      `json:"chain_id"`
	AssetAddress string       `json:"asset_address"`
	AssetSymbol  string       `json:"asset_symbol"`
	Type         PositionType `json:"type"`
	APY          float64      `json:"apy"`
	APR          float64      `json:"apr"`
}

// RiskTier is a hand-curated protocol maturity classification, not a risk
// model computed from on-chain signals.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// YieldAlternative is one better-rate option for a held position.
type YieldAlternative struct {
	ProtocolID     string   `json:"protocol_id"`
	ProtocolName   string   `json:"protocol_name"`
	ChainID        ChainID  `json:"chain_id"`
	AssetSymbol    string   `json:"asset_symbol"`
	APY            float64  `json:"apy"`
	APYImprovement float64  `json:"apy_improvement"`
	AnnualGainUSD  float64  `json:"annual_gain_usd"`
	Risk           RiskTier `json:"risk"`
}

// YieldOpportunity pairs a held position with its ranked alternatives.
type YieldOpportunity struct {
	Position           Position           `json:"position"`
	BetterAlternatives []YieldAlternative `json:"better_alternatives"`
	PotentialGainUSD   float64            `json:"potential_gain_usd"`
}

// IdleAsset is a non-yielding holding with its top ranked yield options.
type IdleAsset struct {
	ChainID      ChainID            `json:"chain_id"`
	Symbol       string             `json:"symbol"`
	ValueUSD     float64            `json:"value_usd"`
	Alternatives []YieldAlternative `json:"alternatives"`
}

// YieldAnalysis is the analyzer's read-model for one portfolio.
type YieldAnalysis struct {
	Address             string             `json:"address"`
	TotalCurrentYield   float64            `json:"total_current_yield_usd"`
	TotalPotentialYield float64            `json:"total_potential_yield_usd"`
	Opportunities       []YieldOpportunity `json:"opportunities"`
	IdleAssets          []IdleAsset        `json:"idle_assets"`
	AnalyzedAt          time.Time          `json:"analyzed_at"`
}

// PriceSource tags where a resolved price came from.
type PriceSource string

const (
	SourceCache     PriceSource = "cache"
	SourceOracle    PriceSource = "oracle"
	SourceSynthetic PriceSource = "synthetic"
	SourceUnknown   PriceSource = "unknown"
)

// PriceQuote is a resolved USD price. A zero price with SourceUnknown means
// "value unknown", not "value is zero".
type PriceQuote struct {
	PriceUSD float64     `json:"price_usd"`
	Source   PriceSource `json:"source"`
}
