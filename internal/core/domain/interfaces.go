package domain

import "context"

// ProtocolAdapter is the capability contract every supported protocol
// implements. One concrete type per protocol, registered once at startup.
type ProtocolAdapter interface {
	// Protocol returns the static protocol descriptor.
	Protocol() Protocol

	// SupportedChains returns the chains this adapter can read.
	SupportedChains() []ChainID

	// HasPositions is a cheap existence probe. It must return false, not an
	// error, on any read failure: probe failures mean "no position", never a
	// fatal condition. It is evaluated for every (address, chain, protocol)
	// triple on every aggregation, so keep it to one or a few reads.
	HasPositions(ctx context.Context, address string, chain ChainID) bool

	// GetPositions performs the full, possibly multi-call read. On partial
	// internal failure it returns whatever positions decoded successfully;
	// on total failure it returns an empty slice and an error for the caller
	// to log. Token balances are unpriced; the aggregator resolves prices.
	GetPositions(ctx context.Context, address string, chain ChainID) ([]Position, error)

	// GetYieldRates returns protocol-wide supply-side rates, independent of
	// any wallet.
	GetYieldRates(ctx context.Context, chain ChainID) ([]YieldRate, error)
}

// PriceResolver resolves a USD price for a token on a chain.
type PriceResolver interface {
	Resolve(ctx context.Context, chain ChainID, symbol, address string) (PriceQuote, error)
}

// BalanceFetcher reads native plus catalog-token wallet balances for a chain.
// Returned balances are unpriced.
type BalanceFetcher interface {
	FetchBalances(ctx context.Context, address string, chain ChainID) ([]TokenBalance, error)
}
