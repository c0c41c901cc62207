// Package protocol implements the per-protocol position adapters and their
// registry. Each adapter is one concrete type implementing
// domain.ProtocolAdapter, registered once at startup.
package protocol

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/defolio/defolio/internal/core/domain"
)

// Registry is a pure lookup over the registered adapter set.
type Registry struct {
	adapters []domain.ProtocolAdapter
	byID     map[string]domain.ProtocolAdapter
}

// NewRegistry registers the full adapter set. Call once at process start.
func NewRegistry(adapters ...domain.ProtocolAdapter) *Registry {
	r := &Registry{
		adapters: adapters,
		byID:     make(map[string]domain.ProtocolAdapter, len(adapters)),
	}
	for _, a := range adapters {
		r.byID[a.Protocol().ID] = a
	}
	return r
}

// ForChain filters the adapter set to those supporting the chain.
func (r *Registry) ForChain(id domain.ChainID) []domain.ProtocolAdapter {
	var out []domain.ProtocolAdapter
	for _, a := range r.adapters {
		for _, c := range a.SupportedChains() {
			if c == id {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// ByID resolves an adapter by protocol id.
func (r *Registry) ByID(id string) (domain.ProtocolAdapter, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// All returns every registered adapter.
func (r *Registry) All() []domain.ProtocolAdapter {
	out := make([]domain.ProtocolAdapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}

// FallbackProbe derives the existence probe from the full position read, for
// adapters where no cheaper probe exists. It trades an extra full read for
// adapter simplicity; adapters should override with a cheap probe whenever
// one exists, since probes run for every (address, chain, protocol) triple.
func FallbackProbe(ctx context.Context, a domain.ProtocolAdapter, address string, chain domain.ChainID) bool {
	positions, err := a.GetPositions(ctx, address, chain)
	return err == nil && len(positions) > 0
}

// formatUnits converts raw base units to a human amount.
func formatUnits(raw *big.Int, decimals int) float64 {
	return decimal.NewFromBigInt(raw, -int32(decimals)).InexactFloat64()
}

// unpriced builds a TokenBalance with price fields left for the aggregator.
func unpriced(address, symbol string, decimals int, raw *big.Int) domain.TokenBalance {
	return domain.TokenBalance{
		Address:          address,
		Symbol:           symbol,
		Decimals:         decimals,
		RawBalance:       raw.String(),
		FormattedBalance: formatUnits(raw, decimals),
	}
}
