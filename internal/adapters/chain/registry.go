// Package chain provides network connectivity: the chain registry, RPC
// failover, and the EVM and Solana read clients.
package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/defolio/defolio/internal/core/domain"
)

// DefaultChains returns the built-in network set. RPC URL order matters:
// the first URL is the primary, the rest are failover candidates.
func DefaultChains() []domain.ChainConfig {
	return []domain.ChainConfig{
		{
			ID:     domain.ChainEthereum,
			Name:   "Ethereum",
			Family: domain.FamilyEVM,
			RPCURLs: []string{
				"https://eth.llamarpc.com",
				"https://rpc.ankr.com/eth",
				"https://ethereum-rpc.publicnode.com",
			},
			NativeSymbol:   "ETH",
			NativeDecimals: 18,
		},
		{
			ID:     domain.ChainPolygon,
			Name:   "Polygon",
			Family: domain.FamilyEVM,
			RPCURLs: []string{
				"https://polygon-rpc.com",
				"https://rpc.ankr.com/polygon",
			},
			NativeSymbol:   "POL",
			NativeDecimals: 18,
		},
		{
			ID:     domain.ChainArbitrum,
			Name:   "Arbitrum One",
			Family: domain.FamilyEVM,
			RPCURLs: []string{
				"https://arb1.arbitrum.io/rpc",
				"https://rpc.ankr.com/arbitrum",
			},
			NativeSymbol:   "ETH",
			NativeDecimals: 18,
		},
		{
			ID:     domain.ChainSolana,
			Name:   "Solana",
			Family: domain.FamilySolana,
			RPCURLs: []string{
				"https://api.mainnet-beta.solana.com",
				"https://solana-rpc.publicnode.com",
			},
			NativeSymbol:   "SOL",
			NativeDecimals: 9,
		},
	}
}

// Registry holds the chain configurations and memoized primary-endpoint
// clients. Construction happens once at startup; after that the registry is
// read-only apart from the client memo, which is lock-guarded.
type Registry struct {
	configs map[domain.ChainID]domain.ChainConfig
	order   []domain.ChainID
	log     zerolog.Logger

	mu     sync.Mutex
	evm    map[domain.ChainID]*EVMClient
	solana map[domain.ChainID]*SolanaClient
}

// NewRegistry builds a registry from explicit chain configs.
func NewRegistry(configs []domain.ChainConfig, log zerolog.Logger) *Registry {
	r := &Registry{
		configs: make(map[domain.ChainID]domain.ChainConfig, len(configs)),
		log:     log.With().Str("component", "chain_registry").Logger(),
		evm:     make(map[domain.ChainID]*EVMClient),
		solana:  make(map[domain.ChainID]*SolanaClient),
	}
	for _, cfg := range configs {
		if len(cfg.RPCURLs) == 0 {
			continue
		}
		r.configs[cfg.ID] = cfg
		r.order = append(r.order, cfg.ID)
	}
	return r
}

// Config returns the configuration for a chain.
func (r *Registry) Config(id domain.ChainID) (domain.ChainConfig, error) {
	cfg, ok := r.configs[id]
	if !ok {
		return domain.ChainConfig{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedChain, id)
	}
	return cfg, nil
}

// Chains lists the registered chain ids in registration order.
func (r *Registry) Chains() []domain.ChainID {
	out := make([]domain.ChainID, len(r.order))
	copy(out, r.order)
	return out
}

// EVM returns the memoized client bound to the chain's primary RPC URL.
func (r *Registry) EVM(ctx context.Context, id domain.ChainID) (*EVMClient, error) {
	cfg, err := r.Config(id)
	if err != nil {
		return nil, err
	}
	if cfg.Family != domain.FamilyEVM {
		return nil, fmt.Errorf("chain %s is not an EVM chain", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.evm[id]; ok {
		return client, nil
	}
	client, err := DialEVM(ctx, cfg.RPCURLs[0])
	if err != nil {
		return nil, fmt.Errorf("dial %s primary: %w", id, err)
	}
	r.evm[id] = client
	return client, nil
}

// Solana returns the memoized client bound to the chain's primary RPC URL.
func (r *Registry) Solana(id domain.ChainID) (*SolanaClient, error) {
	cfg, err := r.Config(id)
	if err != nil {
		return nil, err
	}
	if cfg.Family != domain.FamilySolana {
		return nil, fmt.Errorf("chain %s is not a Solana-family chain", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.solana[id]; ok {
		return client, nil
	}
	client := NewSolanaClient(cfg.RPCURLs[0])
	r.solana[id] = client
	return client, nil
}

// WithFailover runs op against each configured RPC URL in declared order and
// returns on the first success. Intermediate errors are logged, not surfaced;
// on exhaustion the last error is returned. Each URL is tried exactly once:
// the assumption is "this endpoint is down", not "this endpoint is slow".
func (r *Registry) WithFailover(ctx context.Context, id domain.ChainID, op func(ctx context.Context, rpcURL string) error) error {
	cfg, err := r.Config(id)
	if err != nil {
		return err
	}

	var lastErr error
	for i, url := range cfg.RPCURLs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := op(ctx, url); err != nil {
			lastErr = err
			r.log.Debug().
				Err(err).
				Str("chain", string(id)).
				Int("endpoint", i).
				Msg("rpc endpoint failed, trying next")
			continue
		}
		return nil
	}
	return fmt.Errorf("all %d rpc endpoints failed for %s: %w", len(cfg.RPCURLs), id, lastErr)
}

// WithEVM is WithFailover with a fresh EVM client per URL. Clients are not
// reused across attempts so a broken connection can't stick.
func (r *Registry) WithEVM(ctx context.Context, id domain.ChainID, op func(ctx context.Context, client *EVMClient) error) error {
	return r.WithFailover(ctx, id, func(ctx context.Context, rpcURL string) error {
		client, err := DialEVM(ctx, rpcURL)
		if err != nil {
			return err
		}
		defer client.Close()
		return op(ctx, client)
	})
}

// WithSolana is WithFailover with a fresh Solana client per URL.
func (r *Registry) WithSolana(ctx context.Context, id domain.ChainID, op func(ctx context.Context, client *SolanaClient) error) error {
	return r.WithFailover(ctx, id, func(ctx context.Context, rpcURL string) error {
		return op(ctx, NewSolanaClient(rpcURL))
	})
}
