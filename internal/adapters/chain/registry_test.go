package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defolio/defolio/internal/core/domain"
)

func testConfigs() []domain.ChainConfig {
	return []domain.ChainConfig{
		{
			ID:             domain.ChainEthereum,
			Name:           "Ethereum",
			Family:         domain.FamilyEVM,
			RPCURLs:        []string{"http://primary", "http://secondary", "http://tertiary"},
			NativeSymbol:   "ETH",
			NativeDecimals: 18,
		},
		{
			ID:             domain.ChainSolana,
			Name:           "Solana",
			Family:         domain.FamilySolana,
			RPCURLs:        []string{"http://sol-primary"},
			NativeSymbol:   "SOL",
			NativeDecimals: 9,
		},
	}
}

func TestRegistryConfig(t *testing.T) {
	r := NewRegistry(testConfigs(), zerolog.Nop())

	cfg, err := r.Config(domain.ChainEthereum)
	require.NoError(t, err)
	assert.Equal(t, domain.FamilyEVM, cfg.Family)

	_, err = r.Config(domain.ChainID("base"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedChain)

	assert.Equal(t, []domain.ChainID{domain.ChainEthereum, domain.ChainSolana}, r.Chains())
}

func TestRegistrySkipsChainsWithoutRPCs(t *testing.T) {
	configs := testConfigs()
	configs = append(configs, domain.ChainConfig{ID: domain.ChainPolygon, Family: domain.FamilyEVM})

	r := NewRegistry(configs, zerolog.Nop())
	_, err := r.Config(domain.ChainPolygon)
	assert.ErrorIs(t, err, domain.ErrUnsupportedChain)
}

func TestWithFailoverFirstSuccess(t *testing.T) {
	r := NewRegistry(testConfigs(), zerolog.Nop())

	var tried []string
	err := r.WithFailover(context.Background(), domain.ChainEthereum, func(_ context.Context, url string) error {
		tried = append(tried, url)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://primary"}, tried)
}

func TestWithFailoverFallsThrough(t *testing.T) {
	r := NewRegistry(testConfigs(), zerolog.Nop())

	var tried []string
	err := r.WithFailover(context.Background(), domain.ChainEthereum, func(_ context.Context, url string) error {
		tried = append(tried, url)
		if url == "http://secondary" {
			return nil
		}
		return errors.New("connection refused")
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://primary", "http://secondary"}, tried)
}

func TestWithFailoverExhaustionReturnsLastError(t *testing.T) {
	r := NewRegistry(testConfigs(), zerolog.Nop())

	lastErr := errors.New("tertiary down")
	var tried int
	err := r.WithFailover(context.Background(), domain.ChainEthereum, func(_ context.Context, url string) error {
		tried++
		if url == "http://tertiary" {
			return lastErr
		}
		return errors.New("earlier failure")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, lastErr)
	assert.Equal(t, 3, tried, "each endpoint tried exactly once")
	assert.Contains(t, err.Error(), "all 3 rpc endpoints failed")
}

func TestWithFailoverHonorsContext(t *testing.T) {
	r := NewRegistry(testConfigs(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var tried int
	err := r.WithFailover(ctx, domain.ChainEthereum, func(_ context.Context, _ string) error {
		tried++
		cancel()
		return errors.New("slow endpoint")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, tried, "no retries after cancellation")
}

func TestWithFailoverUnknownChain(t *testing.T) {
	r := NewRegistry(testConfigs(), zerolog.Nop())

	err := r.WithFailover(context.Background(), domain.ChainID("base"), func(_ context.Context, _ string) error {
		t.Fatal("op must not run for unknown chain")
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedChain)
}

func TestSolanaClientMemoized(t *testing.T) {
	r := NewRegistry(testConfigs(), zerolog.Nop())

	first, err := r.Solana(domain.ChainSolana)
	require.NoError(t, err)
	second, err := r.Solana(domain.ChainSolana)
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = r.Solana(domain.ChainEthereum)
	assert.Error(t, err, "family mismatch must be rejected")
}
