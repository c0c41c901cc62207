package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// erc20ABI covers the read-only subset of the ERC-20 interface we need.
var erc20ABI = mustABI(`[
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("bad embedded ABI: %v", err))
	}
	return parsed
}

// EVMClient is a read-only client for one EVM RPC endpoint.
type EVMClient struct {
	rpcURL string
	eth    *ethclient.Client
}

// DialEVM connects to an EVM RPC endpoint.
func DialEVM(ctx context.Context, rpcURL string) (*EVMClient, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return &EVMClient{rpcURL: rpcURL, eth: eth}, nil
}

// Close releases the underlying connection.
func (c *EVMClient) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

// URL returns the endpoint this client is bound to.
func (c *EVMClient) URL() string {
	return c.rpcURL
}

// NativeBalance reads the native-asset balance in wei.
func (c *EVMClient) NativeBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	balance, err := c.eth.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", address.Hex(), err)
	}
	return balance, nil
}

// CallContract performs an eth_call against the latest block.
func (c *EVMClient) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// Call packs a view-function call, executes it, and unpacks the outputs into
// the given pointers. This is the workhorse behind every contract read.
func (c *EVMClient) Call(ctx context.Context, contractABI abi.ABI, to common.Address, method string, outs []interface{}, args ...interface{}) error {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}

	raw, err := c.CallContract(ctx, to, data)
	if err != nil {
		return fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}

	values, err := contractABI.Unpack(method, raw)
	if err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) < len(outs) {
		return fmt.Errorf("unpack %s: got %d outputs, want %d", method, len(values), len(outs))
	}
	for i, out := range outs {
		if err := assign(out, values[i]); err != nil {
			return fmt.Errorf("unpack %s output %d: %w", method, i, err)
		}
	}
	return nil
}

// CallInto is Call for methods returning a single tuple, unpacked into a
// struct whose fields mirror the tuple components.
func (c *EVMClient) CallInto(ctx context.Context, contractABI abi.ABI, to common.Address, method string, out interface{}, args ...interface{}) error {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}

	raw, err := c.CallContract(ctx, to, data)
	if err != nil {
		return fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}

	if err := contractABI.UnpackIntoInterface(out, method, raw); err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	return nil
}

// ERC20Balance reads balanceOf(owner) on a token contract.
func (c *EVMClient) ERC20Balance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	var balance *big.Int
	if err := c.Call(ctx, erc20ABI, token, "balanceOf", []interface{}{&balance}, owner); err != nil {
		return nil, err
	}
	return balance, nil
}

// ERC20Metadata reads symbol and decimals from a token contract.
func (c *EVMClient) ERC20Metadata(ctx context.Context, token common.Address) (string, int, error) {
	var symbol string
	if err := c.Call(ctx, erc20ABI, token, "symbol", []interface{}{&symbol}); err != nil {
		return "", 0, err
	}
	var decimals uint8
	if err := c.Call(ctx, erc20ABI, token, "decimals", []interface{}{&decimals}); err != nil {
		return "", 0, err
	}
	return symbol, int(decimals), nil
}

func assign(dst, src interface{}) error {
	switch d := dst.(type) {
	case **big.Int:
		v, ok := src.(*big.Int)
		if !ok {
			return fmt.Errorf("expected *big.Int, got %T", src)
		}
		*d = v
	case *common.Address:
		v, ok := src.(common.Address)
		if !ok {
			return fmt.Errorf("expected address, got %T", src)
		}
		*d = v
	case *uint8:
		v, ok := src.(uint8)
		if !ok {
			return fmt.Errorf("expected uint8, got %T", src)
		}
		*d = v
	case *string:
		v, ok := src.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", src)
		}
		*d = v
	case *bool:
		v, ok := src.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", src)
		}
		*d = v
	default:
		return fmt.Errorf("unsupported output type %T", dst)
	}
	return nil
}
