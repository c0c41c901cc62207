package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"
)

// SolanaClient speaks JSON-RPC 2.0 to a Solana node. Only the read methods
// the aggregation pipeline needs are exposed.
type SolanaClient struct {
	rpcURL     string
	httpClient *http.Client
}

// NewSolanaClient creates a client for one RPC endpoint.
func NewSolanaClient(rpcURL string) *SolanaClient {
	return &SolanaClient{
		rpcURL:     rpcURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// URL returns the endpoint this client is bound to.
func (c *SolanaClient) URL() string {
	return c.rpcURL
}

type solanaRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *solanaRPCError) Error() string {
	return fmt.Sprintf("solana rpc error %d: %s", e.Code, e.Message)
}

// Call performs one JSON-RPC request and returns the raw result.
func (c *SolanaClient) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("solana rpc returned status %d", resp.StatusCode)
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *solanaRPCError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// GetBalance reads the native balance in lamports.
func (c *SolanaClient) GetBalance(ctx context.Context, address string) (uint64, error) {
	result, err := c.Call(ctx, "getBalance", []interface{}{address})
	if err != nil {
		return 0, err
	}
	var out struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return 0, fmt.Errorf("decode balance: %w", err)
	}
	return out.Value, nil
}

// TokenAccount is one SPL token account balance.
type TokenAccount struct {
	Mint     string
	Amount   *big.Int
	Decimals int
}

// GetTokenAccountsByOwner lists the owner's token accounts for one mint.
// Accounts that fail to decode are skipped.
func (c *SolanaClient) GetTokenAccountsByOwner(ctx context.Context, owner, mint string) ([]TokenAccount, error) {
	params := []interface{}{
		owner,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed"},
	}
	result, err := c.Call(ctx, "getTokenAccountsByOwner", params)
	if err != nil {
		return nil, err
	}

	var out struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							Mint        string `json:"mint"`
							TokenAmount struct {
								Amount   string `json:"amount"`
								Decimals int    `json:"decimals"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decode token accounts: %w", err)
	}

	accounts := make([]TokenAccount, 0, len(out.Value))
	for _, v := range out.Value {
		info := v.Account.Data.Parsed.Info
		amount, ok := new(big.Int).SetString(info.TokenAmount.Amount, 10)
		if !ok {
			continue
		}
		accounts = append(accounts, TokenAccount{
			Mint:     info.Mint,
			Amount:   amount,
			Decimals: info.TokenAmount.Decimals,
		})
	}
	return accounts, nil
}
