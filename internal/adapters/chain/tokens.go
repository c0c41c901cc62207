package chain

import (
	"strings"

	"github.com/defolio/defolio/internal/core/domain"
)

// NativeTokenAddress is the pseudo-address used for native-asset balances.
const NativeTokenAddress = "native"

// tokenCatalog scopes which balances the fetcher checks per chain. Keeping
// the lists static avoids unbounded on-chain enumeration; an unlisted token
// simply never shows up in a wallet snapshot.
var tokenCatalog = map[domain.ChainID][]domain.TokenInfo{
	domain.ChainEthereum: {
		{Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC", Decimals: 6, CatalogID: "usd-coin"},
		{Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Symbol: "USDT", Decimals: 6, CatalogID: "tether"},
		{Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Symbol: "DAI", Decimals: 18, CatalogID: "dai"},
		{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Symbol: "WETH", Decimals: 18, CatalogID: "weth"},
		{Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Symbol: "WBTC", Decimals: 8, CatalogID: "wrapped-bitcoin"},
		{Address: "0xae7ab96520DE3A18E5e111B5EaAb095312D7fE84", Symbol: "stETH", Decimals: 18, CatalogID: "staked-ether"},
		{Address: "0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0", Symbol: "wstETH", Decimals: 18, CatalogID: "wrapped-steth"},
		{Address: "0x35fA164735182de50811E8e2E824cFb9B6118ac2", Symbol: "eETH", Decimals: 18, CatalogID: "ether-fi-staked-eth"},
		{Address: "0xCd5fE23C85820F7B72D0926FC9b05b43E359b7ee", Symbol: "weETH", Decimals: 18, CatalogID: "wrapped-eeth"},
		{Address: "0xae78736Cd615f374D3085123A210448E74Fc6393", Symbol: "rETH", Decimals: 18, CatalogID: "rocket-pool-eth"},
	},
	domain.ChainPolygon: {
		{Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Symbol: "USDC", Decimals: 6, CatalogID: "usd-coin"},
		{Address: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Symbol: "USDT", Decimals: 6, CatalogID: "tether"},
		{Address: "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063", Symbol: "DAI", Decimals: 18, CatalogID: "dai"},
		{Address: "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", Symbol: "WETH", Decimals: 18, CatalogID: "weth"},
		{Address: "0x1BFD67037B42Cf73acF2047067bd4F2C47D9BfD6", Symbol: "WBTC", Decimals: 8, CatalogID: "wrapped-bitcoin"},
	},
	domain.ChainArbitrum: {
		{Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Symbol: "USDC", Decimals: 6, CatalogID: "usd-coin"},
		{Address: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", Symbol: "USDT", Decimals: 6, CatalogID: "tether"},
		{Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Symbol: "DAI", Decimals: 18, CatalogID: "dai"},
		{Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Symbol: "WETH", Decimals: 18, CatalogID: "weth"},
		{Address: "0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f", Symbol: "WBTC", Decimals: 8, CatalogID: "wrapped-bitcoin"},
	},
	domain.ChainSolana: {
		{Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Symbol: "USDC", Decimals: 6, CatalogID: "usd-coin"},
		{Address: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Symbol: "USDT", Decimals: 6, CatalogID: "tether"},
		{Address: "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So", Symbol: "mSOL", Decimals: 9, CatalogID: "msol"},
		{Address: "J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn", Symbol: "JitoSOL", Decimals: 9, CatalogID: "jito-staked-sol"},
	},
}

// TokensFor returns the static catalog for a chain. The returned slice is
// shared and must not be mutated.
func TokensFor(id domain.ChainID) []domain.TokenInfo {
	return tokenCatalog[id]
}

// TokenByAddress looks a catalog token up by address, case-insensitive for
// the hex-address family.
func TokenByAddress(id domain.ChainID, address string) (domain.TokenInfo, bool) {
	for _, token := range tokenCatalog[id] {
		if strings.EqualFold(token.Address, address) {
			return token, true
		}
	}
	return domain.TokenInfo{}, false
}
