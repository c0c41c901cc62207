package domain

import "strings"

// equivalenceClasses are the fixed symbol groupings treated as fungible for
// yield comparison. The same classes back the derivative heuristics in price
// resolution: a class member is either the base asset or a wrapped/staked
// variant of it. Hand-maintained; staleness is an ops concern.
var equivalenceClasses = [][]string{
	{"USDC", "USDT", "DAI", "USDS", "PYUSD", "FRAX"},
	{"ETH", "WETH", "STETH", "WSTETH", "EETH", "WEETH", "RETH"},
	{"SOL", "MSOL", "JITOSOL"},
	{"BTC", "WBTC", "CBBTC", "TBTC"},
}

var classOf = func() map[string]int {
	m := make(map[string]int)
	for i, class := range equivalenceClasses {
		for _, sym := range class {
			m[sym] = i
		}
	}
	return m
}()

// IsEquivalentAsset reports whether two symbols are interchangeable for yield
// comparison: exact match, or members of the same equivalence class. The
// relation is symmetric by construction.
func IsEquivalentAsset(a, b string) bool {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	ca, okA := classOf[a]
	cb, okB := classOf[b]
	return okA && okB && ca == cb
}

// yieldAccruing lists tokens whose redemption value appreciates on its own:
// holding them in a plain wallet already earns, so the idle-asset scan must
// not flag them.
var yieldAccruing = map[string]struct{}{
	"STETH": {}, "WSTETH": {}, "EETH": {}, "WEETH": {}, "RETH": {},
	"MSOL": {}, "JITOSOL": {},
}

// IsYieldAccruing reports whether a wallet-held token earns yield by itself.
func IsYieldAccruing(symbol string) bool {
	_, ok := yieldAccruing[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

// BaseAssetOf returns the class base symbol (first member) for a derivative,
// or "" when the symbol belongs to no class.
func BaseAssetOf(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if i, ok := classOf[symbol]; ok {
		return equivalenceClasses[i][0]
	}
	return ""
}
