package service

import "github.com/defolio/defolio/internal/core/domain"

// riskTiers is a hand-curated maturity classification per protocol. Anything
// the table does not know is high risk until someone vouches for it.
var riskTiers = map[string]domain.RiskTier{
	"aave-v3":    domain.RiskLow,
	"lido":       domain.RiskLow,
	"etherfi":    domain.RiskMedium,
	"uniswap-v3": domain.RiskMedium,
	"marinade":   domain.RiskMedium,
}

func riskTierFor(protocolID string) domain.RiskTier {
	if tier, ok := riskTiers[protocolID]; ok {
		return tier
	}
	return domain.RiskHigh
}
