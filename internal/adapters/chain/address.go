package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defolio/defolio/internal/core/domain"
)

// base58Alphabet is the Bitcoin alphabet used by Solana account ids: no 0, O,
// I or l.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// IsValidEVMAddress reports whether s is a syntactically valid hex address.
func IsValidEVMAddress(s string) bool {
	return common.IsHexAddress(s)
}

// IsValidSolanaAddress reports whether s looks like a base58 account id of
// plausible length. This is a syntax check only; no on-curve validation.
func IsValidSolanaAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(base58Alphabet, r) {
			return false
		}
	}
	return true
}

// DetectFamily classifies an address by network family, or "" when it is
// valid for neither.
func DetectFamily(address string) domain.ChainFamily {
	switch {
	case IsValidEVMAddress(address):
		return domain.FamilyEVM
	case IsValidSolanaAddress(address):
		return domain.FamilySolana
	default:
		return ""
	}
}
