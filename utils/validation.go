package utils

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vitwit/tiermint/types"
)

var hexPattern = regexp.MustCompile("^[0-9a-fA-F]+$")

// ValidateNetwork checks that network names a supported network
func ValidateNetwork(network string) error {
	if network == "" {
		return fmt.Errorf("network cannot be empty")
	}
	_, err := types.ParseNetwork(network)
	return err
}

// ValidateAmount checks if an amount string is a valid decimal
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	if dec.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	return &dec, nil
}

// ValidateTokenID parses a decimal or 0x-prefixed token id
func ValidateTokenID(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("token id cannot be empty")
	}

	id, ok := new(big.Int).SetString(value, 0)
	if !ok {
		return nil, fmt.Errorf("invalid token id: %s", value)
	}
	if id.Sign() <= 0 {
		return nil, fmt.Errorf("token id must be positive")
	}
	return id, nil
}

// ValidateTransactionHash checks that hash is a 0x-prefixed 32 byte hex string
func ValidateTransactionHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("transaction hash cannot be empty")
	}
	if !strings.HasPrefix(hash, "0x") {
		return fmt.Errorf("transaction hash must start with 0x")
	}
	if len(hash) != 66 {
		return fmt.Errorf("transaction hash must be 66 characters long")
	}
	if !isHexString(hash[2:]) {
		return fmt.Errorf("transaction hash must be valid hex")
	}
	return nil
}

// ValidateTiers checks that configured tiers have strictly increasing
// prices; the contract picks the highest tier the paid value covers.
func ValidateTiers(tiers []types.TierOption) error {
	if len(tiers) == 0 {
		return fmt.Errorf("at least one tier is required")
	}
	for i, t := range tiers {
		if t.PriceWei == nil || t.PriceWei.Sign() < 0 {
			return fmt.Errorf("tier %d has no valid price", i)
		}
		if i > 0 && t.PriceWei.Cmp(tiers[i-1].PriceWei) <= 0 {
			return fmt.Errorf("tier %d (%s) must cost more than tier %d (%s)",
				i, types.WeiToEther(t.PriceWei), i-1, types.WeiToEther(tiers[i-1].PriceWei))
		}
	}
	return nil
}

// Helper function to check if a string is valid hexadecimal
func isHexString(s string) bool {
	return hexPattern.MatchString(s)
}
