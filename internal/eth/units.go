package eth

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseGasPriceGwei converts a decimal gwei amount into wei
func ParseGasPriceGwei(gwei string) (*big.Int, error) {
	gwei = strings.TrimSpace(gwei)
	if gwei == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(gwei)
	if err != nil {
		return nil, fmt.Errorf("invalid gas price %q: %w", gwei, err)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("gas price must be positive, got %s", gwei)
	}
	return d.Shift(9).BigInt(), nil
}

// FormatUnits renders an integer amount with the given decimals and precision
func FormatUnits(amount *big.Int, decimals uint8, places int32) string {
	if amount == nil {
		return decimal.Zero.StringFixed(places)
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).StringFixed(places)
}
