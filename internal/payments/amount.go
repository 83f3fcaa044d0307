package payments

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies are charged in whole units by the processor.
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {},
	"krw": {}, "mga": {}, "pyg": {}, "rwf": {}, "ugx": {}, "vnd": {},
	"vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

var hundred = decimal.NewFromInt(100)

// IsZeroDecimal reports whether currency has no minor unit.
func IsZeroDecimal(currency string) bool {
	_, ok := zeroDecimalCurrencies[strings.ToLower(strings.TrimSpace(currency))]
	return ok
}

// ToMinorUnits converts amount into the processor's integer convention,
// rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	if strings.TrimSpace(currency) == "" {
		return 0, fmt.Errorf("currency is required")
	}
	scaled := amount
	if !IsZeroDecimal(currency) {
		scaled = amount.Mul(hundred)
	}
	rounded := scaled.Round(0)
	if rounded.Sign() <= 0 {
		return 0, fmt.Errorf("amount %s %s rounds to zero minor units", amount.String(), currency)
	}
	if rounded.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("amount %s %s overflows minor units", amount.String(), currency)
	}
	return rounded.IntPart(), nil
}
