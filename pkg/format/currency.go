// Package format renders money and index values for reports.
package format

import (
	"strings"

	"github.com/City-of-Helsinki/hitas-sub002/pkg/constants"
	"github.com/shopspring/decimal"
)

// Currency returns a euro amount with thousands separators (e.g., "-1 234,56 €").
func Currency(amount decimal.Decimal) string {
	return NumericCurrency(amount) + " €"
}

// NumericCurrency returns an amount without a currency symbol but with
// separators (e.g., "-1 234,56").
func NumericCurrency(amount decimal.Decimal) string {
	fixed := amount.StringFixed(constants.CurrencyDecimals)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}
	if fixed == "0.00" {
		sign = ""
	}

	parts := strings.SplitN(fixed, ".", 2)
	intPart := parts[0]
	decPart := "00"
	if len(parts) == 2 {
		decPart = parts[1]
	}

	if len(intPart) > 3 {
		var builder strings.Builder
		for i, digit := range intPart {
			if i > 0 && (len(intPart)-i)%3 == 0 {
				builder.WriteByte(' ')
			}
			builder.WriteRune(digit)
		}
		intPart = builder.String()
	}

	return sign + intPart + "," + decPart
}

// Plain returns an amount with two decimals and a dot separator, as written
// in CSV output.
func Plain(amount decimal.Decimal) string {
	return amount.StringFixed(constants.CurrencyDecimals)
}
