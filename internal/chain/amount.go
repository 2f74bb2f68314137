// Package chain provides ledger-facing utilities shared by the ledger client
// and the content resolver: fixed-point amount conversion, retry with backoff,
// and per-endpoint rate limiting.
package chain

import (
	"math/big"
	"strings"
)

// ParseDecimalAmount parses a decimal amount string to big.Int with the given decimal places.
// For example, "1.5" with 6 decimals returns 1500000.
// Extra fractional digits beyond decimalPlaces are truncated.
//
//nolint:gocognit,gocyclo // Decimal parsing requires sequential validation steps
func ParseDecimalAmount(amount string, decimalPlaces int, invalidAmountErr error) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, invalidAmountErr
	}

	if strings.HasPrefix(amount, "-") || strings.HasPrefix(amount, "+") {
		return nil, invalidAmountErr
	}

	parts := strings.Split(amount, ".")
	if len(parts) > 2 {
		return nil, invalidAmountErr
	}

	intPart := parts[0]
	decPart := ""
	if len(parts) == 2 {
		decPart = parts[1]
	}

	if intPart == "" {
		intPart = "0"
	}
	for _, c := range intPart {
		if c < '0' || c > '9' {
			return nil, invalidAmountErr
		}
	}
	intVal, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, invalidAmountErr
	}

	multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimalPlaces)), nil)
	result := new(big.Int).Mul(intVal, multiplier)

	if decPart != "" {
		for _, c := range decPart {
			if c < '0' || c > '9' {
				return nil, invalidAmountErr
			}
		}

		// Pad or truncate decimal part
		for len(decPart) < decimalPlaces {
			decPart += "0"
		}
		decPart = decPart[:decimalPlaces]

		if decPart != "" {
			decVal, ok := new(big.Int).SetString(decPart, 10)
			if !ok {
				return nil, invalidAmountErr
			}
			result = result.Add(result, decVal)
		}
	}

	return result, nil
}

// FormatDecimalAmount converts a big.Int to a human-readable string with the given decimal places.
// Trailing zeros after the decimal point are removed.
// For example, 1500000 with 6 decimals returns "1.5" and 1000000 returns "1.0".
func FormatDecimalAmount(amount *big.Int, decimalPlaces int) string {
	if amount == nil {
		return "0"
	}
	if amount.Sign() < 0 {
		return "-" + FormatDecimalAmount(new(big.Int).Abs(amount), decimalPlaces)
	}
	if decimalPlaces <= 0 {
		return amount.String()
	}

	str := amount.String()

	// Pad with leading zeros if necessary
	for len(str) <= decimalPlaces {
		str = "0" + str
	}

	decimalPos := len(str) - decimalPlaces
	result := str[:decimalPos] + "." + str[decimalPos:]

	// Remove unnecessary trailing zeros, keeping one digit after the point
	for len(result) > 1 && result[len(result)-1] == '0' && result[len(result)-2] != '.' {
		result = result[:len(result)-1]
	}

	return result
}

// FormatInt renders a possibly-nil integer the way the ledger reports counts and timestamps.
func FormatInt(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
