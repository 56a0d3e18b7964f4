// Package money provides parsing of human-entered monetary amounts.
//
// All monetary strings in the system pass through ParseAmount - there is
// deliberately no ad hoc regex parsing anywhere else. The accepted grammar:
//
//	amount   = [sign] [currency] digits [".", fraction]
//	sign     = "-" | "(" amount ")" (accounting negative)
//	currency = "$" | "€" | "£"
//	digits   = decimal digits, optionally grouped with "," every 3
//
// Examples: "$1,000,000", "€2,500.50", "-$300", "(1,200.00)", "42".
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// currencySymbols are stripped from the front of an amount string.
var currencySymbols = []string{"$", "€", "£"}

// ParseAmount parses a monetary string into a decimal.
// Returns an error for empty, malformed, or badly-grouped input.
func ParseAmount(s string) (decimal.Decimal, error) {
	original := s
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	negative := false

	// Accounting-style negative: "(1,200.00)"
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	// Leading minus sign (may precede or follow the currency symbol)
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimSpace(s[1:])
	}

	for _, sym := range currencySymbols {
		if strings.HasPrefix(s, sym) {
			s = strings.TrimSpace(strings.TrimPrefix(s, sym))
			break
		}
	}

	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimSpace(s[1:])
	}

	if s == "" {
		return decimal.Zero, fmt.Errorf("no digits in amount %q", original)
	}

	intPart := s
	fracPart := ""
	if idx := strings.Index(s, "."); idx >= 0 {
		intPart = s[:idx]
		fracPart = s[idx+1:]
		if fracPart == "" || strings.ContainsAny(fracPart, ".,") {
			return decimal.Zero, fmt.Errorf("malformed fraction in amount %q", original)
		}
	}

	if err := validateGrouping(intPart); err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", original, err)
	}

	plain := strings.ReplaceAll(intPart, ",", "")
	if fracPart != "" {
		plain += "." + fracPart
	}

	d, err := decimal.NewFromString(plain)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", original, err)
	}

	if negative {
		d = d.Neg()
	}
	return d, nil
}

// validateGrouping checks the integer part: plain digits, or digit groups
// of exactly 3 separated by commas (first group 1-3 digits).
func validateGrouping(intPart string) error {
	if intPart == "" {
		return fmt.Errorf("missing integer part")
	}

	groups := strings.Split(intPart, ",")
	for i, g := range groups {
		if g == "" {
			return fmt.Errorf("empty digit group")
		}
		for _, r := range g {
			if r < '0' || r > '9' {
				return fmt.Errorf("unexpected character %q", r)
			}
		}
		if len(groups) == 1 {
			continue // No grouping, any length is fine
		}
		if i == 0 {
			if len(g) > 3 {
				return fmt.Errorf("leading group too long")
			}
		} else if len(g) != 3 {
			return fmt.Errorf("digit group %q is not 3 digits", g)
		}
	}
	return nil
}
