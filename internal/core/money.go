// Package core holds the pure domain of the cooperative passbook: members,
// categorized transactions, the dated exchange-rate table, and the engines
// that distribute deposits and reconstruct balances from the transaction log.
// Nothing in this package performs I/O or reads the clock.
package core

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Epsilon is the USD threshold under which a distribution residual is
// treated as zero (no savings row emitted).
const Epsilon = 0.01

var ErrInvalidAmount = errors.New("invalid amount")

// ParseDecimal parses a monetary amount written the Venezuelan way:
// dot as thousands separator, comma as decimal separator ("1.234,56").
// Plain dot-decimal input ("1234.56") is accepted too. The result must be
// strictly positive.
//
// Examples:
//
//	ParseDecimal("2000")     -> 2000
//	ParseDecimal("1.234,56") -> 1234.56
//	ParseDecimal("36,50")    -> 36.5
//	ParseDecimal("1234.56")  -> 1234.56
func ParseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma:
		// Comma is the decimal separator; dots are thousands separators.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
		if strings.Contains(s, ",") {
			return 0, ErrInvalidAmount
		}
	case hasDot:
		// No comma: a single dot is a decimal point, several dots are
		// thousands separators ("1.234.567").
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return 0, ErrInvalidAmount
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// Round2 rounds to two decimals, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatUSD renders a USD amount in es-VE style: "$1.234,56".
func FormatUSD(v float64) string {
	return "$" + formatGrouped(v)
}

// FormatBs renders a bolivar amount in es-VE style: "Bs. 1.234,56".
func FormatBs(v float64) string {
	return "Bs. " + formatGrouped(v)
}

func formatGrouped(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	cents := int64(math.Round(v * 100))
	whole := cents / 100
	frac := cents % 100

	digits := strconv.FormatInt(whole, 10)
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	out := b.String() + "," + pad2(frac)
	if neg {
		return "-" + out
	}
	return out
}

func pad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}
