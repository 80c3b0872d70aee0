package receipts

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is the only currency the ledger accounts in.
const Currency = "BRL"

// Round2 rounds an amount to cents, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ParseBRL parses an amount written in Brazilian notation ("R$ 1.234,56").
// Whitespace and the currency marker are stripped, dots are treated as
// thousands separators and the last comma becomes the decimal point.
func ParseBRL(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(s, "R$", "")
	s = strings.Join(strings.Fields(s), "")
	s = strings.ReplaceAll(s, ".", "")
	if i := strings.LastIndex(s, ","); i >= 0 {
		s = s[:i] + "." + s[i+1:]
	}
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// FormatBRL renders an amount as "1.234,56" (no currency marker).
func FormatBRL(d decimal.Decimal) string {
	s := Round2(d).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	out := b.String() + "," + frac
	if neg {
		out = "-" + out
	}
	return out
}
