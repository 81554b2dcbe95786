package normalize

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// amountNoise is stripped from amount strings before parsing: thousands
// separators, currency symbols and the spaces banks put between them.
var amountNoise = strings.NewReplacer(
	",", "",
	"£", "",
	"$", "",
	"€", "",
	"¥", "",
	"₹", "",
	" ", "",
	"\u00a0", "",
	"\t", "",
)

// CleanAmount strips thousands separators, currency symbols and whitespace
// from a raw amount cell. "-£1,234.56" becomes "-1234.56".
func CleanAmount(s string) string {
	return amountNoise.Replace(strings.TrimSpace(s))
}

// ParseAmount converts a raw amount cell into a finite float64.
// NaN, Inf and anything else decimal cannot represent are rejected.
func ParseAmount(s string) (float64, error) {
	cleaned := CleanAmount(s)
	if cleaned == "" || cleaned == "-" || cleaned == "+" {
		return 0, fmt.Errorf("empty amount %q", s)
	}
	cleaned = strings.TrimPrefix(cleaned, "+")

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("amount %q is out of range", s)
	}
	return f, nil
}
