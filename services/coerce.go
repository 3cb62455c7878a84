package services

import (
	"strings"

	"github.com/shopspring/decimal"
)

// noneSentinel is what Alpha Vantage returns for a field it has no value for
const noneSentinel = "None"

func parseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == noneSentinel || s == "-" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(s, "%"))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// floatOrZero coerces a quote field; missing or unparseable values become 0
func floatOrZero(s string) float64 {
	d, _ := parseDecimal(s)
	return d.InexactFloat64()
}

// intOrZero coerces an integer quote field
func intOrZero(s string) int64 {
	d, _ := parseDecimal(s)
	return d.IntPart()
}

// changePercentOrZero keeps the upstream percent string, defaulting to "0%"
func changePercentOrZero(s string) string {
	if _, ok := parseDecimal(s); !ok {
		return "0%"
	}
	return strings.TrimSpace(s)
}

// optionalFloat coerces a nullable overview field; "None" becomes nil, not 0
func optionalFloat(s string) *float64 {
	d, ok := parseDecimal(s)
	if !ok {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

// optionalInt coerces a nullable integer overview field
func optionalInt(s string) *int64 {
	d, ok := parseDecimal(s)
	if !ok {
		return nil
	}
	n := d.IntPart()
	return &n
}

func float64Ptr(f float64) *float64 { return &f }

func int64Ptr(n int64) *int64 { return &n }

// truncate shortens a raw upstream body for log output
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
