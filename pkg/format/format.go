// Package format renders numeric record values for dashboard display.
//
// Every function is total: nil, NaN, infinities and non-numeric input
// render as NotAvailable instead of failing or printing "NaN".
package format

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/Sternrassler/indexer-dashboard/pkg/record"
)

// NotAvailable is rendered for values that are missing or not numeric.
const NotAvailable = "N/A"

// Magnitude thresholds.
const (
	Billion  = 1e9
	Million  = 1e6
	Thousand = 1e3
)

// maxGroupedFractionDigits matches the upstream dashboard's locale output.
const maxGroupedFractionDigits = 3

var printer = message.NewPrinter(language.English)

// Magnitude scales large values to B/M/K with two decimals; smaller values
// are locale grouped. Negative values keep a leading "-".
//
//	Magnitude(1500)       == "1.50K"
//	Magnitude(3200000000) == "3.20B"
//	Magnitude(999)        == "999"
func Magnitude(v any) string {
	f, ok := record.Number(v)
	if !ok {
		return NotAvailable
	}

	sign, abs := split(f)
	var s string
	switch {
	case abs >= Billion:
		s = fmt.Sprintf("%.2fB", abs/Billion)
	case abs >= Million:
		s = fmt.Sprintf("%.2fM", abs/Million)
	case abs >= Thousand:
		s = fmt.Sprintf("%.2fK", abs/Thousand)
	default:
		s = grouped(abs)
		if s == "0" {
			return s
		}
	}
	return sign + s
}

// Currency is Magnitude with a dollar prefix ("$1.20M", "-$3.00K").
func Currency(v any) string {
	s := Magnitude(v)
	if s == NotAvailable {
		return s
	}
	if s[0] == '-' {
		return "-$" + s[1:]
	}
	return "$" + s
}

// Grouped renders the full value with thousands separators, e.g. account
// balances ("1,234,567.5").
func Grouped(v any) string {
	f, ok := record.Number(v)
	if !ok {
		return NotAvailable
	}
	sign, abs := split(f)
	s := grouped(abs)
	if s == "0" {
		return s
	}
	return sign + s
}

// Percentage renders two decimals with an explicit sign for non-zero
// values. Zero renders as "0.00%".
func Percentage(v any) string {
	f, ok := record.Number(v)
	if !ok {
		return NotAvailable
	}
	switch {
	case f > 0:
		return fmt.Sprintf("+%.2f%%", f)
	case f < 0:
		return fmt.Sprintf("-%.2f%%", -f)
	default:
		return "0.00%"
	}
}

// Price scales precision inversely with magnitude so small-denomination
// tokens stay legible: below 0.01 uses 6 decimals, below 1 uses 4,
// otherwise 2.
func Price(v any) string {
	f, ok := record.Number(v)
	if !ok {
		return NotAvailable
	}
	sign, abs := split(f)
	decimals := 2
	switch {
	case abs < 0.01:
		decimals = 6
	case abs < 1:
		decimals = 4
	}
	return sign + fmt.Sprintf("%.*f", decimals, abs)
}

// Trend is the direction of a change value.
type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendNeutral Trend = "neutral"
)

// TrendOf classifies a change value; unusable input is neutral.
func TrendOf(v any) Trend {
	f, ok := record.Number(v)
	switch {
	case !ok || f == 0:
		return TrendNeutral
	case f > 0:
		return TrendUp
	default:
		return TrendDown
	}
}

func split(f float64) (string, float64) {
	if f < 0 {
		return "-", math.Abs(f)
	}
	return "", f
}

func grouped(abs float64) string {
	return printer.Sprintf("%v", number.Decimal(abs, number.MaxFractionDigits(maxGroupedFractionDigits)))
}
