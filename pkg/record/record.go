// Package record defines the open field model shared by every dashboard
// data source and the numeric fallback policy used by aggregates and
// formatters.
package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Record is one upstream entity (a coin, pool, validator, account or event).
// Field presence and type vary by source; no field is guaranteed.
type Record map[string]any

// Lookup resolves a dotted path ("buyVolumeStats1d.volumeUsd") through
// nested maps. A path segment that exists literally (including dots) wins
// over descending.
func (r Record) Lookup(path string) (any, bool) {
	if r == nil || path == "" {
		return nil, false
	}
	if v, ok := r[path]; ok {
		return v, true
	}

	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	default:
		return nil, false
	}
}

// Decimal converts v to a decimal under the numeric fallback policy:
// finite numbers, json.Number and numeric strings are numeric; nil, bools,
// NaN, infinities and anything else are not.
func Decimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, false
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		f := float64(n)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int8:
		return decimal.NewFromInt(int64(n)), true
	case int16:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return fromUint(uint64(n)), true
	case uint8:
		return decimal.NewFromInt(int64(n)), true
	case uint16:
		return decimal.NewFromInt(int64(n)), true
	case uint32:
		return decimal.NewFromInt(int64(n)), true
	case uint64:
		return fromUint(n), true
	case decimal.Decimal:
		return n, finite(n)
	case json.Number:
		return parseDecimal(n.String())
	case string:
		return parseDecimal(n)
	default:
		return decimal.Zero, false
	}
}

func fromUint(n uint64) decimal.Decimal {
	return decimal.RequireFromString(strconv.FormatUint(n, 10))
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !finite(d) {
		return decimal.Zero, false
	}
	return d, true
}

// finite reports whether d fits in a float64.
func finite(d decimal.Decimal) bool {
	return !math.IsInf(d.InexactFloat64(), 0)
}

// Number is Decimal as a float64.
func Number(v any) (float64, bool) {
	d, ok := Decimal(v)
	if !ok {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// Text renders a field value as a display/group key. The second result is
// false for nil and empty strings.
func Text(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprint(t), true
	}
}

// Truthy follows the upstream JSON convention for flags such as isVerified:
// true booleans, non-zero numbers and the strings "true"/"1".
func Truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	default:
		d, ok := Decimal(v)
		return ok && !d.IsZero()
	}
}
