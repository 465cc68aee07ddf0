package record

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Selector picks a value out of a Record. Views declare selectors per
// source instead of probing records ad hoc.
type Selector struct {
	paths []string
}

// Field selects a single (possibly dotted) field path.
func Field(path string) Selector {
	return Selector{paths: []string{path}}
}

// Fields selects several numeric fields whose values are added together,
// e.g. buy plus sell volume.
func Fields(paths ...string) Selector {
	return Selector{paths: append([]string(nil), paths...)}
}

// String returns the selected paths joined with "+".
func (s Selector) String() string {
	return strings.Join(s.paths, "+")
}

// IsZero reports whether the selector names no field.
func (s Selector) IsZero() bool {
	return len(s.paths) == 0
}

// Value returns the raw value for single-field selectors. Multi-field
// selectors return their numeric sum when at least one field is numeric.
func (s Selector) Value(r Record) (any, bool) {
	switch len(s.paths) {
	case 0:
		return nil, false
	case 1:
		return r.Lookup(s.paths[0])
	default:
		d, ok := s.Decimal(r)
		if !ok {
			return nil, false
		}
		return d.InexactFloat64(), true
	}
}

// Decimal returns the numeric value of the selection. Non-numeric fields
// contribute nothing; ok is false when no field was numeric or the sum
// overflows a float64.
func (s Selector) Decimal(r Record) (decimal.Decimal, bool) {
	sum := decimal.Zero
	found := false
	for _, p := range s.paths {
		v, ok := r.Lookup(p)
		if !ok {
			continue
		}
		d, ok := Decimal(v)
		if !ok {
			continue
		}
		sum = sum.Add(d)
		found = true
	}
	if found && !finite(sum) {
		return decimal.Zero, false
	}
	return sum, found
}

// Number applies the fallback policy: the numeric value, or 0.
func (s Selector) Number(r Record) float64 {
	d, _ := s.Decimal(r)
	return d.InexactFloat64()
}
