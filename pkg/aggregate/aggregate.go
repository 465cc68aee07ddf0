// Package aggregate derives dashboard statistics from a page of records.
//
// All functions are pure: they never mutate their input and never cache a
// result, so a snapshot is always a function of the records passed in.
// Values that are not numeric under the record fallback policy contribute
// zero; results are never NaN or infinite.
package aggregate

import (
	"math"
	"sort"

	"github.com/axiomhq/hyperloglog"
	"github.com/shopspring/decimal"

	"github.com/Sternrassler/indexer-dashboard/pkg/record"
)

// UnknownGroup labels records whose group field is missing or empty.
const UnknownGroup = "Unknown"

// Snapshot is a point-in-time set of statistics for one field.
type Snapshot struct {
	Field   string          `json:"field"`
	Sum     float64         `json:"sum"`
	Average float64         `json:"average"`
	Max     float64         `json:"max"`
	Count   int             `json:"count"`
	Top     []record.Record `json:"top,omitempty"`
}

// Share is one slice of a distribution chart.
type Share struct {
	Key     string  `json:"key"`
	Value   float64 `json:"value"`
	Percent float64 `json:"percent"`
}

// Sum adds the selected numeric value across all records.
func Sum(records []record.Record, sel record.Selector) float64 {
	return toFloat(sumDecimal(records, sel))
}

func sumDecimal(records []record.Record, sel record.Selector) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		if d, ok := sel.Decimal(r); ok {
			total = total.Add(d)
		}
	}
	return total
}

// Average is Sum divided by the number of records; 0 for an empty set.
func Average(records []record.Record, sel record.Selector) float64 {
	if len(records) == 0 {
		return 0
	}
	return toFloat(sumDecimal(records, sel).Div(decimal.NewFromInt(int64(len(records)))))
}

// toFloat clamps totals that overflow a float64 to its largest finite value.
func toFloat(d decimal.Decimal) float64 {
	f := d.InexactFloat64()
	switch {
	case math.IsInf(f, 1):
		return math.MaxFloat64
	case math.IsInf(f, -1):
		return -math.MaxFloat64
	}
	return f
}

// Max returns the largest value. Missing and non-numeric values count as
// zero, so the result is never below 0.
func Max(records []record.Record, sel record.Selector) float64 {
	best := decimal.Zero
	for _, r := range records {
		if d, _ := sel.Decimal(r); d.GreaterThan(best) {
			best = d
		}
	}
	return toFloat(best)
}

// Count returns the number of records.
func Count(records []record.Record) int {
	return len(records)
}

// CountWhere counts records matching pred, e.g. verified validators.
func CountWhere(records []record.Record, pred func(record.Record) bool) int {
	n := 0
	for _, r := range records {
		if pred(r) {
			n++
		}
	}
	return n
}

// TopN returns at most n records ordered by the selected value, highest
// first. Equal values keep their input order. The input is not modified.
func TopN(records []record.Record, sel record.Selector, n int) []record.Record {
	if n <= 0 || len(records) == 0 {
		return []record.Record{}
	}

	type keyed struct {
		r record.Record
		v decimal.Decimal
	}
	ranked := make([]keyed, len(records))
	for i, r := range records {
		d, _ := sel.Decimal(r)
		ranked[i] = keyed{r: r, v: d}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].v.GreaterThan(ranked[j].v)
	})

	n = min(n, len(ranked))
	out := make([]record.Record, n)
	for i := range out {
		out[i] = ranked[i].r
	}
	return out
}

// GroupTotals sums valueSel per distinct groupSel value. Records without a
// group value are counted under UnknownGroup.
func GroupTotals(records []record.Record, groupSel, valueSel record.Selector) map[string]float64 {
	acc := make(map[string]decimal.Decimal)
	for _, r := range records {
		key := UnknownGroup
		if v, ok := groupSel.Value(r); ok {
			if s, ok := record.Text(v); ok {
				key = s
			}
		}
		d, _ := valueSel.Decimal(r)
		acc[key] = acc[key].Add(d)
	}

	totals := make(map[string]float64, len(acc))
	for k, d := range acc {
		totals[k] = toFloat(d)
	}
	return totals
}

// Distribution turns group totals into percentage shares, largest first
// (ties by key). Percentages are 0 when the grand total is 0.
func Distribution(totals map[string]float64) []Share {
	grand := 0.0
	for _, v := range totals {
		grand += v
	}

	shares := make([]Share, 0, len(totals))
	for k, v := range totals {
		s := Share{Key: k, Value: v}
		if grand != 0 {
			s.Percent = v / grand * 100
		}
		shares = append(shares, s)
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Value != shares[j].Value {
			return shares[i].Value > shares[j].Value
		}
		return shares[i].Key < shares[j].Key
	})
	return shares
}

// DistinctCount estimates the number of distinct selected values (unique
// traders, holders, senders) with a HyperLogLog sketch. Missing values are
// ignored.
func DistinctCount(records []record.Record, sel record.Selector) uint64 {
	if len(records) == 0 {
		return 0
	}
	sketch := hyperloglog.New16()
	for _, r := range records {
		v, ok := sel.Value(r)
		if !ok {
			continue
		}
		s, ok := record.Text(v)
		if !ok {
			continue
		}
		sketch.Insert([]byte(s))
	}
	return sketch.Estimate()
}

// PercentChange returns the relative change from previous to current in
// percent. A change from zero is reported as 100 (or 0 when both are zero).
func PercentChange(current, previous float64) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	return (current - previous) / previous * 100
}

// Compute builds a Snapshot for sel; topN <= 0 leaves Top empty.
func Compute(records []record.Record, sel record.Selector, topN int) Snapshot {
	s := Snapshot{
		Field:   sel.String(),
		Sum:     Sum(records, sel),
		Average: Average(records, sel),
		Max:     Max(records, sel),
		Count:   Count(records),
	}
	if topN > 0 {
		s.Top = TopN(records, sel, topN)
	}
	return s
}
