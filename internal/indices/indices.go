// Package indices holds the monthly index series the calculations depend on
// and the lookup contract used by the calculators.
package indices

import (
	"fmt"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/hitas-sub002/internal/calcerr"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/datetime"
	"github.com/shopspring/decimal"
)

// Kind identifies an index table.
type Kind string

const (
	ConstructionPrice       Kind = "construction_price_index"
	ConstructionPrice2005   Kind = "construction_price_index_2005_equal_100"
	MarketPrice             Kind = "market_price_index"
	MarketPrice2005         Kind = "market_price_index_2005_equal_100"
	SurfaceAreaPriceCeiling Kind = "surface_area_price_ceiling"
)

// Kinds lists every supported index table.
var Kinds = []Kind{
	ConstructionPrice,
	ConstructionPrice2005,
	MarketPrice,
	MarketPrice2005,
	SurfaceAreaPriceCeiling,
}

// ParseKind validates an index table name.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown index %q", name)
}

// Lookup returns the value of an index for an exact month. A missing month
// is reported as a calcerr.IndexMissingError.
type Lookup interface {
	Value(kind Kind, month civil.Date) (decimal.Decimal, error)
}

// Entry is one monthly index value.
type Entry struct {
	Kind  Kind            `json:"kind"`
	Month civil.Date      `json:"month"`
	Value decimal.Decimal `json:"value"`
}

// Table is an in-memory Lookup loaded before a calculation runs.
type Table struct {
	values map[Kind]map[civil.Date]decimal.Decimal
}

// NewTable creates a table from the given entries.
func NewTable(entries ...Entry) *Table {
	t := &Table{values: make(map[Kind]map[civil.Date]decimal.Decimal)}
	for _, e := range entries {
		t.Set(e.Kind, e.Month, e.Value)
	}
	return t
}

// Set stores a value for the month containing the given date.
func (t *Table) Set(kind Kind, month civil.Date, value decimal.Decimal) {
	series, ok := t.values[kind]
	if !ok {
		series = make(map[civil.Date]decimal.Decimal)
		t.values[kind] = series
	}
	series[datetime.MonthOf(month)] = value
}

// Value implements Lookup.
func (t *Table) Value(kind Kind, month civil.Date) (decimal.Decimal, error) {
	if series, ok := t.values[kind]; ok {
		if v, ok := series[datetime.MonthOf(month)]; ok {
			return v, nil
		}
	}
	return decimal.Zero, calcerr.IndexMissing(string(kind), datetime.MonthOf(month))
}

// Entries returns all values ordered by kind and month.
func (t *Table) Entries() []Entry {
	var entries []Entry
	for kind, series := range t.values {
		for month, value := range series {
			entries = append(entries, Entry{Kind: kind, Month: month, Value: value})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind < entries[j].Kind
		}
		return entries[i].Month.Before(entries[j].Month)
	})
	return entries
}

// Len returns the number of stored values.
func (t *Table) Len() int {
	n := 0
	for _, series := range t.values {
		n += len(series)
	}
	return n
}

// Pair holds an index's value at completion and at calculation time.
type Pair struct {
	CompletionDate  decimal.Decimal `json:"completion_date_index"`
	CalculationDate decimal.Decimal `json:"calculation_date_index"`
}

// LookupPair fetches the completion and calculation month values of an index.
func LookupPair(lookup Lookup, kind Kind, completion, calculation civil.Date) (Pair, error) {
	completionValue, err := lookup.Value(kind, completion)
	if err != nil {
		return Pair{}, err
	}
	calculationValue, err := lookup.Value(kind, calculation)
	if err != nil {
		return Pair{}, err
	}
	if completionValue.Sign() <= 0 {
		return Pair{}, calcerr.InvalidCalculation("%s for %s must be positive, got %s",
			kind, datetime.FormatMonth(completion), completionValue)
	}
	return Pair{CompletionDate: completionValue, CalculationDate: calculationValue}, nil
}
