// Package salesdata aggregates the postal code sales statistics the
// thirty-year regulation compares housing companies against.
package salesdata

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/datetime"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/mathutil"
	"github.com/shopspring/decimal"
)

// QuarterData is the sale count and average price per square meter of one
// postal code in one quarter.
type QuarterData struct {
	SaleCount int             `json:"sale_count"`
	Price     decimal.Decimal `json:"price"`
}

// Quarters maps a quarter label (2022Q1) to its statistics.
type Quarters map[string]QuarterData

// Source tells which statistics a postal code average came from.
type Source string

const (
	SourceInternal Source = "internal"
	SourceExternal Source = "external"
)

// AreaPrice is the average price per square meter of a postal code over
// the statistics quarters.
type AreaPrice struct {
	Price     decimal.Decimal `json:"price"`
	SaleCount int             `json:"sale_count"`
	Source    Source          `json:"source"`
}

// FullSalesData is the sales data snapshot of one regulation run.
type FullSalesData struct {
	Quarters    []string             `json:"quarters"`
	Internal    map[string]Quarters  `json:"internal"`
	External    map[string]Quarters  `json:"external"`
	PriceByArea map[string]AreaPrice `json:"price_by_area"`
}

// Sale is one resale recorded in the register.
type Sale struct {
	PostalCode            string          `json:"postal_code"`
	PurchaseDate          civil.Date      `json:"purchase_date"`
	PurchasePrice         decimal.Decimal `json:"purchase_price"`
	ApartmentShareOfLoans decimal.Decimal `json:"apartment_share_of_housing_company_loans"`
	SurfaceArea           decimal.Decimal `json:"surface_area"`
	ExcludeFromStatistics bool            `json:"exclude_from_statistics"`
}

// DebtFreePrice is the purchase price including the loan share.
func (s Sale) DebtFreePrice() decimal.Decimal {
	return s.PurchasePrice.Add(s.ApartmentShareOfLoans)
}

// InternalStatistics aggregates sales per postal code and quarter. Sales
// outside the quarters, without surface area or flagged to be excluded
// from statistics are skipped. The quarter price is the total debt free
// price divided by the total surface area.
func InternalStatistics(sales []Sale, quarters []datetime.Quarter) map[string]Quarters {
	type totals struct {
		count int
		price decimal.Decimal
		area  decimal.Decimal
	}
	collected := make(map[string]map[string]*totals)

	for _, sale := range sales {
		if sale.ExcludeFromStatistics || sale.SurfaceArea.Sign() <= 0 {
			continue
		}
		quarter, ok := quarterContaining(quarters, sale.PurchaseDate)
		if !ok {
			continue
		}
		byQuarter, ok := collected[sale.PostalCode]
		if !ok {
			byQuarter = make(map[string]*totals)
			collected[sale.PostalCode] = byQuarter
		}
		t, ok := byQuarter[quarter.String()]
		if !ok {
			t = &totals{}
			byQuarter[quarter.String()] = t
		}
		t.count++
		t.price = t.price.Add(sale.DebtFreePrice())
		t.area = t.area.Add(sale.SurfaceArea)
	}

	result := make(map[string]Quarters, len(collected))
	for postalCode, byQuarter := range collected {
		stats := make(Quarters, len(byQuarter))
		for quarter, t := range byQuarter {
			stats[quarter] = QuarterData{
				SaleCount: t.count,
				Price:     mathutil.Roundup(mathutil.Share(t.price, t.area)),
			}
		}
		result[postalCode] = stats
	}
	return result
}

func quarterContaining(quarters []datetime.Quarter, date civil.Date) (datetime.Quarter, bool) {
	for _, q := range quarters {
		if q.Contains(date) {
			return q, true
		}
	}
	return datetime.Quarter{}, false
}

// Build combines internal and external statistics into a snapshot. A
// postal code uses its internal statistics when they hold at least
// minimumSaleCount sales, else its external statistics when they hold any.
func Build(quarters []datetime.Quarter, internal, external map[string]Quarters, minimumSaleCount int) FullSalesData {
	labels := make([]string, 0, len(quarters))
	for _, q := range quarters {
		labels = append(labels, q.String())
	}

	data := FullSalesData{
		Quarters:    labels,
		Internal:    internal,
		External:    external,
		PriceByArea: make(map[string]AreaPrice),
	}
	if data.Internal == nil {
		data.Internal = make(map[string]Quarters)
	}
	if data.External == nil {
		data.External = make(map[string]Quarters)
	}

	for _, postalCode := range postalCodes(data.Internal, data.External) {
		if price, count, ok := weightedAverage(data.Internal[postalCode], labels); ok && count >= minimumSaleCount {
			data.PriceByArea[postalCode] = AreaPrice{Price: price, SaleCount: count, Source: SourceInternal}
			continue
		}
		if price, count, ok := weightedAverage(data.External[postalCode], labels); ok {
			data.PriceByArea[postalCode] = AreaPrice{Price: price, SaleCount: count, Source: SourceExternal}
		}
	}
	return data
}

// AveragePrice returns the postal code's average price per square meter.
func (f FullSalesData) AveragePrice(postalCode string) (AreaPrice, bool) {
	price, ok := f.PriceByArea[postalCode]
	return price, ok
}

// weightedAverage returns the sale count weighted price over the labels.
func weightedAverage(stats Quarters, labels []string) (decimal.Decimal, int, bool) {
	total := decimal.Zero
	count := 0
	for _, label := range labels {
		q, ok := stats[label]
		if !ok || q.SaleCount <= 0 {
			continue
		}
		total = total.Add(q.Price.Mul(decimal.NewFromInt(int64(q.SaleCount))))
		count += q.SaleCount
	}
	if count == 0 {
		return decimal.Zero, 0, false
	}
	return mathutil.Roundup(total.Div(decimal.NewFromInt(int64(count)))), count, true
}

func postalCodes(sets ...map[string]Quarters) []string {
	seen := make(map[string]struct{})
	var codes []string
	for _, set := range sets {
		for code := range set {
			if _, ok := seen[code]; !ok {
				seen[code] = struct{}{}
				codes = append(codes, code)
			}
		}
	}
	sort.Strings(codes)
	return codes
}
