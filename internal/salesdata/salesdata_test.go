package salesdata

import (
	"errors"
	"testing"

	"github.com/City-of-Helsinki/hitas-sub002/internal/calcerr"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/datetime"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sale(postalCode, date, price, area string, exclude bool) Sale {
	return Sale{
		PostalCode:            postalCode,
		PurchaseDate:          datetime.MustParseDate(date),
		PurchasePrice:         d(price),
		SurfaceArea:           d(area),
		ExcludeFromStatistics: exclude,
	}
}

func TestInternalStatistics(t *testing.T) {
	quarters := datetime.PreviousQuarters(datetime.MustParseDate("2023-02-01"), 4)
	sales := []Sale{
		sale("00100", "2022-04-10", "200000", "50", false),
		sale("00100", "2022-06-30", "300000", "50", false),
		sale("00100", "2022-05-01", "900000", "50", true),
		sale("00100", "2021-12-31", "100000", "50", false),
		sale("00200", "2022-11-15", "150000", "30", false),
		sale("00200", "2022-11-16", "150000", "0", false),
	}
	sales[1].ApartmentShareOfLoans = d("10000")

	stats := InternalStatistics(sales, quarters)

	q2 := stats["00100"]["2022Q2"]
	if q2.SaleCount != 2 {
		t.Errorf("00100 2022Q2 SaleCount = %d, expected 2", q2.SaleCount)
	}
	// (200000 + 310000) / 100
	if !q2.Price.Equal(d("5100")) {
		t.Errorf("00100 2022Q2 Price = %s, expected 5100", q2.Price)
	}
	if len(stats["00100"]) != 1 {
		t.Errorf("expected only 2022Q2 for 00100, got %v", stats["00100"])
	}
	if q4 := stats["00200"]["2022Q4"]; q4.SaleCount != 1 || !q4.Price.Equal(d("5000")) {
		t.Errorf("00200 2022Q4 = %+v", q4)
	}
}

func TestBuildPrefersInternalWhenEnoughSales(t *testing.T) {
	quarters := datetime.PreviousQuarters(datetime.MustParseDate("2023-02-01"), 4)
	internal := map[string]Quarters{
		"00100": {"2022Q2": {SaleCount: 2, Price: d("5000")}},
		"00200": {"2022Q4": {SaleCount: 1, Price: d("5000")}},
	}
	external := map[string]Quarters{
		"00100": {
			"2022Q1": {SaleCount: 3, Price: d("4000")},
			"2022Q3": {SaleCount: 1, Price: d("6000")},
			"2021Q4": {SaleCount: 100, Price: d("1")},
		},
	}

	tests := []struct {
		name       string
		minimum    int
		postalCode string
		found      bool
		price      string
		source     Source
	}{
		{"Internal below minimum falls back to external", 5, "00100", true, "4500", SourceExternal},
		{"Internal at minimum", 2, "00100", true, "5000", SourceInternal},
		{"No external data", 5, "00200", false, "", ""},
		{"Single internal sale enough", 1, "00200", true, "5000", SourceInternal},
		{"Unknown postal code", 1, "00990", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := Build(quarters, internal, external, tt.minimum)
			got, ok := data.AveragePrice(tt.postalCode)
			if ok != tt.found {
				t.Fatalf("AveragePrice(%s) found = %v, expected %v", tt.postalCode, ok, tt.found)
			}
			if !ok {
				return
			}
			if !got.Price.Equal(d(tt.price)) || got.Source != tt.source {
				t.Errorf("AveragePrice(%s) = %+v, expected %s from %s", tt.postalCode, got, tt.price, tt.source)
			}
		})
	}

	data := Build(quarters, nil, nil, 5)
	if len(data.Quarters) != 4 || data.Quarters[0] != "2022Q1" || data.Quarters[3] != "2022Q4" {
		t.Errorf("unexpected quarter labels %v", data.Quarters)
	}
}

const validExternal = `{
  "calculation_quarter": "2023Q1",
  "quarters": ["2022Q1", "2022Q2", "2022Q3", "2022Q4"],
  "areas": [
    {
      "postal_code": "00100",
      "quarters": [
        {"quarter": "2022Q1", "sale_count": 3, "price": 4000},
        {"quarter": "2022Q3", "sale_count": 1, "price": 6000.5}
      ]
    }
  ]
}`

func TestParseExternal(t *testing.T) {
	data, err := ParseExternal([]byte(validExternal))
	if err != nil {
		t.Fatalf("ParseExternal() unexpected error: %v", err)
	}
	stats := data.Statistics()
	q3 := stats["00100"]["2022Q3"]
	if q3.SaleCount != 1 || !q3.Price.Equal(d("6000.5")) {
		t.Errorf("00100 2022Q3 = %+v", q3)
	}
}

func TestParseExternalRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"Not JSON", `{"calculation_quarter":`},
		{"Short postal code", `{"calculation_quarter": "2023Q1", "quarters": ["2022Q1", "2022Q2", "2022Q3", "2022Q4"],
			"areas": [{"postal_code": "0010", "quarters": []}]}`},
		{"Three quarters", `{"calculation_quarter": "2023Q1", "quarters": ["2022Q2", "2022Q3", "2022Q4"], "areas": []}`},
		{"Negative sale count", `{"calculation_quarter": "2023Q1", "quarters": ["2022Q1", "2022Q2", "2022Q3", "2022Q4"],
			"areas": [{"postal_code": "00100", "quarters": [{"quarter": "2022Q1", "sale_count": -1, "price": 1}]}]}`},
		{"Quarters not preceding calculation quarter", `{"calculation_quarter": "2023Q2", "quarters": ["2022Q1", "2022Q2", "2022Q3", "2022Q4"], "areas": []}`},
		{"Undeclared area quarter", `{"calculation_quarter": "2023Q1", "quarters": ["2022Q1", "2022Q2", "2022Q3", "2022Q4"],
			"areas": [{"postal_code": "00100", "quarters": [{"quarter": "2021Q4", "sale_count": 1, "price": 1}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExternal([]byte(tt.body))
			if !errors.Is(err, calcerr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}
