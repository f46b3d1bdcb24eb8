package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/City-of-Helsinki/hitas-sub002/internal/maxprice"
	"github.com/City-of-Helsinki/hitas-sub002/internal/ownership"
	"github.com/City-of-Helsinki/hitas-sub002/internal/regulation"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/datetime"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleCalculation() maxprice.Calculation {
	valid := datetime.MustParseDate("2022-08-31")
	return maxprice.Calculation{
		ID:              "calc-1",
		ApartmentID:     "A1",
		CalculationDate: datetime.MustParseDate("2022-05-10"),
		Regime:          "2011_onwards",
		MaximumPrice:    d("190000"),
		ValidUntil:      valid,
		Index:           maxprice.SurfaceAreaPriceCeilingVariant,
		ConstructionPriceIndex: maxprice.IndexCalculation{
			MaximumPrice: d("102200"),
			ValidUntil:   valid,
		},
		MarketPriceIndex: maxprice.IndexCalculation{
			MaximumPrice: d("141500"),
			ValidUntil:   valid,
		},
		SurfaceAreaPriceCeiling: maxprice.SurfaceAreaPriceCeilingCalculation{
			MaximumPrice: d("190000"),
			ValidUntil:   valid,
			Maximum:      true,
		},
	}
}

func sampleReport() regulation.Report {
	return regulation.Report{
		CalculationMonth: datetime.MustParseDate("2023-02-01"),
		ReleasedFromRegulation: []regulation.Row{{
			HousingCompanyID:                   "hc-1",
			HousingCompanyName:                 "As Oy Esimerkki",
			PostalCode:                         "00100",
			AdjustedAveragePricePerSquareMeter: d("12000"),
			ComparisonValue:                    d("5000"),
			Outcome:                            regulation.ReleasedFromRegulation,
		}},
		Skipped: []regulation.Row{{
			HousingCompanyID:   "hc-2",
			HousingCompanyName: "As Oy Toinen",
			PostalCode:         "00900",
			Outcome:            regulation.Skipped,
		}},
		ObfuscatedOwners: []ownership.Obfuscated{{OwnerID: "o1"}},
	}
}

func TestPrettyCalculation(t *testing.T) {
	var buf bytes.Buffer
	PrettyCalculation(&buf, sampleCalculation())
	output := buf.String()

	for _, expected := range []string{
		"--- Maximum price for apartment A1 on 2022-05-10 (2011_onwards) ---",
		"102 200,00 €",
		"141 500,00 €",
		"Maximum price 190 000,00 €, valid until 2022-08-31",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("PrettyCalculation output missing %q\n%s", expected, output)
		}
	}
	if strings.Count(output, "| *") != 1 {
		t.Errorf("expected exactly one maximum mark\n%s", output)
	}
}

func TestCsvCalculation(t *testing.T) {
	var buf bytes.Buffer
	CsvCalculation(&buf, sampleCalculation())
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	if len(lines) != 4 {
		t.Fatalf("expected header and 3 rows, got %d lines", len(lines))
	}
	if lines[0] != `"apartment_id","calculation_date","variant","maximum_price","valid_until","maximum"` {
		t.Errorf("unexpected header %s", lines[0])
	}
	expected := `"A1","2022-05-10","surface_area_price_ceiling","190000.00","2022-08-31","true"`
	if lines[3] != expected {
		t.Errorf("ceiling row = %s, expected %s", lines[3], expected)
	}
}

func TestPrettyReport(t *testing.T) {
	var buf bytes.Buffer
	PrettyReport(&buf, sampleReport())
	output := buf.String()

	for _, expected := range []string{
		"--- Thirty-year regulation for 2023-02 ---",
		"Released from regulation (1)",
		"Stays regulated (0)",
		"Skipped (1)",
		"hc-1 | As Oy Esimerkki | 00100 | adjusted 12 000,00 €/m²",
		"Obfuscated owners: 1",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("PrettyReport output missing %q\n%s", expected, output)
		}
	}
}

func TestCsvReport(t *testing.T) {
	var buf bytes.Buffer
	CsvReport(&buf, sampleReport())
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
	}
	expected := `"2023-02","hc-1","As Oy Esimerkki","00100","","12000.00","5000.00","released_from_regulation"`
	if lines[1] != expected {
		t.Errorf("first row = %s, expected %s", lines[1], expected)
	}
	if !strings.HasSuffix(lines[2], `"skipped"`) {
		t.Errorf("second row = %s", lines[2])
	}
}
