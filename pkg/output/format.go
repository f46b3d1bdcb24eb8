// Package output formats calculation results and regulation reports for the CLI.
package output

import (
	"fmt"
	"io"

	"github.com/City-of-Helsinki/hitas-sub002/internal/maxprice"
	"github.com/City-of-Helsinki/hitas-sub002/internal/regulation"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/datetime"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/format"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// PrettyCalculation writes a human-readable summary of a maximum price calculation.
func PrettyCalculation(w io.Writer, c maxprice.Calculation) {
	fmt.Fprintf(w, "--- Maximum price for apartment %s on %s (%s) ---\n", c.ApartmentID, c.CalculationDate, c.Regime)
	fmt.Fprintf(w, "Variant                    | Maximum price   | Valid until | Max\n")
	fmt.Fprintf(w, "_______                    | _____________   | ___________ | ___\n")
	rows := []struct {
		name    string
		price   string
		valid   string
		maximum bool
	}{
		{string(maxprice.ConstructionPriceIndexVariant), format.Currency(c.ConstructionPriceIndex.MaximumPrice), c.ConstructionPriceIndex.ValidUntil.String(), c.ConstructionPriceIndex.Maximum},
		{string(maxprice.MarketPriceIndexVariant), format.Currency(c.MarketPriceIndex.MaximumPrice), c.MarketPriceIndex.ValidUntil.String(), c.MarketPriceIndex.Maximum},
		{string(maxprice.SurfaceAreaPriceCeilingVariant), format.Currency(c.SurfaceAreaPriceCeiling.MaximumPrice), c.SurfaceAreaPriceCeiling.ValidUntil.String(), c.SurfaceAreaPriceCeiling.Maximum},
	}
	for _, row := range rows {
		mark := ""
		if row.maximum {
			mark = "*"
		}
		fmt.Fprintf(w, "%-26s | %15s | %s  | %s\n", row.name, row.price, row.valid, mark)
	}
	fmt.Fprintf(w, "Maximum price %s, valid until %s\n", format.Currency(c.MaximumPrice), c.ValidUntil)
}

// CsvCalculation writes the variants of a calculation in comma-separated value format.
func CsvCalculation(w io.Writer, c maxprice.Calculation) {
	fmt.Fprintf(w, `"apartment_id","calculation_date","variant","maximum_price","valid_until","maximum"`+"\n")
	write := func(variant maxprice.Variant, price string, validUntil string, maximum bool) {
		fmt.Fprintf(w, `"%s","%s","%s","%s","%s","%t"`+"\n", c.ApartmentID, c.CalculationDate, variant, price, validUntil, maximum)
	}
	write(maxprice.ConstructionPriceIndexVariant, format.Plain(c.ConstructionPriceIndex.MaximumPrice),
		c.ConstructionPriceIndex.ValidUntil.String(), c.ConstructionPriceIndex.Maximum)
	write(maxprice.MarketPriceIndexVariant, format.Plain(c.MarketPriceIndex.MaximumPrice),
		c.MarketPriceIndex.ValidUntil.String(), c.MarketPriceIndex.Maximum)
	write(maxprice.SurfaceAreaPriceCeilingVariant, format.Plain(c.SurfaceAreaPriceCeiling.MaximumPrice),
		c.SurfaceAreaPriceCeiling.ValidUntil.String(), c.SurfaceAreaPriceCeiling.Maximum)
}

// PrettyReport writes a regulation report grouped by outcome.
func PrettyReport(w io.Writer, report regulation.Report) {
	p := message.NewPrinter(language.Finnish)
	fmt.Fprintf(w, "--- Thirty-year regulation for %s ---\n", datetime.FormatMonth(report.CalculationMonth))
	groups := []struct {
		title string
		rows  []regulation.Row
	}{
		{"Released from regulation", report.ReleasedFromRegulation},
		{"Stays regulated", report.StaysRegulated},
		{"Automatically released", report.AutomaticallyReleased},
		{"Skipped", report.Skipped},
	}
	for _, group := range groups {
		_, _ = p.Fprintf(w, "%s (%d)\n", group.title, len(group.rows))
		for _, row := range group.rows {
			fmt.Fprintf(w, "  %s | %s | %s | adjusted %s/m² | comparison %s/m²\n",
				row.HousingCompanyID, row.HousingCompanyName, row.PostalCode,
				format.Currency(row.AdjustedAveragePricePerSquareMeter), format.Currency(row.ComparisonValue))
		}
	}
	if len(report.ObfuscatedOwners) > 0 {
		_, _ = p.Fprintf(w, "Obfuscated owners: %d\n", len(report.ObfuscatedOwners))
	}
}

// CsvReport writes one line per housing company in comma-separated value format.
func CsvReport(w io.Writer, report regulation.Report) {
	fmt.Fprintf(w, `"calculation_month","housing_company_id","housing_company_name","postal_code","replacement_postal_code",`+
		`"adjusted_average_price_per_square_meter","comparison_value","regulation_result"`+"\n")
	month := datetime.FormatMonth(report.CalculationMonth)
	for _, rows := range [][]regulation.Row{
		report.ReleasedFromRegulation,
		report.StaysRegulated,
		report.AutomaticallyReleased,
		report.Skipped,
	} {
		for _, row := range rows {
			fmt.Fprintf(w, `"%s","%s","%s","%s","%s","%s","%s","%s"`+"\n",
				month, row.HousingCompanyID, row.HousingCompanyName, row.PostalCode, row.ReplacementPostalCode,
				format.Plain(row.AdjustedAveragePricePerSquareMeter), format.Plain(row.ComparisonValue), row.Outcome)
		}
	}
}
