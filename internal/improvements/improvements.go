// Package improvements computes the value renovations add to an apartment's
// maximum price.
//
// Two rule regimes exist. Apartments completed before 2011 accept both
// apartment and housing company improvements, with a per-square-meter
// excess deducted and, in the market price index variant, straight-line
// depreciation of apartment improvements. Apartments completed in 2011 or
// later accept housing company improvements only, with a smaller excess.
// Every regime has a single-improvement and a batch entry point; the batch
// summary deducts the excess once from the aggregate.
package improvements

import (
	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/hitas-sub002/internal/calcerr"
	"github.com/City-of-Helsinki/hitas-sub002/internal/indices"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/constants"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/datetime"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/mathutil"
	"github.com/shopspring/decimal"
)

// Data describes one renovation line item.
type Data struct {
	Name                   string           `json:"name"`
	Value                  decimal.Decimal  `json:"value"`
	CompletionDate         civil.Date       `json:"completion_date"`
	CompletionDateIndex    *decimal.Decimal `json:"completion_date_index,omitempty"`
	DepreciationPercentage *decimal.Decimal `json:"depreciation_percentage,omitempty"`
	TreatAsAdditionalWork  bool             `json:"treat_as_additional_work"`
}

// Excess is the per-square-meter allowance deducted from improvements.
type Excess string

const (
	ExcessAfter2010HousingCompany  Excess = "after_2010_housing_company"
	ExcessBefore2010HousingCompany Excess = "before_2010_housing_company"
	ExcessBefore2010Apartment      Excess = "before_2010_apartment"
)

// PerSquareMeter returns the allowance in euros per square meter.
func (e Excess) PerSquareMeter() decimal.Decimal {
	switch e {
	case ExcessAfter2010HousingCompany:
		return decimal.NewFromInt(30)
	case ExcessBefore2010HousingCompany:
		return decimal.NewFromInt(150)
	case ExcessBefore2010Apartment:
		return decimal.NewFromInt(100)
	default:
		return decimal.Zero
	}
}

// Depreciation describes the deduction of one apartment improvement.
type Depreciation struct {
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
	Years      int             `json:"years"`
	Months     int             `json:"months"`
}

// Item is the calculated value of one improvement.
type Item struct {
	Name                   string          `json:"name"`
	Value                  decimal.Decimal `json:"value"`
	CompletionDate         civil.Date      `json:"completion_date"`
	CompletionDateIndex    decimal.Decimal `json:"completion_date_index"`
	CalculationDateIndex   decimal.Decimal `json:"calculation_date_index"`
	IndexAdjusted          decimal.Decimal `json:"index_adjusted"`
	AdditionalWork         bool            `json:"additional_work"`
	Depreciation           *Depreciation   `json:"depreciation,omitempty"`
	ValueForHousingCompany decimal.Decimal `json:"value_for_housing_company"`
	ValueForApartment      decimal.Decimal `json:"value_for_apartment"`
}

// ExcessSummary is the excess deducted once per batch.
type ExcessSummary struct {
	SurfaceArea         decimal.Decimal `json:"surface_area"`
	ValuePerSquareMeter decimal.Decimal `json:"value_per_square_meter"`
	Total               decimal.Decimal `json:"total"`
}

// Summary aggregates a batch of improvements.
type Summary struct {
	Value                  decimal.Decimal `json:"value"`
	IndexAdjusted          decimal.Decimal `json:"index_adjusted"`
	ValueAdded             decimal.Decimal `json:"value_added"`
	Excess                 ExcessSummary   `json:"excess"`
	Depreciation           decimal.Decimal `json:"depreciation"`
	ValueForHousingCompany decimal.Decimal `json:"value_for_housing_company"`
	ValueForApartment      decimal.Decimal `json:"value_for_apartment"`
}

// Result is the item list and summary of a batch (MaxPriceImprovements).
type Result struct {
	Items   []Item  `json:"items"`
	Summary Summary `json:"summary"`
}

// Params carries the apartment and housing company figures an improvement
// calculation needs. Index selects the index table improvements are
// adjusted with.
type Params struct {
	Lookup          indices.Lookup
	Index           indices.Kind
	CalculationDate civil.Date

	HousingCompanySurfaceArea decimal.Decimal
	ApartmentSurfaceArea      decimal.Decimal

	// Acquisition prices allocate pre-2011 housing company improvements.
	HousingCompanyAcquisitionPrice decimal.Decimal
	ApartmentAcquisitionPrice      decimal.Decimal
}

type rule struct {
	excess              Excess
	excessArea          func(Params) decimal.Decimal
	apartmentShare      func(Params) decimal.Decimal
	depreciate          bool
	honorAdditionalWork bool
}

func housingCompanyArea(p Params) decimal.Decimal { return p.HousingCompanySurfaceArea }
func apartmentArea(p Params) decimal.Decimal      { return p.ApartmentSurfaceArea }
func wholeValue(Params) decimal.Decimal           { return decimal.NewFromInt(1) }

func surfaceAreaShare(p Params) decimal.Decimal {
	return mathutil.Share(p.ApartmentSurfaceArea, p.HousingCompanySurfaceArea)
}

func acquisitionPriceShare(p Params) decimal.Decimal {
	return mathutil.Share(p.ApartmentAcquisitionPrice, p.HousingCompanyAcquisitionPrice)
}

var (
	housingCompany2011Onwards = rule{
		excess:         ExcessAfter2010HousingCompany,
		excessArea:     housingCompanyArea,
		apartmentShare: surfaceAreaShare,
	}
	housingCompanyPre2011 = rule{
		excess:         ExcessBefore2010HousingCompany,
		excessArea:     housingCompanyArea,
		apartmentShare: acquisitionPriceShare,
	}
	apartmentPre2011ConstructionPriceIndex = rule{
		excess:              ExcessBefore2010Apartment,
		excessArea:          apartmentArea,
		apartmentShare:      wholeValue,
		honorAdditionalWork: true,
	}
	apartmentPre2011MarketPriceIndex = rule{
		excess:              ExcessBefore2010Apartment,
		excessArea:          apartmentArea,
		apartmentShare:      wholeValue,
		depreciate:          true,
		honorAdditionalWork: true,
	}
)

// HousingCompany2011Onwards calculates housing company improvements for
// apartments completed in 2011 or later.
func HousingCompany2011Onwards(p Params, data []Data) (Result, error) {
	return calculate(p, data, housingCompany2011Onwards)
}

// SingleHousingCompany2011Onwards is HousingCompany2011Onwards for one improvement.
func SingleHousingCompany2011Onwards(p Params, improvement Data) (Result, error) {
	return calculate(p, []Data{improvement}, housingCompany2011Onwards)
}

// HousingCompanyPre2011 calculates housing company improvements for
// apartments completed before 2011. The apartment's share follows its
// share of the housing company's acquisition price.
func HousingCompanyPre2011(p Params, data []Data) (Result, error) {
	return calculate(p, data, housingCompanyPre2011)
}

// SingleHousingCompanyPre2011 is HousingCompanyPre2011 for one improvement.
func SingleHousingCompanyPre2011(p Params, improvement Data) (Result, error) {
	return calculate(p, []Data{improvement}, housingCompanyPre2011)
}

// ApartmentPre2011ConstructionPriceIndex calculates apartment improvements
// for the construction price index max price. No depreciation applies.
func ApartmentPre2011ConstructionPriceIndex(p Params, data []Data) (Result, error) {
	return calculate(p, data, apartmentPre2011ConstructionPriceIndex)
}

// SingleApartmentPre2011ConstructionPriceIndex is the single-improvement variant.
func SingleApartmentPre2011ConstructionPriceIndex(p Params, improvement Data) (Result, error) {
	return calculate(p, []Data{improvement}, apartmentPre2011ConstructionPriceIndex)
}

// ApartmentPre2011MarketPriceIndex calculates apartment improvements for the
// market price index max price, depreciating each improvement.
func ApartmentPre2011MarketPriceIndex(p Params, data []Data) (Result, error) {
	return calculate(p, data, apartmentPre2011MarketPriceIndex)
}

// SingleApartmentPre2011MarketPriceIndex is the single-improvement variant.
func SingleApartmentPre2011MarketPriceIndex(p Params, improvement Data) (Result, error) {
	return calculate(p, []Data{improvement}, apartmentPre2011MarketPriceIndex)
}

func calculate(p Params, data []Data, r rule) (Result, error) {
	excessArea := r.excessArea(p)
	if excessArea.IsNegative() {
		return Result{}, calcerr.InvalidCalculation("surface area must not be negative, got %s", excessArea)
	}

	result := Result{
		Items: make([]Item, 0, len(data)),
		Summary: Summary{
			Excess: ExcessSummary{
				SurfaceArea:         excessArea,
				ValuePerSquareMeter: r.excess.PerSquareMeter(),
				Total:               mathutil.Roundup(excessArea.Mul(r.excess.PerSquareMeter())),
			},
		},
	}
	if len(data) == 0 {
		return result, nil
	}

	calculationIndex, err := p.Lookup.Value(p.Index, p.CalculationDate)
	if err != nil {
		return Result{}, err
	}

	share := r.apartmentShare(p)
	regularIndexed := decimal.Zero
	additionalIndexed := decimal.Zero

	for _, improvement := range data {
		item, err := calculateItem(p, improvement, r, calculationIndex, share)
		if err != nil {
			return Result{}, err
		}
		result.Items = append(result.Items, item)

		result.Summary.Value = result.Summary.Value.Add(item.Value)
		result.Summary.IndexAdjusted = result.Summary.IndexAdjusted.Add(item.IndexAdjusted)
		if item.Depreciation != nil {
			result.Summary.Depreciation = result.Summary.Depreciation.Add(item.Depreciation.Amount)
		}
		if item.AdditionalWork {
			additionalIndexed = additionalIndexed.Add(item.IndexAdjusted)
		} else {
			regularIndexed = regularIndexed.Add(item.IndexAdjusted)
		}
	}

	valueAdded := mathutil.NonNegative(regularIndexed.Sub(result.Summary.Excess.Total))
	result.Summary.ValueAdded = valueAdded.Add(additionalIndexed)
	result.Summary.ValueForHousingCompany = mathutil.NonNegative(valueAdded.Sub(result.Summary.Depreciation)).Add(additionalIndexed)
	result.Summary.ValueForApartment = mathutil.Roundup(result.Summary.ValueForHousingCompany.Mul(share))
	return result, nil
}

func calculateItem(p Params, improvement Data, r rule, calculationIndex, share decimal.Decimal) (Item, error) {
	if improvement.Value.IsNegative() {
		return Item{}, calcerr.InvalidCalculation("improvement %q value must not be negative, got %s",
			improvement.Name, improvement.Value)
	}
	if improvement.CompletionDate.After(p.CalculationDate) {
		return Item{}, calcerr.InvalidCalculation("improvement %q completed on %s after calculation date %s",
			improvement.Name, improvement.CompletionDate, p.CalculationDate)
	}

	var completionIndex decimal.Decimal
	if improvement.CompletionDateIndex != nil {
		completionIndex = *improvement.CompletionDateIndex
	} else {
		value, err := p.Lookup.Value(p.Index, improvement.CompletionDate)
		if err != nil {
			return Item{}, err
		}
		completionIndex = value
	}
	if completionIndex.Sign() <= 0 {
		return Item{}, calcerr.InvalidCalculation("improvement %q completion date index must be positive, got %s",
			improvement.Name, completionIndex)
	}

	item := Item{
		Name:                 improvement.Name,
		Value:                improvement.Value,
		CompletionDate:       improvement.CompletionDate,
		CompletionDateIndex:  completionIndex,
		CalculationDateIndex: calculationIndex,
		IndexAdjusted:        mathutil.Roundup(mathutil.IndexAdjust(improvement.Value, calculationIndex, completionIndex)),
		AdditionalWork:       r.honorAdditionalWork && improvement.TreatAsAdditionalWork,
	}

	accepted := item.IndexAdjusted
	if r.depreciate && !item.AdditionalWork {
		depreciation := depreciate(item.IndexAdjusted, improvement, p.CalculationDate)
		item.Depreciation = &depreciation
		accepted = accepted.Sub(depreciation.Amount)
	}
	item.ValueForHousingCompany = accepted
	item.ValueForApartment = mathutil.Roundup(accepted.Mul(share))
	return item, nil
}

// depreciate amortizes the indexed value straight-line per elapsed month.
// A missing percentage means no depreciation.
func depreciate(indexed decimal.Decimal, improvement Data, calculationDate civil.Date) Depreciation {
	percentage := decimal.Zero
	if improvement.DepreciationPercentage != nil {
		percentage = *improvement.DepreciationPercentage
	}

	months := datetime.MonthsBetweenDates(improvement.CompletionDate, calculationDate)
	if months < 0 {
		months = 0
	}
	years, remainder := datetime.SplitMonths(months)

	amount := mathutil.ApplyPercentage(indexed, percentage).
		Mul(decimal.NewFromInt(int64(months))).
		Div(decimal.NewFromInt(constants.MonthsPerYear))
	if amount.GreaterThan(indexed) {
		amount = indexed
	}

	return Depreciation{
		Amount:     mathutil.Roundup(amount),
		Percentage: percentage,
		Years:      years,
		Months:     remainder,
	}
}
