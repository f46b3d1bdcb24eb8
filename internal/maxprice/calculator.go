// Package maxprice computes an apartment's regulated maximum resale price.
//
// Three figures are produced in parallel: the construction price index
// price, the market price index price and the surface area price ceiling.
// The highest of them is the binding maximum price.
package maxprice

import (
	"fmt"

	"github.com/City-of-Helsinki/hitas-sub002/internal/calcerr"
	"github.com/City-of-Helsinki/hitas-sub002/internal/improvements"
	"github.com/City-of-Helsinki/hitas-sub002/internal/indices"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/datetime"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/interest"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/mathutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Calculator computes maximum prices against an index lookup.
type Calculator struct {
	logger   *zap.Logger
	interest *interest.Calculator
}

// NewCalculator creates a new maximum price calculator.
// If logger is nil, it will use a no-op logger to prevent panics.
func NewCalculator(logger *zap.Logger, interestCalculator *interest.Calculator) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interestCalculator == nil {
		interestCalculator = interest.NewCalculator(logger, 0, 0)
	}
	return &Calculator{logger: logger, interest: interestCalculator}
}

// Calculate produces all three variants for the request and marks the
// binding one. Missing index values yield a calcerr.IndexMissingError and
// inconsistent input a calcerr.InvalidCalculationError.
func (c *Calculator) Calculate(lookup indices.Lookup, req Request) (Calculation, error) {
	if err := validate(req); err != nil {
		return Calculation{}, err
	}

	regime := RegimeFor(req.Apartment.CompletionDate)
	if !regime.AcceptsApartmentImprovements() && len(req.Apartment.Improvements) > 0 {
		c.logger.Warn(fmt.Sprintf("ignoring %d apartment improvements under %s rules",
			len(req.Apartment.Improvements), regime.Name()),
			zap.String("op", "maxprice.Calculate"),
			zap.String("apartment_id", req.Apartment.ID),
		)
	}

	constructionInterest := c.constructionInterest(req.Apartment)

	cpi, err := c.indexVariant(lookup, regime, ConstructionPriceIndexVariant, req, constructionInterest.ConstructionPriceIndex)
	if err != nil {
		return Calculation{}, fmt.Errorf("construction price index calculation: %w", err)
	}
	mpi, err := c.indexVariant(lookup, regime, MarketPriceIndexVariant, req, constructionInterest.MarketPriceIndex)
	if err != nil {
		return Calculation{}, fmt.Errorf("market price index calculation: %w", err)
	}
	sapc, err := surfaceAreaPriceCeiling(lookup, req)
	if err != nil {
		return Calculation{}, fmt.Errorf("surface area price ceiling calculation: %w", err)
	}

	cpi, mpi, sapc, binding := selectMaximum(cpi, mpi, sapc)

	result := Calculation{
		ID:                      uuid.NewString(),
		ApartmentID:             req.Apartment.ID,
		CalculationDate:         req.CalculationDate,
		Regime:                  regime.Name(),
		Index:                   binding,
		ConstructionPriceIndex:  cpi,
		MarketPriceIndex:        mpi,
		SurfaceAreaPriceCeiling: sapc,
		AdditionalInfo:          req.AdditionalInfo,
	}
	switch binding {
	case ConstructionPriceIndexVariant:
		result.MaximumPrice, result.ValidUntil = cpi.MaximumPrice, cpi.ValidUntil
	case MarketPriceIndexVariant:
		result.MaximumPrice, result.ValidUntil = mpi.MaximumPrice, mpi.ValidUntil
	default:
		result.MaximumPrice, result.ValidUntil = sapc.MaximumPrice, sapc.ValidUntil
	}

	c.logger.Info("maximum price calculated",
		zap.String("op", "maxprice.Calculate"),
		zap.String("apartment_id", req.Apartment.ID),
		zap.String("calculation_date", req.CalculationDate.String()),
		zap.String("regime", regime.Name()),
		zap.String("index", string(binding)),
		zap.String("maximum_price", result.MaximumPrice.String()),
	)
	return result, nil
}

func (c *Calculator) constructionInterest(apartment Apartment) interest.ConstructionInterest {
	if apartment.InterestDuringConstruction != nil {
		return *apartment.InterestDuringConstruction
	}
	return c.interest.ForApartment(apartment.CompletionDate, apartment.AcquisitionPrice,
		apartment.ConstructionLoan, apartment.Payments)
}

func (c *Calculator) indexVariant(lookup indices.Lookup, regime Regime, variant Variant, req Request, constructionInterest decimal.Decimal) (IndexCalculation, error) {
	apartment := req.Apartment
	kind := regime.IndexKind(variant)

	pair, err := indices.LookupPair(lookup, kind, apartment.CompletionDate, req.CalculationDate)
	if err != nil {
		return IndexCalculation{}, err
	}

	basicPrice := apartment.AcquisitionPrice.
		Add(apartment.AdditionalWorkDuringConstruction).
		Add(constructionInterest)
	indexAdjustment := mathutil.Roundup(
		mathutil.IndexAdjust(basicPrice, pair.CalculationDate, pair.CompletionDate).Sub(basicPrice))

	params := improvements.Params{
		Lookup:                         lookup,
		Index:                          kind,
		CalculationDate:                req.CalculationDate,
		HousingCompanySurfaceArea:      req.HousingCompany.SurfaceArea,
		ApartmentSurfaceArea:           apartment.SurfaceArea,
		HousingCompanyAcquisitionPrice: req.HousingCompany.AcquisitionPrice,
		ApartmentAcquisitionPrice:      apartment.AcquisitionPrice,
	}
	imps, err := regime.Improvements(params, variant, apartment.Improvements, req.HousingCompany.Improvements)
	if err != nil {
		return IndexCalculation{}, err
	}

	debtFreePrice := basicPrice.Add(indexAdjustment).Add(imps.HousingCompany.Summary.ValueForApartment)
	var apartmentImprovements *decimal.Decimal
	if imps.Apartment != nil {
		value := imps.Apartment.Summary.ValueForApartment
		apartmentImprovements = &value
		debtFreePrice = debtFreePrice.Add(value)
	}
	debtFreePrice = mathutil.Roundup(debtFreePrice)

	c.logger.Debug(fmt.Sprintf("%s debt free price %s", variant, debtFreePrice),
		zap.String("op", "maxprice.indexVariant"),
		zap.String("index", string(kind)),
		zap.String("completion_date_index", pair.CompletionDate.String()),
		zap.String("calculation_date_index", pair.CalculationDate.String()),
	)

	return IndexCalculation{
		MaximumPrice: mathutil.Roundup(debtFreePrice.Sub(req.ApartmentShareOfHousingCompanyLoans)),
		ValidUntil:   datetime.IndexCalculationValidity(req.CalculationDate),
		Variables: IndexVariables{
			Regime:                                  regime.Name(),
			AcquisitionPrice:                        apartment.AcquisitionPrice,
			AdditionalWorkDuringConstruction:        apartment.AdditionalWorkDuringConstruction,
			InterestDuringConstruction:              constructionInterest,
			BasicPrice:                              basicPrice,
			CompletionDate:                          apartment.CompletionDate,
			CompletionDateIndex:                     pair.CompletionDate,
			CalculationDate:                         req.CalculationDate,
			CalculationDateIndex:                    pair.CalculationDate,
			IndexAdjustment:                         indexAdjustment,
			ApartmentImprovements:                   apartmentImprovements,
			HousingCompanyImprovements:              imps.HousingCompany.Summary.ValueForApartment,
			DebtFreePrice:                           debtFreePrice,
			DebtFreePricePerSquareMeter:             mathutil.Roundup(mathutil.Share(debtFreePrice, apartment.SurfaceArea)),
			ApartmentShareOfHousingCompanyLoans:     req.ApartmentShareOfHousingCompanyLoans,
			ApartmentShareOfHousingCompanyLoansDate: req.ApartmentShareOfHousingCompanyLoansDate,
			Improvements:                            imps,
		},
	}, nil
}

func surfaceAreaPriceCeiling(lookup indices.Lookup, req Request) (SurfaceAreaPriceCeilingCalculation, error) {
	ceiling, err := lookup.Value(indices.SurfaceAreaPriceCeiling, req.CalculationDate)
	if err != nil {
		return SurfaceAreaPriceCeilingCalculation{}, err
	}

	debtFreePrice := mathutil.Roundup(req.Apartment.SurfaceArea.Mul(ceiling))
	return SurfaceAreaPriceCeilingCalculation{
		MaximumPrice: mathutil.Roundup(debtFreePrice.Sub(req.ApartmentShareOfHousingCompanyLoans)),
		ValidUntil:   datetime.SurfaceAreaPriceCeilingValidity(req.CalculationDate),
		Variables: SurfaceAreaPriceCeilingVariables{
			CalculationDate:                         req.CalculationDate,
			CalculationDateValue:                    ceiling,
			SurfaceArea:                             req.Apartment.SurfaceArea,
			DebtFreePrice:                           debtFreePrice,
			ApartmentShareOfHousingCompanyLoans:     req.ApartmentShareOfHousingCompanyLoans,
			ApartmentShareOfHousingCompanyLoansDate: req.ApartmentShareOfHousingCompanyLoansDate,
		},
	}, nil
}

// selectMaximum flags the highest of the three variants. On equal prices
// the earlier variant in (construction price, market price, ceiling) order
// wins.
func selectMaximum(cpi, mpi IndexCalculation, sapc SurfaceAreaPriceCeilingCalculation) (IndexCalculation, IndexCalculation, SurfaceAreaPriceCeilingCalculation, Variant) {
	ordered := []struct {
		variant Variant
		price   decimal.Decimal
	}{
		{ConstructionPriceIndexVariant, cpi.MaximumPrice},
		{MarketPriceIndexVariant, mpi.MaximumPrice},
		{SurfaceAreaPriceCeilingVariant, sapc.MaximumPrice},
	}

	binding := ordered[0]
	for _, candidate := range ordered[1:] {
		if candidate.price.GreaterThan(binding.price) {
			binding = candidate
		}
	}

	cpi.Maximum = binding.variant == ConstructionPriceIndexVariant
	mpi.Maximum = binding.variant == MarketPriceIndexVariant
	sapc.Maximum = binding.variant == SurfaceAreaPriceCeilingVariant
	return cpi, mpi, sapc, binding.variant
}

func validate(req Request) error {
	apartment := req.Apartment
	switch {
	case !req.CalculationDate.IsValid():
		return calcerr.InvalidCalculation("calculation date %s is not a valid date", req.CalculationDate)
	case !apartment.CompletionDate.IsValid():
		return calcerr.InvalidCalculation("apartment %s has no valid completion date", apartment.ID)
	case apartment.CompletionDate.After(req.CalculationDate):
		return calcerr.InvalidCalculation("apartment %s completion date %s is after calculation date %s",
			apartment.ID, apartment.CompletionDate, req.CalculationDate)
	case apartment.SurfaceArea.Sign() <= 0:
		return calcerr.InvalidCalculation("apartment %s surface area must be positive, got %s",
			apartment.ID, apartment.SurfaceArea)
	case apartment.AcquisitionPrice.IsNegative():
		return calcerr.InvalidCalculation("apartment %s acquisition price must not be negative", apartment.ID)
	case apartment.AdditionalWorkDuringConstruction.IsNegative():
		return calcerr.InvalidCalculation("apartment %s additional work must not be negative", apartment.ID)
	case req.ApartmentShareOfHousingCompanyLoans.IsNegative():
		return calcerr.InvalidCalculation("apartment share of housing company loans must not be negative")
	case req.ApartmentShareOfHousingCompanyLoansDate.After(req.CalculationDate):
		return calcerr.InvalidCalculation("housing company loans date %s is after calculation date %s",
			req.ApartmentShareOfHousingCompanyLoansDate, req.CalculationDate)
	case len(req.HousingCompany.Improvements) > 0 && req.HousingCompany.SurfaceArea.Sign() <= 0:
		return calcerr.InvalidCalculation("housing company %s surface area must be positive to allocate improvements",
			req.HousingCompany.ID)
	}
	return nil
}
