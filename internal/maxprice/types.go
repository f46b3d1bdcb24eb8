package maxprice

import (
	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/hitas-sub002/internal/improvements"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/interest"
	"github.com/shopspring/decimal"
)

// JSONVersion tags the layout of a persisted calculation payload.
const JSONVersion = 1

// Variant names one of the three parallel maximum price figures.
type Variant string

const (
	ConstructionPriceIndexVariant  Variant = "construction_price_index"
	MarketPriceIndexVariant        Variant = "market_price_index"
	SurfaceAreaPriceCeilingVariant Variant = "surface_area_price_ceiling"
)

// HousingCompany holds the housing company figures a calculation needs.
type HousingCompany struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	PostalCode       string              `json:"postal_code"`
	SurfaceArea      decimal.Decimal     `json:"surface_area"`
	AcquisitionPrice decimal.Decimal     `json:"acquisition_price"`
	Improvements     []improvements.Data `json:"improvements"`
}

// Apartment holds the apartment figures a calculation needs.
//
// InterestDuringConstruction overrides the figures otherwise derived from
// Payments and ConstructionLoan.
type Apartment struct {
	ID                               string                         `json:"id"`
	CompletionDate                   civil.Date                     `json:"completion_date"`
	SurfaceArea                      decimal.Decimal                `json:"surface_area"`
	AcquisitionPrice                 decimal.Decimal                `json:"acquisition_price"`
	AdditionalWorkDuringConstruction decimal.Decimal                `json:"additional_work_during_construction"`
	ConstructionLoan                 decimal.Decimal                `json:"construction_loan"`
	Payments                         []interest.Payment             `json:"payments"`
	InterestDuringConstruction       *interest.ConstructionInterest `json:"interest_during_construction,omitempty"`
	Improvements                     []improvements.Data            `json:"improvements"`
}

// Request is the input of one maximum price calculation.
type Request struct {
	Apartment                               Apartment       `json:"apartment"`
	HousingCompany                          HousingCompany  `json:"housing_company"`
	CalculationDate                         civil.Date      `json:"calculation_date"`
	ApartmentShareOfHousingCompanyLoans     decimal.Decimal `json:"apartment_share_of_housing_company_loans"`
	ApartmentShareOfHousingCompanyLoansDate civil.Date      `json:"apartment_share_of_housing_company_loans_date"`
	AdditionalInfo                          string          `json:"additional_info,omitempty"`
}

// Improvements groups the improvement results feeding an index variant.
// Apartment is nil under rules that ignore apartment improvements.
type Improvements struct {
	Apartment      *improvements.Result `json:"apartment,omitempty"`
	HousingCompany improvements.Result  `json:"housing_company"`
}

// IndexVariables are the calculation variables of an index based variant.
type IndexVariables struct {
	Regime                                  string           `json:"regime"`
	AcquisitionPrice                        decimal.Decimal  `json:"acquisition_price"`
	AdditionalWorkDuringConstruction        decimal.Decimal  `json:"additional_work_during_construction"`
	InterestDuringConstruction              decimal.Decimal  `json:"interest_during_construction"`
	BasicPrice                              decimal.Decimal  `json:"basic_price"`
	CompletionDate                          civil.Date       `json:"completion_date"`
	CompletionDateIndex                     decimal.Decimal  `json:"completion_date_index"`
	CalculationDate                         civil.Date       `json:"calculation_date"`
	CalculationDateIndex                    decimal.Decimal  `json:"calculation_date_index"`
	IndexAdjustment                         decimal.Decimal  `json:"index_adjustment"`
	ApartmentImprovements                   *decimal.Decimal `json:"apartment_improvements,omitempty"`
	HousingCompanyImprovements              decimal.Decimal  `json:"housing_company_improvements"`
	DebtFreePrice                           decimal.Decimal  `json:"debt_free_price"`
	DebtFreePricePerSquareMeter             decimal.Decimal  `json:"debt_free_price_m2"`
	ApartmentShareOfHousingCompanyLoans     decimal.Decimal  `json:"apartment_share_of_housing_company_loans"`
	ApartmentShareOfHousingCompanyLoansDate civil.Date       `json:"apartment_share_of_housing_company_loans_date"`
	Improvements                            Improvements     `json:"improvements"`
}

// IndexCalculation is the result of an index based variant.
type IndexCalculation struct {
	MaximumPrice decimal.Decimal `json:"maximum_price"`
	ValidUntil   civil.Date      `json:"valid_until"`
	Maximum      bool            `json:"maximum"`
	Variables    IndexVariables  `json:"calculation_variables"`
}

// SurfaceAreaPriceCeilingVariables are the variables of the ceiling variant.
type SurfaceAreaPriceCeilingVariables struct {
	CalculationDate                         civil.Date      `json:"calculation_date"`
	CalculationDateValue                    decimal.Decimal `json:"calculation_date_value"`
	SurfaceArea                             decimal.Decimal `json:"surface_area"`
	DebtFreePrice                           decimal.Decimal `json:"debt_free_price"`
	ApartmentShareOfHousingCompanyLoans     decimal.Decimal `json:"apartment_share_of_housing_company_loans"`
	ApartmentShareOfHousingCompanyLoansDate civil.Date      `json:"apartment_share_of_housing_company_loans_date"`
}

// SurfaceAreaPriceCeilingCalculation is the result of the ceiling variant.
type SurfaceAreaPriceCeilingCalculation struct {
	MaximumPrice decimal.Decimal                  `json:"maximum_price"`
	ValidUntil   civil.Date                       `json:"valid_until"`
	Maximum      bool                             `json:"maximum"`
	Variables    SurfaceAreaPriceCeilingVariables `json:"calculation_variables"`
}

// Calculation is the complete result for one apartment and date.
type Calculation struct {
	ID                      string                             `json:"id"`
	ApartmentID             string                             `json:"apartment_id"`
	CalculationDate         civil.Date                         `json:"calculation_date"`
	Regime                  string                             `json:"regime"`
	MaximumPrice            decimal.Decimal                    `json:"maximum_price"`
	ValidUntil              civil.Date                         `json:"valid_until"`
	Index                   Variant                            `json:"index"`
	ConstructionPriceIndex  IndexCalculation                   `json:"construction_price_index"`
	MarketPriceIndex        IndexCalculation                   `json:"market_price_index"`
	SurfaceAreaPriceCeiling SurfaceAreaPriceCeilingCalculation `json:"surface_area_price_ceiling"`
	AdditionalInfo          string                             `json:"additional_info,omitempty"`
}

// MaximumCount returns how many variants carry the maximum flag.
func (c Calculation) MaximumCount() int {
	n := 0
	for _, flagged := range []bool{
		c.ConstructionPriceIndex.Maximum,
		c.MarketPriceIndex.Maximum,
		c.SurfaceAreaPriceCeiling.Maximum,
	} {
		if flagged {
			n++
		}
	}
	return n
}
