package maxprice

import (
	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/hitas-sub002/internal/improvements"
	"github.com/City-of-Helsinki/hitas-sub002/internal/indices"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/constants"
)

// Regime is the rule set an apartment's completion date places it under.
type Regime interface {
	Name() string
	// IndexKind returns the index table used for an index based variant.
	IndexKind(variant Variant) indices.Kind
	// AcceptsApartmentImprovements reports whether apartment level
	// improvements raise the price.
	AcceptsApartmentImprovements() bool
	Improvements(p improvements.Params, variant Variant, apartment, housingCompany []improvements.Data) (Improvements, error)
}

// RegimeFor selects the rules for a completion date.
func RegimeFor(completionDate civil.Date) Regime {
	if completionDate.Year < constants.RulesChangeYear {
		return pre2011{}
	}
	return onwards2011{}
}

type pre2011 struct{}

func (pre2011) Name() string { return "pre_2011" }

func (pre2011) IndexKind(variant Variant) indices.Kind {
	if variant == MarketPriceIndexVariant {
		return indices.MarketPrice
	}
	return indices.ConstructionPrice
}

func (pre2011) AcceptsApartmentImprovements() bool { return true }

func (pre2011) Improvements(p improvements.Params, variant Variant, apartment, housingCompany []improvements.Data) (Improvements, error) {
	var (
		apartmentResult improvements.Result
		err             error
	)
	if variant == MarketPriceIndexVariant {
		apartmentResult, err = improvements.ApartmentPre2011MarketPriceIndex(p, apartment)
	} else {
		apartmentResult, err = improvements.ApartmentPre2011ConstructionPriceIndex(p, apartment)
	}
	if err != nil {
		return Improvements{}, err
	}

	housingCompanyResult, err := improvements.HousingCompanyPre2011(p, housingCompany)
	if err != nil {
		return Improvements{}, err
	}
	return Improvements{Apartment: &apartmentResult, HousingCompany: housingCompanyResult}, nil
}

type onwards2011 struct{}

func (onwards2011) Name() string { return "2011_onwards" }

func (onwards2011) IndexKind(variant Variant) indices.Kind {
	if variant == MarketPriceIndexVariant {
		return indices.MarketPrice2005
	}
	return indices.ConstructionPrice2005
}

func (onwards2011) AcceptsApartmentImprovements() bool { return false }

func (onwards2011) Improvements(p improvements.Params, _ Variant, _, housingCompany []improvements.Data) (Improvements, error) {
	result, err := improvements.HousingCompany2011Onwards(p, housingCompany)
	if err != nil {
		return Improvements{}, err
	}
	return Improvements{HousingCompany: result}, nil
}
