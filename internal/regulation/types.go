package regulation

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/hitas-sub002/internal/indices"
	"github.com/City-of-Helsinki/hitas-sub002/internal/ownership"
	"github.com/City-of-Helsinki/hitas-sub002/internal/salesdata"
	"github.com/shopspring/decimal"
)

// Outcome is the regulation decision for one housing company.
type Outcome string

const (
	AutomaticallyReleased  Outcome = "automatically_released"
	ReleasedFromRegulation Outcome = "released_from_regulation"
	StaysRegulated         Outcome = "stays_regulated"
	Skipped                Outcome = "skipped"
)

// Status is a housing company's regulation status.
type Status string

const (
	StatusRegulated                Status = "regulated"
	StatusReleasedByHitas          Status = "released_by_hitas"
	StatusReleasedByPlotDepartment Status = "released_by_plot_department"
	StatusReleasedByCourt          Status = "released_by_court"
)

// Regulated reports whether the status keeps prices regulated.
func (s Status) Regulated() bool {
	return s == StatusRegulated || s == ""
}

// Apartment carries the first sale figures of one apartment.
type Apartment struct {
	ID                     string          `json:"id"`
	SurfaceArea            decimal.Decimal `json:"surface_area"`
	FirstSalePurchasePrice decimal.Decimal `json:"first_sale_purchase_price"`
	FirstSaleLoanShare     decimal.Decimal `json:"first_sale_share_of_housing_company_loans"`
}

// HousingCompany is a company evaluated by a regulation run.
type HousingCompany struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	PostalCode     string      `json:"postal_code"`
	CompletionDate civil.Date  `json:"completion_date"`
	Status         Status      `json:"regulation_status"`
	Apartments     []Apartment `json:"apartments"`
}

// RealizedAcquisitionPrice sums the first sale prices and loan shares.
func (h HousingCompany) RealizedAcquisitionPrice() decimal.Decimal {
	total := decimal.Zero
	for _, a := range h.Apartments {
		total = total.Add(a.FirstSalePurchasePrice).Add(a.FirstSaleLoanShare)
	}
	return total
}

// SurfaceArea sums the apartments' surface areas.
func (h HousingCompany) SurfaceArea() decimal.Decimal {
	total := decimal.Zero
	for _, a := range h.Apartments {
		total = total.Add(a.SurfaceArea)
	}
	return total
}

// Row is the result of one housing company in a run.
type Row struct {
	HousingCompanyID                     string          `json:"housing_company_id"`
	HousingCompanyName                   string          `json:"housing_company_name"`
	CompletionDate                       civil.Date      `json:"completion_date"`
	SurfaceArea                          decimal.Decimal `json:"surface_area"`
	PostalCode                           string          `json:"postal_code"`
	ReplacementPostalCode                string          `json:"replacement_postal_code,omitempty"`
	RealizedAcquisitionPrice             decimal.Decimal `json:"realized_acquisition_price"`
	UnadjustedAveragePricePerSquareMeter decimal.Decimal `json:"unadjusted_average_price_per_square_meter"`
	AdjustedAveragePricePerSquareMeter   decimal.Decimal `json:"adjusted_average_price_per_square_meter"`
	CompletionMonthIndex                 decimal.Decimal `json:"completion_month_index"`
	CalculationMonthIndex                decimal.Decimal `json:"calculation_month_index"`
	ComparisonValue                      decimal.Decimal `json:"comparison_value"`
	Outcome                              Outcome         `json:"regulation_result"`
	LetterFetched                        bool            `json:"letter_fetched"`
}

// Results is the persisted record of one run, keyed by calculation month.
type Results struct {
	CalculationMonth        civil.Date              `json:"calculation_month"`
	RegulationMonth         civil.Date              `json:"regulation_month"`
	SurfaceAreaPriceCeiling decimal.Decimal         `json:"surface_area_price_ceiling"`
	SalesData               salesdata.FullSalesData `json:"sales_data"`
	ReplacementPostalCodes  map[string]string       `json:"replacement_postal_codes"`
	Rows                    []Row                   `json:"rows"`
}

// Report groups a run's housing companies by outcome.
type Report struct {
	CalculationMonth       civil.Date             `json:"calculation_month"`
	AutomaticallyReleased  []Row                  `json:"automatically_released"`
	ReleasedFromRegulation []Row                  `json:"released_from_regulation"`
	StaysRegulated         []Row                  `json:"stays_regulated"`
	Skipped                []Row                  `json:"skipped"`
	ObfuscatedOwners       []ownership.Obfuscated `json:"obfuscated_owners"`
}

// Store supplies a run's inputs and persists its results.
type Store interface {
	// LoadResults returns the persisted run of a month, or nil if none.
	LoadResults(ctx context.Context, calculationMonth civil.Date) (*Results, error)
	// HousingCompaniesCompletedIn returns the companies completed in the month.
	HousingCompaniesCompletedIn(ctx context.Context, month civil.Date) ([]HousingCompany, error)
	Sales(ctx context.Context, from, to civil.Date) ([]salesdata.Sale, error)
	// ExternalSalesData returns the imported statistics of a calculation
	// quarter, or nil if none were imported.
	ExternalSalesData(ctx context.Context, calculationQuarter string) (map[string]salesdata.Quarters, error)
	Indices(ctx context.Context) (indices.Lookup, error)
	MarkLetterFetched(ctx context.Context, calculationMonth civil.Date, housingCompanyID string) error
	WithinTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view a run applies its side effects through.
type Tx interface {
	SaveResults(ctx context.Context, results *Results) error
	SetRegulationStatus(ctx context.Context, housingCompanyIDs []string, status Status) error
	// RegulatedHousingCompanies reports, per id, whether the company is regulated.
	RegulatedHousingCompanies(ctx context.Context, housingCompanyIDs []string) (map[string]bool, error)
	OwnershipsInHousingCompanies(ctx context.Context, housingCompanyIDs []string) ([]ownership.Ownership, error)
	OwnershipsOfOwners(ctx context.Context, ownerIDs []string) ([]ownership.Ownership, error)
	Ownerships(ctx context.Context, ids []string) (map[string]ownership.Ownership, error)
	ConditionsOfSaleForOwnerships(ctx context.Context, ownershipIDs []string) ([]ownership.ConditionOfSale, error)
	SaveConditionsOfSale(ctx context.Context, conditions []ownership.ConditionOfSale) error
	Owners(ctx context.Context, ids []string) ([]ownership.Owner, error)
	SaveOwners(ctx context.Context, owners []ownership.Owner) error
}

// ReleaseLetter announces that a housing company left regulation.
type ReleaseLetter struct {
	CalculationMonth   civil.Date `json:"calculation_month"`
	HousingCompanyID   string     `json:"housing_company_id"`
	HousingCompanyName string     `json:"housing_company_name"`
	Outcome            Outcome    `json:"regulation_result"`
}

// Notifier delivers release letters.
type Notifier interface {
	PublishReleaseLetter(ctx context.Context, letter ReleaseLetter) error
}
