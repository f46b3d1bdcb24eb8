package store

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// IndexValue is one monthly value of an index table.
type IndexValue struct {
	ID    uint            `gorm:"primaryKey;autoIncrement"`
	Kind  string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_index_kind_month,priority:1"`
	Month time.Time       `gorm:"type:date;not null;uniqueIndex:idx_index_kind_month,priority:2"`
	Value decimal.Decimal `gorm:"type:decimal(16,4);not null"`
}

// TableName specifies the table name
func (IndexValue) TableName() string {
	return "index_values"
}

// MaxPriceCalculation is a confirmed maximum price calculation. Payload
// holds the full result tree as JSON.
type MaxPriceCalculation struct {
	ID              string          `gorm:"type:varchar(36);primaryKey"`
	ApartmentID     string          `gorm:"type:varchar(64);not null;index"`
	CalculationDate time.Time       `gorm:"type:date;not null"`
	ValidUntil      time.Time       `gorm:"type:date;not null"`
	MaximumPrice    decimal.Decimal `gorm:"type:decimal(16,2);not null"`
	Index           string          `gorm:"type:varchar(64);not null"`
	JSONVersion     int             `gorm:"not null"`
	Payload         datatypes.JSON  `gorm:"not null"`
	ConfirmedAt     time.Time       `gorm:"not null;autoCreateTime"`
}

// TableName specifies the table name
func (MaxPriceCalculation) TableName() string {
	return "max_price_calculations"
}

// HousingCompany is a regulated housing company.
type HousingCompany struct {
	ID               string      `gorm:"type:varchar(64);primaryKey"`
	Name             string      `gorm:"type:varchar(255);not null"`
	PostalCode       string      `gorm:"type:varchar(5);not null;index"`
	CompletionDate   time.Time   `gorm:"type:date;index"`
	RegulationStatus string      `gorm:"type:varchar(32);not null;default:regulated"`
	Apartments       []Apartment `gorm:"foreignKey:HousingCompanyID"`
}

// TableName specifies the table name
func (HousingCompany) TableName() string {
	return "housing_companies"
}

// Apartment carries the first sale figures of an apartment.
type Apartment struct {
	ID                     string          `gorm:"type:varchar(64);primaryKey"`
	HousingCompanyID       string          `gorm:"type:varchar(64);not null;index"`
	SurfaceArea            decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	FirstSalePurchasePrice decimal.Decimal `gorm:"type:decimal(16,2);not null"`
	FirstSaleLoanShare     decimal.Decimal `gorm:"type:decimal(16,2);not null"`
}

// TableName specifies the table name
func (Apartment) TableName() string {
	return "apartments"
}

// ApartmentSale is a resale used for postal code statistics.
type ApartmentSale struct {
	ID                    uint            `gorm:"primaryKey;autoIncrement"`
	ApartmentID           string          `gorm:"type:varchar(64);index"`
	PostalCode            string          `gorm:"type:varchar(5);not null"`
	PurchaseDate          time.Time       `gorm:"type:date;not null;index"`
	PurchasePrice         decimal.Decimal `gorm:"type:decimal(16,2);not null"`
	ApartmentShareOfLoans decimal.Decimal `gorm:"type:decimal(16,2);not null"`
	SurfaceArea           decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	ExcludeFromStatistics bool            `gorm:"not null;default:false"`
}

// TableName specifies the table name
func (ApartmentSale) TableName() string {
	return "apartment_sales"
}

// ExternalSalesData is an imported statistics document.
type ExternalSalesData struct {
	CalculationQuarter string         `gorm:"type:varchar(6);primaryKey"`
	Payload            datatypes.JSON `gorm:"not null"`
	ImportedAt         time.Time      `gorm:"not null;autoCreateTime"`
}

// TableName specifies the table name
func (ExternalSalesData) TableName() string {
	return "external_sales_data"
}

// RegulationResult is one persisted thirty-year regulation run.
type RegulationResult struct {
	ID                      uint                  `gorm:"primaryKey;autoIncrement"`
	CalculationMonth        time.Time             `gorm:"type:date;not null;uniqueIndex"`
	RegulationMonth         time.Time             `gorm:"type:date;not null"`
	SurfaceAreaPriceCeiling decimal.Decimal       `gorm:"type:decimal(16,2);not null"`
	SalesData               datatypes.JSON        `gorm:"not null"`
	ReplacementPostalCodes  datatypes.JSON        `gorm:"not null"`
	Rows                    []RegulationResultRow `gorm:"foreignKey:ResultID"`
	CreatedAt               time.Time             `gorm:"not null;autoCreateTime"`
}

// TableName specifies the table name
func (RegulationResult) TableName() string {
	return "thirty_year_regulation_results"
}

// RegulationResultRow is one housing company's result in a run.
type RegulationResultRow struct {
	ID                                   uint            `gorm:"primaryKey;autoIncrement"`
	ResultID                             uint            `gorm:"not null;index"`
	HousingCompanyID                     string          `gorm:"type:varchar(64);not null;index"`
	HousingCompanyName                   string          `gorm:"type:varchar(255);not null"`
	CompletionDate                       time.Time       `gorm:"type:date"`
	SurfaceArea                          decimal.Decimal `gorm:"type:decimal(12,2)"`
	PostalCode                           string          `gorm:"type:varchar(5)"`
	ReplacementPostalCode                string          `gorm:"type:varchar(5)"`
	RealizedAcquisitionPrice             decimal.Decimal `gorm:"type:decimal(16,2)"`
	UnadjustedAveragePricePerSquareMeter decimal.Decimal `gorm:"type:decimal(16,2)"`
	AdjustedAveragePricePerSquareMeter   decimal.Decimal `gorm:"type:decimal(16,2)"`
	CompletionMonthIndex                 decimal.Decimal `gorm:"type:decimal(16,4)"`
	CalculationMonthIndex                decimal.Decimal `gorm:"type:decimal(16,4)"`
	ComparisonValue                      decimal.Decimal `gorm:"type:decimal(16,2)"`
	Outcome                              string          `gorm:"type:varchar(32);not null"`
	LetterFetched                        bool            `gorm:"not null;default:false"`
}

// TableName specifies the table name
func (RegulationResultRow) TableName() string {
	return "thirty_year_regulation_result_rows"
}

// Owner is an apartment owner.
type Owner struct {
	ID                     string `gorm:"type:varchar(64);primaryKey"`
	Name                   string `gorm:"type:varchar(255)"`
	Identifier             string `gorm:"type:varchar(32);index"`
	Email                  string `gorm:"type:varchar(255)"`
	BypassConditionsOfSale bool   `gorm:"not null;default:false"`
}

// TableName specifies the table name
func (Owner) TableName() string {
	return "owners"
}

// Ownership is an owner's share of an apartment. Deleting soft deletes.
type Ownership struct {
	ID               string          `gorm:"type:varchar(64);primaryKey"`
	OwnerID          string          `gorm:"type:varchar(64);not null;index"`
	ApartmentID      string          `gorm:"type:varchar(64);not null;index"`
	HousingCompanyID string          `gorm:"type:varchar(64);not null;index"`
	Percentage       decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	DeletedAt        gorm.DeletedAt  `gorm:"index"`
}

// TableName specifies the table name
func (Ownership) TableName() string {
	return "ownerships"
}

// ConditionOfSale links a new ownership to an old one the owner must sell.
type ConditionOfSale struct {
	ID             string     `gorm:"type:varchar(64);primaryKey"`
	NewOwnershipID string     `gorm:"type:varchar(64);not null;index"`
	OldOwnershipID string     `gorm:"type:varchar(64);not null;index"`
	FulfilledAt    *time.Time
}

// TableName specifies the table name
func (ConditionOfSale) TableName() string {
	return "conditions_of_sale"
}

// models lists every table for AutoMigrate.
var models = []interface{}{
	&IndexValue{},
	&MaxPriceCalculation{},
	&HousingCompany{},
	&Apartment{},
	&ApartmentSale{},
	&ExternalSalesData{},
	&RegulationResult{},
	&RegulationResultRow{},
	&Owner{},
	&Ownership{},
	&ConditionOfSale{},
}

func toTime(d civil.Date) time.Time {
	return d.In(time.UTC)
}

func toDate(t time.Time) civil.Date {
	return civil.DateOf(t.UTC())
}
