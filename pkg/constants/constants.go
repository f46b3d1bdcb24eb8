// Package constants provides shared constants for the hitas application.
package constants

// DateLayout is the format of calendar dates in configuration, API payloads
// and reports.
const DateLayout = "2006-01-02"

// MonthLayout is the format of index months and regulation run months.
const MonthLayout = "2006-01"

// Calendar constants
const (
	// MonthsPerYear is the number of months in a year
	MonthsPerYear = 12

	// MonthsPerQuarter is the number of months in a fiscal quarter
	MonthsPerQuarter = 3

	// DaysPerInterestMonth is the length of a month in the 30/360 day count
	DaysPerInterestMonth = 30

	// DaysPerInterestYear is the length of a year in the 30/360 day count
	DaysPerInterestYear = 360

	// RegulationPeriodYears is the length of the HITAS price regulation period
	RegulationPeriodYears = 30

	// IndexValidityMonths is how long an index based max price calculation stays valid
	IndexValidityMonths = 3

	// SalesStatisticsQuarters is the number of trailing quarters used in sales statistics
	SalesStatisticsQuarters = 4

	// RulesChangeYear is the first completion year handled with the 2011-onwards rules
	RulesChangeYear = 2011
)

// Money constants
const (
	// CurrencyDecimals is the number of decimals kept in currency amounts
	CurrencyDecimals = 2

	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100
)

// Statutory construction-time interest rates (percent) used by the two
// index based max price variants.
const (
	// DefaultMarketPriceInterestRate is the rate for the market price index variant
	DefaultMarketPriceInterestRate = 6.0

	// DefaultConstructionPriceInterestRate is the rate for the construction price index variant
	DefaultConstructionPriceInterestRate = 14.0
)

// Regulation defaults
const (
	// DefaultMinimumSalesCount is the smallest internal sale count accepted for a postal code
	DefaultMinimumSalesCount = 5

	// DefaultRegulationWorkers bounds concurrent housing company evaluations
	DefaultRegulationWorkers = 4

	// DefaultRegulationSchedule runs the regulation on the first day of each month
	DefaultRegulationSchedule = "0 6 1 * *"
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address for the API
	DefaultServerAddress = ":8080"

	// DefaultMaxBodySizeBytes is the default maximum request body size (1 MB)
	DefaultMaxBodySizeBytes int64 = 1024 * 1024
)
