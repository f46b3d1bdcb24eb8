// Package interest computes construction-time interest: the compensation
// for installments paid before a building's completion date.
package interest

import (
	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/constants"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/mathutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	hundred          = decimal.NewFromInt(constants.PercentageMultiplier)
	daysPerYearCount = decimal.NewFromInt(constants.DaysPerInterestYear)
)

// Payment is a single installment of the apartment's transfer price.
type Payment struct {
	Date       civil.Date      `json:"date"`
	Percentage decimal.Decimal `json:"percentage"`
}

// InterestDays returns the 30/360 day count from the payment date to the
// completion date. Payments made on or after the day before completion
// earn no interest. A payment on the 31st earns one extra day unless the
// completion date is also on the 31st.
func InterestDays(paymentDate, completionDate civil.Date) int {
	if !paymentDate.Before(completionDate.AddDays(-1)) {
		return 0
	}

	yearDiff := completionDate.Year - paymentDate.Year
	monthDiff := int(completionDate.Month) - int(paymentDate.Month)
	dayDiff := completionDate.Day - paymentDate.Day

	days := (yearDiff*constants.MonthsPerYear+monthDiff)*constants.DaysPerInterestMonth + dayDiff
	if paymentDate.Day == 31 && completionDate.Day != 31 {
		days++
	}
	return days
}

// PaymentInterest calculates the interest of one installment rounded
// half-up to a whole currency unit.
func PaymentInterest(days int, installmentPercentage, transferPrice, constructionLoan, loanRate decimal.Decimal) decimal.Decimal {
	value := decimal.NewFromInt(int64(days)).
		Mul(installmentPercentage.Div(hundred)).
		Mul(transferPrice.Sub(constructionLoan)).
		Mul(loanRate.Div(hundred)).
		Div(daysPerYearCount)
	return mathutil.RoundToInteger(value)
}

// TotalConstructionTimeInterest sums the interest of all payments. Each
// payment is rounded before summing, which the legacy system relies on.
func TotalConstructionTimeInterest(loanRate decimal.Decimal, completionDate civil.Date, transferPrice, constructionLoan decimal.Decimal, payments []Payment) decimal.Decimal {
	c := &Calculator{logger: zap.NewNop()}
	return c.Total(loanRate, completionDate, transferPrice, constructionLoan, payments)
}

// ConstructionInterest holds both statutory interest figures for an apartment.
type ConstructionInterest struct {
	MarketPriceIndex       decimal.Decimal `json:"market_price_index"`
	ConstructionPriceIndex decimal.Decimal `json:"construction_price_index"`
}

// Calculator computes construction-time interest with logging.
type Calculator struct {
	logger                *zap.Logger
	marketPriceRate       decimal.Decimal
	constructionPriceRate decimal.Decimal
}

// NewCalculator creates a calculator using the given statutory rates (percent).
// If logger is nil, it will use a no-op logger to prevent panics.
func NewCalculator(logger *zap.Logger, marketPriceRate, constructionPriceRate float64) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if marketPriceRate <= 0 {
		marketPriceRate = constants.DefaultMarketPriceInterestRate
	}
	if constructionPriceRate <= 0 {
		constructionPriceRate = constants.DefaultConstructionPriceInterestRate
	}
	return &Calculator{
		logger:                logger,
		marketPriceRate:       decimal.NewFromFloat(marketPriceRate),
		constructionPriceRate: decimal.NewFromFloat(constructionPriceRate),
	}
}

// Total sums the rounded interest of each payment, logging every installment
// at debug level.
func (c *Calculator) Total(loanRate decimal.Decimal, completionDate civil.Date, transferPrice, constructionLoan decimal.Decimal, payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, payment := range payments {
		days := InterestDays(payment.Date, completionDate)
		value := PaymentInterest(days, payment.Percentage, transferPrice, constructionLoan, loanRate)
		c.logger.Debug("construction interest for installment",
			zap.String("op", "interest.Total"),
			zap.String("payment_date", payment.Date.String()),
			zap.Int("days", days),
			zap.String("interest", value.String()),
		)
		total = total.Add(value)
	}
	return total
}

// ForApartment computes the interest figures for both index variants.
func (c *Calculator) ForApartment(completionDate civil.Date, transferPrice, constructionLoan decimal.Decimal, payments []Payment) ConstructionInterest {
	return ConstructionInterest{
		MarketPriceIndex:       c.Total(c.marketPriceRate, completionDate, transferPrice, constructionLoan, payments),
		ConstructionPriceIndex: c.Total(c.constructionPriceRate, completionDate, transferPrice, constructionLoan, payments),
	}
}
