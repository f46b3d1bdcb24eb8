package datetime

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/constants"
)

// SurfaceAreaPriceCeilingValidity returns the last day a surface area price
// ceiling calculation made on the given date is valid. The ceiling is
// published quarterly and each publication covers a fixed band of months:
//
//	January          -> end of February
//	February - April -> May 31
//	May - July       -> August 31
//	August - October -> November 30
//	November - December -> end of February of the following year
func SurfaceAreaPriceCeilingValidity(date civil.Date) civil.Date {
	switch date.Month {
	case time.January:
		return EndOfMonth(civil.Date{Year: date.Year, Month: time.February, Day: 1})
	case time.February, time.March, time.April:
		return civil.Date{Year: date.Year, Month: time.May, Day: 31}
	case time.May, time.June, time.July:
		return civil.Date{Year: date.Year, Month: time.August, Day: 31}
	case time.August, time.September, time.October:
		return civil.Date{Year: date.Year, Month: time.November, Day: 30}
	default:
		return EndOfMonth(civil.Date{Year: date.Year + 1, Month: time.February, Day: 1})
	}
}

// IndexCalculationValidity returns the last day an index based calculation
// made on the given date is valid.
func IndexCalculationValidity(date civil.Date) civil.Date {
	return AddMonths(date, constants.IndexValidityMonths)
}

// Quarter identifies a fiscal quarter.
type Quarter struct {
	Year   int
	Number int
}

// QuarterOf returns the fiscal quarter containing the date.
func QuarterOf(date civil.Date) Quarter {
	return Quarter{Year: date.Year, Number: (int(date.Month)-1)/constants.MonthsPerQuarter + 1}
}

// String formats the quarter as YYYYQn, e.g. 2023Q1.
func (q Quarter) String() string {
	return fmt.Sprintf("%dQ%d", q.Year, q.Number)
}

// Previous returns the quarter before q.
func (q Quarter) Previous() Quarter {
	if q.Number == 1 {
		return Quarter{Year: q.Year - 1, Number: 4}
	}
	return Quarter{Year: q.Year, Number: q.Number - 1}
}

// Start returns the first day of the quarter.
func (q Quarter) Start() civil.Date {
	return civil.Date{Year: q.Year, Month: time.Month((q.Number-1)*constants.MonthsPerQuarter + 1), Day: 1}
}

// End returns the last day of the quarter.
func (q Quarter) End() civil.Date {
	return EndOfMonth(AddMonths(q.Start(), constants.MonthsPerQuarter-1))
}

// Contains reports whether the date falls within the quarter.
func (q Quarter) Contains(date civil.Date) bool {
	return QuarterOf(date) == q
}

// ParseQuarter parses a YYYYQn label.
func ParseQuarter(label string) (Quarter, error) {
	var q Quarter
	if _, err := fmt.Sscanf(label, "%dQ%d", &q.Year, &q.Number); err != nil {
		return Quarter{}, fmt.Errorf("invalid quarter %q: %w", label, err)
	}
	if q.Number < 1 || q.Number > 4 {
		return Quarter{}, fmt.Errorf("invalid quarter %q: quarter number out of range", label)
	}
	return q, nil
}

// PreviousQuarters returns the n full quarters before the quarter that
// contains date, oldest first.
func PreviousQuarters(date civil.Date, n int) []Quarter {
	quarters := make([]Quarter, n)
	q := QuarterOf(date)
	for i := n - 1; i >= 0; i-- {
		q = q.Previous()
		quarters[i] = q
	}
	return quarters
}
