// Package regulation runs the monthly thirty-year regulation check.
//
// Housing companies completed exactly thirty years before the calculation
// month are compared against the surface area price ceiling and the sales
// prices of their postal code. A company whose index adjusted average
// price per square meter reaches the comparison value is released from
// regulation; otherwise it stays regulated.
package regulation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/hitas-sub002/internal/calcerr"
	"github.com/City-of-Helsinki/hitas-sub002/internal/indices"
	"github.com/City-of-Helsinki/hitas-sub002/internal/ownership"
	"github.com/City-of-Helsinki/hitas-sub002/internal/salesdata"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/constants"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/datetime"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/mathutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options tune a regulation run.
type Options struct {
	MinimumSaleCount       int
	Workers                int
	ReplacementPostalCodes map[string]string
	Notifier               Notifier
	Now                    func() time.Time
}

// Engine runs thirty-year regulation checks against a store.
type Engine struct {
	logger  *zap.Logger
	store   Store
	options Options
}

// NewEngine creates a regulation engine.
// If logger is nil, it will use a no-op logger to prevent panics.
func NewEngine(logger *zap.Logger, store Store, options Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options.MinimumSaleCount <= 0 {
		options.MinimumSaleCount = constants.DefaultMinimumSalesCount
	}
	if options.Workers <= 0 {
		options.Workers = constants.DefaultRegulationWorkers
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Engine{logger: logger, store: store, options: options}
}

// Run performs the check for the month of calculationDate. A month that
// already has persisted results keeps its decisions; the condition of
// sale and owner side effects are applied again against current data.
func (e *Engine) Run(ctx context.Context, calculationDate civil.Date) (Report, error) {
	calculationMonth := datetime.MonthOf(calculationDate)
	logger := e.logger.With(
		zap.String("op", "regulation.Run"),
		zap.String("calculation_month", datetime.FormatMonth(calculationMonth)),
	)

	existing, err := e.store.LoadResults(ctx, calculationMonth)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load previous results: %w", err)
	}

	results := existing
	if results == nil {
		results, err = e.evaluate(ctx, calculationDate)
		if err != nil {
			return Report{}, err
		}
	} else {
		logger.Info("reusing persisted regulation decisions")
	}

	var obfuscated []ownership.Obfuscated
	err = e.store.WithinTransaction(ctx, func(tx Tx) error {
		if existing == nil {
			if err := tx.SaveResults(ctx, results); err != nil {
				return fmt.Errorf("failed to save regulation results: %w", err)
			}
		}
		var err error
		obfuscated, err = e.applySideEffects(ctx, tx, results)
		return err
	})
	if err != nil {
		return Report{}, err
	}

	report := NewReport(results)
	report.ObfuscatedOwners = obfuscated

	logger.Info("thirty-year regulation completed",
		zap.Int("automatically_released", len(report.AutomaticallyReleased)),
		zap.Int("released_from_regulation", len(report.ReleasedFromRegulation)),
		zap.Int("stays_regulated", len(report.StaysRegulated)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("obfuscated_owners", len(report.ObfuscatedOwners)),
	)

	if existing == nil {
		e.notify(ctx, results)
	}
	return report, nil
}

// Results returns the persisted run of a month, or nil if none exists.
func (e *Engine) Results(ctx context.Context, calculationMonth civil.Date) (*Results, error) {
	return e.store.LoadResults(ctx, datetime.MonthOf(calculationMonth))
}

// MarkLetterFetched flags a company's release letter as fetched.
func (e *Engine) MarkLetterFetched(ctx context.Context, calculationMonth civil.Date, housingCompanyID string) error {
	return e.store.MarkLetterFetched(ctx, datetime.MonthOf(calculationMonth), housingCompanyID)
}

// NewReport groups result rows by outcome.
func NewReport(results *Results) Report {
	report := Report{CalculationMonth: results.CalculationMonth}
	for _, row := range results.Rows {
		switch row.Outcome {
		case AutomaticallyReleased:
			report.AutomaticallyReleased = append(report.AutomaticallyReleased, row)
		case ReleasedFromRegulation:
			report.ReleasedFromRegulation = append(report.ReleasedFromRegulation, row)
		case StaysRegulated:
			report.StaysRegulated = append(report.StaysRegulated, row)
		case Skipped:
			report.Skipped = append(report.Skipped, row)
		}
	}
	return report
}

func (e *Engine) evaluate(ctx context.Context, calculationDate civil.Date) (*Results, error) {
	calculationMonth := datetime.MonthOf(calculationDate)
	regulationMonth := datetime.AddYears(calculationMonth, -constants.RegulationPeriodYears)

	companies, err := e.store.HousingCompaniesCompletedIn(ctx, regulationMonth)
	if err != nil {
		return nil, fmt.Errorf("failed to load housing companies: %w", err)
	}

	lookup, err := e.store.Indices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load indices: %w", err)
	}
	ceiling, err := lookup.Value(indices.SurfaceAreaPriceCeiling, calculationMonth)
	if err != nil {
		return nil, err
	}

	sales, err := e.salesData(ctx, calculationDate)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, len(companies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.options.Workers)
	for i := range companies {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row, err := e.evaluateCompany(companies[i], lookup, ceiling, sales, calculationMonth)
			if err != nil {
				return fmt.Errorf("housing company %s: %w", companies[i].ID, err)
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].HousingCompanyID < rows[j].HousingCompanyID })

	return &Results{
		CalculationMonth:        calculationMonth,
		RegulationMonth:         regulationMonth,
		SurfaceAreaPriceCeiling: ceiling,
		SalesData:               sales,
		ReplacementPostalCodes:  e.options.ReplacementPostalCodes,
		Rows:                    rows,
	}, nil
}

func (e *Engine) salesData(ctx context.Context, calculationDate civil.Date) (salesdata.FullSalesData, error) {
	quarters := datetime.PreviousQuarters(calculationDate, constants.SalesStatisticsQuarters)
	sales, err := e.store.Sales(ctx, quarters[0].Start(), quarters[len(quarters)-1].End())
	if err != nil {
		return salesdata.FullSalesData{}, fmt.Errorf("failed to load sales: %w", err)
	}
	external, err := e.store.ExternalSalesData(ctx, datetime.QuarterOf(calculationDate).String())
	if err != nil {
		return salesdata.FullSalesData{}, fmt.Errorf("failed to load external sales data: %w", err)
	}
	if external == nil {
		e.logger.Warn("no external sales data for calculation quarter",
			zap.String("op", "regulation.salesData"),
			zap.String("quarter", datetime.QuarterOf(calculationDate).String()),
		)
	}
	internal := salesdata.InternalStatistics(sales, quarters)
	return salesdata.Build(quarters, internal, external, e.options.MinimumSaleCount), nil
}

func (e *Engine) evaluateCompany(company HousingCompany, lookup indices.Lookup, ceiling decimal.Decimal, sales salesdata.FullSalesData, calculationMonth civil.Date) (Row, error) {
	row := Row{
		HousingCompanyID:   company.ID,
		HousingCompanyName: company.Name,
		CompletionDate:     company.CompletionDate,
		SurfaceArea:        company.SurfaceArea(),
		PostalCode:         company.PostalCode,
	}

	if !company.Status.Regulated() {
		row.Outcome = AutomaticallyReleased
		return row, nil
	}

	if row.SurfaceArea.Sign() <= 0 {
		return Row{}, calcerr.InvalidCalculation("housing company %s has no surface area", company.ID)
	}

	pair, err := indices.LookupPair(lookup, indices.ConstructionPrice2005, company.CompletionDate, calculationMonth)
	if err != nil {
		return Row{}, err
	}
	row.CompletionMonthIndex = pair.CompletionDate
	row.CalculationMonthIndex = pair.CalculationDate
	row.RealizedAcquisitionPrice = company.RealizedAcquisitionPrice()
	row.UnadjustedAveragePricePerSquareMeter = mathutil.Roundup(mathutil.Share(row.RealizedAcquisitionPrice, row.SurfaceArea))
	row.AdjustedAveragePricePerSquareMeter = mathutil.Roundup(
		mathutil.IndexAdjust(row.UnadjustedAveragePricePerSquareMeter, pair.CalculationDate, pair.CompletionDate))

	areaPrice, ok := sales.AveragePrice(company.PostalCode)
	if !ok {
		if replacement := e.options.ReplacementPostalCodes[company.PostalCode]; replacement != "" {
			row.ReplacementPostalCode = replacement
			areaPrice, ok = sales.AveragePrice(replacement)
		}
	}
	if !ok {
		e.logger.Warn(fmt.Sprintf("no sales data for postal code %s, skipping housing company", company.PostalCode),
			zap.String("op", "regulation.evaluateCompany"),
			zap.String("housing_company_id", company.ID),
		)
		row.Outcome = Skipped
		return row, nil
	}

	row.ComparisonValue = mathutil.Max(ceiling, areaPrice.Price)
	if row.AdjustedAveragePricePerSquareMeter.GreaterThanOrEqual(row.ComparisonValue) {
		row.Outcome = ReleasedFromRegulation
	} else {
		row.Outcome = StaysRegulated
	}
	return row, nil
}

// applySideEffects releases the companies, fulfills conditions of sale and
// obfuscates owners left without regulated apartments.
func (e *Engine) applySideEffects(ctx context.Context, tx Tx, results *Results) ([]ownership.Obfuscated, error) {
	var released, unregulated []string
	for _, row := range results.Rows {
		switch row.Outcome {
		case ReleasedFromRegulation:
			released = append(released, row.HousingCompanyID)
			unregulated = append(unregulated, row.HousingCompanyID)
		case AutomaticallyReleased:
			unregulated = append(unregulated, row.HousingCompanyID)
		}
	}
	if len(unregulated) == 0 {
		return nil, nil
	}

	if len(released) > 0 {
		if err := tx.SetRegulationStatus(ctx, released, StatusReleasedByHitas); err != nil {
			return nil, fmt.Errorf("failed to release housing companies: %w", err)
		}
	}

	owned, err := tx.OwnershipsInHousingCompanies(ctx, unregulated)
	if err != nil {
		return nil, fmt.Errorf("failed to load ownerships: %w", err)
	}

	if err := e.fulfillConditionsOfSale(ctx, tx, owned); err != nil {
		return nil, err
	}
	return e.obfuscateOwners(ctx, tx, owned)
}

func (e *Engine) fulfillConditionsOfSale(ctx context.Context, tx Tx, owned []ownership.Ownership) error {
	ownershipIDs := make([]string, 0, len(owned))
	for _, o := range owned {
		ownershipIDs = append(ownershipIDs, o.ID)
	}
	conditions, err := tx.ConditionsOfSaleForOwnerships(ctx, ownershipIDs)
	if err != nil {
		return fmt.Errorf("failed to load conditions of sale: %w", err)
	}
	if len(conditions) == 0 {
		return nil
	}

	referenced := make([]string, 0, 2*len(conditions))
	for _, c := range conditions {
		referenced = append(referenced, c.NewOwnershipID, c.OldOwnershipID)
	}
	ownerships, err := tx.Ownerships(ctx, unique(referenced))
	if err != nil {
		return fmt.Errorf("failed to load ownerships: %w", err)
	}
	regulated, err := regulationStatus(ctx, tx, mapValues(ownerships))
	if err != nil {
		return err
	}

	changed := ownership.RecomputeFulfillment(conditions, ownerships, regulated, e.options.Now())
	if len(changed) == 0 {
		return nil
	}
	if err := tx.SaveConditionsOfSale(ctx, changed); err != nil {
		return fmt.Errorf("failed to save conditions of sale: %w", err)
	}
	e.logger.Info(fmt.Sprintf("updated %d conditions of sale", len(changed)),
		zap.String("op", "regulation.fulfillConditionsOfSale"),
	)
	return nil
}

func (e *Engine) obfuscateOwners(ctx context.Context, tx Tx, owned []ownership.Ownership) ([]ownership.Obfuscated, error) {
	candidates := make([]string, 0, len(owned))
	for _, o := range owned {
		candidates = append(candidates, o.OwnerID)
	}
	candidates = unique(candidates)

	all, err := tx.OwnershipsOfOwners(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner ownerships: %w", err)
	}
	regulated, err := regulationStatus(ctx, tx, all)
	if err != nil {
		return nil, err
	}

	ids := ownership.OwnersWithoutRegulatedApartments(candidates, all, regulated)
	if len(ids) == 0 {
		return nil, nil
	}
	owners, err := tx.Owners(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load owners: %w", err)
	}

	var obfuscated []ownership.Obfuscated
	var updated []ownership.Owner
	for i := range owners {
		if owners[i].Name == "" && owners[i].Identifier == "" && owners[i].Email == "" {
			continue
		}
		obfuscated = append(obfuscated, ownership.Obfuscate(&owners[i]))
		updated = append(updated, owners[i])
	}
	if len(updated) == 0 {
		return nil, nil
	}
	if err := tx.SaveOwners(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to save owners: %w", err)
	}
	return obfuscated, nil
}

func (e *Engine) notify(ctx context.Context, results *Results) {
	if e.options.Notifier == nil {
		return
	}
	for _, row := range results.Rows {
		if row.Outcome != ReleasedFromRegulation && row.Outcome != AutomaticallyReleased {
			continue
		}
		letter := ReleaseLetter{
			CalculationMonth:   results.CalculationMonth,
			HousingCompanyID:   row.HousingCompanyID,
			HousingCompanyName: row.HousingCompanyName,
			Outcome:            row.Outcome,
		}
		if err := e.options.Notifier.PublishReleaseLetter(ctx, letter); err != nil {
			e.logger.Error("failed to publish release letter",
				zap.String("op", "regulation.notify"),
				zap.String("housing_company_id", row.HousingCompanyID),
				zap.Error(err),
			)
		}
	}
}

func regulationStatus(ctx context.Context, tx Tx, ownerships []ownership.Ownership) (ownership.RegulationStatus, error) {
	ids := make([]string, 0, len(ownerships))
	for _, o := range ownerships {
		ids = append(ids, o.HousingCompanyID)
	}
	statuses, err := tx.RegulatedHousingCompanies(ctx, unique(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load regulation statuses: %w", err)
	}
	return func(id string) bool { return statuses[id] }, nil
}

func mapValues(m map[string]ownership.Ownership) []ownership.Ownership {
	values := make([]ownership.Ownership, 0, len(m))
	for _, v := range m {
		values = append(values, v)
	}
	return values
}

func unique(values []string) []string {
	seen := make(map[string]bool, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}
	sort.Strings(result)
	return result
}
