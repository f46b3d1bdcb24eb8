package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/hitas-sub002/internal/regulation"
	"github.com/City-of-Helsinki/hitas-sub002/internal/salesdata"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/datetime"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LoadResults returns the persisted run of a calculation month, or nil.
func (s *Store) LoadResults(ctx context.Context, calculationMonth civil.Date) (*regulation.Results, error) {
	var row RegulationResult
	err := s.db.WithContext(ctx).
		Preload("Rows", func(db *gorm.DB) *gorm.DB { return db.Order("housing_company_id") }).
		First(&row, "calculation_month = ?", toTime(datetime.MonthOf(calculationMonth))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load regulation results: %w", err)
	}

	results := &regulation.Results{
		CalculationMonth:        toDate(row.CalculationMonth),
		RegulationMonth:         toDate(row.RegulationMonth),
		SurfaceAreaPriceCeiling: row.SurfaceAreaPriceCeiling,
		Rows:                    make([]regulation.Row, 0, len(row.Rows)),
	}
	if err := json.Unmarshal(row.SalesData, &results.SalesData); err != nil {
		return nil, fmt.Errorf("failed to decode sales data: %w", err)
	}
	if err := json.Unmarshal(row.ReplacementPostalCodes, &results.ReplacementPostalCodes); err != nil {
		return nil, fmt.Errorf("failed to decode replacement postal codes: %w", err)
	}
	for _, r := range row.Rows {
		results.Rows = append(results.Rows, regulation.Row{
			HousingCompanyID:                     r.HousingCompanyID,
			HousingCompanyName:                   r.HousingCompanyName,
			CompletionDate:                       toDate(r.CompletionDate),
			SurfaceArea:                          r.SurfaceArea,
			PostalCode:                           r.PostalCode,
			ReplacementPostalCode:                r.ReplacementPostalCode,
			RealizedAcquisitionPrice:             r.RealizedAcquisitionPrice,
			UnadjustedAveragePricePerSquareMeter: r.UnadjustedAveragePricePerSquareMeter,
			AdjustedAveragePricePerSquareMeter:   r.AdjustedAveragePricePerSquareMeter,
			CompletionMonthIndex:                 r.CompletionMonthIndex,
			CalculationMonthIndex:                r.CalculationMonthIndex,
			ComparisonValue:                      r.ComparisonValue,
			Outcome:                              regulation.Outcome(r.Outcome),
			LetterFetched:                        r.LetterFetched,
		})
	}
	return results, nil
}

// SaveResults persists a run with all of its rows.
func (s *Store) SaveResults(ctx context.Context, results *regulation.Results) error {
	salesData, err := json.Marshal(results.SalesData)
	if err != nil {
		return fmt.Errorf("failed to encode sales data: %w", err)
	}
	replacements := results.ReplacementPostalCodes
	if replacements == nil {
		replacements = map[string]string{}
	}
	replacementData, err := json.Marshal(replacements)
	if err != nil {
		return fmt.Errorf("failed to encode replacement postal codes: %w", err)
	}

	row := RegulationResult{
		CalculationMonth:        toTime(datetime.MonthOf(results.CalculationMonth)),
		RegulationMonth:         toTime(results.RegulationMonth),
		SurfaceAreaPriceCeiling: results.SurfaceAreaPriceCeiling,
		SalesData:               salesData,
		ReplacementPostalCodes:  replacementData,
	}
	for _, r := range results.Rows {
		row.Rows = append(row.Rows, RegulationResultRow{
			HousingCompanyID:                     r.HousingCompanyID,
			HousingCompanyName:                   r.HousingCompanyName,
			CompletionDate:                       toTime(r.CompletionDate),
			SurfaceArea:                          r.SurfaceArea,
			PostalCode:                           r.PostalCode,
			ReplacementPostalCode:                r.ReplacementPostalCode,
			RealizedAcquisitionPrice:             r.RealizedAcquisitionPrice,
			UnadjustedAveragePricePerSquareMeter: r.UnadjustedAveragePricePerSquareMeter,
			AdjustedAveragePricePerSquareMeter:   r.AdjustedAveragePricePerSquareMeter,
			CompletionMonthIndex:                 r.CompletionMonthIndex,
			CalculationMonthIndex:                r.CalculationMonthIndex,
			ComparisonValue:                      r.ComparisonValue,
			Outcome:                              string(r.Outcome),
			LetterFetched:                        r.LetterFetched,
		})
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save regulation results for %s: %w", datetime.FormatMonth(results.CalculationMonth), err)
	}
	s.logger.Info("regulation results saved",
		zap.String("op", "store.SaveResults"),
		zap.String("calculation_month", datetime.FormatMonth(results.CalculationMonth)),
		zap.Int("rows", len(row.Rows)),
	)
	return nil
}

// MarkLetterFetched flags a company's release letter as fetched.
func (s *Store) MarkLetterFetched(ctx context.Context, calculationMonth civil.Date, housingCompanyID string) error {
	var result RegulationResult
	err := s.db.WithContext(ctx).Select("id").
		First(&result, "calculation_month = ?", toTime(datetime.MonthOf(calculationMonth))).Error
	if err != nil {
		return notFound(err)
	}

	update := s.db.WithContext(ctx).Model(&RegulationResultRow{}).
		Where("result_id = ? AND housing_company_id = ?", result.ID, housingCompanyID).
		Update("letter_fetched", true)
	if update.Error != nil {
		return fmt.Errorf("failed to mark letter fetched: %w", update.Error)
	}
	if update.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// WithinTransaction runs fn with a transactional view of the store.
func (s *Store) WithinTransaction(ctx context.Context, fn func(tx regulation.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.withTx(tx))
	})
}

// HousingCompaniesCompletedIn returns the companies completed in the month.
func (s *Store) HousingCompaniesCompletedIn(ctx context.Context, month civil.Date) ([]regulation.HousingCompany, error) {
	start := datetime.MonthOf(month)
	end := datetime.AddMonths(start, 1)

	var rows []HousingCompany
	err := s.db.WithContext(ctx).Preload("Apartments").
		Where("completion_date >= ? AND completion_date < ?", toTime(start), toTime(end)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load housing companies: %w", err)
	}

	companies := make([]regulation.HousingCompany, 0, len(rows))
	for _, row := range rows {
		companies = append(companies, housingCompanyFromRow(row))
	}
	return companies, nil
}

// HousingCompany returns one housing company with its apartments.
func (s *Store) HousingCompany(ctx context.Context, id string) (regulation.HousingCompany, error) {
	var row HousingCompany
	if err := s.db.WithContext(ctx).Preload("Apartments").First(&row, "id = ?", id).Error; err != nil {
		return regulation.HousingCompany{}, notFound(err)
	}
	return housingCompanyFromRow(row), nil
}

// SaveHousingCompany inserts or replaces a housing company and its apartments.
func (s *Store) SaveHousingCompany(ctx context.Context, company regulation.HousingCompany) error {
	status := company.Status
	if status == "" {
		status = regulation.StatusRegulated
	}
	row := HousingCompany{
		ID:               company.ID,
		Name:             company.Name,
		PostalCode:       company.PostalCode,
		CompletionDate:   toTime(company.CompletionDate),
		RegulationStatus: string(status),
	}
	for _, a := range company.Apartments {
		row.Apartments = append(row.Apartments, Apartment{
			ID:                     a.ID,
			HousingCompanyID:       company.ID,
			SurfaceArea:            a.SurfaceArea,
			FirstSalePurchasePrice: a.FirstSalePurchasePrice,
			FirstSaleLoanShare:     a.FirstSaleLoanShare,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(&row).Error; err != nil {
			return fmt.Errorf("failed to save housing company %s: %w", company.ID, err)
		}
		return nil
	})
}

func housingCompanyFromRow(row HousingCompany) regulation.HousingCompany {
	company := regulation.HousingCompany{
		ID:             row.ID,
		Name:           row.Name,
		PostalCode:     row.PostalCode,
		CompletionDate: toDate(row.CompletionDate),
		Status:         regulation.Status(row.RegulationStatus),
	}
	for _, a := range row.Apartments {
		company.Apartments = append(company.Apartments, regulation.Apartment{
			ID:                     a.ID,
			SurfaceArea:            a.SurfaceArea,
			FirstSalePurchasePrice: a.FirstSalePurchasePrice,
			FirstSaleLoanShare:     a.FirstSaleLoanShare,
		})
	}
	return company
}

// Sales returns the resales made between from and to, inclusive.
func (s *Store) Sales(ctx context.Context, from, to civil.Date) ([]salesdata.Sale, error) {
	var rows []ApartmentSale
	err := s.db.WithContext(ctx).
		Where("purchase_date >= ? AND purchase_date <= ?", toTime(from), toTime(to)).
		Order("purchase_date").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load sales: %w", err)
	}

	sales := make([]salesdata.Sale, 0, len(rows))
	for _, row := range rows {
		sales = append(sales, salesdata.Sale{
			PostalCode:            row.PostalCode,
			PurchaseDate:          toDate(row.PurchaseDate),
			PurchasePrice:         row.PurchasePrice,
			ApartmentShareOfLoans: row.ApartmentShareOfLoans,
			SurfaceArea:           row.SurfaceArea,
			ExcludeFromStatistics: row.ExcludeFromStatistics,
		})
	}
	return sales, nil
}

// SaveSale records one apartment resale.
func (s *Store) SaveSale(ctx context.Context, apartmentID string, sale salesdata.Sale) error {
	row := ApartmentSale{
		ApartmentID:           apartmentID,
		PostalCode:            sale.PostalCode,
		PurchaseDate:          toTime(sale.PurchaseDate),
		PurchasePrice:         sale.PurchasePrice,
		ApartmentShareOfLoans: sale.ApartmentShareOfLoans,
		SurfaceArea:           sale.SurfaceArea,
		ExcludeFromStatistics: sale.ExcludeFromStatistics,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save sale: %w", err)
	}
	return nil
}

// SaveExternalSalesData stores an imported statistics document, replacing
// an earlier import of the same calculation quarter.
func (s *Store) SaveExternalSalesData(ctx context.Context, data salesdata.ExternalSalesData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode external sales data: %w", err)
	}
	row := ExternalSalesData{CalculationQuarter: data.CalculationQuarter, Payload: payload}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("failed to save external sales data for %s: %w", data.CalculationQuarter, err)
	}
	s.logger.Info("external sales data imported",
		zap.String("op", "store.SaveExternalSalesData"),
		zap.String("calculation_quarter", data.CalculationQuarter),
		zap.Int("areas", len(data.Areas)),
	)
	return nil
}

// ExternalSalesData returns the statistics of a calculation quarter, or nil
// if none were imported.
func (s *Store) ExternalSalesData(ctx context.Context, calculationQuarter string) (map[string]salesdata.Quarters, error) {
	var row ExternalSalesData
	err := s.db.WithContext(ctx).First(&row, "calculation_quarter = ?", calculationQuarter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load external sales data: %w", err)
	}

	var data salesdata.ExternalSalesData
	if err := json.Unmarshal(row.Payload, &data); err != nil {
		return nil, fmt.Errorf("failed to decode external sales data for %s: %w", calculationQuarter, err)
	}
	return data.Statistics(), nil
}

// SetRegulationStatus updates the status of the given housing companies.
func (s *Store) SetRegulationStatus(ctx context.Context, housingCompanyIDs []string, status regulation.Status) error {
	if len(housingCompanyIDs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&HousingCompany{}).
		Where("id IN ?", housingCompanyIDs).
		Update("regulation_status", string(status)).Error
	if err != nil {
		return fmt.Errorf("failed to set regulation status: %w", err)
	}
	return nil
}

// RegulatedHousingCompanies reports, per id, whether the company is regulated.
func (s *Store) RegulatedHousingCompanies(ctx context.Context, housingCompanyIDs []string) (map[string]bool, error) {
	regulated := make(map[string]bool, len(housingCompanyIDs))
	if len(housingCompanyIDs) == 0 {
		return regulated, nil
	}
	var rows []HousingCompany
	err := s.db.WithContext(ctx).Select("id", "regulation_status").
		Where("id IN ?", housingCompanyIDs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load regulation statuses: %w", err)
	}
	for _, row := range rows {
		regulated[row.ID] = regulation.Status(row.RegulationStatus).Regulated()
	}
	return regulated, nil
}

var (
	_ regulation.Store = (*Store)(nil)
	_ regulation.Tx    = (*Store)(nil)
)
