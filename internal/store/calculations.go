package store

import (
	"context"
	"fmt"

	"github.com/City-of-Helsinki/hitas-sub002/internal/maxprice"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// SaveCalculation persists a confirmed maximum price calculation.
func (s *Store) SaveCalculation(ctx context.Context, calculation maxprice.Calculation) error {
	payload, err := json.Marshal(calculation)
	if err != nil {
		return fmt.Errorf("failed to encode calculation: %w", err)
	}

	row := MaxPriceCalculation{
		ID:              calculation.ID,
		ApartmentID:     calculation.ApartmentID,
		CalculationDate: toTime(calculation.CalculationDate),
		ValidUntil:      toTime(calculation.ValidUntil),
		MaximumPrice:    calculation.MaximumPrice,
		Index:           string(calculation.Index),
		JSONVersion:     maxprice.JSONVersion,
		Payload:         payload,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save calculation %s: %w", calculation.ID, err)
	}

	s.logger.Info("confirmed maximum price calculation saved",
		zap.String("op", "store.SaveCalculation"),
		zap.String("id", calculation.ID),
		zap.String("apartment_id", calculation.ApartmentID),
	)
	return nil
}

// LoadCalculation reads a confirmed calculation back exactly as saved.
func (s *Store) LoadCalculation(ctx context.Context, id string) (maxprice.Calculation, error) {
	var row MaxPriceCalculation
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return maxprice.Calculation{}, notFound(err)
	}
	if row.JSONVersion != maxprice.JSONVersion {
		return maxprice.Calculation{}, fmt.Errorf("calculation %s has unsupported payload version %d", id, row.JSONVersion)
	}

	var calculation maxprice.Calculation
	if err := json.Unmarshal(row.Payload, &calculation); err != nil {
		return maxprice.Calculation{}, fmt.Errorf("failed to decode calculation %s: %w", id, err)
	}
	return calculation, nil
}
