package store

import (
	"context"
	"fmt"

	"github.com/City-of-Helsinki/hitas-sub002/internal/indices"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/datetime"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

// SaveIndices upserts index values keyed by index and month.
func (s *Store) SaveIndices(ctx context.Context, entries []indices.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]IndexValue, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, IndexValue{
			Kind:  string(e.Kind),
			Month: toTime(datetime.MonthOf(e.Month)),
			Value: e.Value,
		})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "month"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to save indices: %w", err)
	}
	s.logger.Debug(fmt.Sprintf("saved %d index values", len(rows)), zap.String("op", "store.SaveIndices"))
	return nil
}

// Indices loads every index value into an in-memory table.
func (s *Store) Indices(ctx context.Context) (indices.Lookup, error) {
	return s.LoadIndexTable(ctx)
}

// LoadIndexTable loads every index value into an in-memory table.
func (s *Store) LoadIndexTable(ctx context.Context) (*indices.Table, error) {
	var rows []IndexValue
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load indices: %w", err)
	}
	table := indices.NewTable()
	for _, row := range rows {
		kind, err := indices.ParseKind(row.Kind)
		if err != nil {
			s.logger.Warn("skipping unknown index", zap.String("op", "store.LoadIndexTable"), zap.String("kind", row.Kind))
			continue
		}
		table.Set(kind, toDate(row.Month), row.Value)
	}
	return table, nil
}
