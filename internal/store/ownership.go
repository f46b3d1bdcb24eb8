package store

import (
	"context"
	"fmt"
	"time"

	"github.com/City-of-Helsinki/hitas-sub002/internal/calcerr"
	"github.com/City-of-Helsinki/hitas-sub002/internal/ownership"
	"github.com/City-of-Helsinki/hitas-sub002/internal/salesdata"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OwnershipsInHousingCompanies returns the active ownerships of the companies.
func (s *Store) OwnershipsInHousingCompanies(ctx context.Context, housingCompanyIDs []string) ([]ownership.Ownership, error) {
	if len(housingCompanyIDs) == 0 {
		return nil, nil
	}
	var rows []Ownership
	err := s.db.WithContext(ctx).Where("housing_company_id IN ?", housingCompanyIDs).Order("id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load ownerships: %w", err)
	}
	return ownershipsFromRows(rows), nil
}

// OwnershipsOfOwners returns the active ownerships held by the owners.
func (s *Store) OwnershipsOfOwners(ctx context.Context, ownerIDs []string) ([]ownership.Ownership, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	var rows []Ownership
	err := s.db.WithContext(ctx).Where("owner_id IN ?", ownerIDs).Order("id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load ownerships: %w", err)
	}
	return ownershipsFromRows(rows), nil
}

// Ownerships returns the ownerships by id, deleted ones included.
func (s *Store) Ownerships(ctx context.Context, ids []string) (map[string]ownership.Ownership, error) {
	result := make(map[string]ownership.Ownership, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var rows []Ownership
	if err := s.db.WithContext(ctx).Unscoped().Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load ownerships: %w", err)
	}
	for _, o := range ownershipsFromRows(rows) {
		result[o.ID] = o
	}
	return result, nil
}

// SaveOwnership inserts or replaces an ownership.
func (s *Store) SaveOwnership(ctx context.Context, o ownership.Ownership) error {
	row := Ownership{
		ID:               o.ID,
		OwnerID:          o.OwnerID,
		ApartmentID:      o.ApartmentID,
		HousingCompanyID: o.HousingCompanyID,
		Percentage:       o.Percentage,
	}
	if o.DeletedAt != nil {
		row.DeletedAt = gorm.DeletedAt{Time: o.DeletedAt.UTC(), Valid: true}
	}
	if err := s.db.WithContext(ctx).Unscoped().Save(&row).Error; err != nil {
		return fmt.Errorf("failed to save ownership %s: %w", o.ID, err)
	}
	return nil
}

// DeleteOwnership soft deletes an ownership and recomputes the conditions
// of sale it takes part in. The changed conditions are returned.
func (s *Store) DeleteOwnership(ctx context.Context, id string, now time.Time) ([]ownership.ConditionOfSale, error) {
	return s.toggleOwnership(ctx, id, now, func(tx *gorm.DB) *gorm.DB {
		return tx.Delete(&Ownership{}, "id = ?", id)
	})
}

// RestoreOwnership undoes a soft delete and recomputes the conditions of
// sale it takes part in. The changed conditions are returned.
func (s *Store) RestoreOwnership(ctx context.Context, id string, now time.Time) ([]ownership.ConditionOfSale, error) {
	return s.toggleOwnership(ctx, id, now, func(tx *gorm.DB) *gorm.DB {
		return tx.Unscoped().Model(&Ownership{}).Where("id = ?", id).Update("deleted_at", nil)
	})
}

func (s *Store) toggleOwnership(ctx context.Context, id string, now time.Time, change func(tx *gorm.DB) *gorm.DB) ([]ownership.ConditionOfSale, error) {
	var changed []ownership.ConditionOfSale
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := change(tx)
		if result.Error != nil {
			return fmt.Errorf("failed to update ownership %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		view := s.withTx(tx)
		conditions, err := view.ConditionsOfSaleForOwnerships(ctx, []string{id})
		if err != nil {
			return err
		}
		if len(conditions) == 0 {
			return nil
		}

		referenced := make([]string, 0, 2*len(conditions))
		for _, c := range conditions {
			referenced = append(referenced, c.NewOwnershipID, c.OldOwnershipID)
		}
		ownerships, err := view.Ownerships(ctx, referenced)
		if err != nil {
			return err
		}
		companyIDs := make([]string, 0, len(ownerships))
		for _, o := range ownerships {
			companyIDs = append(companyIDs, o.HousingCompanyID)
		}
		regulated, err := view.RegulatedHousingCompanies(ctx, companyIDs)
		if err != nil {
			return err
		}

		changed = ownership.RecomputeFulfillment(conditions, ownerships, func(housingCompanyID string) bool {
			return regulated[housingCompanyID]
		}, now)
		return view.SaveConditionsOfSale(ctx, changed)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ownership updated",
		zap.String("op", "store.toggleOwnership"),
		zap.String("ownership_id", id),
		zap.Int("conditions_changed", len(changed)),
	)
	return changed, nil
}

func ownershipsFromRows(rows []Ownership) []ownership.Ownership {
	result := make([]ownership.Ownership, 0, len(rows))
	for _, row := range rows {
		o := ownership.Ownership{
			ID:               row.ID,
			OwnerID:          row.OwnerID,
			ApartmentID:      row.ApartmentID,
			HousingCompanyID: row.HousingCompanyID,
			Percentage:       row.Percentage,
		}
		if row.DeletedAt.Valid {
			deleted := row.DeletedAt.Time
			o.DeletedAt = &deleted
		}
		result = append(result, o)
	}
	return result
}

// ConditionsOfSaleForOwnerships returns the conditions referencing any of
// the ownerships on either side.
func (s *Store) ConditionsOfSaleForOwnerships(ctx context.Context, ownershipIDs []string) ([]ownership.ConditionOfSale, error) {
	if len(ownershipIDs) == 0 {
		return nil, nil
	}
	var rows []ConditionOfSale
	err := s.db.WithContext(ctx).
		Where("new_ownership_id IN ? OR old_ownership_id IN ?", ownershipIDs, ownershipIDs).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load conditions of sale: %w", err)
	}

	conditions := make([]ownership.ConditionOfSale, 0, len(rows))
	for _, row := range rows {
		conditions = append(conditions, ownership.ConditionOfSale{
			ID:             row.ID,
			NewOwnershipID: row.NewOwnershipID,
			OldOwnershipID: row.OldOwnershipID,
			FulfilledAt:    row.FulfilledAt,
		})
	}
	return conditions, nil
}

// ConditionOfSale returns one condition of sale.
func (s *Store) ConditionOfSale(ctx context.Context, id string) (ownership.ConditionOfSale, error) {
	var row ConditionOfSale
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return ownership.ConditionOfSale{}, notFound(err)
	}
	return ownership.ConditionOfSale{
		ID:             row.ID,
		NewOwnershipID: row.NewOwnershipID,
		OldOwnershipID: row.OldOwnershipID,
		FulfilledAt:    row.FulfilledAt,
	}, nil
}

// SaveConditionsOfSale inserts or replaces the conditions.
func (s *Store) SaveConditionsOfSale(ctx context.Context, conditions []ownership.ConditionOfSale) error {
	for _, c := range conditions {
		row := ConditionOfSale{
			ID:             c.ID,
			NewOwnershipID: c.NewOwnershipID,
			OldOwnershipID: c.OldOwnershipID,
			FulfilledAt:    c.FulfilledAt,
		}
		if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
			return fmt.Errorf("failed to save condition of sale %s: %w", c.ID, err)
		}
	}
	return nil
}

// Owners returns the owners by id.
func (s *Store) Owners(ctx context.Context, ids []string) ([]ownership.Owner, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []Owner
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load owners: %w", err)
	}
	owners := make([]ownership.Owner, 0, len(rows))
	for _, row := range rows {
		owners = append(owners, ownership.Owner{
			ID:                     row.ID,
			Name:                   row.Name,
			Identifier:             row.Identifier,
			Email:                  row.Email,
			BypassConditionsOfSale: row.BypassConditionsOfSale,
		})
	}
	return owners, nil
}

// SaveOwners inserts or replaces the owners.
func (s *Store) SaveOwners(ctx context.Context, owners []ownership.Owner) error {
	for _, o := range owners {
		row := Owner{
			ID:                     o.ID,
			Name:                   o.Name,
			Identifier:             o.Identifier,
			Email:                  o.Email,
			BypassConditionsOfSale: o.BypassConditionsOfSale,
		}
		if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
			return fmt.Errorf("failed to save owner %s: %w", o.ID, err)
		}
	}
	return nil
}

// RegisteredSale is a stored resale with the buyers' ownerships and the
// conditions of sale it created.
type RegisteredSale struct {
	Sale             salesdata.Sale              `json:"sale"`
	Ownerships       []ownership.Ownership       `json:"ownerships"`
	ConditionsOfSale []ownership.ConditionOfSale `json:"conditions_of_sale"`
}

// RegisterSale records a resale together with the buyers' ownerships. The
// ownership percentages must sum to 100. The postal code and housing
// company come from the stored apartment. Buyers still owning another
// apartment in a regulated housing company get a condition of sale unless
// they are flagged to bypass them.
func (s *Store) RegisterSale(ctx context.Context, apartmentID string, sale salesdata.Sale, ownerships []ownership.Ownership) (RegisteredSale, error) {
	if err := ownership.ValidatePercentages(ownerships); err != nil {
		return RegisteredSale{}, err
	}

	var registered RegisteredSale
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var apartment Apartment
		if err := tx.First(&apartment, "id = ?", apartmentID).Error; err != nil {
			return notFound(err)
		}
		var company HousingCompany
		if err := tx.First(&company, "id = ?", apartment.HousingCompanyID).Error; err != nil {
			return fmt.Errorf("failed to load housing company %s: %w", apartment.HousingCompanyID, err)
		}
		if sale.PostalCode != "" && sale.PostalCode != company.PostalCode {
			return calcerr.Validation("sale.postal_code",
				"postal code %s does not match the housing company postal code %s", sale.PostalCode, company.PostalCode)
		}
		sale.PostalCode = company.PostalCode

		buyers := make([]ownership.Ownership, 0, len(ownerships))
		ownerIDs := make([]string, 0, len(ownerships))
		for _, o := range ownerships {
			o.ApartmentID = apartmentID
			o.HousingCompanyID = company.ID
			o.DeletedAt = nil
			buyers = append(buyers, o)
			ownerIDs = append(ownerIDs, o.OwnerID)
		}

		st := s.withTx(tx)
		existing, err := st.OwnershipsOfOwners(ctx, ownerIDs)
		if err != nil {
			return err
		}
		owners, err := st.Owners(ctx, ownerIDs)
		if err != nil {
			return err
		}
		byID := make(map[string]ownership.Owner, len(owners))
		for _, o := range owners {
			byID[o.ID] = o
		}
		companyIDs := []string{company.ID}
		for _, o := range existing {
			companyIDs = append(companyIDs, o.HousingCompanyID)
		}
		regulated, err := st.RegulatedHousingCompanies(ctx, companyIDs)
		if err != nil {
			return err
		}
		conditions := ownership.NewConditionsOfSale(buyers, existing, byID, func(housingCompanyID string) bool {
			return regulated[housingCompanyID]
		}, uuid.NewString)

		if err := st.SaveSale(ctx, apartmentID, sale); err != nil {
			return err
		}
		for _, o := range buyers {
			if err := st.SaveOwnership(ctx, o); err != nil {
				return err
			}
		}
		if err := st.SaveConditionsOfSale(ctx, conditions); err != nil {
			return err
		}

		registered = RegisteredSale{Sale: sale, Ownerships: buyers, ConditionsOfSale: conditions}
		return nil
	})
	if err != nil {
		return RegisteredSale{}, err
	}

	s.logger.Info("sale registered",
		zap.String("op", "store.RegisterSale"),
		zap.String("apartment_id", apartmentID),
		zap.String("purchase_date", sale.PurchaseDate.String()),
		zap.Int("ownerships", len(ownerships)),
		zap.Int("conditions_of_sale", len(registered.ConditionsOfSale)),
	)
	return registered, nil
}
