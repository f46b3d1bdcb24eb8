// Package ownership holds owners, their apartment ownerships and the
// conditions of sale linking two ownerships of the same owner.
package ownership

import (
	"sort"
	"time"

	"github.com/City-of-Helsinki/hitas-sub002/internal/calcerr"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Owner is a person or organisation owning apartments.
type Owner struct {
	ID                     string `json:"id"`
	Name                   string `json:"name"`
	Identifier             string `json:"identifier"`
	Email                  string `json:"email"`
	BypassConditionsOfSale bool   `json:"bypass_conditions_of_sale"`
}

// Ownership is an owner's share of one apartment. Deleted ownerships keep
// their row with DeletedAt set so they can be restored.
type Ownership struct {
	ID               string          `json:"id"`
	OwnerID          string          `json:"owner_id"`
	ApartmentID      string          `json:"apartment_id"`
	HousingCompanyID string          `json:"housing_company_id"`
	Percentage       decimal.Decimal `json:"percentage"`
	DeletedAt        *time.Time      `json:"deleted_at,omitempty"`
}

// Active reports whether the ownership is not deleted.
func (o Ownership) Active() bool {
	return o.DeletedAt == nil
}

// ConditionOfSale requires the owner of NewOwnershipID to give up
// OldOwnershipID.
type ConditionOfSale struct {
	ID             string     `json:"id"`
	NewOwnershipID string     `json:"new_ownership_id"`
	OldOwnershipID string     `json:"old_ownership_id"`
	FulfilledAt    *time.Time `json:"fulfilled_at,omitempty"`
}

// Fulfilled reports whether the condition has been met.
func (c ConditionOfSale) Fulfilled() bool {
	return c.FulfilledAt != nil
}

// ValidatePercentages checks the ownerships of one sale: each share is in
// (0, 100] and the shares sum to exactly 100.
func ValidatePercentages(ownerships []Ownership) error {
	if len(ownerships) == 0 {
		return calcerr.Validation("ownerships", "at least one ownership is required")
	}

	total := decimal.Zero
	for _, o := range ownerships {
		if o.Percentage.Sign() <= 0 || o.Percentage.GreaterThan(hundred) {
			return calcerr.Validation("ownerships.percentage",
				"ownership percentage must be greater than 0 and at most 100, got %s", o.Percentage)
		}
		total = total.Add(o.Percentage)
	}
	if !total.Equal(hundred) {
		return calcerr.Validation("ownerships.percentage", "ownership percentages must sum to 100, got %s", total)
	}
	return nil
}

// RegulationStatus reports whether a housing company is still regulated.
type RegulationStatus func(housingCompanyID string) bool

// RecomputeFulfillment derives each condition's fulfillment. A condition
// is fulfilled when either ownership is deleted or missing, or when either
// apartment's housing company is no longer regulated. Newly fulfilled
// conditions are stamped with now; an existing timestamp is kept. Only the
// conditions whose state changed are returned.
func RecomputeFulfillment(conditions []ConditionOfSale, ownerships map[string]Ownership, regulated RegulationStatus, now time.Time) []ConditionOfSale {
	var changed []ConditionOfSale
	for _, condition := range conditions {
		fulfilled := isFulfilled(condition, ownerships, regulated)
		switch {
		case fulfilled && !condition.Fulfilled():
			stamp := now
			condition.FulfilledAt = &stamp
			changed = append(changed, condition)
		case !fulfilled && condition.Fulfilled():
			condition.FulfilledAt = nil
			changed = append(changed, condition)
		}
	}
	return changed
}

func isFulfilled(condition ConditionOfSale, ownerships map[string]Ownership, regulated RegulationStatus) bool {
	for _, id := range []string{condition.NewOwnershipID, condition.OldOwnershipID} {
		o, ok := ownerships[id]
		if !ok || !o.Active() {
			return true
		}
		if !regulated(o.HousingCompanyID) {
			return true
		}
	}
	return false
}

// NewConditionsOfSale links each buyer ownership to the buyer's other active
// ownerships in regulated housing companies. Buyers flagged to bypass
// conditions of sale get none, and neither does a purchase in a company
// that is no longer regulated. Existing ownerships of the purchased
// apartment are ignored.
func NewConditionsOfSale(buyers []Ownership, existing []Ownership, owners map[string]Owner, regulated RegulationStatus, newID func() string) []ConditionOfSale {
	var conditions []ConditionOfSale
	for _, buyer := range buyers {
		if owners[buyer.OwnerID].BypassConditionsOfSale || !regulated(buyer.HousingCompanyID) {
			continue
		}
		for _, old := range existing {
			if old.OwnerID != buyer.OwnerID || old.ID == buyer.ID || old.ApartmentID == buyer.ApartmentID {
				continue
			}
			if !old.Active() || !regulated(old.HousingCompanyID) {
				continue
			}
			conditions = append(conditions, ConditionOfSale{
				ID:             newID(),
				NewOwnershipID: buyer.ID,
				OldOwnershipID: old.ID,
			})
		}
	}
	return conditions
}

// Obfuscated holds an owner's identifying fields before they were cleared.
type Obfuscated struct {
	OwnerID    string `json:"owner_id"`
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
}

// Obfuscate clears the owner's identifying fields and flags the owner to
// bypass future condition of sale checks. The previous values are returned.
func Obfuscate(owner *Owner) Obfuscated {
	previous := Obfuscated{
		OwnerID:    owner.ID,
		Name:       owner.Name,
		Identifier: owner.Identifier,
		Email:      owner.Email,
	}
	owner.Name = ""
	owner.Identifier = ""
	owner.Email = ""
	owner.BypassConditionsOfSale = true
	return previous
}

// OwnersWithoutRegulatedApartments returns, ordered by id, the owners among
// candidates whose active ownerships are all in housing companies that are
// no longer regulated. Owners without any active ownership are skipped.
func OwnersWithoutRegulatedApartments(candidates []string, ownerships []Ownership, regulated RegulationStatus) []string {
	byOwner := make(map[string][]Ownership)
	for _, o := range ownerships {
		if o.Active() {
			byOwner[o.OwnerID] = append(byOwner[o.OwnerID], o)
		}
	}

	seen := make(map[string]bool, len(candidates))
	var result []string
	for _, ownerID := range candidates {
		if seen[ownerID] {
			continue
		}
		seen[ownerID] = true

		owned := byOwner[ownerID]
		if len(owned) == 0 {
			continue
		}
		stillRegulated := false
		for _, o := range owned {
			if regulated(o.HousingCompanyID) {
				stillRegulated = true
				break
			}
		}
		if !stillRegulated {
			result = append(result, ownerID)
		}
	}
	sort.Strings(result)
	return result
}
