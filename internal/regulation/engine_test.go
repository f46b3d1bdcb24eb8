package regulation

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/hitas-sub002/internal/calcerr"
	"github.com/City-of-Helsinki/hitas-sub002/internal/indices"
	"github.com/City-of-Helsinki/hitas-sub002/internal/ownership"
	"github.com/City-of-Helsinki/hitas-sub002/internal/salesdata"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/datetime"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeStore struct {
	results    map[civil.Date]*Results
	companies  []HousingCompany
	statuses   map[string]Status
	sales      []salesdata.Sale
	external   map[string]map[string]salesdata.Quarters
	lookup     *indices.Table
	ownerships []ownership.Ownership
	conditions []ownership.ConditionOfSale
	owners     map[string]ownership.Owner
	failSave   bool
}

func (f *fakeStore) LoadResults(_ context.Context, month civil.Date) (*Results, error) {
	return f.results[month], nil
}

func (f *fakeStore) HousingCompaniesCompletedIn(_ context.Context, month civil.Date) ([]HousingCompany, error) {
	var result []HousingCompany
	for _, c := range f.companies {
		if datetime.MonthOf(c.CompletionDate) == month {
			c.Status = f.statuses[c.ID]
			result = append(result, c)
		}
	}
	return result, nil
}

func (f *fakeStore) Sales(context.Context, civil.Date, civil.Date) ([]salesdata.Sale, error) {
	return f.sales, nil
}

func (f *fakeStore) ExternalSalesData(_ context.Context, quarter string) (map[string]salesdata.Quarters, error) {
	return f.external[quarter], nil
}

func (f *fakeStore) Indices(context.Context) (indices.Lookup, error) {
	return f.lookup, nil
}

func (f *fakeStore) MarkLetterFetched(_ context.Context, month civil.Date, id string) error {
	results := f.results[month]
	if results == nil {
		return errors.New("not found")
	}
	for i := range results.Rows {
		if results.Rows[i].HousingCompanyID == id {
			results.Rows[i].LetterFetched = true
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeStore) WithinTransaction(ctx context.Context, fn func(Tx) error) error {
	return fn(f)
}

func (f *fakeStore) SaveResults(_ context.Context, results *Results) error {
	if f.failSave {
		return errors.New("disk full")
	}
	f.results[results.CalculationMonth] = results
	return nil
}

func (f *fakeStore) SetRegulationStatus(_ context.Context, ids []string, status Status) error {
	for _, id := range ids {
		f.statuses[id] = status
	}
	return nil
}

func (f *fakeStore) RegulatedHousingCompanies(_ context.Context, ids []string) (map[string]bool, error) {
	result := make(map[string]bool, len(ids))
	for _, id := range ids {
		result[id] = f.statuses[id].Regulated()
	}
	return result, nil
}

func (f *fakeStore) OwnershipsInHousingCompanies(_ context.Context, ids []string) ([]ownership.Ownership, error) {
	wanted := make(map[string]bool)
	for _, id := range ids {
		wanted[id] = true
	}
	var result []ownership.Ownership
	for _, o := range f.ownerships {
		if wanted[o.HousingCompanyID] && o.Active() {
			result = append(result, o)
		}
	}
	return result, nil
}

func (f *fakeStore) OwnershipsOfOwners(_ context.Context, ids []string) ([]ownership.Ownership, error) {
	wanted := make(map[string]bool)
	for _, id := range ids {
		wanted[id] = true
	}
	var result []ownership.Ownership
	for _, o := range f.ownerships {
		if wanted[o.OwnerID] {
			result = append(result, o)
		}
	}
	return result, nil
}

func (f *fakeStore) Ownerships(_ context.Context, ids []string) (map[string]ownership.Ownership, error) {
	result := make(map[string]ownership.Ownership)
	for _, id := range ids {
		for _, o := range f.ownerships {
			if o.ID == id {
				result[id] = o
			}
		}
	}
	return result, nil
}

func (f *fakeStore) ConditionsOfSaleForOwnerships(_ context.Context, ids []string) ([]ownership.ConditionOfSale, error) {
	wanted := make(map[string]bool)
	for _, id := range ids {
		wanted[id] = true
	}
	var result []ownership.ConditionOfSale
	for _, c := range f.conditions {
		if wanted[c.NewOwnershipID] || wanted[c.OldOwnershipID] {
			result = append(result, c)
		}
	}
	return result, nil
}

func (f *fakeStore) SaveConditionsOfSale(_ context.Context, conditions []ownership.ConditionOfSale) error {
	for _, updated := range conditions {
		for i := range f.conditions {
			if f.conditions[i].ID == updated.ID {
				f.conditions[i] = updated
			}
		}
	}
	return nil
}

func (f *fakeStore) Owners(_ context.Context, ids []string) ([]ownership.Owner, error) {
	var result []ownership.Owner
	for _, id := range ids {
		if o, ok := f.owners[id]; ok {
			result = append(result, o)
		}
	}
	return result, nil
}

func (f *fakeStore) SaveOwners(_ context.Context, owners []ownership.Owner) error {
	for _, o := range owners {
		f.owners[o.ID] = o
	}
	return nil
}

type recordingNotifier struct {
	letters []ReleaseLetter
}

func (r *recordingNotifier) PublishReleaseLetter(_ context.Context, letter ReleaseLetter) error {
	r.letters = append(r.letters, letter)
	return nil
}

func company(id, postalCode, completion, price, loans string) HousingCompany {
	return HousingCompany{
		ID:             id,
		Name:           "As Oy " + id,
		PostalCode:     postalCode,
		CompletionDate: datetime.MustParseDate(completion),
		Apartments: []Apartment{{
			ID:                     id + "-a1",
			SurfaceArea:            d("100"),
			FirstSalePurchasePrice: d(price),
			FirstSaleLoanShare:     d(loans),
		}},
	}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		results: make(map[civil.Date]*Results),
		companies: []HousingCompany{
			// 600000 / 100 m2 = 6000, adjusted by 100/50 = 12000
			company("hc-released", "00100", "1993-02-15", "500000", "100000"),
			company("hc-stays", "00200", "1993-02-01", "200000", "0"),
			company("hc-equal", "00200", "1993-02-28", "250000", "0"),
			company("hc-skipped", "00900", "1993-02-10", "300000", "0"),
			company("hc-replaced", "00910", "1993-02-10", "300000", "0"),
			company("hc-auto", "00100", "1993-02-10", "100000", "0"),
			company("hc-younger", "00100", "1993-03-01", "900000", "0"),
			company("hc-elsewhere", "00300", "2005-01-01", "100000", "0"),
		},
		statuses: map[string]Status{
			"hc-released":  StatusRegulated,
			"hc-stays":     StatusRegulated,
			"hc-equal":     StatusRegulated,
			"hc-skipped":   StatusRegulated,
			"hc-replaced":  StatusRegulated,
			"hc-auto":      StatusReleasedByPlotDepartment,
			"hc-younger":   StatusRegulated,
			"hc-elsewhere": StatusRegulated,
		},
		external: map[string]map[string]salesdata.Quarters{
			"2023Q1": {
				"00100": {"2022Q3": {SaleCount: 10, Price: d("4900")}},
				"00200": {"2022Q4": {SaleCount: 10, Price: d("3000")}},
			},
		},
		lookup: indices.NewTable(
			indices.Entry{Kind: indices.ConstructionPrice2005, Month: datetime.MustParseDate("1993-02-01"), Value: d("50")},
			indices.Entry{Kind: indices.ConstructionPrice2005, Month: datetime.MustParseDate("2023-02-01"), Value: d("100")},
			indices.Entry{Kind: indices.SurfaceAreaPriceCeiling, Month: datetime.MustParseDate("2023-02-01"), Value: d("5000")},
		),
		ownerships: []ownership.Ownership{
			{ID: "own1", OwnerID: "o1", HousingCompanyID: "hc-released", Percentage: d("100")},
			{ID: "own2", OwnerID: "o1", HousingCompanyID: "hc-elsewhere", Percentage: d("100")},
			{ID: "own3", OwnerID: "o2", HousingCompanyID: "hc-released", Percentage: d("100")},
			{ID: "own4", OwnerID: "o3", HousingCompanyID: "hc-stays", Percentage: d("100")},
			{ID: "own5", OwnerID: "o3", HousingCompanyID: "hc-stays", Percentage: d("100")},
		},
		conditions: []ownership.ConditionOfSale{
			{ID: "c1", NewOwnershipID: "own2", OldOwnershipID: "own1"},
			{ID: "c2", NewOwnershipID: "own4", OldOwnershipID: "own5"},
		},
		owners: map[string]ownership.Owner{
			"o1": {ID: "o1", Name: "Anna", Identifier: "A-1", Email: "anna@example.com"},
			"o2": {ID: "o2", Name: "Bertil", Identifier: "B-2", Email: "bertil@example.com"},
			"o3": {ID: "o3", Name: "Cecilia", Identifier: "C-3", Email: "cecilia@example.com"},
		},
	}
}

func ids(rows []Row) []string {
	var result []string
	for _, r := range rows {
		result = append(result, r.HousingCompanyID)
	}
	sort.Strings(result)
	return result
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRun(t *testing.T) {
	store := newFakeStore()
	notifier := &recordingNotifier{}
	now := time.Date(2023, 2, 1, 6, 0, 0, 0, time.UTC)
	engine := NewEngine(nil, store, Options{
		ReplacementPostalCodes: map[string]string{"00910": "00100"},
		Notifier:               notifier,
		Now:                    func() time.Time { return now },
	})

	report, err := engine.Run(context.Background(), datetime.MustParseDate("2023-02-01"))
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	if got := ids(report.ReleasedFromRegulation); !equalIDs(got, []string{"hc-equal", "hc-released", "hc-replaced"}) {
		t.Errorf("ReleasedFromRegulation = %v", got)
	}
	if got := ids(report.StaysRegulated); !equalIDs(got, []string{"hc-stays"}) {
		t.Errorf("StaysRegulated = %v", got)
	}
	if got := ids(report.Skipped); !equalIDs(got, []string{"hc-skipped"}) {
		t.Errorf("Skipped = %v", got)
	}
	if got := ids(report.AutomaticallyReleased); !equalIDs(got, []string{"hc-auto"}) {
		t.Errorf("AutomaticallyReleased = %v", got)
	}

	persisted := store.results[datetime.MustParseDate("2023-02-01")]
	if persisted == nil {
		t.Fatal("expected results to be persisted")
	}
	if persisted.RegulationMonth != datetime.MustParseDate("1993-02-01") {
		t.Errorf("RegulationMonth = %s", persisted.RegulationMonth)
	}
	for _, row := range persisted.Rows {
		switch row.HousingCompanyID {
		case "hc-released":
			if !row.UnadjustedAveragePricePerSquareMeter.Equal(d("6000")) ||
				!row.AdjustedAveragePricePerSquareMeter.Equal(d("12000")) ||
				!row.ComparisonValue.Equal(d("5000")) {
				t.Errorf("unexpected released row %+v", row)
			}
		case "hc-replaced":
			if row.ReplacementPostalCode != "00100" {
				t.Errorf("ReplacementPostalCode = %q, expected 00100", row.ReplacementPostalCode)
			}
		case "hc-equal":
			if !row.AdjustedAveragePricePerSquareMeter.Equal(row.ComparisonValue) {
				t.Errorf("expected adjusted price equal to comparison, got %+v", row)
			}
		}
	}

	if store.statuses["hc-released"] != StatusReleasedByHitas || store.statuses["hc-stays"] != StatusRegulated {
		t.Errorf("unexpected statuses %v", store.statuses)
	}
	if store.statuses["hc-auto"] != StatusReleasedByPlotDepartment {
		t.Errorf("automatically released status changed to %s", store.statuses["hc-auto"])
	}

	if c := store.conditions[0]; c.FulfilledAt == nil || !c.FulfilledAt.Equal(now) {
		t.Errorf("condition c1 should be fulfilled, got %+v", c)
	}
	if store.conditions[1].Fulfilled() {
		t.Errorf("condition c2 should stay open")
	}

	if len(report.ObfuscatedOwners) != 1 || report.ObfuscatedOwners[0].Name != "Bertil" {
		t.Fatalf("ObfuscatedOwners = %+v, expected Bertil", report.ObfuscatedOwners)
	}
	if o := store.owners["o2"]; o.Name != "" || !o.BypassConditionsOfSale {
		t.Errorf("owner o2 not obfuscated: %+v", o)
	}
	if o := store.owners["o1"]; o.Name != "Anna" {
		t.Errorf("owner o1 still owns a regulated apartment and must keep data: %+v", o)
	}

	if len(notifier.letters) != 4 {
		t.Errorf("expected 4 release letters, got %d", len(notifier.letters))
	}
}

func TestRunIsIdempotentForPersistedMonth(t *testing.T) {
	store := newFakeStore()
	notifier := &recordingNotifier{}
	engine := NewEngine(nil, store, Options{Notifier: notifier})
	date := datetime.MustParseDate("2023-02-01")

	first, err := engine.Run(context.Background(), date)
	if err != nil {
		t.Fatalf("first Run() unexpected error: %v", err)
	}
	// Without replacement postal codes hc-replaced is skipped, leaving three
	// released companies.
	lettersAfterFirstRun := len(notifier.letters)
	if lettersAfterFirstRun != 3 {
		t.Fatalf("expected 3 release letters after the first run, got %d", lettersAfterFirstRun)
	}

	// Decisions must not be recomputed even if inputs change.
	store.lookup.Set(indices.SurfaceAreaPriceCeiling, date, d("50000"))
	store.conditions[0].FulfilledAt = nil

	second, err := engine.Run(context.Background(), datetime.MustParseDate("2023-02-20"))
	if err != nil {
		t.Fatalf("second Run() unexpected error: %v", err)
	}

	if !equalIDs(ids(first.ReleasedFromRegulation), ids(second.ReleasedFromRegulation)) {
		t.Errorf("decisions changed between runs: %v vs %v",
			ids(first.ReleasedFromRegulation), ids(second.ReleasedFromRegulation))
	}
	if len(second.ObfuscatedOwners) != 0 {
		t.Errorf("owners already obfuscated, got %+v", second.ObfuscatedOwners)
	}
	if !store.conditions[0].Fulfilled() {
		t.Error("side effects should be re-applied on re-run")
	}
	if len(notifier.letters) != lettersAfterFirstRun {
		t.Errorf("release letters should only be sent once, got %d", len(notifier.letters))
	}
}

func TestRunMissingCeiling(t *testing.T) {
	store := newFakeStore()
	store.lookup = indices.NewTable()
	engine := NewEngine(nil, store, Options{})

	_, err := engine.Run(context.Background(), datetime.MustParseDate("2023-02-01"))
	if !errors.Is(err, calcerr.ErrIndexMissing) {
		t.Errorf("expected missing index error, got %v", err)
	}
	if len(store.results) != 0 {
		t.Error("nothing should be persisted on failure")
	}
}

func TestRunFailedSaveAppliesNothing(t *testing.T) {
	store := newFakeStore()
	store.failSave = true
	engine := NewEngine(nil, store, Options{})

	if _, err := engine.Run(context.Background(), datetime.MustParseDate("2023-02-01")); err == nil {
		t.Fatal("expected error")
	}
	if store.statuses["hc-released"] != StatusRegulated {
		t.Error("status must not change when saving results fails")
	}
}

func TestMarkLetterFetched(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(nil, store, Options{})
	if _, err := engine.Run(context.Background(), datetime.MustParseDate("2023-02-01")); err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	if err := engine.MarkLetterFetched(context.Background(), datetime.MustParseDate("2023-02-15"), "hc-released"); err != nil {
		t.Fatalf("MarkLetterFetched() unexpected error: %v", err)
	}
	results, err := engine.Results(context.Background(), datetime.MustParseDate("2023-02-01"))
	if err != nil || results == nil {
		t.Fatalf("Results() = %v, %v", results, err)
	}
	for _, row := range results.Rows {
		if row.HousingCompanyID == "hc-released" && !row.LetterFetched {
			t.Error("expected letter fetched flag")
		}
	}
}

func TestStatusRegulated(t *testing.T) {
	if !StatusRegulated.Regulated() || !Status("").Regulated() {
		t.Error("regulated statuses")
	}
	if StatusReleasedByHitas.Regulated() || StatusReleasedByCourt.Regulated() {
		t.Error("released statuses")
	}
}
