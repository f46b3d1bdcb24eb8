package server

import (
	"bytes"
	"fmt"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/hitas-sub002/internal/calcerr"
	"github.com/City-of-Helsinki/hitas-sub002/internal/improvements"
	"github.com/City-of-Helsinki/hitas-sub002/internal/indices"
	"github.com/City-of-Helsinki/hitas-sub002/internal/maxprice"
	"github.com/City-of-Helsinki/hitas-sub002/internal/ownership"
	"github.com/City-of-Helsinki/hitas-sub002/internal/regulation"
	"github.com/City-of-Helsinki/hitas-sub002/internal/salesdata"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/datetime"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/interest"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/validation"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Improvement rule names accepted by the improvements endpoint.
const (
	RuleHousingCompany2011Onwards              = "housing_company_2011_onwards"
	RuleHousingCompanyPre2011                  = "housing_company_pre_2011"
	RuleApartmentPre2011ConstructionPriceIndex = "apartment_pre_2011_construction_price_index"
	RuleApartmentPre2011MarketPriceIndex       = "apartment_pre_2011_market_price_index"
)

type improvementRule struct {
	calculate    func(improvements.Params, []improvements.Data) (improvements.Result, error)
	defaultIndex indices.Kind
}

var improvementRules = map[string]improvementRule{
	RuleHousingCompany2011Onwards:              {calculate: improvements.HousingCompany2011Onwards},
	RuleHousingCompanyPre2011:                  {calculate: improvements.HousingCompanyPre2011},
	RuleApartmentPre2011ConstructionPriceIndex: {calculate: improvements.ApartmentPre2011ConstructionPriceIndex, defaultIndex: indices.ConstructionPrice},
	RuleApartmentPre2011MarketPriceIndex:       {calculate: improvements.ApartmentPre2011MarketPriceIndex, defaultIndex: indices.MarketPrice},
}

type indicesRequest struct {
	Entries []indices.Entry `json:"entries"`
}

type constructionInterestRequest struct {
	CompletionDate   civil.Date         `json:"completion_date"`
	TransferPrice    decimal.Decimal    `json:"transfer_price"`
	ConstructionLoan decimal.Decimal    `json:"construction_loan"`
	Payments         []interest.Payment `json:"payments"`
}

type improvementsRequest struct {
	Rule                           string              `json:"rule"`
	Index                          string              `json:"index,omitempty"`
	CalculationDate                civil.Date          `json:"calculation_date"`
	HousingCompanySurfaceArea      decimal.Decimal     `json:"housing_company_surface_area"`
	ApartmentSurfaceArea           decimal.Decimal     `json:"apartment_surface_area"`
	HousingCompanyAcquisitionPrice decimal.Decimal     `json:"housing_company_acquisition_price"`
	ApartmentAcquisitionPrice      decimal.Decimal     `json:"apartment_acquisition_price"`
	Improvements                   []improvements.Data `json:"improvements"`
}

type maxPriceRequest struct {
	maxprice.Request
	Confirm bool `json:"confirm"`
}

type regulationRunRequest struct {
	CalculationDate *civil.Date `json:"calculation_date,omitempty"`
}

type regulationResponse struct {
	Report  regulation.Report   `json:"report"`
	Results *regulation.Results `json:"results,omitempty"`
}

type saleRequest struct {
	Sale       salesdata.Sale        `json:"sale"`
	Ownerships []ownership.Ownership `json:"ownerships"`
}

type conditionsOfSaleResponse struct {
	ConditionsOfSale []ownership.ConditionOfSale `json:"conditions_of_sale"`
}

func (h *handler) handleSaveIndices(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleSaveIndices"

	var req indicesRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.fail(w, op, err)
		return
	}
	if len(req.Entries) == 0 {
		h.fail(w, op, calcerr.Validation("entries", "at least one entry is required"))
		return
	}

	entries := make([]indices.Entry, 0, len(req.Entries))
	for i, entry := range req.Entries {
		kind, err := indices.ParseKind(string(entry.Kind))
		if err != nil {
			h.fail(w, op, calcerr.Validation(fmt.Sprintf("entries[%d].kind", i), "%v", err))
			return
		}
		if !entry.Value.IsPositive() {
			h.fail(w, op, calcerr.Validation(fmt.Sprintf("entries[%d].value", i), "must be positive"))
			return
		}
		entries = append(entries, indices.Entry{Kind: kind, Month: datetime.MonthOf(entry.Month), Value: entry.Value})
	}

	if err := h.store.SaveIndices(r.Context(), entries); err != nil {
		h.fail(w, op, err)
		return
	}
	h.logger.Info("indices saved",
		zap.String("op", op),
		zap.Int("count", len(entries)),
	)
	h.writeJSON(w, http.StatusOK, map[string]int{"saved": len(entries)})
}

func (h *handler) handleConstructionInterest(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleConstructionInterest"

	var req constructionInterestRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.fail(w, op, err)
		return
	}
	if !req.CompletionDate.IsValid() {
		h.fail(w, op, calcerr.Validation("completion_date", "is required"))
		return
	}

	result := h.interest.ForApartment(req.CompletionDate, req.TransferPrice, req.ConstructionLoan, req.Payments)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *handler) handleImprovements(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleImprovements"

	var req improvementsRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.fail(w, op, err)
		return
	}

	rule, ok := improvementRules[req.Rule]
	if !ok {
		h.fail(w, op, calcerr.Validation("rule", "unknown improvement rule %q", req.Rule))
		return
	}
	kind := rule.defaultIndex
	if req.Index != "" {
		parsed, err := indices.ParseKind(req.Index)
		if err != nil {
			h.fail(w, op, calcerr.Validation("index", "%v", err))
			return
		}
		kind = parsed
	}
	if kind == "" {
		h.fail(w, op, calcerr.Validation("index", "is required for rule %s", req.Rule))
		return
	}
	if len(req.Improvements) > 0 && !req.CalculationDate.IsValid() {
		h.fail(w, op, calcerr.Validation("calculation_date", "is required"))
		return
	}

	table, err := h.store.LoadIndexTable(r.Context())
	if err != nil {
		h.fail(w, op, err)
		return
	}

	result, err := rule.calculate(improvements.Params{
		Lookup:                         table,
		Index:                          kind,
		CalculationDate:                req.CalculationDate,
		HousingCompanySurfaceArea:      req.HousingCompanySurfaceArea,
		ApartmentSurfaceArea:           req.ApartmentSurfaceArea,
		HousingCompanyAcquisitionPrice: req.HousingCompanyAcquisitionPrice,
		ApartmentAcquisitionPrice:      req.ApartmentAcquisitionPrice,
	}, req.Improvements)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *handler) handleMaxPrice(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleMaxPrice"

	var req maxPriceRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.fail(w, op, err)
		return
	}

	table, err := h.store.LoadIndexTable(r.Context())
	if err != nil {
		h.fail(w, op, err)
		return
	}

	calculation, err := h.maxPrice.Calculate(table, req.Request)
	if err != nil {
		h.fail(w, op, err)
		return
	}

	status := http.StatusOK
	if req.Confirm {
		if err := h.store.SaveCalculation(r.Context(), calculation); err != nil {
			h.fail(w, op, err)
			return
		}
		status = http.StatusCreated
	}
	h.writeJSON(w, status, calculation)
}

func (h *handler) handleGetMaxPrice(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleGetMaxPrice"

	calculation, err := h.store.LoadCalculation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, calculation)
}

func (h *handler) handleRegulationRun(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleRegulationRun"

	var req regulationRunRequest
	body, err := h.readBody(w, r)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := unmarshalBody(body, &req); err != nil {
			h.fail(w, op, err)
			return
		}
	}

	calculationDate := h.today()
	if req.CalculationDate != nil {
		calculationDate = *req.CalculationDate
	}

	report, err := h.engine.Run(r.Context(), calculationDate)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, regulationResponse{Report: report})
}

func (h *handler) handleRegulationResults(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleRegulationResults"

	month, err := datetime.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		h.fail(w, op, calcerr.Validation("month", "%v", err))
		return
	}

	results, err := h.engine.Results(r.Context(), month)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	if results == nil {
		h.respondError(w, http.StatusNotFound, fmt.Sprintf("no regulation results for %s", datetime.FormatMonth(month)))
		return
	}
	h.writeJSON(w, http.StatusOK, regulationResponse{Report: regulation.NewReport(results), Results: results})
}

func (h *handler) handleLetterFetched(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleLetterFetched"

	month, err := datetime.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		h.fail(w, op, calcerr.Validation("month", "%v", err))
		return
	}
	if err := h.engine.MarkLetterFetched(r.Context(), month, chi.URLParam(r, "companyID")); err != nil {
		h.fail(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleExternalSalesData(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleExternalSalesData"

	body, err := h.readBody(w, r)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	data, err := salesdata.ParseExternal(body)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	if err := h.store.SaveExternalSalesData(r.Context(), data); err != nil {
		h.fail(w, op, err)
		return
	}
	h.logger.Info("external sales data imported",
		zap.String("op", op),
		zap.String("calculation_quarter", data.CalculationQuarter),
		zap.Int("areas", len(data.Areas)),
	)
	h.writeJSON(w, http.StatusCreated, data)
}

func (h *handler) handleRegisterSale(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleRegisterSale"

	var req saleRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.fail(w, op, err)
		return
	}
	if !req.Sale.PurchaseDate.IsValid() {
		h.fail(w, op, calcerr.Validation("sale.purchase_date", "is required"))
		return
	}
	if !req.Sale.SurfaceArea.IsPositive() {
		h.fail(w, op, calcerr.Validation("sale.surface_area", "must be positive"))
		return
	}
	// The postal code is taken from the apartment's housing company; a given
	// one must match it.
	if req.Sale.PostalCode != "" {
		if err := validation.ValidatePostalCode(req.Sale.PostalCode); err != nil {
			h.fail(w, op, calcerr.Validation("sale.postal_code", "%v", err))
			return
		}
	}

	registered, err := h.store.RegisterSale(r.Context(), chi.URLParam(r, "id"), req.Sale, req.Ownerships)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, registered)
}

func (h *handler) handleDeleteOwnership(w http.ResponseWriter, r *http.Request) {
	conditions, err := h.store.DeleteOwnership(r.Context(), chi.URLParam(r, "id"), h.now())
	if err != nil {
		h.fail(w, "server.handleDeleteOwnership", err)
		return
	}
	h.writeJSON(w, http.StatusOK, conditionsOfSaleResponse{ConditionsOfSale: conditions})
}

func (h *handler) handleRestoreOwnership(w http.ResponseWriter, r *http.Request) {
	conditions, err := h.store.RestoreOwnership(r.Context(), chi.URLParam(r, "id"), h.now())
	if err != nil {
		h.fail(w, "server.handleRestoreOwnership", err)
		return
	}
	h.writeJSON(w, http.StatusOK, conditionsOfSaleResponse{ConditionsOfSale: conditions})
}
