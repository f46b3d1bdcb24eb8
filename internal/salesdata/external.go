package salesdata

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/City-of-Helsinki/hitas-sub002/internal/calcerr"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/datetime"
	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
)

//go:embed schemas/external_sales_data.json
var externalSchemaSource []byte

const externalSchemaURL = "external_sales_data.json"

var externalSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(externalSchemaURL, bytes.NewReader(externalSchemaSource)); err != nil {
		panic(fmt.Sprintf("failed to add external sales data schema: %v", err))
	}
	schema, err := compiler.Compile(externalSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("failed to compile external sales data schema: %v", err))
	}
	return schema
}

// ExternalQuarter is one quarter of an external postal code record.
type ExternalQuarter struct {
	Quarter   string          `json:"quarter"`
	SaleCount int             `json:"sale_count"`
	Price     decimal.Decimal `json:"price"`
}

// ExternalArea is the external statistics of one postal code.
type ExternalArea struct {
	PostalCode string            `json:"postal_code"`
	Quarters   []ExternalQuarter `json:"quarters"`
}

// ExternalSalesData is the statistics document supplied by the outside
// statistical source once per calculation quarter.
type ExternalSalesData struct {
	CalculationQuarter string         `json:"calculation_quarter"`
	Quarters           []string       `json:"quarters"`
	Areas              []ExternalArea `json:"areas"`
}

// ParseExternal validates a document against the external sales data
// schema and decodes it. Quarters must be the four quarters preceding the
// calculation quarter.
func ParseExternal(body []byte) (ExternalSalesData, error) {
	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return ExternalSalesData{}, calcerr.Validation("body", "not valid JSON: %v", err)
	}
	if err := externalSchema.Validate(raw); err != nil {
		return ExternalSalesData{}, calcerr.Validation("body", "%v", err)
	}

	var data ExternalSalesData
	if err := json.Unmarshal(body, &data); err != nil {
		return ExternalSalesData{}, fmt.Errorf("failed to decode external sales data: %w", err)
	}
	if err := data.checkQuarters(); err != nil {
		return ExternalSalesData{}, err
	}
	return data, nil
}

func (e ExternalSalesData) checkQuarters() error {
	calculationQuarter, err := datetime.ParseQuarter(e.CalculationQuarter)
	if err != nil {
		return calcerr.Validation("calculation_quarter", "%v", err)
	}

	expected := make(map[string]bool, len(e.Quarters))
	q := calculationQuarter
	for i := 0; i < len(e.Quarters); i++ {
		q = q.Previous()
		expected[q.String()] = true
	}
	for _, label := range e.Quarters {
		if !expected[label] {
			return calcerr.Validation("quarters", "%s is not one of the four quarters before %s", label, e.CalculationQuarter)
		}
	}

	declared := make(map[string]bool, len(e.Quarters))
	for _, label := range e.Quarters {
		declared[label] = true
	}
	for _, area := range e.Areas {
		for _, quarter := range area.Quarters {
			if !declared[quarter.Quarter] {
				return calcerr.Validation("areas", "postal code %s has undeclared quarter %s", area.PostalCode, quarter.Quarter)
			}
		}
	}
	return nil
}

// Statistics converts the document to postal code keyed statistics.
func (e ExternalSalesData) Statistics() map[string]Quarters {
	result := make(map[string]Quarters, len(e.Areas))
	for _, area := range e.Areas {
		stats, ok := result[area.PostalCode]
		if !ok {
			stats = make(Quarters, len(area.Quarters))
			result[area.PostalCode] = stats
		}
		for _, q := range area.Quarters {
			stats[q.Quarter] = QuarterData{SaleCount: q.SaleCount, Price: q.Price}
		}
	}
	return result
}
