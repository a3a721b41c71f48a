package models

import "strings"

const (
	ColumnProductTitle   = "Product Title"
	ColumnSKU            = "SKU"
	ColumnOption1        = "Option1 Value"
	ColumnOption2        = "Option2 Value"
	ColumnOption3        = "Option3 Value"
	ColumnPrice          = "Price"
	ColumnCompareAtPrice = "CompareAt Price"
	ColumnErrorReason    = "Error Reason"
	ColumnReason         = "Reason"
)

// ExportColumns is the header row of an exported price sheet.
var ExportColumns = []string{
	ColumnProductTitle,
	ColumnSKU,
	ColumnOption1,
	ColumnOption2,
	ColumnOption3,
	ColumnPrice,
	ColumnCompareAtPrice,
}

// Cell is a single (column, raw value) pair of an uploaded row.
type Cell struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// ImportRow keeps every uploaded cell in declared column order.
type ImportRow struct {
	Cells []Cell `json:"cells"`
}

// NewImportRow builds a row from a header list and values aligned to it.
func NewImportRow(headers []string, values []string) ImportRow {
	row := ImportRow{Cells: make([]Cell, 0, len(headers))}
	for i, header := range headers {
		value := ""
		if i < len(values) {
			value = values[i]
		}
		row.Cells = append(row.Cells, Cell{Column: header, Value: value})
	}
	return row
}

// Get returns the raw value of the first cell named column.
func (r ImportRow) Get(column string) (string, bool) {
	for _, cell := range r.Cells {
		if cell.Column == column {
			return cell.Value, true
		}
	}
	return "", false
}

func (r ImportRow) SKU() string {
	v, _ := r.Get(ColumnSKU)
	return v
}

func (r ImportRow) Price() (string, bool) {
	return r.Get(ColumnPrice)
}

func (r ImportRow) CompareAtPrice() (string, bool) {
	return r.Get(ColumnCompareAtPrice)
}

// Normalize lays the row out on columns, filling missing cells with "" and
// appending extra (column, value) pairs.
func (r ImportRow) Normalize(columns []string, extra ...Cell) ImportRow {
	out := ImportRow{Cells: make([]Cell, 0, len(columns)+len(extra))}
	for _, column := range columns {
		value, _ := r.Get(column)
		out.Cells = append(out.Cells, Cell{Column: column, Value: value})
	}
	out.Cells = append(out.Cells, extra...)
	return out
}

// NormalizeSKU is the case-insensitive catalog key for a SKU.
func NormalizeSKU(sku string) string {
	return strings.ToLower(strings.TrimSpace(sku))
}

type OutcomeKind string

const (
	OutcomeUpdated OutcomeKind = "updated"
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeFailed  OutcomeKind = "failed"
)

const (
	ReasonInvalidPrice     = "Invalid Price value"
	ReasonInvalidCompareAt = "Invalid CompareAt Price value"
	ReasonDuplicateSKU     = "Duplicate SKU in file"
	ReasonVariantNotFound  = "Variant not found"
	ReasonPricesMatch      = "Prices already match"
)

// ReconciliationOutcome is the verdict for one uploaded row.
type ReconciliationOutcome struct {
	Kind     OutcomeKind
	SKU      string
	Reason   string
	Row      ImportRow
	Mutation *VariantMutation
}

// NullablePrice distinguishes "leave untouched" (Set=false) from an explicit
// clear (Set=true, Value=nil) and a new amount.
type NullablePrice struct {
	Set   bool
	Value *string
}

// VariantMutation holds only the fields that differ from the catalog.
type VariantMutation struct {
	VariantID      string
	ProductID      string
	Price          *string
	CompareAtPrice NullablePrice
}

// Input renders the mutation as a ProductVariantsBulkInput object.
func (m VariantMutation) Input() map[string]any {
	input := map[string]any{"id": m.VariantID}
	if m.Price != nil {
		input["price"] = *m.Price
	}
	if m.CompareAtPrice.Set {
		if m.CompareAtPrice.Value == nil {
			input["compareAtPrice"] = nil
		} else {
			input["compareAtPrice"] = *m.CompareAtPrice.Value
		}
	}
	return input
}

// ImportResult is the structured, always-returned summary of an import run.
type ImportResult struct {
	Total               int         `json:"total"`
	Updated             int         `json:"updated"`
	Skipped             int         `json:"skipped"`
	Failed              int         `json:"failed"`
	Errors              []string    `json:"errors"`
	FailedRows          []ImportRow `json:"failedRows"`
	SkippedRows         []ImportRow `json:"skippedRows"`
	BulkOperationID     string      `json:"bulkOperationId,omitempty"`
	ExpectedUpdateCount int         `json:"expectedUpdateCount,omitempty"`
	PriceUpdates        int         `json:"priceUpdates"`
	CompareAtUpdates    int         `json:"compareAtUpdates"`
}
