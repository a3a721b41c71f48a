package models

// SelectedOption is one name/value pair of a variant's option selection.
type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type CatalogRowKind int

const (
	CatalogRowProduct CatalogRowKind = iota + 1
	CatalogRowVariant
)

// CatalogRow is one decoded NDJSON record of a catalog export.
// Product rows carry ID and Title; variant rows carry the remaining fields.
type CatalogRow struct {
	Kind            CatalogRowKind
	ID              string
	ParentID        string
	Title           string
	SKU             string
	SelectedOptions []SelectedOption
	Price           string
	CompareAtPrice  *string
}

// ExportRow is one flat spreadsheet row, one per variant.
type ExportRow struct {
	ProductTitle   string   `json:"product_title"`
	SKU            string   `json:"sku"`
	Option1        string   `json:"option1"`
	Option2        string   `json:"option2"`
	Option3        string   `json:"option3"`
	Price          *float64 `json:"price"`
	CompareAtPrice *float64 `json:"compare_at_price"`
}

// SnapshotEntry is the live catalog state of one variant at import time.
type SnapshotEntry struct {
	VariantID      string
	ProductID      string
	Price          float64
	CompareAtPrice *float64
}

// CatalogSnapshot maps normalized SKU to the variant state.
type CatalogSnapshot map[string]SnapshotEntry
