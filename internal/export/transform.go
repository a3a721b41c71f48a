package export

import (
	"math"
	"strconv"
	"strings"

	"github.com/stanstork/pricesync-api/internal/models"
	"github.com/stanstork/pricesync-api/internal/ndjson"
)

const (
	UnknownProductTitle = "Unknown"
	NoDataTitle         = "No data found"
	maxOptions          = 3
)

// Transform flattens decoded catalog rows into one ExportRow per variant.
// It never returns an empty slice: with no variants a single "No data found"
// row stands in.
func Transform(rows []models.CatalogRow, index *ndjson.ProductIndex) []models.ExportRow {
	out := make([]models.ExportRow, 0, len(rows))
	for _, row := range rows {
		if row.Kind != models.CatalogRowVariant {
			continue
		}
		title, ok := index.Title(row.ParentID)
		if !ok {
			title = UnknownProductTitle
		}
		exp := models.ExportRow{
			ProductTitle: title,
			SKU:          row.SKU,
			Price:        parsePrice(row.Price),
		}
		if row.CompareAtPrice != nil {
			exp.CompareAtPrice = parsePrice(*row.CompareAtPrice)
		}
		options := [maxOptions]string{}
		for i, opt := range row.SelectedOptions {
			if i >= maxOptions {
				break
			}
			options[i] = opt.Value
		}
		exp.Option1, exp.Option2, exp.Option3 = options[0], options[1], options[2]
		out = append(out, exp)
	}
	if len(out) == 0 {
		out = append(out, models.ExportRow{ProductTitle: NoDataTitle})
	}
	return out
}

// parsePrice returns nil for absent or unparseable amounts, never zero.
func parsePrice(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
