// Package reconcile diffs uploaded price rows against the live catalog.
package reconcile

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/stanstork/pricesync-api/internal/models"
)

const clearSentinel = "null"

// Result holds one outcome per considered row, in input order, plus the
// minimal mutations and the metered counts they imply.
type Result struct {
	Outcomes         []models.ReconciliationOutcome
	Mutations        []models.VariantMutation
	PriceUpdates     int
	CompareAtUpdates int
	Errors           []string
}

// Count returns the number of outcomes of kind.
func (r Result) Count(kind models.OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Summary renders the result as the import summary for total uploaded rows.
func (r Result) Summary(total int) models.ImportResult {
	summary := models.ImportResult{
		Total:            total,
		Errors:           append([]string{}, r.Errors...),
		FailedRows:       []models.ImportRow{},
		SkippedRows:      []models.ImportRow{},
		PriceUpdates:     r.PriceUpdates,
		CompareAtUpdates: r.CompareAtUpdates,
	}
	for _, o := range r.Outcomes {
		switch o.Kind {
		case models.OutcomeFailed:
			summary.Failed++
			summary.FailedRows = append(summary.FailedRows, o.Row)
		case models.OutcomeSkipped:
			summary.Skipped++
			summary.SkippedRows = append(summary.SkippedRows, o.Row)
		}
	}
	return summary
}

// Reconcile classifies every row against snapshot. columns fixes the column
// order of the failed/skipped tables; when empty, the union of the rows'
// columns in first-seen order is used.
func Reconcile(rows []models.ImportRow, columns []string, snapshot models.CatalogSnapshot) Result {
	if len(columns) == 0 {
		columns = columnUnion(rows)
	}
	var (
		res  Result
		seen = make(map[string]struct{}, len(rows))
	)

	fail := func(row models.ImportRow, sku, reason, message string) {
		res.Errors = append(res.Errors, message)
		res.Outcomes = append(res.Outcomes, models.ReconciliationOutcome{
			Kind:   models.OutcomeFailed,
			SKU:    sku,
			Reason: reason,
			Row:    row.Normalize(columns, models.Cell{Column: models.ColumnErrorReason, Value: reason}),
		})
	}

	for _, row := range rows {
		sku := strings.TrimSpace(row.SKU())
		if sku == "" || sku == models.ColumnSKU {
			continue
		}
		key := models.NormalizeSKU(sku)

		priceRaw, _ := row.Price()
		newPrice, ok := parseAmount(priceRaw)
		if !ok {
			fail(row, sku, models.ReasonInvalidPrice, fmt.Sprintf("Skipped SKU %s: %s '%s'", sku, models.ReasonInvalidPrice, priceRaw))
			continue
		}

		compareAtRaw, _ := row.CompareAtPrice()
		clearCompareAt := strings.EqualFold(strings.TrimSpace(compareAtRaw), clearSentinel)
		var newCompareAt *float64
		if !clearCompareAt {
			newCompareAt, ok = parseAmount(compareAtRaw)
			if !ok {
				fail(row, sku, models.ReasonInvalidCompareAt, fmt.Sprintf("Skipped SKU %s: %s '%s'", sku, models.ReasonInvalidCompareAt, compareAtRaw))
				continue
			}
		}

		if _, dup := seen[key]; dup {
			fail(row, sku, models.ReasonDuplicateSKU, fmt.Sprintf("Skipped SKU %s: %s", sku, models.ReasonDuplicateSKU))
			continue
		}
		seen[key] = struct{}{}

		entry, found := snapshot[key]
		if !found {
			fail(row, sku, models.ReasonVariantNotFound, fmt.Sprintf("%s for SKU: %s", models.ReasonVariantNotFound, sku))
			continue
		}

		mutation, changed := diff(entry, newPrice, newCompareAt, clearCompareAt)
		if !changed {
			res.Outcomes = append(res.Outcomes, models.ReconciliationOutcome{
				Kind:   models.OutcomeSkipped,
				SKU:    sku,
				Reason: models.ReasonPricesMatch,
				Row:    row.Normalize(columns, models.Cell{Column: models.ColumnReason, Value: models.ReasonPricesMatch}),
			})
			continue
		}

		if mutation.Price != nil {
			res.PriceUpdates++
		}
		if mutation.CompareAtPrice.Set {
			res.CompareAtUpdates++
		}
		res.Mutations = append(res.Mutations, mutation)
		res.Outcomes = append(res.Outcomes, models.ReconciliationOutcome{
			Kind: models.OutcomeUpdated,
			SKU:  sku,
			Row:  row.Normalize(columns),
		})
	}

	j := 0
	for i := range res.Outcomes {
		if res.Outcomes[i].Kind == models.OutcomeUpdated {
			res.Outcomes[i].Mutation = &res.Mutations[j]
			j++
		}
	}
	return res
}

func diff(entry models.SnapshotEntry, newPrice, newCompareAt *float64, clearCompareAt bool) (models.VariantMutation, bool) {
	m := models.VariantMutation{VariantID: entry.VariantID, ProductID: entry.ProductID}
	changed := false

	if newPrice != nil && *newPrice != entry.Price {
		s := FormatAmount(*newPrice)
		m.Price = &s
		changed = true
	}

	switch {
	case clearCompareAt:
		if entry.CompareAtPrice != nil {
			m.CompareAtPrice = models.NullablePrice{Set: true}
			changed = true
		}
	case newCompareAt != nil:
		if entry.CompareAtPrice == nil || *entry.CompareAtPrice != *newCompareAt {
			s := FormatAmount(*newCompareAt)
			m.CompareAtPrice = models.NullablePrice{Set: true, Value: &s}
			changed = true
		}
	}
	return m, changed
}

// parseAmount reads an optional money cell. Blank means unspecified (nil, true);
// anything that is not a finite plain decimal is rejected, including the hex
// floats and digit separators strconv would otherwise accept.
func parseAmount(raw string) (*float64, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, true
	}
	if strings.ContainsAny(trimmed, "xX_") {
		return nil, false
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil, false
	}
	return &v, true
}

// FormatAmount is the shortest decimal text that parses back to v.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func columnUnion(rows []models.ImportRow) []string {
	seen := make(map[string]struct{})
	var columns []string
	for _, row := range rows {
		for _, cell := range row.Cells {
			if _, ok := seen[cell.Column]; ok {
				continue
			}
			seen[cell.Column] = struct{}{}
			columns = append(columns, cell.Column)
		}
	}
	return columns
}
