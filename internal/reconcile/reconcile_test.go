package reconcile

import (
	"testing"

	"github.com/stanstork/pricesync-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var headers = []string{"Product Title", "SKU", "Price", "CompareAt Price"}

func row(sku, price, compareAt string) models.ImportRow {
	return models.NewImportRow(headers, []string{"Tee", sku, price, compareAt})
}

func amount(v float64) *float64 { return &v }

func snapshot() models.CatalogSnapshot {
	return models.CatalogSnapshot{
		"a": {VariantID: "v-a", ProductID: "p-1", Price: 10},
		"b": {VariantID: "v-b", ProductID: "p-1", Price: 20, CompareAtPrice: amount(25)},
		"x": {VariantID: "v-x", ProductID: "p-2", Price: 5, CompareAtPrice: amount(15)},
		"y": {VariantID: "v-y", ProductID: "p-2", Price: 5},
	}
}

func TestReconcileClassifiesRows(t *testing.T) {
	rows := []models.ImportRow{
		row("A", "12.5", ""),
		row("B", "20", "25.00"),
		row("C", "1", ""),
		row("X", "abc", ""),
		row("Y", "", "zzz"),
		row("", "1", ""),
		row("SKU", "Price", "CompareAt Price"),
	}

	res := Reconcile(rows, headers, snapshot())

	require.Len(t, res.Outcomes, 5)
	assert.Equal(t, models.OutcomeUpdated, res.Outcomes[0].Kind)
	assert.Equal(t, models.OutcomeSkipped, res.Outcomes[1].Kind)
	assert.Equal(t, models.ReasonPricesMatch, res.Outcomes[1].Reason)
	assert.Equal(t, models.ReasonVariantNotFound, res.Outcomes[2].Reason)
	assert.Equal(t, models.ReasonInvalidPrice, res.Outcomes[3].Reason)
	assert.Equal(t, models.ReasonInvalidCompareAt, res.Outcomes[4].Reason)

	assert.Equal(t, []string{
		"Variant not found for SKU: C",
		"Skipped SKU X: Invalid Price value 'abc'",
		"Skipped SKU Y: Invalid CompareAt Price value 'zzz'",
	}, res.Errors)

	require.Len(t, res.Mutations, 1)
	m := res.Mutations[0]
	assert.Equal(t, "v-a", m.VariantID)
	assert.Equal(t, "p-1", m.ProductID)
	require.NotNil(t, m.Price)
	assert.Equal(t, "12.5", *m.Price)
	assert.False(t, m.CompareAtPrice.Set)
	assert.Same(t, &res.Mutations[0], res.Outcomes[0].Mutation)
	assert.Equal(t, 1, res.PriceUpdates)
	assert.Equal(t, 0, res.CompareAtUpdates)
}

func TestOutcomeCountsMatchRowsWithSKU(t *testing.T) {
	rows := []models.ImportRow{
		row("A", "11", ""), row("a", "12", ""), row("", "", ""), row("B", "bad", ""),
		row("Y", "5", ""), row("missing", "1", ""), row("  ", "1", ""),
	}
	res := Reconcile(rows, headers, snapshot())

	total := res.Count(models.OutcomeUpdated) + res.Count(models.OutcomeSkipped) + res.Count(models.OutcomeFailed)
	assert.Equal(t, 5, total)
}

func TestDuplicateSKUIsCaseInsensitive(t *testing.T) {
	res := Reconcile([]models.ImportRow{row("A", "10", ""), row("a", "20", "")}, headers, snapshot())

	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, models.OutcomeSkipped, res.Outcomes[0].Kind)
	assert.Equal(t, models.OutcomeFailed, res.Outcomes[1].Kind)
	assert.Equal(t, models.ReasonDuplicateSKU, res.Outcomes[1].Reason)
	assert.Equal(t, []string{"Skipped SKU a: Duplicate SKU in file"}, res.Errors)
	assert.Empty(t, res.Mutations)
}

func TestInvalidRowDoesNotClaimSKU(t *testing.T) {
	res := Reconcile([]models.ImportRow{row("A", "oops", ""), row("A", "11", "")}, headers, snapshot())

	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, models.OutcomeFailed, res.Outcomes[0].Kind)
	assert.Equal(t, models.OutcomeUpdated, res.Outcomes[1].Kind)
}

func TestCompareAtClearSentinel(t *testing.T) {
	res := Reconcile([]models.ImportRow{row("X", "", "NULL"), row("Y", "", "null")}, headers, snapshot())

	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, models.OutcomeUpdated, res.Outcomes[0].Kind)
	m := res.Outcomes[0].Mutation
	require.NotNil(t, m)
	assert.True(t, m.CompareAtPrice.Set)
	assert.Nil(t, m.CompareAtPrice.Value)
	assert.Nil(t, m.Price)

	input := m.Input()
	value, present := input["compareAtPrice"]
	assert.True(t, present)
	assert.Nil(t, value)
	_, hasPrice := input["price"]
	assert.False(t, hasPrice)

	assert.Equal(t, models.OutcomeSkipped, res.Outcomes[1].Kind)
	assert.Equal(t, 1, res.CompareAtUpdates)
	assert.Equal(t, 0, res.PriceUpdates)
}

func TestCompareAtSetOnVariantWithoutOne(t *testing.T) {
	res := Reconcile([]models.ImportRow{row("Y", "5", "9.99")}, headers, snapshot())

	require.Len(t, res.Mutations, 1)
	m := res.Mutations[0]
	assert.Nil(t, m.Price)
	require.True(t, m.CompareAtPrice.Set)
	assert.Equal(t, "9.99", *m.CompareAtPrice.Value)
}

func TestReconcileIsIdempotentAfterApply(t *testing.T) {
	snap := snapshot()
	rows := []models.ImportRow{row("A", "19.99", "")}

	first := Reconcile(rows, headers, snap)
	require.Len(t, first.Mutations, 1)
	assert.Equal(t, models.OutcomeUpdated, first.Outcomes[0].Kind)

	entry := snap["a"]
	applied := first.Mutations[0]
	entry.Price = mustParse(t, *applied.Price)
	snap["a"] = entry

	second := Reconcile(rows, headers, snap)
	assert.Equal(t, models.OutcomeSkipped, second.Outcomes[0].Kind)
}

func TestPriceTextRoundTrips(t *testing.T) {
	for _, raw := range []string{"0.01", "19.99", "1234.5", "100", "99999.99", "0.1", "7.07"} {
		v, ok := parseAmount(raw)
		require.True(t, ok, raw)
		assert.Equal(t, *v, mustParse(t, FormatAmount(*v)), raw)
	}
	assert.Equal(t, "19.99", FormatAmount(19.99))
	assert.Equal(t, "100", FormatAmount(100.00))
}

func TestParseAmountRejectsNonFinite(t *testing.T) {
	for _, raw := range []string{"Inf", "-inf", "NaN", "12abc", "$5"} {
		_, ok := parseAmount(raw)
		assert.False(t, ok, raw)
	}
	v, ok := parseAmount("   ")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestParseAmountRejectsNonDecimalNotation(t *testing.T) {
	for _, raw := range []string{"0x1p3", "0X1P-2", "0x10", "1_000", "1_0.5"} {
		_, ok := parseAmount(raw)
		assert.False(t, ok, raw)
	}
	for _, raw := range []string{"1e2", "-3.5", "+4"} {
		_, ok := parseAmount(raw)
		assert.True(t, ok, raw)
	}

	res := Reconcile([]models.ImportRow{row("A", "0x1p3", "")}, headers, snapshot())
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, models.ReasonInvalidPrice, res.Outcomes[0].Reason)
	assert.Equal(t, []string{"Skipped SKU A: Invalid Price value '0x1p3'"}, res.Errors)
	assert.Empty(t, res.Mutations)
}

func TestOutcomeRowsCarryReasonColumn(t *testing.T) {
	extra := models.NewImportRow([]string{"SKU", "Price", "Notes"}, []string{"missing", "3", "keep"})
	res := Reconcile([]models.ImportRow{extra, row("A", "10", "")}, nil, snapshot())

	summary := res.Summary(2)
	require.Len(t, summary.FailedRows, 1)
	failed := summary.FailedRows[0]
	notes, _ := failed.Get("Notes")
	assert.Equal(t, "keep", notes)
	reason, _ := failed.Get(models.ColumnErrorReason)
	assert.Equal(t, models.ReasonVariantNotFound, reason)
	assert.Equal(t, models.ColumnErrorReason, failed.Cells[len(failed.Cells)-1].Column)

	require.Len(t, summary.SkippedRows, 1)
	reason, _ = summary.SkippedRows[0].Get(models.ColumnReason)
	assert.Equal(t, models.ReasonPricesMatch, reason)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Updated)
}

func mustParse(t *testing.T, s string) float64 {
	t.Helper()
	v, ok := parseAmount(s)
	require.True(t, ok)
	require.NotNil(t, v)
	return *v
}
