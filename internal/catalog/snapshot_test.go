package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/shopify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pagedCatalog struct {
	pages   map[string]shopify.VariantPage
	cursors []string
	err     error
}

func (p *pagedCatalog) VariantsPage(ctx context.Context, after string, first int) (shopify.VariantPage, error) {
	p.cursors = append(p.cursors, after)
	if p.err != nil {
		return shopify.VariantPage{}, p.err
	}
	return p.pages[after], nil
}

func str(s string) *string { return &s }

func TestBuildWalksAllPages(t *testing.T) {
	source := &pagedCatalog{pages: map[string]shopify.VariantPage{
		"": {
			Variants: []shopify.VariantNode{
				{ID: "v1", ProductID: "p1", SKU: " Tee-S ", Price: "19.99"},
				{ID: "v2", ProductID: "p1", SKU: "", Price: "5.00"},
			},
			HasNextPage: true,
			EndCursor:   "c1",
		},
		"c1": {
			Variants: []shopify.VariantNode{
				{ID: "v3", ProductID: "p2", SKU: "MUG", Price: "8", CompareAtPrice: str("12.50")},
			},
		},
	}}

	snapshot, err := NewBuilder(0, zerolog.Nop()).Build(context.Background(), source)
	require.NoError(t, err)

	assert.Equal(t, []string{"", "c1"}, source.cursors)
	require.Len(t, snapshot, 2)

	tee, ok := snapshot["tee-s"]
	require.True(t, ok)
	assert.Equal(t, "v1", tee.VariantID)
	assert.Equal(t, "p1", tee.ProductID)
	assert.Equal(t, 19.99, tee.Price)
	assert.Nil(t, tee.CompareAtPrice)

	mug := snapshot["mug"]
	require.NotNil(t, mug.CompareAtPrice)
	assert.Equal(t, 12.5, *mug.CompareAtPrice)
}

func TestBuildPropagatesPageErrors(t *testing.T) {
	source := &pagedCatalog{err: errors.New("throttled")}
	_, err := NewBuilder(50, zerolog.Nop()).Build(context.Background(), source)
	assert.ErrorContains(t, err, "throttled")
}
