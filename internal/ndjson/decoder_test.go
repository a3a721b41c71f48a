package ndjson

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleExport = `{"id":"gid://shopify/Product/1","title":"Classic Tee"}
{"id":"gid://shopify/ProductVariant/11","sku":"TEE-S","selectedOptions":[{"name":"Size","value":"S"}],"price":"19.99","compareAtPrice":null,"__parentId":"gid://shopify/Product/1"}

{"id":"gid://shopify/ProductVariant/12","sku":"TEE-M","selectedOptions":[{"name":"Size","value":"M"}],"price":"19.99","compareAtPrice":"24.99","__parentId":"gid://shopify/Product/1"}
`

func TestDecodeLinksVariantsToProducts(t *testing.T) {
	d := NewDecoder(nil, zerolog.Nop())
	result := d.DecodeString(sampleExport)

	require.Len(t, result.Rows, 3)
	assert.Equal(t, models.CatalogRowProduct, result.Rows[0].Kind)
	title, ok := result.Index.Title("gid://shopify/Product/1")
	require.True(t, ok)
	assert.Equal(t, "Classic Tee", title)

	variants := result.Variants()
	require.Len(t, variants, 2)
	assert.Equal(t, "TEE-S", variants[0].SKU)
	assert.Equal(t, "gid://shopify/Product/1", variants[0].ParentID)
	assert.Equal(t, "19.99", variants[0].Price)
	assert.Nil(t, variants[0].CompareAtPrice)
	require.NotNil(t, variants[1].CompareAtPrice)
	assert.Equal(t, "24.99", *variants[1].CompareAtPrice)
}

func TestDecodeDropsMalformedLines(t *testing.T) {
	text := `{"id":"gid://shopify/ProductVariant/1","sku":"A","price":"1.00","__parentId":"gid://shopify/Product/9"}
{"id":"gid://shopify/ProductVariant/2",
{"id":"gid://shopify/ProductVariant/3","sku":"B","price":2.5,"__parentId":"gid://shopify/Product/9"}
`
	d := NewDecoder(nil, zerolog.Nop())
	result := d.DecodeString(text)

	assert.Equal(t, 1, result.Dropped)
	require.Len(t, result.Variants(), 2)
	assert.Equal(t, "2.5", result.Variants()[1].Price)
}

func TestDecodeVariantWithNullSKUIsNotAProduct(t *testing.T) {
	d := NewDecoder(nil, zerolog.Nop())
	result := d.DecodeString(`{"id":"gid://shopify/ProductVariant/5","sku":null,"price":"3.00","__parentId":"gid://shopify/Product/1"}`)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, models.CatalogRowVariant, result.Rows[0].Kind)
	assert.Empty(t, result.Rows[0].SKU)
	assert.Zero(t, result.Index.Len())
}

func TestDecodeIgnoresUnknownRecords(t *testing.T) {
	d := NewDecoder(nil, zerolog.Nop())
	result := d.DecodeString(`{"id":"gid://shopify/Collection/1","title":"Summer"}`)
	assert.Empty(t, result.Rows)
	assert.Zero(t, result.Dropped)
}

func TestDecodeIndexIsScopedToOneCall(t *testing.T) {
	d := NewDecoder(nil, zerolog.Nop())
	first := d.DecodeString(`{"id":"gid://shopify/Product/1","title":"Classic Tee"}`)
	second := d.DecodeString(`{"id":"gid://shopify/ProductVariant/11","sku":"TEE-S","price":"1","__parentId":"gid://shopify/Product/1"}`)

	assert.Equal(t, 1, first.Index.Len())
	_, ok := second.Index.Title("gid://shopify/Product/1")
	assert.False(t, ok)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestDecodeReturnsReadErrors(t *testing.T) {
	d := NewDecoder(nil, zerolog.Nop())
	_, err := d.Decode(failingReader{})
	assert.Error(t, err)
}

func TestDecodeSkipsOversizedLines(t *testing.T) {
	d := NewDecoder(nil, zerolog.Nop())
	d.maxLine = 256

	huge := `{"id":"gid://shopify/ProductVariant/13","sku":"TEE-L","title":"` + strings.Repeat("x", 300_000) + `","price":"1","__parentId":"gid://shopify/Product/1"}`
	res, err := d.Decode(strings.NewReader(`{"id":"gid://shopify/Product/1","title":"Classic Tee"}` + "\n" +
		huge + "\n" +
		`{"id":"gid://shopify/ProductVariant/12","sku":"TEE-M","price":"19.99","__parentId":"gid://shopify/Product/1"}`))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Dropped)
	variants := res.Variants()
	require.Len(t, variants, 1)
	assert.Equal(t, "TEE-M", variants[0].SKU)
	assert.Equal(t, 1, res.Index.Len())
}
