package ndjson

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutationErrorsFirstMessagePerLine(t *testing.T) {
	text := `{"data":{"productVariantsBulkUpdate":{"productVariants":[{"id":"v1"}],"userErrors":[]}},"__lineNumber":0}
{"data":{"productVariantsBulkUpdate":{"productVariants":[],"userErrors":[{"field":["variants","0","price"],"message":"Price must be positive"},{"message":"second"}]}},"__lineNumber":1}
not json
{"productVariantsBulkUpdate":{"userErrors":[{"message":"Product does not exist"}]}}

`
	messages, err := NewDecoder(nil, zerolog.Nop()).MutationErrors(strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, []string{"Price must be positive", "Product does not exist"}, messages)
}

func TestMutationErrorsEmptyFile(t *testing.T) {
	messages, err := NewDecoder(nil, zerolog.Nop()).MutationErrors(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.NotNil(t, messages)
}

func TestMutationErrorsSkipsOversizedLines(t *testing.T) {
	d := NewDecoder(nil, zerolog.Nop())
	d.maxLine = 512

	text := `{"data":{"productVariantsBulkUpdate":{"userErrors":[{"message":"` + strings.Repeat("a", 100_000) + `"}]}}}` + "\n" +
		`{"data":{"productVariantsBulkUpdate":{"userErrors":[{"message":"Price must be positive"}]}}}` + "\n"
	messages, err := d.MutationErrors(strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, []string{"Price must be positive"}, messages)
}
