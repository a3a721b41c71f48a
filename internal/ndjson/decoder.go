// Package ndjson decodes the newline-delimited result files of catalog bulk queries.
package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/metrics"
	"github.com/stanstork/pricesync-api/internal/models"
)

const (
	productMarker = "Product"
	variantMarker = "ProductVariant"

	maxLineSize = 4 << 20
)

var errLineTooLong = errors.New("ndjson line exceeds size limit")

// ProductIndex maps product ids to titles for a single decode.
type ProductIndex struct {
	titles map[string]string
}

func NewProductIndex() *ProductIndex {
	return &ProductIndex{titles: make(map[string]string)}
}

func (i *ProductIndex) Add(id, title string) {
	i.titles[id] = title
}

func (i *ProductIndex) Title(id string) (string, bool) {
	if i == nil {
		return "", false
	}
	title, ok := i.titles[id]
	return title, ok
}

func (i *ProductIndex) Len() int {
	if i == nil {
		return 0
	}
	return len(i.titles)
}

// Result is the outcome of one decode: rows in stream order plus the product
// index built while streaming.
type Result struct {
	Rows    []models.CatalogRow
	Index   *ProductIndex
	Dropped int
}

// Variants returns only the variant rows.
func (r Result) Variants() []models.CatalogRow {
	out := make([]models.CatalogRow, 0, len(r.Rows))
	for _, row := range r.Rows {
		if row.Kind == models.CatalogRowVariant {
			out = append(out, row)
		}
	}
	return out
}

type record struct {
	ID              string                  `json:"id"`
	Title           string                  `json:"title"`
	SKU             *string                 `json:"sku"`
	SelectedOptions []models.SelectedOption `json:"selectedOptions"`
	Price           json.RawMessage         `json:"price"`
	CompareAtPrice  json.RawMessage         `json:"compareAtPrice"`
	ParentID        string                  `json:"__parentId"`
}

type Decoder struct {
	metrics *metrics.Metrics
	logger  zerolog.Logger
	maxLine int
}

func NewDecoder(m *metrics.Metrics, logger zerolog.Logger) *Decoder {
	return &Decoder{
		metrics: m,
		logger:  logger.With().Str("component", "ndjson").Logger(),
		maxLine: maxLineSize,
	}
}

// Decode reads r line by line. Blank lines are skipped; malformed and
// oversized lines are logged and dropped. Only a read failure is returned as
// an error. Products must precede the variants that reference them.
func (d *Decoder) Decode(r io.Reader) (Result, error) {
	result := Result{Index: NewProductIndex()}

	err := d.eachLine(r, func(lineNo int, line []byte, oversized bool) {
		if oversized {
			result.Dropped++
			d.drop(lineNo, errLineTooLong, "dropping oversized ndjson line")
			return
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			return
		}

		row, ok, err := decodeLine(line)
		if err != nil {
			result.Dropped++
			d.drop(lineNo, err, "dropping malformed ndjson line")
			return
		}
		if !ok {
			return
		}
		if row.Kind == models.CatalogRowProduct {
			result.Index.Add(row.ID, row.Title)
		}
		result.Rows = append(result.Rows, row)
	})
	if err != nil {
		return result, fmt.Errorf("read ndjson: %w", err)
	}
	return result, nil
}

// eachLine hands every line of r to fn, without its terminator. A line longer
// than the decoder's limit is discarded as it streams and reported with
// oversized set, so one huge record never fails the whole file.
func (d *Decoder) eachLine(r io.Reader, fn func(lineNo int, line []byte, oversized bool)) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var buf []byte
	oversized := false
	lineNo := 0
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !oversized {
			if len(buf)+len(chunk) > d.maxLine {
				oversized = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if isPrefix {
			continue
		}
		lineNo++
		fn(lineNo, buf, oversized)
		buf = buf[:0]
		oversized = false
	}
}

func (d *Decoder) drop(lineNo int, err error, msg string) {
	d.metrics.IncNDJSONLinesDropped()
	d.logger.Warn().Err(err).Int("line", lineNo).Msg(msg)
}

// DecodeString is Decode over an in-memory document.
func (d *Decoder) DecodeString(text string) Result {
	result, _ := d.Decode(strings.NewReader(text))
	return result
}

func decodeLine(line []byte) (models.CatalogRow, bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return models.CatalogRow{}, false, err
	}
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return models.CatalogRow{}, false, err
	}
	_, hasSKU := fields["sku"]

	switch {
	case strings.Contains(rec.ID, productMarker) && !hasSKU:
		return models.CatalogRow{
			Kind:  models.CatalogRowProduct,
			ID:    rec.ID,
			Title: rec.Title,
		}, true, nil
	case strings.Contains(rec.ID, variantMarker):
		row := models.CatalogRow{
			Kind:            models.CatalogRowVariant,
			ID:              rec.ID,
			ParentID:        rec.ParentID,
			SelectedOptions: rec.SelectedOptions,
		}
		if rec.SKU != nil {
			row.SKU = *rec.SKU
		}
		if price, ok := scalar(rec.Price); ok {
			row.Price = price
		}
		if compareAt, ok := scalar(rec.CompareAtPrice); ok {
			row.CompareAtPrice = &compareAt
		}
		return row, true, nil
	}
	return models.CatalogRow{}, false, nil
}

// scalar returns a money field as text whether it was sent as a string or a number.
func scalar(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
	return string(raw), true
}
