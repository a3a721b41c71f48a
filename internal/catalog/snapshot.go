package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/models"
	"github.com/stanstork/pricesync-api/internal/shopify"
)

const defaultPageSize = 250

// Paginator pages through the live variant catalog.
type Paginator interface {
	VariantsPage(ctx context.Context, after string, first int) (shopify.VariantPage, error)
}

// Builder assembles a CatalogSnapshot by walking every variant page.
type Builder struct {
	pageSize int
	logger   zerolog.Logger
}

func NewBuilder(pageSize int, logger zerolog.Logger) *Builder {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Builder{
		pageSize: pageSize,
		logger:   logger.With().Str("component", "catalog").Logger(),
	}
}

// Build pages until the catalog reports no further page. Variants without a
// SKU are left out. On duplicate SKUs the last variant seen wins.
func (b *Builder) Build(ctx context.Context, source Paginator) (models.CatalogSnapshot, error) {
	snapshot := make(models.CatalogSnapshot)
	cursor := ""
	pages := 0
	skipped := 0

	for {
		page, err := source.VariantsPage(ctx, cursor, b.pageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch variants page %d: %w", pages+1, err)
		}
		pages++

		for _, v := range page.Variants {
			key := models.NormalizeSKU(v.SKU)
			if key == "" {
				skipped++
				continue
			}
			snapshot[key] = entryFor(v)
		}

		if !page.HasNextPage || page.EndCursor == "" {
			break
		}
		cursor = page.EndCursor
	}

	b.logger.Debug().Int("pages", pages).Int("variants", len(snapshot)).Int("without_sku", skipped).Msg("catalog snapshot built")
	return snapshot, nil
}

func entryFor(v shopify.VariantNode) models.SnapshotEntry {
	entry := models.SnapshotEntry{
		VariantID: v.ID,
		ProductID: v.ProductID,
	}
	if price, err := strconv.ParseFloat(strings.TrimSpace(v.Price), 64); err == nil {
		entry.Price = price
	}
	if v.CompareAtPrice != nil {
		if compareAt, err := strconv.ParseFloat(strings.TrimSpace(*v.CompareAtPrice), 64); err == nil {
			entry.CompareAtPrice = &compareAt
		}
	}
	return entry
}
