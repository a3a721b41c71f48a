package shopify

import (
	"context"
	"strings"
)

const maxVariantsPageSize = 250

// VariantNode is one variant of a productVariants page.
type VariantNode struct {
	ID             string
	ProductID      string
	SKU            string
	Price          string
	CompareAtPrice *string
}

// VariantPage is one page of the variant catalog.
type VariantPage struct {
	Variants    []VariantNode
	HasNextPage bool
	EndCursor   string
}

// VariantsPage fetches up to first variants after the given cursor ("" for the first page).
func (c *Client) VariantsPage(ctx context.Context, after string, first int) (VariantPage, error) {
	if first <= 0 || first > maxVariantsPageSize {
		first = maxVariantsPageSize
	}
	query := `
	query productVariants($first: Int!, $after: String) {
		productVariants(first: $first, after: $after) {
			nodes {
				id
				sku
				price
				compareAtPrice
				product { id }
			}
			pageInfo {
				hasNextPage
				endCursor
			}
		}
	}`

	variables := map[string]any{"first": first}
	if after != "" {
		variables["after"] = after
	}

	var data productVariantsPageData
	if err := c.graphqlRequest(ctx, query, variables, &data); err != nil {
		return VariantPage{}, err
	}

	page := VariantPage{
		Variants:    make([]VariantNode, 0, len(data.ProductVariants.Nodes)),
		HasNextPage: data.ProductVariants.PageInfo.HasNextPage,
		EndCursor:   data.ProductVariants.PageInfo.EndCursor,
	}
	for _, node := range data.ProductVariants.Nodes {
		v := VariantNode{
			ID:             node.ID,
			ProductID:      node.Product.ID,
			Price:          node.Price,
			CompareAtPrice: node.CompareAtPrice,
		}
		if node.SKU != nil {
			v.SKU = strings.TrimSpace(*node.SKU)
		}
		page.Variants = append(page.Variants, v)
	}
	return page, nil
}
