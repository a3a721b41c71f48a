package shopify

import (
	"context"
	"time"

	"github.com/stanstork/pricesync-api/internal/models"
)

// ActiveSubscription returns the app's first active subscription on the shop, or nil.
func (c *Client) ActiveSubscription(ctx context.Context) (*models.ActiveSubscription, error) {
	query := `
	query activeSubscriptions {
		currentAppInstallation {
			activeSubscriptions {
				id
				name
				status
				createdAt
			}
		}
	}`

	var data activeSubscriptionsData
	if err := c.graphqlRequest(ctx, query, nil, &data); err != nil {
		return nil, err
	}
	subs := data.CurrentAppInstallation.ActiveSubscriptions
	if len(subs) == 0 {
		return nil, nil
	}
	sub := &models.ActiveSubscription{
		ID:     subs[0].ID,
		Name:   subs[0].Name,
		Status: subs[0].Status,
	}
	if t, err := time.Parse(time.RFC3339, subs[0].CreatedAt); err == nil {
		sub.CreatedAt = t.UTC()
	}
	return sub, nil
}
