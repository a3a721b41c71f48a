package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/stanstork/pricesync-api/internal/models"
)

type UsageRepository interface {
	// Get returns the counter of a billing period; a missing row reads as zero usage.
	Get(ctx context.Context, tenantID, billingPeriod string) (models.UsageCounter, error)
	// Increment adds to a period's counters in one atomic upsert.
	Increment(ctx context.Context, tenantID, billingPeriod string, priceUpdates, compareAtUpdates int) (models.UsageCounter, error)
}

type usageRepository struct {
	db *sql.DB
}

func NewUsageRepository(db *sql.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) Get(ctx context.Context, tenantID, billingPeriod string) (models.UsageCounter, error) {
	const query = `
		SELECT tenant_id, billing_period, price_updates, compare_at_updates
		FROM pricesync.usage_counters
		WHERE tenant_id = $1 AND billing_period = $2
	`
	counter, err := scanUsageCounter(r.db.QueryRowContext(ctx, query, strings.TrimSpace(tenantID), billingPeriod))
	if errors.Is(err, sql.ErrNoRows) {
		return models.UsageCounter{TenantID: tenantID, BillingPeriod: billingPeriod}, nil
	}
	return counter, err
}

func (r *usageRepository) Increment(ctx context.Context, tenantID, billingPeriod string, priceUpdates, compareAtUpdates int) (models.UsageCounter, error) {
	const query = `
		INSERT INTO pricesync.usage_counters (tenant_id, billing_period, price_updates, compare_at_updates)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, billing_period) DO UPDATE
		SET price_updates = pricesync.usage_counters.price_updates + EXCLUDED.price_updates,
			compare_at_updates = pricesync.usage_counters.compare_at_updates + EXCLUDED.compare_at_updates,
			updated_at = NOW()
		RETURNING tenant_id, billing_period, price_updates, compare_at_updates
	`
	row := r.db.QueryRowContext(ctx, query, strings.TrimSpace(tenantID), billingPeriod, priceUpdates, compareAtUpdates)
	return scanUsageCounter(row)
}

func scanUsageCounter(scanner interface {
	Scan(dest ...interface{}) error
}) (models.UsageCounter, error) {
	var counter models.UsageCounter
	err := scanner.Scan(&counter.TenantID, &counter.BillingPeriod, &counter.PriceUpdates, &counter.CompareAtUpdates)
	return counter, err
}
