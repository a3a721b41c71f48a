package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/stanstork/pricesync-api/internal/models"
)

var ErrSubscriptionNotFound = errors.New("subscription info not found")

type SubscriptionRepository interface {
	Get(ctx context.Context, tenantID string) (models.SubscriptionInfo, error)
	Upsert(ctx context.Context, info models.SubscriptionInfo) (models.SubscriptionInfo, error)
}

type subscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Get(ctx context.Context, tenantID string) (models.SubscriptionInfo, error) {
	const query = `
		SELECT tenant_id, subscription_id, plan_name, started_at, updated_at
		FROM pricesync.subscriptions
		WHERE tenant_id = $1
	`
	info, err := scanSubscription(r.db.QueryRowContext(ctx, query, strings.TrimSpace(tenantID)))
	if errors.Is(err, sql.ErrNoRows) {
		return models.SubscriptionInfo{}, ErrSubscriptionNotFound
	}
	return info, err
}

func (r *subscriptionRepository) Upsert(ctx context.Context, info models.SubscriptionInfo) (models.SubscriptionInfo, error) {
	const query = `
		INSERT INTO pricesync.subscriptions (tenant_id, subscription_id, plan_name, started_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id) DO UPDATE
		SET subscription_id = EXCLUDED.subscription_id,
			plan_name = EXCLUDED.plan_name,
			started_at = EXCLUDED.started_at,
			updated_at = NOW()
		RETURNING tenant_id, subscription_id, plan_name, started_at, updated_at
	`
	row := r.db.QueryRowContext(ctx, query, strings.TrimSpace(info.TenantID), info.SubscriptionID, info.PlanName, info.StartedAt)
	return scanSubscription(row)
}

func scanSubscription(scanner interface {
	Scan(dest ...interface{}) error
}) (models.SubscriptionInfo, error) {
	var (
		info           models.SubscriptionInfo
		subscriptionID sql.NullString
	)
	if err := scanner.Scan(&info.TenantID, &subscriptionID, &info.PlanName, &info.StartedAt, &info.UpdatedAt); err != nil {
		return models.SubscriptionInfo{}, err
	}
	if subscriptionID.Valid {
		v := subscriptionID.String
		info.SubscriptionID = &v
	}
	return info, nil
}
