// Package usage meters price updates per tenant and billing period.
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/metrics"
	"github.com/stanstork/pricesync-api/internal/models"
	"github.com/stanstork/pricesync-api/internal/repository"
)

var ErrNoSubscriptionInfo = errors.New("subscription info not found for tenant")

type CounterStore interface {
	Get(ctx context.Context, tenantID, billingPeriod string) (models.UsageCounter, error)
	Increment(ctx context.Context, tenantID, billingPeriod string, priceUpdates, compareAtUpdates int) (models.UsageCounter, error)
}

type SubscriptionStore interface {
	Get(ctx context.Context, tenantID string) (models.SubscriptionInfo, error)
	Upsert(ctx context.Context, info models.SubscriptionInfo) (models.SubscriptionInfo, error)
}

type Ledger struct {
	counters      CounterStore
	subscriptions SubscriptionStore
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	now           func() time.Time
}

func NewLedger(counters CounterStore, subscriptions SubscriptionStore, m *metrics.Metrics, logger zerolog.Logger) *Ledger {
	return &Ledger{
		counters:      counters,
		subscriptions: subscriptions,
		metrics:       m,
		logger:        logger.With().Str("component", "usage").Logger(),
		now:           time.Now,
	}
}

// SyncSubscription records the tenant's active subscription, nil meaning none.
// A changed subscription id, including a drop to none, restarts the billing window.
func (l *Ledger) SyncSubscription(ctx context.Context, tenantID string, active *models.ActiveSubscription) (models.SubscriptionInfo, error) {
	info, err := l.subscriptions.Get(ctx, tenantID)
	switch {
	case errors.Is(err, repository.ErrSubscriptionNotFound):
		info = l.anchor(tenantID, active)
		l.logger.Info().Str("tenant", tenantID).Str("plan", info.PlanName).Msg("subscription info created")
		return l.subscriptions.Upsert(ctx, info)
	case err != nil:
		return models.SubscriptionInfo{}, fmt.Errorf("load subscription info: %w", err)
	}

	if !changed(info, active) {
		return info, nil
	}
	next := l.anchor(tenantID, active)
	l.logger.Info().
		Str("tenant", tenantID).
		Str("plan", next.PlanName).
		Time("started_at", next.StartedAt).
		Msg("subscription changed, billing window restarted")
	return l.subscriptions.Upsert(ctx, next)
}

func changed(info models.SubscriptionInfo, active *models.ActiveSubscription) bool {
	if active == nil {
		return info.SubscriptionID != nil
	}
	return info.SubscriptionID == nil || *info.SubscriptionID != active.ID
}

func (l *Ledger) anchor(tenantID string, active *models.ActiveSubscription) models.SubscriptionInfo {
	info := models.SubscriptionInfo{TenantID: tenantID, PlanName: FreePlanName, StartedAt: l.now().UTC()}
	if active == nil {
		return info
	}
	id := active.ID
	info.SubscriptionID = &id
	if active.Name != "" {
		info.PlanName = active.Name
	}
	if !active.CreatedAt.IsZero() {
		info.StartedAt = active.CreatedAt.UTC()
	}
	return info
}

// current loads the tenant's window anchor and the counter of the window containing now.
func (l *Ledger) current(ctx context.Context, tenantID string) (models.SubscriptionInfo, models.UsageCounter, error) {
	info, err := l.subscriptions.Get(ctx, tenantID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return info, models.UsageCounter{}, ErrNoSubscriptionInfo
	}
	if err != nil {
		return info, models.UsageCounter{}, fmt.Errorf("load subscription info: %w", err)
	}
	counter, err := l.counters.Get(ctx, tenantID, BillingPeriod(info.StartedAt, l.now()))
	if err != nil {
		return info, models.UsageCounter{}, fmt.Errorf("load usage counter: %w", err)
	}
	return info, counter, nil
}

// CheckLimit admits a batch all-or-nothing. The price cap is checked first.
func (l *Ledger) CheckLimit(ctx context.Context, tenantID, planName string, priceCount, compareAtCount int) (models.LimitCheck, error) {
	limits := LimitsFor(planName)
	if limits.Unlimited() {
		return models.LimitCheck{Allowed: true}, nil
	}
	_, counter, err := l.current(ctx, tenantID)
	if err != nil {
		return models.LimitCheck{}, err
	}

	check := models.LimitCheck{Allowed: true}
	switch {
	case counter.PriceUpdates+priceCount > *limits.Price:
		check = models.LimitCheck{Type: models.LimitTypePrice, Limit: *limits.Price, Current: counter.PriceUpdates, Attempted: priceCount}
	case limits.CompareAt != nil && counter.CompareAtUpdates+compareAtCount > *limits.CompareAt:
		check = models.LimitCheck{Type: models.LimitTypeCompareAt, Limit: *limits.CompareAt, Current: counter.CompareAtUpdates, Attempted: compareAtCount}
	}
	if !check.Allowed {
		l.metrics.IncUsageRejections(string(check.Type))
		l.logger.Info().
			Str("tenant", tenantID).
			Str("type", string(check.Type)).
			Int("limit", check.Limit).
			Int("current", check.Current).
			Int("attempted", check.Attempted).
			Msg("usage limit exceeded")
	}
	return check, nil
}

// Increment charges a launched batch to the window containing now.
func (l *Ledger) Increment(ctx context.Context, tenantID string, priceCount, compareAtCount int) (models.UsageCounter, error) {
	info, err := l.subscriptions.Get(ctx, tenantID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return models.UsageCounter{}, ErrNoSubscriptionInfo
	}
	if err != nil {
		return models.UsageCounter{}, fmt.Errorf("load subscription info: %w", err)
	}
	period := BillingPeriod(info.StartedAt, l.now())
	counter, err := l.counters.Increment(ctx, tenantID, period, priceCount, compareAtCount)
	if err != nil {
		return models.UsageCounter{}, fmt.Errorf("increment usage: %w", err)
	}
	l.logger.Debug().
		Str("tenant", tenantID).
		Str("period", period).
		Int("price_updates", counter.PriceUpdates).
		Int("compare_at_updates", counter.CompareAtUpdates).
		Msg("usage incremented")
	return counter, nil
}

// Stats summarizes the current window for display. Remaining is nil when unlimited.
func (l *Ledger) Stats(ctx context.Context, tenantID, planName string) (models.UsageStats, error) {
	info, counter, err := l.current(ctx, tenantID)
	if err != nil {
		return models.UsageStats{}, err
	}
	now := l.now()
	limits := LimitsFor(planName)
	stats := models.UsageStats{
		PlanName:         planName,
		BillingPeriod:    BillingPeriod(info.StartedAt, now),
		PriceUpdates:     counter.PriceUpdates,
		CompareAtUpdates: counter.CompareAtUpdates,
		Limits:           limits,
		NextResetDate:    NextReset(info.StartedAt, now),
	}
	if limits.Price != nil {
		n := *limits.Price - counter.PriceUpdates
		stats.PriceRemaining = &n
	}
	if limits.CompareAt != nil {
		n := *limits.CompareAt - counter.CompareAtUpdates
		stats.CompareAtRemaining = &n
	}
	return stats, nil
}

// LimitMessage is the user-facing text of a rejected admission.
func LimitMessage(check models.LimitCheck) string {
	return fmt.Sprintf("Limit exceeded. You are attempting %d updates, but only %d are remaining in your current billing period.",
		check.Attempted, check.Limit-check.Current)
}
