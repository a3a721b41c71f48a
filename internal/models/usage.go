package models

import "time"

// SubscriptionInfo is the per-tenant anchor of the billing window.
type SubscriptionInfo struct {
	TenantID       string    `json:"tenant_id" db:"tenant_id"`
	SubscriptionID *string   `json:"subscription_id,omitempty" db:"subscription_id"`
	PlanName       string    `json:"plan_name" db:"plan_name"`
	StartedAt      time.Time `json:"started_at" db:"started_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// ActiveSubscription is the tenant's current app subscription as reported by the platform.
type ActiveSubscription struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// UsageCounter holds the metered counts of one billing period.
type UsageCounter struct {
	TenantID         string `json:"tenant_id" db:"tenant_id"`
	BillingPeriod    string `json:"billing_period" db:"billing_period"`
	PriceUpdates     int    `json:"price_updates" db:"price_updates"`
	CompareAtUpdates int    `json:"compare_at_updates" db:"compare_at_updates"`
}

// PlanLimits caps usage per period; nil means unlimited.
type PlanLimits struct {
	Price     *int `json:"price"`
	CompareAt *int `json:"compareAt"`
}

func (l PlanLimits) Unlimited() bool {
	return l.Price == nil
}

type LimitType string

const (
	LimitTypePrice     LimitType = "price"
	LimitTypeCompareAt LimitType = "compareAt"
)

// LimitCheck is the admission verdict for a batch.
type LimitCheck struct {
	Allowed   bool      `json:"allowed"`
	Type      LimitType `json:"type,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Current   int       `json:"current,omitempty"`
	Attempted int       `json:"attempted,omitempty"`
}

// UsageStats is the usage summary shown to a tenant.
type UsageStats struct {
	PlanName           string     `json:"planName"`
	BillingPeriod      string     `json:"billingPeriod"`
	PriceUpdates       int        `json:"priceUpdates"`
	CompareAtUpdates   int        `json:"compareAtUpdates"`
	Limits             PlanLimits `json:"limits"`
	NextResetDate      time.Time  `json:"nextResetDate"`
	PriceRemaining     *int       `json:"priceRemaining"`
	CompareAtRemaining *int       `json:"compareAtRemaining"`
}
