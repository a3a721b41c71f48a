package usage

import (
	"strings"
	"time"

	"github.com/stanstork/pricesync-api/internal/models"
)

const (
	// PeriodLength is the fixed size of a billing window.
	PeriodLength = 30 * 24 * time.Hour

	FreePlanName = "Free"

	periodLayout = time.RFC3339
)

// LimitsFor maps a plan name to its caps by case-insensitive substring.
// Unknown or empty names get the free tier.
func LimitsFor(planName string) models.PlanLimits {
	plan := strings.ToLower(planName)
	switch {
	case strings.Contains(plan, "starter"):
		return capped(300, 300)
	case strings.Contains(plan, "growth"):
		return models.PlanLimits{}
	}
	return capped(30, 30)
}

func capped(price, compareAt int) models.PlanLimits {
	return models.PlanLimits{Price: &price, CompareAt: &compareAt}
}

// BillingPeriod identifies the window containing now by the UTC timestamp of
// the window's start, so a window restarted on the same day gets a fresh key.
// A start in the future is its own period.
func BillingPeriod(startedAt, now time.Time) string {
	return periodStart(startedAt, now).UTC().Format(periodLayout)
}

// NextReset is when the window containing now ends.
func NextReset(startedAt, now time.Time) time.Time {
	return periodStart(startedAt, now).Add(PeriodLength)
}

func periodStart(startedAt, now time.Time) time.Time {
	if now.Before(startedAt) {
		return startedAt
	}
	cycles := now.Sub(startedAt) / PeriodLength
	return startedAt.Add(cycles * PeriodLength)
}
