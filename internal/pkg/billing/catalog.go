package billing

import (
	"strconv"
	"strings"

	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
)

// Plan names used across billing.
const (
	PlanFree     = "free"
	PlanMonthly  = "monthly"
	PlanYearly   = "yearly"
	PlanLifetime = "lifetime"
)

// Catalog maps provider price references to internal plans and credit
// amounts. Price IDs are shared across providers; both Stripe and Creem
// checkouts carry the same configured references.
type Catalog struct {
	MonthlyPriceID  string
	YearlyPriceID   string
	LifetimePriceID string

	// CreditPackages maps a one-time package price ref to its credit amount.
	CreditPackages map[string]int64

	FreeMonthlyCredits         int64
	SubscriptionMonthlyCredits int64
	LifetimeMonthlyCredits     int64

	// GrantExpireDays is the expiration window applied to periodic grants.
	GrantExpireDays int
}

// NewCatalogFromEnv builds the catalog from environment configuration.
func NewCatalogFromEnv() *Catalog {
	return &Catalog{
		MonthlyPriceID:             env.GetEnv("BILLING_PRICE_MONTHLY", "price_monthly"),
		YearlyPriceID:              env.GetEnv("BILLING_PRICE_YEARLY", "price_yearly"),
		LifetimePriceID:            env.GetEnv("BILLING_PRICE_LIFETIME", "price_lifetime"),
		CreditPackages:             parsePackages(env.GetEnv("BILLING_CREDIT_PACKAGES", "price_pack_s:100,price_pack_m:500,price_pack_l:1200")),
		FreeMonthlyCredits:         envInt64("CREDITS_FREE_MONTHLY", 50),
		SubscriptionMonthlyCredits: envInt64("CREDITS_SUBSCRIPTION_MONTHLY", 500),
		LifetimeMonthlyCredits:     envInt64("CREDITS_LIFETIME_MONTHLY", 500),
		GrantExpireDays:            int(envInt64("CREDITS_GRANT_EXPIRE_DAYS", 45)),
	}
}

// parsePackages reads "priceRef:credits,priceRef:credits" pairs; malformed
// entries are skipped.
func parsePackages(raw string) map[string]int64 {
	packages := make(map[string]int64)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		credits, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil || credits <= 0 {
			continue
		}
		ref := strings.TrimSpace(parts[0])
		if ref == "" {
			continue
		}
		packages[ref] = credits
	}
	return packages
}

func envInt64(key string, def int64) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(env.GetEnv(key, "")), 10, 64)
	if err != nil {
		return def
	}
	return v
}

// PlanForPrice resolves a price ref to its internal plan name.
func (c *Catalog) PlanForPrice(priceID string) string {
	switch strings.TrimSpace(priceID) {
	case c.MonthlyPriceID:
		return PlanMonthly
	case c.YearlyPriceID:
		return PlanYearly
	case c.LifetimePriceID:
		return PlanLifetime
	default:
		return PlanFree
	}
}

// IsLifetimePrice reports whether the price ref is the one-time lifetime plan.
func (c *Catalog) IsLifetimePrice(priceID string) bool {
	return strings.TrimSpace(priceID) != "" && strings.TrimSpace(priceID) == c.LifetimePriceID
}

// IsSubscriptionPrice reports whether the price ref is a recurring plan.
func (c *Catalog) IsSubscriptionPrice(priceID string) bool {
	p := c.PlanForPrice(priceID)
	return p == PlanMonthly || p == PlanYearly
}

// PackageCredits returns the credit amount of a one-time credits package.
func (c *Catalog) PackageCredits(priceID string) (int64, bool) {
	credits, ok := c.CreditPackages[strings.TrimSpace(priceID)]
	return credits, ok
}
