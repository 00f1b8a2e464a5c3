package entitlements

import (
	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/app/repository"
	"github.com/ManuelReschke/CreditFox/internal/pkg/billing"
)

// Limits are the plan-scoped API allowances enforced by the credit
// endpoints.
type Limits struct {
	// MaxConsumePerRequest caps the amount of a single consume call.
	MaxConsumePerRequest int64
	// HistoryPageLimit caps the page size of the transaction history.
	HistoryPageLimit int
}

// ForPlan returns the allowances of a plan. Unknown plans fall back to
// the free tier.
func ForPlan(plan string) Limits {
	switch plan {
	case billing.PlanMonthly, billing.PlanYearly, billing.PlanLifetime:
		return Limits{MaxConsumePerRequest: 10000, HistoryPageLimit: 200}
	default:
		return Limits{MaxConsumePerRequest: 1000, HistoryPageLimit: 100}
	}
}

// PlanForUser resolves a user's effective plan from their payment history:
// a lifetime purchase wins, otherwise the first still-active subscription,
// otherwise free.
func PlanForUser(payments repository.PaymentRepository, catalog *billing.Catalog, userID uint) string {
	rows, err := payments.ListByUser(userID)
	if err != nil {
		return billing.PlanFree
	}

	plan := billing.PlanFree
	for _, p := range rows {
		if p.Type == models.PaymentTypeOneTime && catalog.IsLifetimePrice(p.PriceID) {
			return billing.PlanLifetime
		}
		if plan == billing.PlanFree && p.Type == models.PaymentTypeSubscription && models.IsActiveStatus(p.Status) {
			plan = catalog.PlanForPrice(p.PriceID)
		}
	}
	return plan
}

// LimitsForUser is the one-call form the controllers use.
func LimitsForUser(payments repository.PaymentRepository, catalog *billing.Catalog, userID uint) Limits {
	return ForPlan(PlanForUser(payments, catalog, userID))
}
