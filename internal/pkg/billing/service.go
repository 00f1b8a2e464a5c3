package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/app/repository"
	"github.com/ManuelReschke/CreditFox/internal/pkg/credits"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Service routes billing-cycle events into credit grants. It implements the
// reconciler's billing port and the distribution engine's cohort planner,
// so every grant still flows through the one credit ledger service.
type Service struct {
	ledger  *credits.Service
	catalog *Catalog
}

// NewService creates a billing service from an injected ledger service and
// plan catalog.
func NewService(ledger *credits.Service, catalog *Catalog) *Service {
	return &Service{ledger: ledger, catalog: catalog}
}

// Catalog exposes the plan catalog for adapters and controllers.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// IsLifetimePrice reports whether the price ref is the one-time lifetime plan.
func (s *Service) IsLifetimePrice(priceID string) bool {
	return s.catalog.IsLifetimePrice(priceID)
}

// IsCreditsPackagePrice reports whether the price ref is a one-time credits
// package.
func (s *Service) IsCreditsPackagePrice(priceID string) bool {
	_, ok := s.catalog.PackageCredits(priceID)
	return ok
}

// AddPackageCredits grants the credits of a purchased one-time package,
// linked to the payment row. Package credits never expire.
func (s *Service) AddPackageCredits(userID uint, priceID string, paymentID *uint, tx *gorm.DB) error {
	amount, ok := s.catalog.PackageCredits(priceID)
	if !ok {
		return fmt.Errorf("billing: unknown credits package price %q", priceID)
	}
	return s.ledger.AddCredits(credits.AddCreditsInput{
		UserID:      userID,
		Amount:      amount,
		Type:        models.CreditTypePurchasePackage,
		Description: fmt.Sprintf("Credit package purchase (%s)", priceID),
		PaymentID:   paymentID,
	}, tx)
}

// HandleRenewal issues the credit grant for one subscription billing-cycle
// rollover, routed by plan. The cycle reference date scopes the period key
// so a replayed webhook for the same cycle grants nothing.
func (s *Service) HandleRenewal(userID uint, priceID string, cycleRef time.Time, tx *gorm.DB) error {
	if s.catalog.IsLifetimePrice(priceID) {
		return s.AddLifetimeMonthlyCredits(userID, priceID, cycleRef, tx)
	}
	return s.AddSubscriptionCredits(userID, priceID, cycleRef, tx)
}

// GrantLifetimePlan handles a completed one-time lifetime purchase: the
// first monthly grant of the lifetime plan. Follow-up months come from the
// distribution engine.
func (s *Service) GrantLifetimePlan(userID uint, priceID string, cycleRef time.Time, tx *gorm.DB) error {
	return s.AddLifetimeMonthlyCredits(userID, priceID, cycleRef, tx)
}

// AddSubscriptionCredits grants the monthly subscription credits for the
// cycle, guarded by the once-per-period idempotency check in the same
// transaction.
func (s *Service) AddSubscriptionCredits(userID uint, priceID string, cycleRef time.Time, tx *gorm.DB) error {
	return s.grantPeriodic(userID, models.CreditTypeSubscriptionRenewal,
		s.catalog.SubscriptionMonthlyCredits,
		fmt.Sprintf("Monthly subscription credits (%s)", s.catalog.PlanForPrice(priceID)),
		cycleRef, tx)
}

// AddLifetimeMonthlyCredits grants the monthly credits of the lifetime plan.
func (s *Service) AddLifetimeMonthlyCredits(userID uint, priceID string, cycleRef time.Time, tx *gorm.DB) error {
	_ = priceID
	return s.grantPeriodic(userID, models.CreditTypeLifetimeMonthly,
		s.catalog.LifetimeMonthlyCredits,
		"Monthly lifetime plan credits",
		cycleRef, tx)
}

func (s *Service) grantPeriodic(userID uint, creditType string, amount int64, description string, cycleRef time.Time, tx *gorm.DB) error {
	periodKey := models.PeriodKeyFor(cycleRef)
	due, err := s.ledger.CanAddCreditsByType(userID, creditType, periodKey, cycleRef, tx)
	if err != nil {
		return err
	}
	if !due {
		log.Infof("[Billing] %s grant for user %d period %d already issued, skipping", creditType, userID, periodKey)
		return nil
	}
	err = s.ledger.AddCredits(credits.AddCreditsInput{
		UserID:      userID,
		Amount:      amount,
		Type:        creditType,
		Description: description,
		ExpireDays:  s.catalog.GrantExpireDays,
		PeriodKey:   periodKey,
	}, tx)
	if err != nil && errors.Is(err, credits.ErrDuplicatePeriodGrant) {
		// A concurrent delivery for the same cycle won the unique period
		// index; this one is a replay.
		log.Infof("[Billing] %s grant for user %d period %d raced a concurrent grant, skipping", creditType, userID, periodKey)
		return nil
	}
	return err
}

// PlanGrants implements the distribution engine's cohort planner: free users
// get the monthly free refresh, lifetime owners their monthly plan credits,
// yearly subscribers their monthly renewal share. Monthly subscriptions are
// excluded since their grants arrive through renewal webhooks.
func (s *Service) PlanGrants(row repository.UserBillingRow, ref time.Time) []credits.GrantCommand {
	periodKey := models.PeriodKeyFor(ref)

	switch {
	case row.PriceID == "" || s.IsCreditsPackagePrice(row.PriceID):
		// A one-time package purchase does not change the plan, so the buyer
		// keeps the free monthly refresh.
		return []credits.GrantCommand{{
			UserID:      row.UserID,
			Type:        models.CreditTypeMonthlyRefresh,
			Amount:      s.catalog.FreeMonthlyCredits,
			Description: "Monthly free credits",
			ExpireDays:  s.catalog.GrantExpireDays,
			PeriodKey:   periodKey,
		}}
	case s.catalog.IsLifetimePrice(row.PriceID):
		return []credits.GrantCommand{{
			UserID:      row.UserID,
			Type:        models.CreditTypeLifetimeMonthly,
			Amount:      s.catalog.LifetimeMonthlyCredits,
			Description: "Monthly lifetime plan credits",
			ExpireDays:  s.catalog.GrantExpireDays,
			PeriodKey:   periodKey,
		}}
	case s.catalog.PlanForPrice(row.PriceID) == PlanYearly:
		return []credits.GrantCommand{{
			UserID:      row.UserID,
			Type:        models.CreditTypeSubscriptionRenewal,
			Amount:      s.catalog.SubscriptionMonthlyCredits,
			Description: "Monthly yearly-subscription credits",
			ExpireDays:  s.catalog.GrantExpireDays,
			PeriodKey:   periodKey,
		}}
	default:
		// Monthly subscribers and unknown one-time purchases get nothing
		// from distribution.
		return nil
	}
}
