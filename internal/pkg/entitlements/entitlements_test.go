package entitlements

import (
	"testing"
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/app/repository"
	"github.com/ManuelReschke/CreditFox/internal/pkg/billing"
	"gorm.io/gorm"
)

type stubPayments struct {
	rows []models.Payment
	err  error
}

var _ repository.PaymentRepository = (*stubPayments)(nil)

func (s *stubPayments) WithTx(tx *gorm.DB) repository.PaymentRepository  { return s }
func (s *stubPayments) ListByUser(userID uint) ([]models.Payment, error) { return s.rows, s.err }
func (s *stubPayments) UpsertSubscription(p *models.Payment) (*time.Time, error) {
	return nil, nil
}
func (s *stubPayments) InsertOneTimeIfAbsent(p *models.Payment) (bool, error) { return false, nil }
func (s *stubPayments) UpdateSubscriptionStatus(provider, subscriptionID, status string, cancelAtPeriodEnd bool) error {
	return nil
}
func (s *stubPayments) FindBySubscriptionID(provider, subscriptionID string) (*models.Payment, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *stubPayments) ListUserBillingRows(offset, limit int) ([]repository.UserBillingRow, error) {
	return nil, nil
}
func (s *stubPayments) CountUsers() (int64, error) { return 0, nil }

func testCatalog() *billing.Catalog {
	return &billing.Catalog{
		MonthlyPriceID:  "price_monthly",
		YearlyPriceID:   "price_yearly",
		LifetimePriceID: "price_lifetime",
	}
}

func TestPlanForUser(t *testing.T) {
	catalog := testCatalog()

	tests := []struct {
		name string
		rows []models.Payment
		want string
	}{
		{
			name: "no payments means free",
			want: billing.PlanFree,
		},
		{
			name: "active monthly subscription",
			rows: []models.Payment{
				{Type: models.PaymentTypeSubscription, PriceID: "price_monthly", Status: models.PaymentStatusActive},
			},
			want: billing.PlanMonthly,
		},
		{
			name: "canceled subscription falls back to free",
			rows: []models.Payment{
				{Type: models.PaymentTypeSubscription, PriceID: "price_yearly", Status: models.PaymentStatusCanceled},
			},
			want: billing.PlanFree,
		},
		{
			name: "lifetime purchase wins over subscription",
			rows: []models.Payment{
				{Type: models.PaymentTypeSubscription, PriceID: "price_monthly", Status: models.PaymentStatusActive},
				{Type: models.PaymentTypeOneTime, PriceID: "price_lifetime", Status: models.PaymentStatusCompleted},
			},
			want: billing.PlanLifetime,
		},
		{
			name: "credit package purchase grants no plan",
			rows: []models.Payment{
				{Type: models.PaymentTypeOneTime, PriceID: "price_pack_m", Status: models.PaymentStatusCompleted},
			},
			want: billing.PlanFree,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanForUser(&stubPayments{rows: tt.rows}, catalog, 1)
			if got != tt.want {
				t.Fatalf("PlanForUser() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestForPlanLimits(t *testing.T) {
	free := ForPlan(billing.PlanFree)
	paid := ForPlan(billing.PlanMonthly)

	if free.MaxConsumePerRequest >= paid.MaxConsumePerRequest {
		t.Fatalf("free limit %d not below paid limit %d", free.MaxConsumePerRequest, paid.MaxConsumePerRequest)
	}
	if ForPlan("something_else") != free {
		t.Fatal("unknown plan does not fall back to free limits")
	}
	if ForPlan(billing.PlanLifetime) != paid {
		t.Fatal("lifetime plan does not get paid limits")
	}
}
