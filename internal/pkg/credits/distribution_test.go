package credits

import (
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/app/repository"
	"gorm.io/gorm"
)

// fakeBillingRows is a minimal PaymentRepository serving canned cohort rows.
type fakeBillingRows struct {
	rows []repository.UserBillingRow
}

var _ repository.PaymentRepository = (*fakeBillingRows)(nil)

func (f *fakeBillingRows) WithTx(tx *gorm.DB) repository.PaymentRepository { return f }
func (f *fakeBillingRows) UpsertSubscription(p *models.Payment) (*time.Time, error) {
	return nil, nil
}
func (f *fakeBillingRows) InsertOneTimeIfAbsent(p *models.Payment) (bool, error) { return false, nil }
func (f *fakeBillingRows) UpdateSubscriptionStatus(provider, subscriptionID, status string, cancelAtPeriodEnd bool) error {
	return nil
}
func (f *fakeBillingRows) FindBySubscriptionID(provider, subscriptionID string) (*models.Payment, error) {
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeBillingRows) ListByUser(userID uint) ([]models.Payment, error) { return nil, nil }
func (f *fakeBillingRows) ListUserBillingRows(offset, limit int) ([]repository.UserBillingRow, error) {
	if offset >= len(f.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.rows) {
		end = len(f.rows)
	}
	return f.rows[offset:end], nil
}
func (f *fakeBillingRows) CountUsers() (int64, error) { return int64(len(f.rows)), nil }

// plannerFunc adapts a function to the CohortPlanner interface.
type plannerFunc func(row repository.UserBillingRow, ref time.Time) []GrantCommand

func (p plannerFunc) PlanGrants(row repository.UserBillingRow, ref time.Time) []GrantCommand {
	return p(row, ref)
}

func freePlanner(amount int64) plannerFunc {
	return func(row repository.UserBillingRow, ref time.Time) []GrantCommand {
		return []GrantCommand{{
			UserID:      row.UserID,
			Type:        models.CreditTypeMonthlyRefresh,
			Amount:      amount,
			Description: "Monthly refresh",
			ExpireDays:  45,
			PeriodKey:   models.PeriodKeyFor(ref),
		}}
	}
}

func TestDistributeCreditsToAllUsers(t *testing.T) {
	now := time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)
	fake := newFakeLedger()
	svc := newTestService(fake, true, now)
	payments := &fakeBillingRows{rows: []repository.UserBillingRow{
		{UserID: 1}, {UserID: 2}, {UserID: 3},
	}}

	engine := NewDistributionEngine(svc, payments, freePlanner(50), 2)
	result, err := engine.DistributeCreditsToAllUsers(now)
	if err != nil {
		t.Fatalf("DistributeCreditsToAllUsers() = %v", err)
	}
	if result.UsersCount != 3 || result.Total != 3 || result.Processed != 3 || result.Skipped != 0 || result.ErrorCount != 0 {
		t.Fatalf("result = %+v", result)
	}
	for _, userID := range []uint{1, 2, 3} {
		if got := fake.balance(userID); got != 50 {
			t.Fatalf("user %d balance = %d, want 50", userID, got)
		}
	}
}

func TestDistributeCreditsIsIdempotentPerPeriod(t *testing.T) {
	now := time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)
	fake := newFakeLedger()
	svc := newTestService(fake, true, now)
	payments := &fakeBillingRows{rows: []repository.UserBillingRow{{UserID: 1}}}

	engine := NewDistributionEngine(svc, payments, freePlanner(50), 0)
	if _, err := engine.DistributeCreditsToAllUsers(now); err != nil {
		t.Fatalf("first run: %v", err)
	}
	result, err := engine.DistributeCreditsToAllUsers(now)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Processed != 0 || result.Skipped != 1 {
		t.Fatalf("second run result = %+v, want all skipped", result)
	}
	if got := fake.balance(1); got != 50 {
		t.Fatalf("balance = %d, want one grant only", got)
	}

	// A new period grants again.
	nextMonth := now.AddDate(0, 1, 0)
	result, err = engine.DistributeCreditsToAllUsers(nextMonth)
	if err != nil {
		t.Fatalf("next month run: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("next month result = %+v, want one processed", result)
	}
	if got := fake.balance(1); got != 100 {
		t.Fatalf("balance = %d, want 100", got)
	}
}

// gatedLedger holds every period-key check at a barrier so overlapping runs
// all pass the advisory check before any of them inserts its lot.
type gatedLedger struct {
	*fakeLedger
	barrier *sync.WaitGroup
}

func (g *gatedLedger) WithTx(tx *gorm.DB) repository.LedgerRepository { return g }

func (g *gatedLedger) FindTransactionByTypeAndPeriodKey(userID uint, creditType string, periodKey int) (*models.CreditTransaction, error) {
	txn, err := g.fakeLedger.FindTransactionByTypeAndPeriodKey(userID, creditType, periodKey)
	g.barrier.Done()
	g.barrier.Wait()
	return txn, err
}

// Two overlapping runs for the same period must still grant exactly once:
// both pass the advisory check, the unique period index rejects the loser's
// insert and that command counts as skipped.
func TestDistributeCreditsConcurrentRunsGrantOnce(t *testing.T) {
	ref := time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC)
	fake := newFakeLedger()
	var barrier sync.WaitGroup
	barrier.Add(2)
	svc := NewService(nil, &gatedLedger{fakeLedger: fake, barrier: &barrier}, Options{
		PeriodKeyIdempotency: true,
		Now:                  func() time.Time { return ref },
	})
	payments := &fakeBillingRows{rows: []repository.UserBillingRow{{UserID: 21}}}
	engine := NewDistributionEngine(svc, payments, freePlanner(50), 0)

	results := make([]*DistributionResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.DistributeCreditsToAllUsers(ref)
		}(i)
	}
	wg.Wait()

	processed, skipped := 0, 0
	for i, result := range results {
		if errs[i] != nil {
			t.Fatalf("run %d: %v", i, errs[i])
		}
		if result.ErrorCount != 0 {
			t.Fatalf("run %d errors: %v", i, result.Errors)
		}
		processed += result.Processed
		skipped += result.Skipped
	}
	if processed != 1 || skipped != 1 {
		t.Fatalf("processed = %d skipped = %d, want exactly one grant", processed, skipped)
	}
	if got := len(fake.transactionsOfType(21, models.CreditTypeMonthlyRefresh)); got != 1 {
		t.Fatalf("lots = %d, want 1", got)
	}
	if got := fake.balance(21); got != 50 {
		t.Fatalf("balance = %d, want 50", got)
	}
}

func TestDistributeCreditsErrorIsolation(t *testing.T) {
	now := time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)
	fake := newFakeLedger()
	svc := newTestService(fake, true, now)
	payments := &fakeBillingRows{rows: []repository.UserBillingRow{
		{UserID: 1}, {UserID: 2}, {UserID: 3},
	}}

	// User 2 gets an invalid command; its failure must not stop 1 and 3.
	planner := plannerFunc(func(row repository.UserBillingRow, ref time.Time) []GrantCommand {
		cmd := freePlanner(50)(row, ref)[0]
		if row.UserID == 2 {
			cmd.Amount = 0
		}
		return []GrantCommand{cmd}
	})

	engine := NewDistributionEngine(svc, payments, planner, 0)
	result, err := engine.DistributeCreditsToAllUsers(now)
	if err != nil {
		t.Fatalf("DistributeCreditsToAllUsers() = %v", err)
	}
	if result.Processed != 2 || result.ErrorCount != 1 {
		t.Fatalf("result = %+v, want 2 processed 1 error", result)
	}
	if fake.balance(1) != 50 || fake.balance(3) != 50 || fake.balance(2) != 0 {
		t.Fatalf("balances = %d/%d/%d", fake.balance(1), fake.balance(2), fake.balance(3))
	}
}

func TestDistributeCreditsSkipsUsersWithoutCommands(t *testing.T) {
	now := time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)
	fake := newFakeLedger()
	svc := newTestService(fake, true, now)
	payments := &fakeBillingRows{rows: []repository.UserBillingRow{
		{UserID: 1, PaymentType: models.PaymentTypeSubscription, Status: models.PaymentStatusActive},
	}}

	// A monthly subscriber is funded by renewal webhooks, not the engine.
	planner := plannerFunc(func(row repository.UserBillingRow, ref time.Time) []GrantCommand {
		return nil
	})

	engine := NewDistributionEngine(svc, payments, planner, 0)
	result, err := engine.DistributeCreditsToAllUsers(now)
	if err != nil {
		t.Fatalf("DistributeCreditsToAllUsers() = %v", err)
	}
	if result.Total != 0 || result.Processed != 0 {
		t.Fatalf("result = %+v, want nothing planned", result)
	}
}
