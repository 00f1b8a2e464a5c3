package credits

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/app/repository"
	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
	"github.com/ManuelReschke/CreditFox/internal/pkg/metrics/counter"
	"gorm.io/gorm"
)

// Service is the credit ledger domain service. It is the only writer that
// may touch the balance row and the lot rows together; every mutating
// operation runs inside a single database transaction.
type Service struct {
	db   *gorm.DB
	repo repository.LedgerRepository

	// periodKeyIdempotency switches CanAddCreditsByType between the
	// period-key lookup and the legacy calendar-month fallback.
	periodKeyIdempotency bool

	now func() time.Time
}

// Options configure the credit ledger service.
type Options struct {
	PeriodKeyIdempotency bool
	// Now overrides the clock, used by tests and the expiration job.
	Now func() time.Time
}

// NewService creates a credit ledger service with an injected repository
// and database handle.
func NewService(db *gorm.DB, repo repository.LedgerRepository, opts Options) *Service {
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Service{
		db:                   db,
		repo:                 repo,
		periodKeyIdempotency: opts.PeriodKeyIdempotency,
		now:                  nowFn,
	}
}

// NewServiceFromEnv creates a service with the idempotency mode read from
// the environment (period-key mode is the default).
func NewServiceFromEnv(db *gorm.DB, repo repository.LedgerRepository) *Service {
	return NewService(db, repo, Options{
		PeriodKeyIdempotency: env.GetEnv("CREDITS_PERIOD_KEY_IDEMPOTENCY", "true") == "true",
	})
}

// inTx runs fn inside the caller's transaction when one is supplied,
// otherwise opens a new one. This is the single atomicity boundary for all
// multi-step ledger mutations.
func (s *Service) inTx(tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	if s.db == nil {
		return fn(nil)
	}
	return s.db.Transaction(fn)
}

// AddCreditsInput describes one credit grant.
type AddCreditsInput struct {
	UserID      uint
	Amount      int64
	Type        string
	Description string
	// ExpireDays > 0 sets an expiration date that many days from now.
	ExpireDays int
	// PeriodKey (year*100+month) enables once-per-period idempotency when
	// the feature is active; 0 means no period binding.
	PeriodKey int
	// PaymentID links the lot to the payment that funded it.
	PaymentID *uint
}

func (in AddCreditsInput) validate() error {
	if in.UserID == 0 || strings.TrimSpace(in.Type) == "" || strings.TrimSpace(in.Description) == "" {
		return ErrInvalidParams
	}
	if in.Amount <= 0 {
		return ErrInvalidAmount
	}
	if in.ExpireDays < 0 {
		return ErrInvalidExpireDays
	}
	return nil
}

// AddCredits grants credits to a user: a new lot is appended with
// remaining_amount == amount and the balance is incremented atomically. The
// balance row is created lazily on the first grant. A period-bound grant
// whose (user, type, period) lot already exists is rejected with
// ErrDuplicatePeriodGrant by the unique index before the balance is touched,
// so concurrent same-period grants cannot double-credit.
func (s *Service) AddCredits(in AddCreditsInput, tx *gorm.DB) error {
	if err := in.validate(); err != nil {
		return err
	}

	err := s.inTx(tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		remaining := in.Amount
		periodKey := s.storedPeriodKey(in.PeriodKey)
		lot := &models.CreditTransaction{
			UserID:          in.UserID,
			Type:            in.Type,
			Amount:          in.Amount,
			RemainingAmount: &remaining,
			Description:     in.Description,
			PaymentID:       in.PaymentID,
			PeriodKey:       periodKey,
		}
		if in.ExpireDays > 0 {
			exp := s.now().AddDate(0, 0, in.ExpireDays)
			lot.ExpirationDate = &exp
		}
		if err := repo.InsertTransaction(lot); err != nil {
			if periodKey > 0 && errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("grant lot for user %d period %d: %w", in.UserID, periodKey, ErrDuplicatePeriodGrant)
			}
			return fmt.Errorf("insert grant lot for user %d: %w", in.UserID, err)
		}

		if err := repo.UpsertUserCreditAdd(in.UserID, in.Amount); err != nil {
			return fmt.Errorf("upsert balance for user %d: %w", in.UserID, err)
		}
		return nil
	})
	if err == nil {
		_ = counter.AddCreditsGranted(in.Amount)
	}
	return err
}

func (s *Service) storedPeriodKey(periodKey int) int {
	if s.periodKeyIdempotency && periodKey > 0 {
		return periodKey
	}
	return 0
}

// ConsumeCredits deducts credits from the user's lots in FIFO order
// (soonest-to-expire first, undated lots last), decrements the balance and
// appends one negative usage entry. Fails with ErrInsufficientCredits if the
// balance or the lot totals cannot cover the amount; nothing is committed in
// that case.
func (s *Service) ConsumeCredits(userID uint, amount int64, description string, tx *gorm.DB) error {
	if userID == 0 || strings.TrimSpace(description) == "" {
		return ErrInvalidParams
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	err := s.inTx(tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now()

		uc, err := repo.FindUserCreditForUpdate(userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInsufficientCredits
			}
			return fmt.Errorf("load balance for user %d: %w", userID, err)
		}
		if uc.CurrentCredits < amount {
			return ErrInsufficientCredits
		}

		lots, err := repo.FindFifoEligibleTransactions(userID, now)
		if err != nil {
			return fmt.Errorf("load fifo lots for user %d: %w", userID, err)
		}

		stillNeeded := amount
		for _, lot := range lots {
			if stillNeeded == 0 {
				break
			}
			if lot.RemainingAmount == nil || *lot.RemainingAmount <= 0 {
				continue
			}
			deduct := *lot.RemainingAmount
			if deduct > stillNeeded {
				deduct = stillNeeded
			}
			if err := repo.UpdateTransactionRemainingAmount(lot.ID, *lot.RemainingAmount-deduct); err != nil {
				return fmt.Errorf("deduct lot %d: %w", lot.ID, err)
			}
			stillNeeded -= deduct
		}
		// Balance and lot totals may diverge only via a bug; refuse to go
		// negative through the lots even when the cached balance looked
		// sufficient. The transaction rolls everything back.
		if stillNeeded > 0 {
			return ErrInsufficientCredits
		}

		if err := repo.UpdateUserCredits(userID, uc.CurrentCredits-amount); err != nil {
			return fmt.Errorf("update balance for user %d: %w", userID, err)
		}

		usage := &models.CreditTransaction{
			UserID:      userID,
			Type:        models.CreditTypeUsage,
			Amount:      -amount,
			Description: description,
		}
		if err := repo.InsertTransaction(usage); err != nil {
			return fmt.Errorf("insert usage entry for user %d: %w", userID, err)
		}
		return nil
	})
	if err == nil {
		_ = counter.AddCreditsConsumed(amount)
	}
	return err
}

// ProcessExpiredCredits zeroes all lots of the user whose expiration date
// has passed, debits the balance by the expired total (floored at 0) and
// appends one negative expire entry. No-op when nothing is expirable.
// Returns the expired total.
func (s *Service) ProcessExpiredCredits(userID uint, tx *gorm.DB) (int64, error) {
	if userID == 0 {
		return 0, ErrInvalidParams
	}

	var expiredTotal int64
	err := s.inTx(tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now()

		var current int64
		uc, err := repo.FindUserCreditForUpdate(userID)
		switch {
		case err == nil:
			current = uc.CurrentCredits
		case errors.Is(err, gorm.ErrRecordNotFound):
			// lots without a balance row should not happen; treat as 0
		default:
			return fmt.Errorf("load balance for user %d: %w", userID, err)
		}

		lots, err := repo.FindExpirableTransactions(userID, now)
		if err != nil {
			return fmt.Errorf("load expirable lots for user %d: %w", userID, err)
		}
		if len(lots) == 0 {
			return nil
		}

		for _, lot := range lots {
			if lot.RemainingAmount != nil && *lot.RemainingAmount > 0 {
				expiredTotal += *lot.RemainingAmount
			}
			if err := repo.MarkTransactionExpired(lot.ID, now); err != nil {
				return fmt.Errorf("mark lot %d expired: %w", lot.ID, err)
			}
		}
		if expiredTotal == 0 {
			return nil
		}

		newBalance := current - expiredTotal
		if newBalance < 0 {
			newBalance = 0
		}
		if err := repo.UpdateUserCredits(userID, newBalance); err != nil {
			return fmt.Errorf("update balance for user %d: %w", userID, err)
		}

		expire := &models.CreditTransaction{
			UserID:      userID,
			Type:        models.CreditTypeExpire,
			Amount:      -expiredTotal,
			Description: fmt.Sprintf("Expired %d credits", expiredTotal),
		}
		if err := repo.InsertTransaction(expire); err != nil {
			return fmt.Errorf("insert expire entry for user %d: %w", userID, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if expiredTotal > 0 {
		_ = counter.AddCreditsExpired(expiredTotal)
	}
	return expiredTotal, nil
}

// CanAddCreditsByType reports whether a periodic grant of the given type is
// still due. In period-key mode a positive key is matched against existing
// lots; otherwise the legacy calendar month/year of the reference date is
// checked. The check is a plain read and therefore advisory under
// concurrency; the unique period index enforced in AddCredits is the
// authoritative guard. Run this inside the same transaction as the grant.
func (s *Service) CanAddCreditsByType(userID uint, creditType string, periodKey int, ref time.Time, tx *gorm.DB) (bool, error) {
	if userID == 0 || strings.TrimSpace(creditType) == "" {
		return false, ErrInvalidParams
	}

	repo := s.repo.WithTx(tx)
	if s.periodKeyIdempotency && periodKey > 0 {
		_, err := repo.FindTransactionByTypeAndPeriodKey(userID, creditType, periodKey)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		return false, nil
	}

	// Legacy fallback: ambiguous across time zones and month-boundary runs,
	// kept only for installations that cannot enable period keys.
	_, err := repo.FindTransactionByTypeInMonth(userID, creditType, ref.Year(), ref.Month())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// HasTransactionOfType reports whether the user ever received a transaction
// of the given type.
func (s *Service) HasTransactionOfType(userID uint, creditType string, tx *gorm.DB) (bool, error) {
	_, err := s.repo.WithTx(tx).FindFirstTransactionOfType(userID, creditType)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// HasEnoughCredits reports whether the cached balance covers the amount.
func (s *Service) HasEnoughCredits(userID uint, amount int64) (bool, error) {
	balance, err := s.GetUserCredits(userID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// GetUserCredits returns the user's balance; a user without a balance row
// reads as 0.
func (s *Service) GetUserCredits(userID uint) (int64, error) {
	uc, err := s.repo.FindUserCredit(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uc.CurrentCredits, nil
}

// UpdateUserCredits sets the balance to an absolute value. Administrative
// escape hatch; normal mutation goes through AddCredits/ConsumeCredits.
func (s *Service) UpdateUserCredits(userID uint, balance int64, tx *gorm.DB) error {
	if userID == 0 || balance < 0 {
		return ErrInvalidParams
	}
	return s.repo.WithTx(tx).UpdateUserCredits(userID, balance)
}

// ListTransactions returns the user's ledger history, newest first.
func (s *Service) ListTransactions(userID uint, offset, limit int) ([]models.CreditTransaction, error) {
	return s.repo.ListTransactionsByUser(userID, offset, limit)
}
