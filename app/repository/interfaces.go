package repository

import (
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
	"gorm.io/gorm"
)

// LedgerRepository defines the data-access contract for the credit ledger.
// It is pure CRUD: no method encodes business rules, so the credit service
// stays testable against a fake. WithTx returns a copy bound to the given
// transaction so multi-step mutations compose atomically.
type LedgerRepository interface {
	WithTx(tx *gorm.DB) LedgerRepository
	FindUserCredit(userID uint) (*models.UserCredit, error)
	FindUserCreditForUpdate(userID uint) (*models.UserCredit, error)
	UpsertUserCreditAdd(userID uint, delta int64) error
	UpdateUserCredits(userID uint, balance int64) error
	InsertTransaction(txn *models.CreditTransaction) error
	FindFifoEligibleTransactions(userID uint, now time.Time) ([]models.CreditTransaction, error)
	UpdateTransactionRemainingAmount(id uint, remaining int64) error
	FindExpirableTransactions(userID uint, now time.Time) ([]models.CreditTransaction, error)
	MarkTransactionExpired(id uint, processedAt time.Time) error
	FindTransactionByTypeAndPeriodKey(userID uint, creditType string, periodKey int) (*models.CreditTransaction, error)
	FindTransactionByTypeInMonth(userID uint, creditType string, year int, month time.Month) (*models.CreditTransaction, error)
	FindFirstTransactionOfType(userID uint, creditType string) (*models.CreditTransaction, error)
	FindUserIDsWithExpirableLots(now time.Time, offset, limit int) ([]uint, error)
	ListTransactionsByUser(userID uint, offset, limit int) ([]models.CreditTransaction, error)
}

// UserBillingRow pairs a user with their current active payment, if any.
// This is the input the distribution engine partitions into cohorts.
type UserBillingRow struct {
	UserID      uint
	PriceID     string
	PaymentType string
	Status      string
	PeriodStart *time.Time
}

// PaymentRepository defines payment state persistence. Subscriptions are
// upserted keyed by (provider, subscription_id); one-time payments are
// inserted once keyed by (provider, session_id).
type PaymentRepository interface {
	WithTx(tx *gorm.DB) PaymentRepository
	UpsertSubscription(p *models.Payment) (prevPeriodStart *time.Time, err error)
	InsertOneTimeIfAbsent(p *models.Payment) (created bool, err error)
	UpdateSubscriptionStatus(provider, subscriptionID, status string, cancelAtPeriodEnd bool) error
	FindBySubscriptionID(provider, subscriptionID string) (*models.Payment, error)
	ListByUser(userID uint) ([]models.Payment, error)
	ListUserBillingRows(offset, limit int) ([]UserBillingRow, error)
	CountUsers() (int64, error)
}

// PaymentEventRepository implements the webhook idempotency lock:
// insert-if-absent, then read back under a row lock, then mark processed
// inside the same transaction.
type PaymentEventRepository interface {
	WithTx(tx *gorm.DB) PaymentEventRepository
	InsertIfAbsent(event *models.PaymentEvent) error
	GetForUpdate(provider, eventID string) (*models.PaymentEvent, error)
	MarkProcessed(id uint, processingError string) error
}

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// StatsRepository persists the daily operation counters flushed from redis.
type StatsRepository interface {
	IncrementDaily(statDate time.Time, column string, delta int64) error
	GetRange(startDate, endDate time.Time) ([]models.CreditDailyStat, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Ledger       LedgerRepository
	Payment      PaymentRepository
	PaymentEvent PaymentEventRepository
	User         UserRepository
	Stats        StatsRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Ledger:       NewLedgerRepository(db),
		Payment:      NewPaymentRepository(db),
		PaymentEvent: NewPaymentEventRepository(db),
		User:         NewUserRepository(db),
		Stats:        NewStatsRepository(db),
	}
}
