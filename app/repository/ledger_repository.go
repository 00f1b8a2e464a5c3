package repository

import (
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ledgerRepository implements the LedgerRepository interface
type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new credit ledger repository instance
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *ledgerRepository) WithTx(tx *gorm.DB) LedgerRepository {
	if tx == nil {
		return r
	}
	return &ledgerRepository{db: tx}
}

// FindUserCredit retrieves the balance row for a user.
func (r *ledgerRepository) FindUserCredit(userID uint) (*models.UserCredit, error) {
	var uc models.UserCredit
	err := r.db.Where("user_id = ?", userID).First(&uc).Error
	if err != nil {
		return nil, err
	}
	return &uc, nil
}

// FindUserCreditForUpdate retrieves the balance row under a row lock.
// Must be called inside a transaction; it serializes concurrent
// read-modify-write cycles on the same user.
func (r *ledgerRepository) FindUserCreditForUpdate(userID uint) (*models.UserCredit, error) {
	var uc models.UserCredit
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).First(&uc).Error
	if err != nil {
		return nil, err
	}
	return &uc, nil
}

// UpsertUserCreditAdd creates the balance row if absent and otherwise applies
// an atomic increment, so concurrent grants never lose updates.
func (r *ledgerRepository) UpsertUserCreditAdd(userID uint, delta int64) error {
	uc := models.UserCredit{UserID: userID, CurrentCredits: delta}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"current_credits": gorm.Expr("current_credits + ?", delta),
			"updated_at":      time.Now(),
		}),
	}).Create(&uc).Error
}

// UpdateUserCredits sets the balance to an absolute value.
func (r *ledgerRepository) UpdateUserCredits(userID uint, balance int64) error {
	return r.db.Model(&models.UserCredit{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"current_credits": balance}).Error
}

// InsertTransaction appends a ledger entry.
func (r *ledgerRepository) InsertTransaction(txn *models.CreditTransaction) error {
	return r.db.Create(txn).Error
}

// FindFifoEligibleTransactions returns all grant lots with remaining credit
// that have not expired, ordered for FIFO consumption: soonest-to-expire
// first, undated lots last, then by creation time.
func (r *ledgerRepository) FindFifoEligibleTransactions(userID uint, now time.Time) ([]models.CreditTransaction, error) {
	var lots []models.CreditTransaction
	err := r.db.
		Where("user_id = ? AND type NOT IN ? AND remaining_amount > 0", userID,
			[]string{models.CreditTypeUsage, models.CreditTypeExpire}).
		Where("expiration_date IS NULL OR expiration_date > ?", now).
		Order("expiration_date IS NULL ASC, expiration_date ASC, created_at ASC").
		Find(&lots).Error
	return lots, err
}

// UpdateTransactionRemainingAmount sets the remaining amount of a lot.
func (r *ledgerRepository) UpdateTransactionRemainingAmount(id uint, remaining int64) error {
	return r.db.Model(&models.CreditTransaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"remaining_amount": remaining}).Error
}

// FindExpirableTransactions returns grant lots whose expiration date has
// passed and which have not been processed by the expiration job yet.
func (r *ledgerRepository) FindExpirableTransactions(userID uint, now time.Time) ([]models.CreditTransaction, error) {
	var lots []models.CreditTransaction
	err := r.db.
		Where("user_id = ? AND type NOT IN ?", userID,
			[]string{models.CreditTypeUsage, models.CreditTypeExpire}).
		Where("expiration_date IS NOT NULL AND expiration_date <= ?", now).
		Where("expiration_date_processed_at IS NULL").
		Order("expiration_date ASC, created_at ASC").
		Find(&lots).Error
	return lots, err
}

// MarkTransactionExpired zeroes the lot's remaining amount and stamps the
// idempotency marker for the expiration job.
func (r *ledgerRepository) MarkTransactionExpired(id uint, processedAt time.Time) error {
	return r.db.Model(&models.CreditTransaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"remaining_amount":             0,
			"expiration_date_processed_at": processedAt,
		}).Error
}

// FindTransactionByTypeAndPeriodKey looks up a grant by its once-per-period
// idempotency key.
func (r *ledgerRepository) FindTransactionByTypeAndPeriodKey(userID uint, creditType string, periodKey int) (*models.CreditTransaction, error) {
	var txn models.CreditTransaction
	err := r.db.
		Where("user_id = ? AND type = ? AND period_key = ?", userID, creditType, periodKey).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindTransactionByTypeInMonth is the legacy calendar fallback used when
// period-key idempotency is disabled. Month boundaries follow the database
// time zone.
func (r *ledgerRepository) FindTransactionByTypeInMonth(userID uint, creditType string, year int, month time.Month) (*models.CreditTransaction, error) {
	var txn models.CreditTransaction
	err := r.db.
		Where("user_id = ? AND type = ?", userID, creditType).
		Where("YEAR(created_at) = ? AND MONTH(created_at) = ?", year, int(month)).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindFirstTransactionOfType returns the oldest transaction of the given type.
func (r *ledgerRepository) FindFirstTransactionOfType(userID uint, creditType string) (*models.CreditTransaction, error) {
	var txn models.CreditTransaction
	err := r.db.
		Where("user_id = ? AND type = ?", userID, creditType).
		Order("created_at ASC").
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindUserIDsWithExpirableLots pages over the distinct users that have at
// least one unprocessed expired lot with remaining credit.
func (r *ledgerRepository) FindUserIDsWithExpirableLots(now time.Time, offset, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.CreditTransaction{}).
		Distinct("user_id").
		Where("type NOT IN ?", []string{models.CreditTypeUsage, models.CreditTypeExpire}).
		Where("expiration_date IS NOT NULL AND expiration_date <= ?", now).
		Where("expiration_date_processed_at IS NULL").
		Where("remaining_amount > 0").
		Order("user_id ASC").
		Offset(offset).Limit(limit).
		Pluck("user_id", &ids).Error
	return ids, err
}

// ListTransactionsByUser returns the user's ledger history, newest first.
func (r *ledgerRepository) ListTransactionsByUser(userID uint, offset, limit int) ([]models.CreditTransaction, error) {
	var txns []models.CreditTransaction
	err := r.db.
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&txns).Error
	return txns, err
}
