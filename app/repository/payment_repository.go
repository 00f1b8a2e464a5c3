package repository

import (
	"errors"
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *paymentRepository) WithTx(tx *gorm.DB) PaymentRepository {
	if tx == nil {
		return r
	}
	return &paymentRepository{db: tx}
}

// UpsertSubscription creates or updates the subscription snapshot keyed by
// (provider, subscription_id) and returns the previous period start so the
// caller can tell a renewal from a webhook replay. Call inside a transaction.
func (r *paymentRepository) UpsertSubscription(p *models.Payment) (*time.Time, error) {
	if p.SubscriptionID == nil || *p.SubscriptionID == "" {
		return nil, errors.New("subscription_id is required")
	}

	var prevPeriodStart *time.Time
	var existing models.Payment
	err := r.db.Where("provider = ? AND subscription_id = ?", p.Provider, *p.SubscriptionID).
		First(&existing).Error
	switch {
	case err == nil:
		prevPeriodStart = existing.PeriodStart
	case errors.Is(err, gorm.ErrRecordNotFound):
		// first sighting of this subscription
	default:
		return nil, err
	}

	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"customer_id",
			"price_id",
			"status",
			"period_start",
			"period_end",
			"cancel_at_period_end",
			"updated_at",
		}),
	}).Create(p).Error; err != nil {
		return nil, err
	}

	// Ensure ID is populated after upsert.
	if err := r.db.Where("provider = ? AND subscription_id = ?", p.Provider, *p.SubscriptionID).
		First(p).Error; err != nil {
		return nil, err
	}
	return prevPeriodStart, nil
}

// InsertOneTimeIfAbsent inserts a one-time payment keyed by
// (provider, session_id); a duplicate insert is a no-op.
func (r *paymentRepository) InsertOneTimeIfAbsent(p *models.Payment) (bool, error) {
	if p.SessionID == nil || *p.SessionID == "" {
		return false, errors.New("session_id is required")
	}

	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "session_id"},
		},
		DoNothing: true,
	}).Create(p)
	if tx.Error != nil {
		return false, tx.Error
	}

	created := tx.RowsAffected > 0
	if err := r.db.Where("provider = ? AND session_id = ?", p.Provider, *p.SessionID).
		First(p).Error; err != nil {
		return false, err
	}
	return created, nil
}

// UpdateSubscriptionStatus updates subscription lifecycle state only; it
// never touches period columns so replayed cancel events stay side-effect
// free for the ledger.
func (r *paymentRepository) UpdateSubscriptionStatus(provider, subscriptionID, status string, cancelAtPeriodEnd bool) error {
	return r.db.Model(&models.Payment{}).
		Where("provider = ? AND subscription_id = ?", provider, subscriptionID).
		Updates(map[string]interface{}{
			"status":               status,
			"cancel_at_period_end": cancelAtPeriodEnd,
		}).Error
}

// FindBySubscriptionID resolves a provider subscription to its local snapshot.
func (r *paymentRepository) FindBySubscriptionID(provider, subscriptionID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("provider = ? AND subscription_id = ?", provider, subscriptionID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByUser returns all payment snapshots for a user.
func (r *paymentRepository) ListByUser(userID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("user_id = ?", userID).Order("id ASC").Find(&payments).Error
	return payments, err
}

// ListUserBillingRows pages over active users joined with their most recent
// entitling payment, if any. This feeds the distribution engine's cohort
// partitioning.
func (r *paymentRepository) ListUserBillingRows(offset, limit int) ([]UserBillingRow, error) {
	var rows []UserBillingRow
	// Subscriptions are preferred over one-time payments so a later credit
	// package purchase cannot mask an active subscription.
	err := r.db.Table("users u").
		Select("u.id AS user_id, COALESCE(p.price_id, '') AS price_id, COALESCE(p.type, '') AS payment_type, COALESCE(p.status, '') AS status, p.period_start").
		Joins(`LEFT JOIN payments p ON p.user_id = u.id AND p.status IN ? AND p.id = (
			SELECT p2.id FROM payments p2 WHERE p2.user_id = u.id AND p2.status IN ?
			ORDER BY (p2.type = ?) DESC, p2.id DESC LIMIT 1
		)`,
			[]string{models.PaymentStatusActive, models.PaymentStatusTrialing, models.PaymentStatusPastDue, models.PaymentStatusCompleted},
			[]string{models.PaymentStatusActive, models.PaymentStatusTrialing, models.PaymentStatusPastDue, models.PaymentStatusCompleted},
			models.PaymentTypeSubscription).
		Where("u.status = ? AND u.deleted_at IS NULL", models.STATUS_ACTIVE).
		Order("u.id ASC").
		Offset(offset).Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// CountUsers counts the active user population for job summaries.
func (r *paymentRepository) CountUsers() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Where("status = ?", models.STATUS_ACTIVE).Count(&count).Error
	return count, err
}
