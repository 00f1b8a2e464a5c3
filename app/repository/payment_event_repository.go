package repository

import (
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// paymentEventRepository implements the PaymentEventRepository interface
type paymentEventRepository struct {
	db *gorm.DB
}

// NewPaymentEventRepository creates a new payment event repository instance
func NewPaymentEventRepository(db *gorm.DB) PaymentEventRepository {
	return &paymentEventRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *paymentEventRepository) WithTx(tx *gorm.DB) PaymentEventRepository {
	if tx == nil {
		return r
	}
	return &paymentEventRepository{db: tx}
}

// InsertIfAbsent inserts the dedup row; a duplicate (provider, event_id)
// is a no-op.
func (r *paymentEventRepository) InsertIfAbsent(event *models.PaymentEvent) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "event_id"},
		},
		DoNothing: true,
	}).Create(event).Error
}

// GetForUpdate reads the dedup row back under a row lock. Must run inside
// the same transaction that will apply the event's side effects.
func (r *paymentEventRepository) GetForUpdate(provider, eventID string) (*models.PaymentEvent, error) {
	var event models.PaymentEvent
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider = ? AND event_id = ?", provider, eventID).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// MarkProcessed stamps processed_at and stores an optional error message.
func (r *paymentEventRepository) MarkProcessed(id uint, processingError string) error {
	now := time.Now()
	return r.db.Model(&models.PaymentEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     &now,
			"processing_error": processingError,
		}).Error
}
