package repository

import (
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// statsRepository implements the StatsRepository interface
type statsRepository struct {
	db *gorm.DB
}

// NewStatsRepository creates a new daily stats repository instance
func NewStatsRepository(db *gorm.DB) StatsRepository {
	return &statsRepository{db: db}
}

// IncrementDaily adds a delta to one counter column of the day's row,
// creating the row if it does not exist yet.
func (r *statsRepository) IncrementDaily(statDate time.Time, column string, delta int64) error {
	day := statDate.Truncate(24 * time.Hour)
	stat := models.CreditDailyStat{StatDate: day}
	switch column {
	case "credits_granted":
		stat.CreditsGranted = delta
	case "credits_consumed":
		stat.CreditsConsumed = delta
	case "credits_expired":
		stat.CreditsExpired = delta
	case "webhooks_processed":
		stat.WebhooksProcessed = delta
	case "webhooks_skipped":
		stat.WebhooksSkipped = delta
	case "webhooks_failed":
		stat.WebhooksFailed = delta
	default:
		return gorm.ErrInvalidField
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stat_date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			column:       gorm.Expr(column+" + ?", delta),
			"updated_at": time.Now(),
		}),
	}).Create(&stat).Error
}

// GetRange returns the daily rows between the two dates, inclusive.
func (r *statsRepository) GetRange(startDate, endDate time.Time) ([]models.CreditDailyStat, error) {
	var stats []models.CreditDailyStat
	err := r.db.
		Where("stat_date BETWEEN ? AND ?", startDate.Truncate(24*time.Hour), endDate.Truncate(24*time.Hour)).
		Order("stat_date ASC").
		Find(&stats).Error
	return stats, err
}
