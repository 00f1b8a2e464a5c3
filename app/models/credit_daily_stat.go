package models

import "time"

// CreditDailyStat is the flush target for the redis operation counters.
// One row per day, incremented in batches by the counter package.
type CreditDailyStat struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	StatDate          time.Time `gorm:"type:date;not null;uniqueIndex:ux_credit_daily_stats_date" json:"stat_date"`
	CreditsGranted    int64     `gorm:"not null;default:0" json:"credits_granted"`
	CreditsConsumed   int64     `gorm:"not null;default:0" json:"credits_consumed"`
	CreditsExpired    int64     `gorm:"not null;default:0" json:"credits_expired"`
	WebhooksProcessed int64     `gorm:"not null;default:0" json:"webhooks_processed"`
	WebhooksSkipped   int64     `gorm:"not null;default:0" json:"webhooks_skipped"`
	WebhooksFailed    int64     `gorm:"not null;default:0" json:"webhooks_failed"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
