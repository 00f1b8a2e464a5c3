package models

import "time"

// Payment providers handled by the reconciler.
const (
	PaymentProviderStripe = "stripe"
	PaymentProviderCreem  = "creem"
)

const (
	PaymentTypeSubscription = "subscription"
	PaymentTypeOneTime      = "one_time"
)

const (
	PaymentStatusActive     = "active"
	PaymentStatusTrialing   = "trialing"
	PaymentStatusPastDue    = "past_due"
	PaymentStatusCanceled   = "canceled"
	PaymentStatusUnpaid     = "unpaid"
	PaymentStatusIncomplete = "incomplete"
	PaymentStatusExpired    = "expired"
	PaymentStatusPaused     = "paused"
	PaymentStatusCompleted  = "completed"
)

// Payment is one checkout/subscription state snapshot. Subscriptions are
// upserted keyed by (provider, subscription_id); one-time payments are
// inserted once keyed by (provider, session_id).
type Payment struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	PublicID          string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"public_id"`
	UserID            uint       `gorm:"not null;index:idx_payments_user_status,priority:1" json:"user_id"`
	Provider          string     `gorm:"type:varchar(20);not null;index:ux_payments_provider_subid,unique,priority:1;index:ux_payments_provider_session,unique,priority:1" json:"provider"`
	CustomerID        string     `gorm:"type:varchar(191);not null;default:'';index" json:"customer_id"`
	PriceID           string     `gorm:"type:varchar(191);not null;default:''" json:"price_id"`
	Type              string     `gorm:"type:varchar(16);not null" json:"type"`
	// Nullable so absent keys do not collide in the unique indexes.
	SubscriptionID    *string    `gorm:"type:varchar(191);default:null;index:ux_payments_provider_subid,unique,priority:2" json:"subscription_id,omitempty"`
	SessionID         *string    `gorm:"type:varchar(191);default:null;index:ux_payments_provider_session,unique,priority:2" json:"session_id,omitempty"`
	Status            string     `gorm:"type:varchar(32);not null;default:'active';index:idx_payments_user_status,priority:2" json:"status"`
	PeriodStart       *time.Time `gorm:"type:timestamp;default:null" json:"period_start,omitempty"`
	PeriodEnd         *time.Time `gorm:"type:timestamp;default:null" json:"period_end,omitempty"`
	CancelAtPeriodEnd bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActiveStatus reports whether the status still entitles the user to the
// paid plan.
func IsActiveStatus(status string) bool {
	switch status {
	case PaymentStatusActive, PaymentStatusTrialing, PaymentStatusPastDue:
		return true
	default:
		return false
	}
}
