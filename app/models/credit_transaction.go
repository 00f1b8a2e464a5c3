package models

import "time"

// Credit transaction types. Grant types carry a consumable remaining amount
// ("lot"); usage and expire entries are negative audit records.
const (
	CreditTypeRegisterGift        = "register_gift"
	CreditTypeMonthlyRefresh      = "monthly_refresh"
	CreditTypeSubscriptionRenewal = "subscription_renewal"
	CreditTypeLifetimeMonthly     = "lifetime_monthly"
	CreditTypePurchasePackage     = "purchase_package"
	CreditTypeManualAdjustment    = "manual_adjustment"
	CreditTypeUsage               = "usage"
	CreditTypeExpire              = "expire"
)

// CreditTransaction is an append-mostly ledger entry. Grant lots start with
// remaining_amount == amount and are drawn down in FIFO order (soonest
// expiration first, undated lots last). Lots are never deleted; expiration
// zeroes the remaining amount and stamps expiration_date_processed_at.
type CreditTransaction struct {
	ID                        uint       `gorm:"primaryKey" json:"id"`
	UserID                    uint       `gorm:"not null;index:idx_credit_transactions_user_type,priority:1;uniqueIndex:uniq_credit_transactions_user_type_period,priority:1" json:"user_id"`
	Type                      string     `gorm:"type:varchar(32);not null;index:idx_credit_transactions_user_type,priority:2;uniqueIndex:uniq_credit_transactions_user_type_period,priority:2" json:"type"`
	Amount                    int64      `gorm:"not null" json:"amount"`
	RemainingAmount           *int64     `gorm:"default:null" json:"remaining_amount,omitempty"`
	Description               string     `gorm:"type:varchar(255);not null" json:"description"`
	PaymentID                 *uint      `gorm:"default:null;index" json:"payment_id,omitempty"`
	ExpirationDate            *time.Time `gorm:"type:timestamp;default:null;index" json:"expiration_date,omitempty"`
	ExpirationDateProcessedAt *time.Time `gorm:"type:timestamp;default:null" json:"expiration_date_processed_at,omitempty"`
	PeriodKey                 int        `gorm:"not null;default:0;index" json:"period_key"`
	// PeriodScope is a database-generated copy of PeriodKey that is NULL for
	// non-periodic lots, so the unique index only guards periodic grants.
	PeriodScope               *int       `gorm:"->;type:int GENERATED ALWAYS AS (nullif(period_key, 0)) STORED;uniqueIndex:uniq_credit_transactions_user_type_period,priority:3" json:"-"`
	CreatedAt                 time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt                 time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsGrantType reports whether the transaction type carries a consumable lot.
func IsGrantType(creditType string) bool {
	switch creditType {
	case CreditTypeUsage, CreditTypeExpire:
		return false
	default:
		return true
	}
}

// IsExpired reports whether the lot's expiration date has passed at the
// given instant. Undated lots never expire.
func (t *CreditTransaction) IsExpired(now time.Time) bool {
	return t.ExpirationDate != nil && !t.ExpirationDate.After(now)
}

// PeriodKeyFor builds the year*100+month key used for once-per-period
// grant idempotency.
func PeriodKeyFor(ref time.Time) int {
	return ref.Year()*100 + int(ref.Month())
}
