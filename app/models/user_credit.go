package models

import "time"

// UserCredit holds the cached prepaid balance for a user. The row is created
// lazily on the first grant and mutated only by the credit ledger service;
// the invariant is current_credits == sum of remaining_amount over all
// unexpired grant lots.
type UserCredit struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;uniqueIndex:ux_user_credits_user" json:"user_id"`
	CurrentCredits int64     `gorm:"not null;default:0" json:"current_credits"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
