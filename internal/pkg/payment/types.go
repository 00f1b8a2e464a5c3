package payment

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// EventKind classifies a provider webhook event for dispatch.
type EventKind int

const (
	// KindIgnored covers event types without ledger side effects.
	KindIgnored EventKind = iota
	// KindCheckoutCompleted is a finished checkout session (credits package
	// or one-time lifetime plan).
	KindCheckoutCompleted
	// KindSubscriptionActive covers created/updated/paid subscription
	// lifecycle events that may carry a billing-cycle rollover.
	KindSubscriptionActive
	// KindSubscriptionEnded covers canceled/unpaid/expired lifecycle events;
	// status-only updates with no credit side effect.
	KindSubscriptionEnded
)

// CheckoutData is the provider-neutral view of a completed checkout session.
type CheckoutData struct {
	SessionID  string
	CustomerID string
	PriceID    string
	UserID     uint
}

// SubscriptionData is the provider-neutral view of a subscription snapshot.
type SubscriptionData struct {
	SubscriptionID    string
	CustomerID        string
	PriceID           string
	UserID            uint
	Status            string
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	CancelAtPeriodEnd bool
}

// Event is the provider-neutral inbound event the reconciler operates on.
type Event struct {
	ID        string
	Type      string
	CreatedAt time.Time
	Kind      EventKind

	Checkout     *CheckoutData
	Subscription *SubscriptionData
}

// ProviderAdapter abstracts one payment provider: authenticity check plus
// translation of the raw payload into the provider-neutral event. Only the
// adapter varies per provider; the reconciliation state machine is shared.
type ProviderAdapter interface {
	Name() string
	VerifySignature(payload []byte, signatureHeader string) bool
	ParseEvent(payload []byte) (*Event, error)
}

// BillingPort is the billing-cycle collaborator the reconciler drives inside
// its transaction. Implemented by the billing service.
type BillingPort interface {
	IsLifetimePrice(priceID string) bool
	IsCreditsPackagePrice(priceID string) bool
	AddPackageCredits(userID uint, priceID string, paymentID *uint, tx *gorm.DB) error
	GrantLifetimePlan(userID uint, priceID string, cycleRef time.Time, tx *gorm.DB) error
	HandleRenewal(userID uint, priceID string, cycleRef time.Time, tx *gorm.DB) error
}

// Result reports what one webhook delivery did, for response shaping and
// operational counters.
type Result struct {
	Provider  string `json:"provider"`
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	// Skipped marks a replayed event whose side effects were already
	// applied (idempotency lock hit).
	Skipped bool `json:"skipped"`
	// Ignored marks an event type or payload without ledger side effects.
	Ignored bool `json:"ignored"`
}

var (
	// ErrInvalidSignature aborts processing before any persistence.
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	// ErrInvalidPayload marks payloads the adapter cannot parse.
	ErrInvalidPayload = errors.New("payment: invalid webhook payload")
)
