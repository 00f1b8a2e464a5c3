package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
)

// CreemAdapter translates Creem webhook deliveries into the
// provider-neutral event. Creem signs the raw payload with HMAC-SHA256 and
// sends the hex digest in the `creem-signature` header.
type CreemAdapter struct {
	WebhookSecret string
}

// NewCreemAdapter creates a Creem adapter with the given webhook secret.
func NewCreemAdapter(webhookSecret string) *CreemAdapter {
	return &CreemAdapter{WebhookSecret: webhookSecret}
}

func (a *CreemAdapter) Name() string {
	return models.PaymentProviderCreem
}

func (a *CreemAdapter) VerifySignature(payload []byte, signatureHeader string) bool {
	secret := strings.TrimSpace(a.WebhookSecret)
	signature := strings.TrimSpace(signatureHeader)
	if secret == "" || signature == "" {
		return false
	}
	decoded, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decoded)
}

// BuildCreemSignature produces a valid signature for a payload; used by
// tests and local tooling.
func BuildCreemSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type creemEnvelope struct {
	ID        string          `json:"id"`
	EventType string          `json:"eventType"`
	CreatedAt int64           `json:"created_at"`
	Object    json.RawMessage `json:"object"`
}

type creemObject struct {
	ID       string `json:"id"`
	Customer struct {
		ID string `json:"id"`
	} `json:"customer"`
	Product struct {
		ID string `json:"id"`
	} `json:"product"`
	Status                 string            `json:"status"`
	CurrentPeriodStartDate string            `json:"current_period_start_date"`
	CurrentPeriodEndDate   string            `json:"current_period_end_date"`
	CanceledAtPeriodEnd    bool              `json:"canceled_at_period_end"`
	Metadata               map[string]string `json:"metadata"`
	Subscription           struct {
		ID string `json:"id"`
	} `json:"subscription"`
}

func (a *CreemAdapter) ParseEvent(payload []byte) (*Event, error) {
	var envelope creemEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}
	if strings.TrimSpace(envelope.ID) == "" {
		return nil, errors.New("creem event missing id")
	}

	ev := &Event{
		ID:        envelope.ID,
		Type:      envelope.EventType,
		CreatedAt: time.Unix(envelope.CreatedAt, 0),
	}

	var object creemObject
	if len(envelope.Object) > 0 {
		if err := json.Unmarshal(envelope.Object, &object); err != nil {
			return nil, err
		}
	}

	switch envelope.EventType {
	case "checkout.completed":
		if strings.TrimSpace(object.ID) == "" {
			return nil, errors.New("creem checkout missing id")
		}
		ev.Kind = KindCheckoutCompleted
		ev.Checkout = &CheckoutData{
			SessionID:  object.ID,
			CustomerID: object.Customer.ID,
			PriceID:    object.Product.ID,
			UserID:     parseUserRef(object.Metadata["user_id"]),
		}

	case "subscription.active", "subscription.paid", "subscription.update", "subscription.trialing":
		sub, err := creemSubscription(&object)
		if err != nil {
			return nil, err
		}
		ev.Kind = KindSubscriptionActive
		ev.Subscription = sub

	case "subscription.canceled", "subscription.expired", "subscription.unpaid", "subscription.paused":
		sub, err := creemSubscription(&object)
		if err != nil {
			return nil, err
		}
		sub.Status = normalizeCreemStatus(strings.TrimPrefix(envelope.EventType, "subscription."))
		ev.Kind = KindSubscriptionEnded
		ev.Subscription = sub

	default:
		ev.Kind = KindIgnored
	}

	return ev, nil
}

func creemSubscription(object *creemObject) (*SubscriptionData, error) {
	subscriptionID := strings.TrimSpace(object.Subscription.ID)
	if subscriptionID == "" {
		subscriptionID = strings.TrimSpace(object.ID)
	}
	if subscriptionID == "" {
		return nil, errors.New("creem subscription missing id")
	}

	sub := &SubscriptionData{
		SubscriptionID:    subscriptionID,
		CustomerID:        object.Customer.ID,
		PriceID:           object.Product.ID,
		UserID:            parseUserRef(object.Metadata["user_id"]),
		Status:            normalizeCreemStatus(object.Status),
		CancelAtPeriodEnd: object.CanceledAtPeriodEnd,
	}
	if t, err := time.Parse(time.RFC3339, object.CurrentPeriodStartDate); err == nil {
		sub.PeriodStart = &t
	}
	if t, err := time.Parse(time.RFC3339, object.CurrentPeriodEndDate); err == nil {
		sub.PeriodEnd = &t
	}
	return sub, nil
}

func normalizeCreemStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "paid":
		return models.PaymentStatusActive
	case "trialing":
		return models.PaymentStatusTrialing
	case "past_due":
		return models.PaymentStatusPastDue
	case "canceled":
		return models.PaymentStatusCanceled
	case "unpaid":
		return models.PaymentStatusUnpaid
	case "expired":
		return models.PaymentStatusExpired
	case "paused":
		return models.PaymentStatusPaused
	default:
		return models.PaymentStatusIncomplete
	}
}
