package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
)

// StripeAdapter translates Stripe webhook deliveries into the
// provider-neutral event. Signature scheme: Stripe-Signature header with
// `t=<unix>,v1=<hmac-sha256-hex>` elements, MAC computed over "<t>.<payload>".
type StripeAdapter struct {
	WebhookSecret string
}

// NewStripeAdapter creates a Stripe adapter with the given webhook secret.
func NewStripeAdapter(webhookSecret string) *StripeAdapter {
	return &StripeAdapter{WebhookSecret: webhookSecret}
}

func (a *StripeAdapter) Name() string {
	return models.PaymentProviderStripe
}

func (a *StripeAdapter) VerifySignature(payload []byte, signatureHeader string) bool {
	secret := strings.TrimSpace(a.WebhookSecret)
	header := strings.TrimSpace(signatureHeader)
	if secret == "" || header == "" {
		return false
	}

	var timestamp string
	var candidates []string
	for _, element := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(element), "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "t":
			timestamp = parts[1]
		case "v1":
			candidates = append(candidates, parts[1])
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, candidate := range candidates {
		decoded, err := hex.DecodeString(strings.TrimSpace(candidate))
		if err != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			return true
		}
	}
	return false
}

// BuildStripeSignatureHeader produces a valid header for a payload; used by
// tests and local tooling.
func BuildStripeSignatureHeader(payload []byte, secret string, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

type stripeEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeSubscription struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (a *StripeAdapter) ParseEvent(payload []byte) (*Event, error) {
	var envelope stripeEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}
	if strings.TrimSpace(envelope.ID) == "" {
		return nil, errors.New("stripe event missing id")
	}

	ev := &Event{
		ID:        envelope.ID,
		Type:      envelope.Type,
		CreatedAt: time.Unix(envelope.Created, 0),
	}

	switch envelope.Type {
	case "checkout.session.completed":
		var session stripeCheckoutSession
		if err := json.Unmarshal(envelope.Data.Object, &session); err != nil {
			return nil, err
		}
		if strings.TrimSpace(session.ID) == "" {
			return nil, errors.New("stripe checkout session missing id")
		}
		userID := parseUserRef(session.Metadata["user_id"])
		if userID == 0 {
			userID = parseUserRef(session.ClientReferenceID)
		}
		ev.Kind = KindCheckoutCompleted
		ev.Checkout = &CheckoutData{
			SessionID:  session.ID,
			CustomerID: session.Customer,
			PriceID:    session.Metadata["price_id"],
			UserID:     userID,
		}

	case "customer.subscription.created", "customer.subscription.updated":
		sub, err := a.parseSubscription(envelope)
		if err != nil {
			return nil, err
		}
		ev.Kind = KindSubscriptionActive
		ev.Subscription = sub

	case "invoice.paid", "invoice.payment_succeeded":
		sub, err := a.parseInvoice(envelope)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			// One-off invoice without a subscription; nothing to reconcile.
			ev.Kind = KindIgnored
			return ev, nil
		}
		ev.Kind = KindSubscriptionActive
		ev.Subscription = sub

	case "customer.subscription.deleted":
		sub, err := a.parseSubscription(envelope)
		if err != nil {
			return nil, err
		}
		sub.Status = models.PaymentStatusCanceled
		ev.Kind = KindSubscriptionEnded
		ev.Subscription = sub

	default:
		ev.Kind = KindIgnored
	}

	return ev, nil
}

func (a *StripeAdapter) parseSubscription(envelope stripeEnvelope) (*SubscriptionData, error) {
	var raw stripeSubscription
	if err := json.Unmarshal(envelope.Data.Object, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, errors.New("stripe subscription missing id")
	}

	sub := &SubscriptionData{
		SubscriptionID:    raw.ID,
		CustomerID:        raw.Customer,
		UserID:            parseUserRef(raw.Metadata["user_id"]),
		Status:            normalizeStripeStatus(raw.Status),
		CancelAtPeriodEnd: raw.CancelAtPeriodEnd,
	}
	if len(raw.Items.Data) > 0 {
		sub.PriceID = raw.Items.Data[0].Price.ID
	}
	if raw.CurrentPeriodStart > 0 {
		t := time.Unix(raw.CurrentPeriodStart, 0)
		sub.PeriodStart = &t
	}
	if raw.CurrentPeriodEnd > 0 {
		t := time.Unix(raw.CurrentPeriodEnd, 0)
		sub.PeriodEnd = &t
	}
	return sub, nil
}

type stripeInvoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Lines        struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
			Period struct {
				Start int64 `json:"start"`
				End   int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

// parseInvoice extracts the subscription snapshot carried by a paid invoice.
// Returns nil for invoices not tied to a subscription.
func (a *StripeAdapter) parseInvoice(envelope stripeEnvelope) (*SubscriptionData, error) {
	var raw stripeInvoice
	if err := json.Unmarshal(envelope.Data.Object, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.Subscription) == "" {
		return nil, nil
	}

	// A paid invoice implies the subscription is (still) active.
	sub := &SubscriptionData{
		SubscriptionID: raw.Subscription,
		CustomerID:     raw.Customer,
		Status:         models.PaymentStatusActive,
	}
	if len(raw.Lines.Data) > 0 {
		line := raw.Lines.Data[0]
		sub.PriceID = line.Price.ID
		if line.Period.Start > 0 {
			t := time.Unix(line.Period.Start, 0)
			sub.PeriodStart = &t
		}
		if line.Period.End > 0 {
			t := time.Unix(line.Period.End, 0)
			sub.PeriodEnd = &t
		}
	}
	return sub, nil
}

func normalizeStripeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return models.PaymentStatusActive
	case "trialing":
		return models.PaymentStatusTrialing
	case "past_due":
		return models.PaymentStatusPastDue
	case "canceled":
		return models.PaymentStatusCanceled
	case "unpaid":
		return models.PaymentStatusUnpaid
	case "incomplete", "incomplete_expired":
		return models.PaymentStatusIncomplete
	case "paused":
		return models.PaymentStatusPaused
	default:
		return models.PaymentStatusIncomplete
	}
}

// parseUserRef converts a metadata user reference into a local user ID;
// anything non-numeric reads as 0 (unknown).
func parseUserRef(raw string) uint {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}
