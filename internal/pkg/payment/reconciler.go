package payment

import (
	"fmt"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/app/repository"
	"github.com/ManuelReschke/CreditFox/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reconciler drives the per-event state machine: verify, then acquire the
// idempotency lock, dispatch, and mark processed inside one database
// transaction, so a crash mid-dispatch rolls everything back and the
// provider's redelivery retries the event in full.
type Reconciler struct {
	db       *gorm.DB
	adapter  ProviderAdapter
	payments repository.PaymentRepository
	events   repository.PaymentEventRepository
	billing  BillingPort
}

// NewReconciler creates a reconciler for one provider adapter.
func NewReconciler(db *gorm.DB, adapter ProviderAdapter, payments repository.PaymentRepository, events repository.PaymentEventRepository, billing BillingPort) *Reconciler {
	return &Reconciler{
		db:       db,
		adapter:  adapter,
		payments: payments,
		events:   events,
		billing:  billing,
	}
}

// HandleWebhookEvent processes one inbound delivery. A dispatch error
// propagates out of the rolled-back transaction so the HTTP layer can
// signal the provider to retry.
func (r *Reconciler) HandleWebhookEvent(payload []byte, signatureHeader string) (*Result, error) {
	provider := r.adapter.Name()

	// Authenticity first; no lock is taken for forged deliveries.
	if !r.adapter.VerifySignature(payload, signatureHeader) {
		counter.AddWebhookFailed()
		return nil, ErrInvalidSignature
	}

	ev, err := r.adapter.ParseEvent(payload)
	if err != nil {
		counter.AddWebhookFailed()
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	result := &Result{Provider: provider, EventID: ev.ID, EventType: ev.Type}

	err = r.inTx(func(tx *gorm.DB) error {
		events := r.events.WithTx(tx)

		if err := events.InsertIfAbsent(&models.PaymentEvent{
			Provider:    provider,
			EventID:     ev.ID,
			EventType:   ev.Type,
			PayloadJSON: string(payload),
		}); err != nil {
			return fmt.Errorf("insert event row: %w", err)
		}

		stored, err := events.GetForUpdate(provider, ev.ID)
		if err != nil {
			return fmt.Errorf("lock event row: %w", err)
		}
		if stored.ProcessedAt != nil {
			result.Skipped = true
			return nil
		}

		if err := r.dispatch(tx, ev, result); err != nil {
			return err
		}

		// Same transaction as the dispatch: both the side effects and the
		// processed marker commit, or neither does.
		return events.MarkProcessed(stored.ID, "")
	})
	if err != nil {
		counter.AddWebhookFailed()
		return nil, err
	}

	if result.Skipped {
		counter.AddWebhookSkipped()
	} else {
		counter.AddWebhookProcessed()
	}
	return result, nil
}

func (r *Reconciler) inTx(fn func(tx *gorm.DB) error) error {
	if r.db == nil {
		return fn(nil)
	}
	return r.db.Transaction(fn)
}

func (r *Reconciler) dispatch(tx *gorm.DB, ev *Event, result *Result) error {
	switch ev.Kind {
	case KindCheckoutCompleted:
		return r.handleCheckout(tx, ev, result)
	case KindSubscriptionActive:
		return r.handleSubscriptionActive(tx, ev, result)
	case KindSubscriptionEnded:
		return r.handleSubscriptionEnded(tx, ev, result)
	default:
		log.Infof("[%s] ignoring event %s (%s)", r.adapter.Name(), ev.ID, ev.Type)
		result.Ignored = true
		return nil
	}
}

func (r *Reconciler) handleCheckout(tx *gorm.DB, ev *Event, result *Result) error {
	co := ev.Checkout
	if co == nil || co.SessionID == "" {
		return fmt.Errorf("%w: checkout event %s without session data", ErrInvalidPayload, ev.ID)
	}
	if co.UserID == 0 {
		log.Warnf("[%s] checkout %s has no user reference, ignoring", r.adapter.Name(), co.SessionID)
		result.Ignored = true
		return nil
	}

	switch {
	case r.billing.IsCreditsPackagePrice(co.PriceID):
		p, created, err := r.insertOneTime(tx, co)
		if err != nil {
			return err
		}
		if !created {
			// Session already recorded by an earlier event; grant nothing.
			result.Skipped = true
			return nil
		}
		return r.billing.AddPackageCredits(co.UserID, co.PriceID, &p.ID, tx)

	case r.billing.IsLifetimePrice(co.PriceID):
		_, created, err := r.insertOneTime(tx, co)
		if err != nil {
			return err
		}
		if !created {
			result.Skipped = true
			return nil
		}
		return r.billing.GrantLifetimePlan(co.UserID, co.PriceID, ev.CreatedAt, tx)

	default:
		log.Infof("[%s] checkout %s with unmapped price %q, ignoring", r.adapter.Name(), co.SessionID, co.PriceID)
		result.Ignored = true
		return nil
	}
}

func (r *Reconciler) insertOneTime(tx *gorm.DB, co *CheckoutData) (*models.Payment, bool, error) {
	sessionID := co.SessionID
	p := &models.Payment{
		PublicID:   uuid.NewString(),
		UserID:     co.UserID,
		Provider:   r.adapter.Name(),
		CustomerID: co.CustomerID,
		PriceID:    co.PriceID,
		Type:       models.PaymentTypeOneTime,
		SessionID:  &sessionID,
		Status:     models.PaymentStatusCompleted,
	}
	created, err := r.payments.WithTx(tx).InsertOneTimeIfAbsent(p)
	if err != nil {
		return nil, false, fmt.Errorf("insert one-time payment for session %s: %w", sessionID, err)
	}
	return p, created, nil
}

func (r *Reconciler) handleSubscriptionActive(tx *gorm.DB, ev *Event, result *Result) error {
	sub := ev.Subscription
	if sub == nil || sub.SubscriptionID == "" {
		return fmt.Errorf("%w: subscription event %s without subscription data", ErrInvalidPayload, ev.ID)
	}

	payments := r.payments.WithTx(tx)

	userID := sub.UserID
	if userID == 0 {
		// Updates often omit metadata; fall back to the stored snapshot.
		if existing, err := payments.FindBySubscriptionID(r.adapter.Name(), sub.SubscriptionID); err == nil {
			userID = existing.UserID
		}
	}
	if userID == 0 {
		log.Warnf("[%s] subscription %s has no user reference, ignoring", r.adapter.Name(), sub.SubscriptionID)
		result.Ignored = true
		return nil
	}

	subscriptionID := sub.SubscriptionID
	p := &models.Payment{
		PublicID:          uuid.NewString(),
		UserID:            userID,
		Provider:          r.adapter.Name(),
		CustomerID:        sub.CustomerID,
		PriceID:           sub.PriceID,
		Type:              models.PaymentTypeSubscription,
		SubscriptionID:    &subscriptionID,
		Status:            sub.Status,
		PeriodStart:       sub.PeriodStart,
		PeriodEnd:         sub.PeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	prevPeriodStart, err := payments.UpsertSubscription(p)
	if err != nil {
		return fmt.Errorf("upsert subscription %s: %w", subscriptionID, err)
	}

	// A renewal moved the period start forward; a webhook replay reports
	// the same cycle again and grants nothing.
	renewed := sub.PeriodStart != nil &&
		(prevPeriodStart == nil || sub.PeriodStart.After(*prevPeriodStart))
	if renewed && models.IsActiveStatus(sub.Status) {
		return r.billing.HandleRenewal(userID, sub.PriceID, *sub.PeriodStart, tx)
	}
	return nil
}

func (r *Reconciler) handleSubscriptionEnded(tx *gorm.DB, ev *Event, result *Result) error {
	sub := ev.Subscription
	if sub == nil || sub.SubscriptionID == "" {
		return fmt.Errorf("%w: subscription event %s without subscription data", ErrInvalidPayload, ev.ID)
	}
	if err := r.payments.WithTx(tx).UpdateSubscriptionStatus(
		r.adapter.Name(), sub.SubscriptionID, sub.Status, sub.CancelAtPeriodEnd); err != nil {
		return fmt.Errorf("update subscription %s status: %w", sub.SubscriptionID, err)
	}
	return nil
}
