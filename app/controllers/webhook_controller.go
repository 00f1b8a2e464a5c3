package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditFox/app/repository"
	"github.com/ManuelReschke/CreditFox/internal/pkg/billing"
	"github.com/ManuelReschke/CreditFox/internal/pkg/credits"
	"github.com/ManuelReschke/CreditFox/internal/pkg/database"
	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
	"github.com/ManuelReschke/CreditFox/internal/pkg/payment"
)

func billingService() *billing.Service {
	ledger := credits.NewServiceFromEnv(database.GetDB(), repository.GetGlobalRepositories().Ledger)
	return billing.NewService(ledger, billing.NewCatalogFromEnv())
}

func newReconciler(adapter payment.ProviderAdapter) *payment.Reconciler {
	repos := repository.GetGlobalRepositories()
	return payment.NewReconciler(database.GetDB(), adapter, repos.Payment, repos.PaymentEvent, billingService())
}

// HandleStripeWebhook receives Stripe webhook events.
func HandleStripeWebhook(c *fiber.Ctx) error {
	adapter := payment.NewStripeAdapter(env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))
	return handleWebhook(c, newReconciler(adapter), c.Get("Stripe-Signature"))
}

// HandleCreemWebhook receives Creem webhook events.
func HandleCreemWebhook(c *fiber.Ctx) error {
	adapter := payment.NewCreemAdapter(env.GetEnv("CREEM_WEBHOOK_SECRET", ""))
	return handleWebhook(c, newReconciler(adapter), c.Get("creem-signature"))
}

func handleWebhook(c *fiber.Ctx, reconciler *payment.Reconciler, signature string) error {
	result, err := reconciler.HandleWebhookEvent(c.Body(), signature)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidSignature):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		case errors.Is(err, payment.ErrInvalidPayload):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		default:
			log.Errorf("webhook processing failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
		}
	}

	status := "processed"
	if result.Skipped {
		status = "duplicate"
	} else if result.Ignored {
		status = "ignored"
	}
	return c.JSON(fiber.Map{
		"status":   status,
		"provider": result.Provider,
		"event_id": result.EventID,
	})
}
