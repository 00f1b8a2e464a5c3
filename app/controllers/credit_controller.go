package controllers

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditFox/app/repository"
	"github.com/ManuelReschke/CreditFox/internal/pkg/billing"
	"github.com/ManuelReschke/CreditFox/internal/pkg/credits"
	"github.com/ManuelReschke/CreditFox/internal/pkg/database"
	"github.com/ManuelReschke/CreditFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CreditFox/internal/pkg/usercontext"
)

var validate = validator.New()

func creditService() *credits.Service {
	return credits.NewServiceFromEnv(database.GetDB(), repository.GetGlobalRepositories().Ledger)
}

func userLimits(userID uint) entitlements.Limits {
	return entitlements.LimitsForUser(repository.GetGlobalRepositories().Payment, billing.NewCatalogFromEnv(), userID)
}

// HandleGetCredits returns the authenticated user's current balance.
func HandleGetCredits(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}

	balance, err := creditService().GetUserCredits(userCtx.UserID)
	if err != nil {
		log.Errorf("failed to load credits for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load credits"})
	}

	return c.JSON(fiber.Map{"user_id": userCtx.UserID, "credits": balance})
}

// ConsumeCreditsRequest is the body of POST /api/v1/credits/consume.
type ConsumeCreditsRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Description string `json:"description" validate:"required,min=1,max=255"`
}

// HandleConsumeCredits deducts credits for a metered action.
func HandleConsumeCredits(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}

	var req ConsumeCreditsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	req.Description = strings.TrimSpace(req.Description)
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	limits := userLimits(userCtx.UserID)
	if req.Amount > limits.MaxConsumePerRequest {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount_exceeds_plan_limit", "message": "Amount exceeds the per-request limit of your plan"})
	}

	svc := creditService()
	if err := svc.ConsumeCredits(userCtx.UserID, req.Amount, req.Description, nil); err != nil {
		switch {
		case errors.Is(err, credits.ErrInsufficientCredits):
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "insufficient_credits", "message": "Not enough credits"})
		case errors.Is(err, credits.ErrInvalidAmount), errors.Is(err, credits.ErrInvalidParams):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
		default:
			log.Errorf("failed to consume %d credits for user %d: %v", req.Amount, userCtx.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not consume credits"})
		}
	}

	balance, err := svc.GetUserCredits(userCtx.UserID)
	if err != nil {
		log.Errorf("failed to reload credits for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load credits"})
	}

	return c.JSON(fiber.Map{"user_id": userCtx.UserID, "consumed": req.Amount, "credits": balance})
}

// HandleGetCreditHistory returns the user's ledger entries, newest first.
func HandleGetCreditHistory(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}

	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)
	if offset < 0 {
		offset = 0
	}
	maxLimit := userLimits(userCtx.UserID).HistoryPageLimit
	if limit < 1 || limit > maxLimit {
		limit = 50
	}

	entries, err := creditService().ListTransactions(userCtx.UserID, offset, limit)
	if err != nil {
		log.Errorf("failed to load credit history for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load history"})
	}

	return c.JSON(fiber.Map{
		"user_id": userCtx.UserID,
		"offset":  offset,
		"limit":   limit,
		"entries": entries,
	})
}
