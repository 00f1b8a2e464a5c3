package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditFox/app/repository"
	"github.com/ManuelReschke/CreditFox/internal/pkg/credits"
	"github.com/ManuelReschke/CreditFox/internal/pkg/statistics"
)

// HandleDistributeJob runs one distribution pass over all users. Protected
// by the internal token middleware; meant for cron and operators.
func HandleDistributeJob(c *fiber.Ctx) error {
	repos := repository.GetGlobalRepositories()
	engine := credits.NewDistributionEngine(creditService(), repos.Payment, billingService(), 0)

	result, err := engine.DistributeCreditsToAllUsers(time.Now().UTC())
	if err != nil {
		log.Errorf("distribution job failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "distribution_failed", "message": err.Error()})
	}
	return c.JSON(result)
}

// HandleExpireJob runs one expiration pass over all users with expirable
// lots. Protected by the internal token middleware.
func HandleExpireJob(c *fiber.Ctx) error {
	repos := repository.GetGlobalRepositories()
	job := credits.NewExpirationJob(creditService(), repos.Ledger, 0)

	result, err := job.Run()
	if err != nil {
		log.Errorf("expiration job failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "expiration_failed", "message": err.Error()})
	}
	return c.JSON(result)
}

// HandleInternalStats returns the cached operational aggregates plus today's
// counter row. Protected by the internal token middleware.
func HandleInternalStats(c *fiber.Ctx) error {
	return c.JSON(statistics.GetStatisticsData())
}
