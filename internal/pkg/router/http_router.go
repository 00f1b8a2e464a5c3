package router

import (
	"github.com/ManuelReschke/CreditFox/app/controllers"
	"github.com/ManuelReschke/CreditFox/internal/pkg/constants"
	"github.com/ManuelReschke/CreditFox/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Payment provider webhooks. Raw body, signature verified inside the
	// reconciler; no API key or rate limit here since providers retry on 429.
	app.Post(constants.WebhookStripeRoute, controllers.HandleStripeWebhook)
	app.Post(constants.WebhookCreemRoute, controllers.HandleCreemWebhook)

	// Cron/operator triggers for the background jobs.
	jobs := app.Group(constants.InternalJobsRoute, middleware.InternalTokenMiddleware())
	jobs.Post(constants.InternalDistributeRoute, controllers.HandleDistributeJob)
	jobs.Post(constants.InternalExpireRoute, controllers.HandleExpireJob)

	app.Get(constants.InternalStatsRoute, middleware.InternalTokenMiddleware(), controllers.HandleInternalStats)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
