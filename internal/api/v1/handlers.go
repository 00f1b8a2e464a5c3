package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/ManuelReschke/CreditFox/app/controllers"
	"github.com/ManuelReschke/CreditFox/internal/pkg/middleware"
)

// Pong is the ping response body.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer implements the public v1 API surface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// RegisterHandlers attaches all v1 routes to the given router group.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)

	authed := router.Group("", middleware.APIKeyAuthMiddleware())
	authed.Get("/credits", s.GetCredits)
	authed.Post("/credits/consume", s.PostConsumeCredits)
	authed.Get("/credits/history", s.GetCreditHistory)
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetCredits returns the authenticated user's balance (API key protected).
func (s *APIServer) GetCredits(c *fiber.Ctx) error {
	return controllers.HandleGetCredits(c)
}

// PostConsumeCredits deducts credits for a metered action (API key protected).
func (s *APIServer) PostConsumeCredits(c *fiber.Ctx) error {
	return controllers.HandleConsumeCredits(c)
}

// GetCreditHistory returns the ledger history (API key protected).
func (s *APIServer) GetCreditHistory(c *fiber.Ctx) error {
	return controllers.HandleGetCreditHistory(c)
}
