package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext is the authenticated API caller for one request. The API-key
// middleware resolves the key to a user and attaches this via Set; handlers
// that run without the middleware see the anonymous zero context.
type UserContext struct {
	UserID     uint   `json:"user_id"`
	Username   string `json:"username"`
	IsLoggedIn bool   `json:"is_logged_in"`
	IsAdmin    bool   `json:"is_admin"`
}

// Set attaches the caller to the request, plus the individual Locals keys
// some handlers read directly.
func Set(c *fiber.Ctx, uc UserContext) {
	c.Locals(KeyUserContext, uc)
	c.Locals(KeyFromProtected, true)
	c.Locals(KeyUserID, uc.UserID)
	c.Locals(KeyUsername, uc.Username)
	c.Locals(KeyIsAdmin, uc.IsAdmin)
}

// GetUserContext returns the caller attached by the API-key middleware, or
// an anonymous context when the request never passed authentication.
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx := c.Locals(KeyUserContext); ctx != nil {
		return ctx.(UserContext)
	}
	return UserContext{}
}

// IsLoggedIn reports whether the request carries an authenticated caller.
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsAdmin reports whether the caller has the admin role.
func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin
}

// GetUserID returns the caller's ID, or 0 for anonymous requests.
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}

// GetUsername returns the caller's name, or "" for anonymous requests.
func GetUsername(c *fiber.Ctx) string {
	return GetUserContext(c).Username
}
