package usercontext

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestSetAndGetUserContext(t *testing.T) {
	app := fiber.New()
	app.Get("/t", func(c *fiber.Ctx) error {
		Set(c, UserContext{UserID: 7, Username: "alice", IsLoggedIn: true, IsAdmin: true})

		got := GetUserContext(c)
		if got.UserID != 7 || got.Username != "alice" || !got.IsLoggedIn || !got.IsAdmin {
			t.Errorf("GetUserContext() = %+v", got)
		}
		if GetUserID(c) != 7 || GetUsername(c) != "alice" || !IsLoggedIn(c) || !IsAdmin(c) {
			t.Error("accessor mismatch with attached context")
		}
		if c.Locals(KeyUserID) != uint(7) || c.Locals(KeyFromProtected) != true {
			t.Error("individual Locals keys not set")
		}
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/t", nil))
	if err != nil {
		t.Fatalf("app.Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestGetUserContextAnonymous(t *testing.T) {
	app := fiber.New()
	app.Get("/t", func(c *fiber.Ctx) error {
		got := GetUserContext(c)
		if got.IsLoggedIn || got.IsAdmin || got.UserID != 0 || got.Username != "" {
			t.Errorf("anonymous context = %+v", got)
		}
		if GetUserID(c) != 0 || IsLoggedIn(c) {
			t.Error("accessors must report anonymous without the middleware")
		}
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/t", nil))
	if err != nil {
		t.Fatalf("app.Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
