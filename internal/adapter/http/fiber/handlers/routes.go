package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/http/fiber/middleware"
	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
)

// API groups the v1 handlers and the per-route guards
type API struct {
	Chargers *ChargerHandler
	Bookings *BookingHandler
	Sessions *SessionHandler
	Wallet   *WalletHandler

	// Auth authenticates every v1 route
	Auth fiber.Handler
	// Optional per-user limits; nil means unlimited
	GeneralLimit  fiber.Handler
	BookingLimit  fiber.Handler
	TransferLimit fiber.Handler
}

// Register mounts the API under /api/v1
func (a *API) Register(app fiber.Router) {
	v1 := app.Group("/api/v1", a.Auth, orNext(a.GeneralLimit))

	chargers := v1.Group("/chargers")
	chargers.Post("/", middleware.RequireRole(domain.UserRoleOperator, domain.UserRoleAdmin), a.Chargers.Register)
	chargers.Get("/:id", a.Chargers.Get)
	chargers.Patch("/:id/status", a.Chargers.UpdateStatus)
	chargers.Put("/:id/pricing", a.Chargers.UpdatePricing)
	chargers.Get("/:id/availability", a.Chargers.Availability)
	chargers.Get("/:id/slots", a.Chargers.Slots)
	chargers.Get("/:id/bookings", a.Chargers.Bookings)
	chargers.Get("/:id/stats", a.Chargers.Stats)

	bookings := v1.Group("/bookings")
	bookings.Post("/", orNext(a.BookingLimit), a.Bookings.Create)
	bookings.Get("/", a.Bookings.List)
	bookings.Get("/:id", a.Bookings.Get)
	bookings.Post("/:id/confirm", a.Bookings.Confirm)
	bookings.Post("/:id/cancel", a.Bookings.Cancel)
	bookings.Post("/:id/reschedule", orNext(a.BookingLimit), a.Bookings.Reschedule)

	sessions := v1.Group("/sessions")
	sessions.Post("/start", a.Sessions.Start)
	sessions.Get("/active", a.Sessions.Active)
	sessions.Get("/history", a.Sessions.History)
	sessions.Get("/stats", a.Sessions.Stats)
	sessions.Get("/:id", a.Sessions.Get)
	sessions.Post("/:id/telemetry", a.Sessions.Telemetry)
	sessions.Post("/:id/pause", a.Sessions.Pause)
	sessions.Post("/:id/resume", a.Sessions.Resume)
	sessions.Post("/:id/stop", a.Sessions.Stop)

	wallet := v1.Group("/wallet")
	wallet.Get("/", a.Wallet.Get)
	wallet.Post("/topup", a.Wallet.TopUp)
	wallet.Post("/transfer", orNext(a.TransferLimit), a.Wallet.Transfer)
	wallet.Get("/transactions", a.Wallet.Transactions)
	wallet.Get("/audit", a.Wallet.Audit)
}

func orNext(h fiber.Handler) fiber.Handler {
	if h == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return h
}
