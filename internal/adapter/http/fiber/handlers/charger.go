package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/http/fiber/middleware"
	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

type ChargerHandler struct {
	chargers     ports.ChargerService
	availability ports.AvailabilityService
	bookings     ports.BookingService
	sessions     ports.SessionService
	location     *time.Location
	log          *zap.Logger
}

func NewChargerHandler(
	chargers ports.ChargerService,
	availability ports.AvailabilityService,
	bookings ports.BookingService,
	sessions ports.SessionService,
	location *time.Location,
	log *zap.Logger,
) *ChargerHandler {
	if location == nil {
		location = time.UTC
	}
	return &ChargerHandler{
		chargers:     chargers,
		availability: availability,
		bookings:     bookings,
		sessions:     sessions,
		location:     location,
		log:          log,
	}
}

type RegisterChargerRequest struct {
	Name          string               `json:"name"`
	Address       string               `json:"address"`
	TotalPorts    int                  `json:"total_ports"`
	PowerKW       float64              `json:"power_kw"`
	ConnectorType string               `json:"connector_type"`
	PriceSchedule domain.PriceSchedule `json:"price_schedule"`
}

type UpdateStatusRequest struct {
	Status domain.ChargerStatus `json:"status"`
}

func (h *ChargerHandler) Register(c *fiber.Ctx) error {
	var req RegisterChargerRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	charger, err := h.chargers.Register(c.UserContext(), &domain.Charger{
		OwnerID:       middleware.UserID(c),
		Name:          req.Name,
		Address:       req.Address,
		TotalPorts:    req.TotalPorts,
		PowerKW:       req.PowerKW,
		ConnectorType: req.ConnectorType,
		PriceSchedule: req.PriceSchedule,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(charger)
}

func (h *ChargerHandler) Get(c *fiber.Ctx) error {
	charger, err := h.chargers.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(charger)
}

func (h *ChargerHandler) UpdateStatus(c *fiber.Ctx) error {
	if err := h.ownCharger(c); err != nil {
		return err
	}
	var req UpdateStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	charger, err := h.chargers.SetStatus(c.UserContext(), c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(charger)
}

func (h *ChargerHandler) UpdatePricing(c *fiber.Ctx) error {
	if err := h.ownCharger(c); err != nil {
		return err
	}
	var schedule domain.PriceSchedule
	if err := parseBody(c, &schedule); err != nil {
		return err
	}
	charger, err := h.chargers.UpdatePricing(c.UserContext(), c.Params("id"), schedule)
	if err != nil {
		return err
	}
	return c.JSON(charger)
}

// Availability reports free ports for ?start=&end=
func (h *ChargerHandler) Availability(c *fiber.Ctx) error {
	start, err := queryTime(c, "start", time.Time{})
	if err != nil {
		return err
	}
	end, err := queryTime(c, "end", time.Time{})
	if err != nil {
		return err
	}
	if start.IsZero() || end.IsZero() {
		return domain.Validation("start and end are required")
	}

	a, err := h.availability.CheckAvailability(c.UserContext(), c.Params("id"), start, end)
	if err != nil {
		return err
	}
	return c.JSON(a)
}

// Slots lists the slot grid for ?date=YYYY-MM-DD, optionally with ?slot_minutes=
func (h *ChargerHandler) Slots(c *fiber.Ctx) error {
	day := time.Now().In(h.location)
	if raw := c.Query("date"); raw != "" {
		d, err := time.ParseInLocation("2006-01-02", raw, h.location)
		if err != nil {
			return domain.Validation("date must be YYYY-MM-DD")
		}
		day = d
	}
	slotLength := time.Duration(c.QueryInt("slot_minutes", 0)) * time.Minute

	slots, err := h.availability.Slots(c.UserContext(), c.Params("id"), day, slotLength)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"charger_id": c.Params("id"), "date": day.Format("2006-01-02"), "slots": slots})
}

// Bookings lists the charger's bookings overlapping ?from=&to= (default: next 7 days)
func (h *ChargerHandler) Bookings(c *fiber.Ctx) error {
	if err := h.ownCharger(c); err != nil {
		return err
	}
	now := time.Now()
	from, err := queryTime(c, "from", now)
	if err != nil {
		return err
	}
	to, err := queryTime(c, "to", from.Add(7*24*time.Hour))
	if err != nil {
		return err
	}

	bookings, err := h.bookings.ListByCharger(c.UserContext(), c.Params("id"), from, to)
	if err != nil {
		return err
	}
	return c.JSON(bookings)
}

// Stats totals completed sessions in ?from=&to= (default: last 30 days)
func (h *ChargerHandler) Stats(c *fiber.Ctx) error {
	if err := h.ownCharger(c); err != nil {
		return err
	}
	now := time.Now()
	to, err := queryTime(c, "to", now)
	if err != nil {
		return err
	}
	from, err := queryTime(c, "from", to.Add(-30*24*time.Hour))
	if err != nil {
		return err
	}

	stats, err := h.sessions.ChargerStats(c.UserContext(), c.Params("id"), from, to)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

// ownCharger lets only the owner, or an admin, administer a charger
func (h *ChargerHandler) ownCharger(c *fiber.Ctx) error {
	charger, err := h.chargers.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if charger.OwnerID != middleware.UserID(c) && !middleware.IsAdmin(c) {
		return fiber.NewError(fiber.StatusForbidden, "not the charger owner")
	}
	return nil
}
