package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/http/fiber/middleware"
	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

type BookingHandler struct {
	service ports.BookingService
	log     *zap.Logger
}

func NewBookingHandler(service ports.BookingService, log *zap.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

type RescheduleBookingRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Create books a window for the caller. Emergency priority can preempt other
// drivers' reservations and is reserved to operators and admins.
func (h *BookingHandler) Create(c *fiber.Ctx) error {
	var req ports.CreateBookingRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.UserID = middleware.UserID(c)
	if req.Emergency && !canBookEmergency(middleware.UserRole(c)) {
		h.log.Warn("Emergency booking refused",
			zap.String("user_id", req.UserID),
			zap.String("role", string(middleware.UserRole(c))),
		)
		return fiber.NewError(fiber.StatusForbidden, "emergency bookings require an operator or admin role")
	}

	booking, err := h.service.Create(c.UserContext(), &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(booking)
}

func canBookEmergency(role domain.UserRole) bool {
	return role == domain.UserRoleOperator || role == domain.UserRoleAdmin
}

func (h *BookingHandler) Get(c *fiber.Ctx) error {
	booking, err := h.owned(c)
	if err != nil {
		return err
	}
	return c.JSON(booking)
}

// List returns the caller's bookings, optionally filtered by ?status=
func (h *BookingHandler) List(c *fiber.Ctx) error {
	limit, offset := paging(c)
	status := domain.BookingStatus(c.Query("status"))

	bookings, err := h.service.ListByUser(c.UserContext(), middleware.UserID(c), status, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"bookings": bookings, "limit": limit, "offset": offset})
}

func (h *BookingHandler) Confirm(c *fiber.Ctx) error {
	if _, err := h.owned(c); err != nil {
		return err
	}
	booking, err := h.service.Confirm(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(booking)
}

func (h *BookingHandler) Cancel(c *fiber.Ctx) error {
	if _, err := h.owned(c); err != nil {
		return err
	}
	var req CancelBookingRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	booking, err := h.service.Cancel(c.UserContext(), c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(booking)
}

func (h *BookingHandler) Reschedule(c *fiber.Ctx) error {
	if _, err := h.owned(c); err != nil {
		return err
	}
	var req RescheduleBookingRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	booking, err := h.service.Reschedule(c.UserContext(), c.Params("id"), req.StartTime, req.EndTime)
	if err != nil {
		return err
	}
	return c.JSON(booking)
}

func (h *BookingHandler) owned(c *fiber.Ctx) (*domain.Booking, error) {
	id := c.Params("id")
	booking, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(c, "booking", id, booking.UserID); err != nil {
		return nil, err
	}
	return booking, nil
}
