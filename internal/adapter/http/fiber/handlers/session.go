package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/http/fiber/middleware"
	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

type SessionHandler struct {
	service ports.SessionService
	log     *zap.Logger
}

func NewSessionHandler(service ports.SessionService, log *zap.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		log:     log,
	}
}

func (h *SessionHandler) Start(c *fiber.Ctx) error {
	var req ports.StartSessionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.UserID = middleware.UserID(c)

	session, err := h.service.Start(c.UserContext(), &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

func (h *SessionHandler) Get(c *fiber.Ctx) error {
	session, err := h.owned(c)
	if err != nil {
		return err
	}
	return c.JSON(session)
}

// Telemetry accepts a meter sample. Operators may report for any session.
func (h *SessionHandler) Telemetry(c *fiber.Ctx) error {
	if middleware.UserRole(c) != domain.UserRoleOperator {
		if _, err := h.owned(c); err != nil {
			return err
		}
	}
	var sample domain.Telemetry
	if err := parseBody(c, &sample); err != nil {
		return err
	}
	session, err := h.service.RecordProgress(c.UserContext(), c.Params("id"), sample)
	if err != nil {
		return err
	}
	return c.JSON(session)
}

func (h *SessionHandler) Pause(c *fiber.Ctx) error {
	return h.transition(c, h.service.Pause)
}

func (h *SessionHandler) Resume(c *fiber.Ctx) error {
	return h.transition(c, h.service.Resume)
}

func (h *SessionHandler) Stop(c *fiber.Ctx) error {
	return h.transition(c, h.service.Stop)
}

func (h *SessionHandler) Active(c *fiber.Ctx) error {
	sessions, err := h.service.Active(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(sessions)
}

func (h *SessionHandler) History(c *fiber.Ctx) error {
	limit, offset := paging(c)
	sessions, err := h.service.History(c.UserContext(), middleware.UserID(c), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"sessions": sessions, "limit": limit, "offset": offset})
}

func (h *SessionHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.UserStats(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

type sessionOp func(ctx context.Context, id string) (*domain.ChargingSession, error)

func (h *SessionHandler) transition(c *fiber.Ctx, op sessionOp) error {
	if _, err := h.owned(c); err != nil {
		return err
	}
	session, err := op(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(session)
}

func (h *SessionHandler) owned(c *fiber.Ctx) (*domain.ChargingSession, error) {
	id := c.Params("id")
	session, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(c, "session", id, session.UserID); err != nil {
		return nil, err
	}
	return session, nil
}
