package health

import (
	"github.com/gofiber/fiber/v2"
)

// FiberHandler serves the health probes
type FiberHandler struct {
	service *Service
}

// NewFiberHandler creates a new Fiber health handler
func NewFiberHandler(service *Service) *FiberHandler {
	return &FiberHandler{service: service}
}

// RegisterRoutes registers health check routes
func (h *FiberHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)
	r.Get("/healthz", h.Live)  // Kubernetes alias
	r.Get("/readyz", h.Ready) // Kubernetes alias
}

// Live handles the liveness probe
func (h *FiberHandler) Live(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.service.Health(c.UserContext()))
}

// Ready handles the readiness probe
func (h *FiberHandler) Ready(c *fiber.Ctx) error {
	response := h.service.Ready(c.UserContext())

	status := fiber.StatusOK
	if !response.Ready {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(response)
}
