package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/observability/telemetry"
)

// RequestLogger logs one line per request and records request metrics.
// The error handler has not run yet, so the status comes from the returned error.
func RequestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = StatusFor(err)
		}
		route := c.Route().Path
		elapsed := time.Since(start)

		telemetry.HTTPRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(c.Method(), route).Observe(elapsed.Seconds())

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("ip", c.IP()),
		}
		if id := UserID(c); id != "" {
			fields = append(fields, zap.String("user_id", id))
		}
		if status >= fiber.StatusInternalServerError {
			log.Warn("HTTP request", fields...)
		} else {
			log.Debug("HTTP request", fields...)
		}
		return err
	}
}
