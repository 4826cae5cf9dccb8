package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/pkg/config"
)

var errServerFailure = errors.New("server failure")

// CircuitBreaker sheds load with 503 while requests keep failing with 5xx,
// typically because the database is down. Client errors do not count.
func CircuitBreaker(cfg config.CircuitBreakerConfig, log *zap.Logger) fiber.Handler {
	minRequests := cfg.MaxRequests
	if minRequests == 0 {
		minRequests = 3
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "evrental-api",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return func(c *fiber.Ctx) error {
		var handlerErr error
		_, err := cb.Execute(func() (interface{}, error) {
			handlerErr = c.Next()
			if handlerErr != nil && StatusFor(handlerErr) >= fiber.StatusInternalServerError {
				return nil, errServerFailure
			}
			if handlerErr == nil && c.Response().StatusCode() >= fiber.StatusInternalServerError {
				return nil, errServerFailure
			}
			return nil, nil
		})

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fiber.NewError(fiber.StatusServiceUnavailable, "service temporarily unavailable")
		}

		return handlerErr
	}
}
