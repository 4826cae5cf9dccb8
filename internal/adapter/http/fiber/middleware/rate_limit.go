package middleware

import (
	"context"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Namalekanayaka/evcharging-rental/internal/service/ratelimit"
)

// Limiter is the sliding-window limiter behind RateLimit
type Limiter interface {
	Allow(ctx context.Context, rule ratelimit.Rule, key string) (ratelimit.Decision, error)
}

// RateLimit enforces rule per caller. Authenticated requests are keyed by
// user id, anonymous ones by client IP. A limiter error lets the request
// through.
func RateLimit(limiter Limiter, rule ratelimit.Rule, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := UserID(c)
		if key == "" {
			key = "ip:" + c.IP()
		}

		d, err := limiter.Allow(c.UserContext(), rule, key)
		if err != nil {
			log.Warn("Rate limiter unavailable", zap.String("rule", rule.Name), zap.Error(err))
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests",
				"code":  "rate_limited",
				"rule":  rule.Name,
			})
		}

		return c.Next()
	}
}

// Throttle is a process-wide token bucket in front of every route
func Throttle(rps float64, burst int) fiber.Handler {
	if rps <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	bucket := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *fiber.Ctx) error {
		if !bucket.Allow() {
			c.Set(fiber.HeaderRetryAfter, "1")
			return fiber.NewError(fiber.StatusTooManyRequests, "server busy")
		}
		return c.Next()
	}
}
