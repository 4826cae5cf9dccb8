package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/auth"
)

const (
	localUserID   = "user_id"
	localUserRole = "user_role"
)

// TokenValidator checks a bearer token
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
}

// AuthRequired rejects requests without a valid bearer token and stores the
// caller's id and role in the request locals.
func AuthRequired(validator TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header format")
		}

		claims, err := validator.ValidateToken(c.UserContext(), strings.TrimSpace(parts[1]))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals(localUserID, claims.Subject)
		c.Locals(localUserRole, claims.UserRole())

		return c.Next()
	}
}

// RequireRole allows only callers holding one of roles
func RequireRole(roles ...domain.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := UserRole(c)
		for _, r := range roles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "insufficient role")
	}
}

// UserID returns the authenticated caller's id
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

// UserRole returns the authenticated caller's role
func UserRole(c *fiber.Ctx) domain.UserRole {
	role, _ := c.Locals(localUserRole).(domain.UserRole)
	return role
}

// IsAdmin reports whether the caller administers the whole fleet
func IsAdmin(c *fiber.Ctx) bool {
	return UserRole(c) == domain.UserRoleAdmin
}
