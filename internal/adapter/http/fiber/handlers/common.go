package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/http/fiber/middleware"
	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func paging(c *fiber.Ctx) (limit, offset int) {
	limit = c.QueryInt("limit", defaultPageSize)
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset = c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// queryTime parses an RFC 3339 query parameter, falling back to def when absent
func queryTime(c *fiber.Ctx, name string, def time.Time) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domain.Validation("%s must be an RFC 3339 timestamp", name)
	}
	return t, nil
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return domain.Validation("invalid body: %v", err)
	}
	return nil
}

// ownedBy hides resources of other users behind a not-found
func ownedBy(c *fiber.Ctx, entity, id, ownerID string) error {
	if ownerID == middleware.UserID(c) || middleware.IsAdmin(c) {
		return nil
	}
	return domain.NotFound(entity, id)
}
