package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
)

// StatusFor maps an error to its HTTP status code
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrCapacityExceeded):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientFunds):
		return fiber.StatusPaymentRequired
	case errors.Is(err, domain.ErrStorageFailure):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, domain.ErrValidation):
		return "validation_error"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrStorageFailure):
		return "storage_failure"
	}
	return ""
}

func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := StatusFor(err)
		msg := err.Error()

		switch {
		case code == fiber.StatusServiceUnavailable && errors.Is(err, domain.ErrStorageFailure):
			log.Error("Storage failure", zap.Error(err), zap.String("path", c.Path()))
			msg = "temporarily unavailable, retry later"
		case code >= fiber.StatusInternalServerError:
			log.Error("Internal Server Error", zap.Error(err), zap.String("path", c.Path()))
			msg = "internal server error"
		}

		body := fiber.Map{"error": msg}
		if kind := errorCode(err); kind != "" {
			body["code"] = kind
		}
		return c.Status(code).JSON(body)
	}
}
