// Package handlers implements HTTP request handlers for the QualiTrack
// application. Handlers parse form input, delegate to the service layer and
// render templates; all business rules and authorization live below.
package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/hyg1997/qualitrack/internal/apperrors"
	"github.com/hyg1997/qualitrack/internal/services"
)

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return fiber.StatusBadRequest
	case apperrors.KindAuthorization:
		return fiber.StatusForbidden
	case apperrors.KindNotFound:
		return fiber.StatusNotFound
	case apperrors.KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// fail writes an error response with the mapped status. Internal errors are
// masked; their detail only goes to the logs.
func fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		return c.Status(status).SendString("Something went wrong, please try again")
	}
	return c.Status(status).SendString(err.Error())
}

// requestMeta captures the request context the audit trail records.
func requestMeta(c *fiber.Ctx) services.RequestMeta {
	return services.RequestMeta{
		IPAddress: c.IP(),
		UserAgent: c.Get("User-Agent"),
	}
}

// paramID parses the :id URL parameter.
func paramID(c *fiber.Ctx) (int, error) {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return 0, apperrors.Validation("id", "invalid id %q", c.Params("id"))
	}
	return id, nil
}
