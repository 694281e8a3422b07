package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// ErrorHandler renders every error as {"error":{"code","message"}}.
// Messages of wrapped causes are logged, never returned to the client.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		// Routing and body limit errors raised by fiber itself
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return writeError(c, fiberErr.Code, "HTTP_ERROR", fiberErr.Message)
		}

		var appErr *domain.AppError
		if !errors.As(err, &appErr) {
			appErr = domain.ErrInternal.WithError(err)
		}

		if appErr.StatusCode >= 500 {
			logger.Error("request failed",
				slog.String("code", appErr.Code),
				slog.Any("error", err),
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.String("request_id", requestID(c)),
			)
		} else {
			logger.Debug("request rejected",
				slog.String("code", appErr.Code),
				slog.Any("error", err),
				slog.String("path", c.Path()),
			)
		}

		return writeError(c, appErr.StatusCode, appErr.Code, appErr.Message)
	}
}

func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}
