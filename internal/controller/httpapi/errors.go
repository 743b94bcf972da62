package httpapi

import (
	"errors"

	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/Freeeeeet/lesson_scheduler/internal/video"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{service.ErrValidation, fiber.StatusBadRequest},
	{service.ErrInvalidDate, fiber.StatusBadRequest},
	{service.ErrForbidden, fiber.StatusForbidden},
	{service.ErrNotFound, fiber.StatusNotFound},
	{service.ErrSlotUnavailable, fiber.StatusConflict},
	{service.ErrAlreadyTerminal, fiber.StatusConflict},
	{service.ErrInvalidTransition, fiber.StatusConflict},
	{service.ErrAlreadyRated, fiber.StatusConflict},
	{service.ErrTooEarly, fiber.StatusUnprocessableEntity},
	{service.ErrRoomNotReady, fiber.StatusUnprocessableEntity},
	{video.ErrProvider, fiber.StatusBadGateway},
}

// statusFor код ответа для ошибки сервиса
func statusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return fiber.StatusInternalServerError
}

// errorHandler превращает ошибки обработчиков в конверт; детали 5xx только в лог
func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := statusFor(err)
		message := err.Error()

		if status >= fiber.StatusInternalServerError {
			logger.Error("Request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Any("request_id", c.Locals(localRequestID)),
				zap.Error(err),
			)
			if status == fiber.StatusInternalServerError {
				message = "internal server error"
			}
		}

		return Error(c, status, message)
	}
}
