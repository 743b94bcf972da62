package httpapi

import (
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/clock"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ServerConfig struct {
	AppName       string
	JWTSecret     string
	WebhookSecret string
	// RateLimit запросов в минуту с одного IP, 0 - без ограничения
	RateLimit     int
	Location      *time.Location
	Clock         clock.Clock
}

// NewServer собирает fiber.App со всеми маршрутами API
func NewServer(cfg ServerConfig, svc Services, logger *zap.Logger) *fiber.App {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewReal(cfg.Location)
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		ErrorHandler:          errorHandler(logger),
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	app.Use(RecoveryMiddleware())
	app.Use(RequestID())
	app.Use(RequestLogger(logger))
	if cfg.RateLimit > 0 {
		app.Use(RateLimiter(cfg.RateLimit))
	}

	h := NewHandlers(svc, cfg.Clock, cfg.Location, logger)

	app.Get("/health", h.Health)
	app.Post("/webhooks/video", h.VideoWebhook(cfg.WebhookSecret))

	api := app.Group("/api", AuthMiddleware(cfg.JWTSecret))

	api.Get("/me", h.Me)
	api.Post("/users", h.RegisterUser)

	tutors := api.Group("/tutors/:id")
	tutors.Get("/availability", h.GetAvailability)
	tutors.Put("/availability", h.ReplaceAvailability)
	tutors.Get("/availability/history", h.AvailabilityHistory)
	tutors.Post("/availability/rollback/:logID", h.RollbackAvailability)
	tutors.Get("/slots", h.ListSlots)

	api.Post("/lessons", h.CreateLesson)
	api.Get("/lessons", h.ListLessons)

	lesson := api.Group("/lessons/:id")
	lesson.Get("/", h.GetLesson)
	lesson.Post("/cancel", h.CancelLesson)
	lesson.Post("/complete", h.CompleteLesson)
	lesson.Post("/no-show", h.MarkNoShow)
	lesson.Post("/rate", h.RateLesson)

	lesson.Get("/meeting", h.MeetingStatus)
	lesson.Post("/meeting/start", h.StartMeeting)
	lesson.Post("/meeting/join", h.JoinMeeting)
	lesson.Post("/meeting/leave", h.LeaveMeeting)
	lesson.Post("/meeting/end", h.EndMeeting)

	return app
}
