package handlers

import (
	"context"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/clock"
	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"go.uber.org/zap"
)

// UserFinder поиск пользователя по Telegram аккаунту
type UserFinder interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
}

// LessonLister занятия пользователя за период
type LessonLister interface {
	ListForUser(ctx context.Context, actor model.Actor, from, to time.Time) ([]*model.Lesson, error)
}

// Handlers содержит все зависимости для обработки команд
type Handlers struct {
	userService    UserFinder
	bookingService LessonLister
	clock          clock.Clock
	loc            *time.Location
	logger         *zap.Logger
}

// NewHandlers создаёт новый обработчик команд
func NewHandlers(
	userService UserFinder,
	bookingService LessonLister,
	clk clock.Clock,
	loc *time.Location,
	logger *zap.Logger,
) *Handlers {
	if loc == nil {
		loc = time.UTC
	}
	return &Handlers{
		userService:    userService,
		bookingService: bookingService,
		clock:          clk,
		loc:            loc,
		logger:         logger,
	}
}
