package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// UpcomingPeriod на сколько дней вперёд /lessons показывает занятия
const UpcomingPeriod = 14 * 24 * time.Hour

const helpText = "📚 Справка по командам:\n\n" +
	"/start - Начать работу с ботом\n" +
	"/lessons - Мои занятия на ближайшие две недели\n" +
	"/help - Показать эту справку\n\n" +
	"Запись на занятия и вход в комнату - через приложение. " +
	"Бот присылает уведомления о новых записях и открытых комнатах."

// HandleStart обрабатывает команду /start
func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	text, err := h.StartText(ctx, update.Message.From.ID)
	if err != nil {
		h.logger.Error("Failed to build start message", zap.Error(err))
		h.sendError(ctx, b, update.Message.Chat.ID, "❌ Произошла ошибка. Попробуйте позже.")
		return
	}

	h.send(ctx, b, update.Message.Chat.ID, text)
}

// StartText приветствие для привязанного пользователя или инструкция по привязке
func (h *Handlers) StartText(ctx context.Context, telegramID int64) (string, error) {
	user, err := h.userService.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return notLinkedText(telegramID), nil
	}

	return fmt.Sprintf(
		"👋 Привет, %s!\n\n"+
			"Сюда будут приходить уведомления о занятиях.\n\n"+
			"/lessons - Мои занятия\n"+
			"/help - Справка",
		user.FirstName,
	), nil
}

// HandleHelp обрабатывает команду /help
func (h *Handlers) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	h.send(ctx, b, update.Message.Chat.ID, helpText)
}

// HandleLessons обрабатывает команду /lessons
func (h *Handlers) HandleLessons(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return
	}

	text, err := h.LessonsText(ctx, user)
	if err != nil {
		h.logger.Error("Failed to list lessons", zap.Int64("user_id", user.ID), zap.Error(err))
		h.sendError(ctx, b, update.Message.Chat.ID, "❌ Не удалось загрузить занятия. Попробуйте позже.")
		return
	}

	h.send(ctx, b, update.Message.Chat.ID, text)
}

// LessonsText список занятий пользователя с сегодняшнего дня на UpcomingPeriod вперёд
func (h *Handlers) LessonsText(ctx context.Context, user *model.User) (string, error) {
	now := h.clock.Now().In(h.loc)
	from := model.DateOnly(now)

	lessons, err := h.bookingService.ListForUser(ctx, model.Actor{UserID: user.ID, Role: user.Role}, from, from.Add(UpcomingPeriod))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("🗓 Ваши занятия:\n")

	shown := 0
	for _, lesson := range lessons {
		// закончившиеся сегодня не показываем
		if lesson.Status.IsTerminal() && lesson.EndsAt(h.loc).Before(now) {
			continue
		}
		sb.WriteString("\n" + FormatLesson(lesson) + "\n")
		shown++
	}

	if shown == 0 {
		return "📭 На ближайшие две недели занятий нет.", nil
	}
	return sb.String(), nil
}
