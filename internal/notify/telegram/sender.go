// Package telegram доставляет уведомления через Telegram бота.
package telegram

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/notify"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// MessageSender часть *bot.Bot, которая нужна для уведомлений
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type Sender struct {
	bot    MessageSender
	logger *zap.Logger
}

var _ notify.Sender = (*Sender)(nil)

// NewWithBot создаёт отправитель поверх клиента бота. Тот же *bot.Bot обслуживает команды.
func NewWithBot(b MessageSender, logger *zap.Logger) *Sender {
	return &Sender{bot: b, logger: logger}
}

func (s *Sender) BookingCreated(ctx context.Context, lesson *model.Lesson, tutor, student *model.User) error {
	return s.send(ctx, tutor, notify.BookingCreatedText(lesson, student))
}

func (s *Sender) LessonRoomAvailable(ctx context.Context, lesson *model.Lesson, student *model.User, roomURL string) error {
	return s.send(ctx, student, notify.RoomAvailableText(lesson, roomURL))
}

// send пропускает пользователей без привязанного Telegram
func (s *Sender) send(ctx context.Context, user *model.User, text string) error {
	if user == nil || user.TelegramID == nil {
		return nil
	}

	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: *user.TelegramID,
		Text:   text,
	})
	if err != nil {
		s.logger.Error("Failed to send telegram notification",
			zap.Int64("user_id", user.ID),
			zap.Int64("chat_id", *user.TelegramID),
			zap.Error(err),
		)
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
