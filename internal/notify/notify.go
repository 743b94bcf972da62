// Package notify уведомления участников о событиях занятий.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"go.uber.org/zap"
)

// Sender канал доставки уведомлений
type Sender interface {
	// BookingCreated сообщает учителю о новой записи
	BookingCreated(ctx context.Context, lesson *model.Lesson, tutor, student *model.User) error
	// LessonRoomAvailable сообщает студенту что учитель открыл комнату
	LessonRoomAvailable(ctx context.Context, lesson *model.Lesson, student *model.User, roomURL string) error
}

// Multi рассылает уведомление во все каналы и собирает ошибки
type Multi []Sender

var _ Sender = Multi(nil)

func (m Multi) BookingCreated(ctx context.Context, lesson *model.Lesson, tutor, student *model.User) error {
	var errs []error
	for _, s := range m {
		if err := s.BookingCreated(ctx, lesson, tutor, student); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) LessonRoomAvailable(ctx context.Context, lesson *model.Lesson, student *model.User, roomURL string) error {
	var errs []error
	for _, s := range m {
		if err := s.LessonRoomAvailable(ctx, lesson, student, roomURL); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log пишет уведомления в лог. Используется в development вместо реальных каналов.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) BookingCreated(_ context.Context, lesson *model.Lesson, tutor, student *model.User) error {
	l.logger.Info("Notification: booking created",
		zap.Int64("lesson_id", lesson.ID),
		zap.Int64("tutor_id", tutor.ID),
		zap.Int64("student_id", student.ID),
		zap.String("when", LessonWhen(lesson)),
	)
	return nil
}

func (l *Log) LessonRoomAvailable(_ context.Context, lesson *model.Lesson, student *model.User, roomURL string) error {
	l.logger.Info("Notification: lesson room available",
		zap.Int64("lesson_id", lesson.ID),
		zap.Int64("student_id", student.ID),
		zap.String("room_url", roomURL),
	)
	return nil
}

// LessonWhen форматирует дату и время занятия для текстов уведомлений
func LessonWhen(lesson *model.Lesson) string {
	return fmt.Sprintf("%s %s",
		lesson.LessonDate.Format("02.01.2006"),
		lesson.Range())
}

// BookingCreatedText текст уведомления учителю
func BookingCreatedText(lesson *model.Lesson, student *model.User) string {
	text := fmt.Sprintf("📅 Новая запись на занятие\n\n👤 Студент: %s\n🕐 %s (%d мин)",
		student.FullName(), LessonWhen(lesson), lesson.DurationMinutes)
	if lesson.Topic != "" {
		text += "\n📝 Тема: " + lesson.Topic
	}
	return text
}

// RoomAvailableText текст уведомления студенту
func RoomAvailableText(lesson *model.Lesson, roomURL string) string {
	return fmt.Sprintf("🎥 Учитель открыл комнату занятия (%s)\n\n🔗 Подключиться: %s",
		LessonWhen(lesson), roomURL)
}
