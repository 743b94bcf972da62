package handlers

import (
	"fmt"
	"strings"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/notify"
)

// LessonStatusDisplay emoji и текст статуса занятия
type LessonStatusDisplay struct {
	Emoji string
	Text  string
}

// GetLessonStatusDisplay возвращает emoji и текст для статуса занятия
func GetLessonStatusDisplay(status model.LessonStatus) LessonStatusDisplay {
	displays := map[model.LessonStatus]LessonStatusDisplay{
		model.LessonStatusScheduled:  {"📅", "Запланировано"},
		model.LessonStatusInProgress: {"🎥", "Идёт сейчас"},
		model.LessonStatusCompleted:  {"✔️", "Завершено"},
		model.LessonStatusCancelled:  {"❌", "Отменено"},
		model.LessonStatusNoShow:     {"🚫", "Неявка"},
	}

	if display, ok := displays[status]; ok {
		return display
	}

	return LessonStatusDisplay{"❓", "Неизвестно"}
}

// FormatLesson форматирует занятие для списка
func FormatLesson(lesson *model.Lesson) string {
	display := GetLessonStatusDisplay(lesson.Status)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s (%d мин) - %s", display.Emoji, notify.LessonWhen(lesson), lesson.DurationMinutes, display.Text)
	if lesson.Topic != "" {
		sb.WriteString("\n   📝 " + lesson.Topic)
	}
	if lesson.Status == model.LessonStatusInProgress && lesson.MeetingRoomURL != "" {
		sb.WriteString("\n   🔗 " + lesson.MeetingRoomURL)
	}
	return sb.String()
}

func notLinkedText(telegramID int64) string {
	return fmt.Sprintf(
		"❌ Этот Telegram аккаунт не привязан к платформе.\n\n"+
			"Ваш Telegram ID: %d\n"+
			"Передайте его администратору, чтобы получать уведомления и видеть занятия.",
		telegramID,
	)
}
