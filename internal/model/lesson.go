package model

import (
	"errors"
	"time"
)

// ErrLessonOverlap занятие пересекается с другим не отменённым занятием учителя
var ErrLessonOverlap = errors.New("lesson overlaps another lesson of the tutor")

// ErrLessonRated у занятия уже есть оценка
var ErrLessonRated = errors.New("lesson is already rated")

type LessonStatus string

const (
	LessonStatusScheduled  LessonStatus = "scheduled"   // Забронировано, ещё не началось
	LessonStatusInProgress LessonStatus = "in_progress" // Учитель открыл комнату
	LessonStatusCompleted  LessonStatus = "completed"   // Завершено
	LessonStatusCancelled  LessonStatus = "cancelled"   // Отменено до начала
	LessonStatusNoShow     LessonStatus = "no_show"     // Студент не пришёл
)

// IsTerminal true для конечных статусов
func (s LessonStatus) IsTerminal() bool {
	switch s {
	case LessonStatusCompleted, LessonStatusCancelled, LessonStatusNoShow:
		return true
	}
	return false
}

const (
	MinLessonDuration = 30
	MaxLessonDuration = 120
	// SlotGranularity минимальный шаг сетки слотов в минутах
	SlotGranularity = 30
)

type Lesson struct {
	ID              int64        `json:"id"`
	TutorID         int64        `json:"tutor_id"`
	StudentID       int64        `json:"student_id"`
	LessonDate      time.Time    `json:"lesson_date"` // полночь дня занятия
	StartTime       int          `json:"start_time"`  // минуты от полуночи
	EndTime         int          `json:"end_time"`
	DurationMinutes int          `json:"duration_minutes"`
	Status          LessonStatus `json:"status"`
	Topic           string       `json:"topic,omitempty"`
	Notes           string       `json:"notes,omitempty"`

	CancellationReason string `json:"cancellation_reason,omitempty"`
	CancelledBy        Role   `json:"cancelled_by,omitempty"`

	Rating   *int   `json:"rating,omitempty"`
	Feedback string `json:"feedback,omitempty"`

	MeetingRoomName  string     `json:"meeting_room_name,omitempty"`
	MeetingRoomURL   string     `json:"meeting_room_url,omitempty"`
	MeetingToken     string     `json:"-"`
	MeetingStartedAt *time.Time `json:"meeting_started_at,omitempty"`
	MeetingEndedAt   *time.Time `json:"meeting_ended_at,omitempty"`
	RecordingURL     string     `json:"recording_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Range возвращает интервал занятия внутри дня
func (l *Lesson) Range() TimeRange {
	return TimeRange{Start: l.StartTime, End: l.EndTime}
}

// StartsAt момент начала занятия в таймзоне loc
func (l *Lesson) StartsAt(loc *time.Location) time.Time {
	return AtMinutes(l.LessonDate, l.StartTime, loc)
}

// EndsAt момент окончания занятия в таймзоне loc
func (l *Lesson) EndsAt(loc *time.Location) time.Time {
	return AtMinutes(l.LessonDate, l.EndTime, loc)
}

// HasRoom true если к занятию привязана видеокомната
func (l *Lesson) HasRoom() bool {
	return l.MeetingRoomName != ""
}

// IsTutor проверяет что userID - учитель занятия
func (l *Lesson) IsTutor(userID int64) bool {
	return l.TutorID == userID
}

// IsStudent проверяет что userID - студент занятия
func (l *Lesson) IsStudent(userID int64) bool {
	return l.StudentID == userID
}

// DateOnly обрезает t до полуночи в его таймзоне
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// AtMinutes собирает момент времени из календарной даты и минут от полуночи.
// Берутся только год/месяц/день даты, поэтому дата из БД (UTC) корректна.
func AtMinutes(date time.Time, minutes int, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(time.Duration(minutes) * time.Minute)
}

// SameDate сравнивает только календарные даты
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
