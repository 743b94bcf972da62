package service

import (
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/clock"
	"github.com/Freeeeeet/lesson_scheduler/internal/model"
)

// Settings правила времени, общие для сервисов
type Settings struct {
	// Location рабочая таймзона платформы; все даты и минуты занятий в ней
	Location *time.Location
	// MinBookingLead минимальный запас до начала слота при записи на сегодня
	MinBookingLead time.Duration
	// TutorStartLead за сколько до начала учитель может открыть комнату
	TutorStartLead time.Duration
	// StudentJoinLead за сколько до начала студент может войти
	StudentJoinLead time.Duration
	// RoomTTL сколько комната живёт после планового окончания занятия
	RoomTTL         time.Duration
	EnableRecording bool
}

func DefaultSettings() Settings {
	return Settings{
		Location:        time.UTC,
		MinBookingLead:  time.Hour,
		TutorStartLead:  15 * time.Minute,
		StudentJoinLead: 10 * time.Minute,
		RoomTTL:         30 * time.Minute,
	}
}

// timeline общие вычисления дат относительно часов
type timeline struct {
	clock clock.Clock
	loc   *time.Location
}

func newTimeline(c clock.Clock, loc *time.Location) timeline {
	if loc == nil {
		loc = time.UTC
	}
	return timeline{clock: c, loc: loc}
}

func (t timeline) now() time.Time {
	return t.clock.Now().In(t.loc)
}

func (t timeline) today() time.Time {
	return model.DateOnly(t.now())
}

// day приводит произвольную дату к полуночи в рабочей таймзоне
func (t timeline) day(date time.Time) time.Time {
	return model.AtMinutes(date, 0, t.loc)
}

// earliestStart первая минута дня date, с которой можно бронировать с учётом lead.
// Для будущих дней 0, для прошедших и "съеденных" lead целиком - MinutesPerDay.
func (t timeline) earliestStart(date time.Time, lead time.Duration) int {
	threshold := t.now().Add(lead)
	day := t.day(date)

	if threshold.Before(day) {
		return 0
	}
	if !model.SameDate(threshold, day) {
		return model.MinutesPerDay
	}

	minutes := threshold.Hour()*60 + threshold.Minute()
	if threshold.Second() > 0 || threshold.Nanosecond() > 0 {
		minutes++
	}
	return minutes
}

func (t timeline) startsAt(lesson *model.Lesson) time.Time {
	return lesson.StartsAt(t.loc)
}
