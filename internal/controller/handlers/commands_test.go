package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/clock"
	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubUsers map[int64]*model.User

func (s stubUsers) GetByTelegramID(_ context.Context, telegramID int64) (*model.User, error) {
	return s[telegramID], nil
}

type stubLessons struct {
	lessons  []*model.Lesson
	err      error
	actor    model.Actor
	from, to time.Time
}

func (s *stubLessons) ListForUser(_ context.Context, actor model.Actor, from, to time.Time) ([]*model.Lesson, error) {
	s.actor, s.from, s.to = actor, from, to
	return s.lessons, s.err
}

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newHandlers(users stubUsers, lessons *stubLessons) *Handlers {
	return NewHandlers(users, lessons, clock.NewMock(now), time.UTC, zap.NewNop())
}

func lessonAt(id int64, start int, status model.LessonStatus) *model.Lesson {
	return &model.Lesson{
		ID:              id,
		LessonDate:      time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		StartTime:       start,
		EndTime:         start + 60,
		DurationMinutes: 60,
		Status:          status,
	}
}

func TestStartText(t *testing.T) {
	tgID := int64(777)
	h := newHandlers(stubUsers{tgID: {ID: 1, FirstName: "Анна", Role: model.RoleTutor, TelegramID: &tgID}}, &stubLessons{})

	text, err := h.StartText(context.Background(), tgID)
	require.NoError(t, err)
	assert.Contains(t, text, "Привет, Анна")

	text, err = h.StartText(context.Background(), 42)
	require.NoError(t, err)
	assert.Contains(t, text, "Ваш Telegram ID: 42")
}

func TestLessonsText(t *testing.T) {
	user := &model.User{ID: 5, Role: model.RoleStudent}

	live := lessonAt(1, 11*60+30, model.LessonStatusInProgress)
	live.MeetingRoomURL = "https://video.test/lesson-1"
	live.Topic = "Past Simple"

	lessons := &stubLessons{lessons: []*model.Lesson{
		lessonAt(2, 9*60, model.LessonStatusCompleted), // уже прошло
		live,
		lessonAt(3, 15*60, model.LessonStatusScheduled),
	}}
	h := newHandlers(stubUsers{}, lessons)

	text, err := h.LessonsText(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, model.Actor{UserID: 5, Role: model.RoleStudent}, lessons.actor)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), lessons.from)
	assert.Equal(t, lessons.from.Add(UpcomingPeriod), lessons.to)

	assert.NotContains(t, text, "09:00")
	assert.Contains(t, text, "🎥 19.10.2026 11:30-12:30")
	assert.Contains(t, text, "Past Simple")
	assert.Contains(t, text, "https://video.test/lesson-1")
	assert.Contains(t, text, "📅 19.10.2026 15:00-16:00")
}

func TestLessonsTextEmpty(t *testing.T) {
	h := newHandlers(stubUsers{}, &stubLessons{})

	text, err := h.LessonsText(context.Background(), &model.User{ID: 5, Role: model.RoleTutor})
	require.NoError(t, err)
	assert.Contains(t, text, "занятий нет")
}

func TestLessonsTextError(t *testing.T) {
	h := newHandlers(stubUsers{}, &stubLessons{err: errors.New("db down")})

	_, err := h.LessonsText(context.Background(), &model.User{ID: 5, Role: model.RoleTutor})
	assert.Error(t, err)
}

func TestGetLessonStatusDisplay(t *testing.T) {
	assert.Equal(t, "Неявка", GetLessonStatusDisplay(model.LessonStatusNoShow).Text)
	assert.Equal(t, "❓", GetLessonStatusDisplay("archived").Emoji)
}
