package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/clock"
	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/repository/inmem"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/Freeeeeet/lesson_scheduler/internal/video/fake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// пятница, 12:00 UTC
var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

// ближайший понедельник после testNow
var monday = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

// recordingNotifier запоминает отправленные уведомления
type recordingNotifier struct {
	mu        sync.Mutex
	bookings  []int64
	roomReady []int64
	err       error
}

func (n *recordingNotifier) BookingCreated(_ context.Context, lesson *model.Lesson, _, _ *model.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bookings = append(n.bookings, lesson.ID)
	return n.err
}

func (n *recordingNotifier) LessonRoomAvailable(_ context.Context, lesson *model.Lesson, _ *model.User, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.roomReady = append(n.roomReady, lesson.ID)
	return n.err
}

type testEnv struct {
	clock    *clock.Mock
	store    *inmem.Store
	users    *inmem.UserRepository
	lessons  *inmem.LessonRepository
	sessions *inmem.MeetingSessionRepository
	provider *fake.Provider
	notifier *recordingNotifier

	availability *service.AvailabilityService
	slots        *service.SlotService
	booking      *service.BookingService
	lifecycle    *service.LessonService
	meetings     *service.MeetingService
	webhooks     *service.WebhookService

	tutor   model.Actor
	student model.Actor
	admin   model.Actor
	other   model.Actor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clk := clock.NewMock(testNow)
	store := inmem.NewStore(clk.Now)
	tx := inmem.NewTransactor(store)
	users := inmem.NewUserRepository(store)
	availability := inmem.NewAvailabilityRepository(store)
	lessons := inmem.NewLessonRepository(store)
	sessions := inmem.NewMeetingSessionRepository(store)
	provider := fake.New("https://video.test", clk.Now)
	notifier := &recordingNotifier{}
	settings := service.DefaultSettings()
	logger := zap.NewNop()

	env := &testEnv{
		clock:    clk,
		store:    store,
		users:    users,
		lessons:  lessons,
		sessions: sessions,
		provider: provider,
		notifier: notifier,

		availability: service.NewAvailabilityService(tx, users, availability, logger),
		slots:        service.NewSlotService(users, availability, lessons, clk, settings, logger),
		booking:      service.NewBookingService(tx, users, availability, lessons, notifier, clk, settings, logger),
		lifecycle:    service.NewLessonService(tx, lessons, sessions, provider, clk, settings, logger),
		meetings:     service.NewMeetingService(tx, users, lessons, sessions, provider, notifier, clk, settings, logger),
		webhooks:     service.NewWebhookService(lessons, sessions, clk, logger),
	}

	env.tutor = env.addUser(t, model.RoleTutor, "Анна")
	env.student = env.addUser(t, model.RoleStudent, "Иван")
	env.admin = env.addUser(t, model.RoleAdmin, "Админ")
	env.other = env.addUser(t, model.RoleStudent, "Пётр")

	return env
}

func (e *testEnv) addUser(t *testing.T, role model.Role, name string) model.Actor {
	t.Helper()
	user := &model.User{FirstName: name, Role: role, Email: name + "@example.com"}
	require.NoError(t, e.users.Create(context.Background(), user))
	return model.Actor{UserID: user.ID, Role: role}
}

// declareMonday задаёт учителю понедельник 09:00-12:00
func (e *testEnv) declareMonday(t *testing.T) {
	t.Helper()
	_, err := e.availability.Replace(context.Background(), e.tutor, e.tutor.UserID, model.WeekSnapshot{
		time.Monday: {{Start: 9 * 60, End: 12 * 60}},
	})
	require.NoError(t, err)
}

// book записывает студента на понедельник
func (e *testEnv) book(t *testing.T, student model.Actor, start, duration int) *model.Lesson {
	t.Helper()
	lesson, err := e.booking.Reserve(context.Background(), student, service.ReserveRequest{
		TutorID:         e.tutor.UserID,
		Date:            monday,
		StartTime:       start,
		DurationMinutes: duration,
	})
	require.NoError(t, err)
	return lesson
}

// at переставляет часы на момент относительно начала занятия
func (e *testEnv) at(lesson *model.Lesson, offset time.Duration) {
	e.clock.Set(lesson.StartsAt(time.UTC).Add(offset))
}

func (e *testEnv) lesson(t *testing.T, id int64) *model.Lesson {
	t.Helper()
	lesson, err := e.lessons.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, lesson)
	return lesson
}
