package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/repository/inmem"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/Freeeeeet/lesson_scheduler/internal/video"
	"github.com/Freeeeeet/lesson_scheduler/internal/video/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var chrome = model.ClientInfo{UserAgent: "Mozilla/5.0 Chrome/120", Device: "desktop"}

// startedLesson бронирует занятие на понедельник 09:00 и открывает комнату за 15 минут
func startedLesson(t *testing.T, env *testEnv) (*model.Lesson, *model.MeetingAccess) {
	t.Helper()
	env.declareMonday(t)
	lesson := env.book(t, env.student, 540, 60)

	env.at(lesson, -15*time.Minute)
	access, err := env.meetings.StartMeeting(context.Background(), env.tutor, lesson.ID, chrome)
	require.NoError(t, err)
	return lesson, access
}

func TestStartMeeting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.declareMonday(t)
	lesson := env.book(t, env.student, 540, 60)

	env.at(lesson, -16*time.Minute)
	_, err := env.meetings.StartMeeting(ctx, env.tutor, lesson.ID, chrome)
	assert.ErrorIs(t, err, service.ErrTooEarly)
	assert.Zero(t, env.provider.Created)

	env.at(lesson, -15*time.Minute)
	_, err = env.meetings.StartMeeting(ctx, env.student, lesson.ID, chrome)
	assert.ErrorIs(t, err, service.ErrForbidden)

	access, err := env.meetings.StartMeeting(ctx, env.tutor, lesson.ID, chrome)
	require.NoError(t, err)
	assert.True(t, access.IsModerator)
	assert.NotEmpty(t, access.Token)
	assert.Equal(t, fmt.Sprintf("lesson-%d", lesson.ID), access.RoomName)
	assert.Equal(t, 2, env.provider.LastRoom.MaxParticipants)

	stored := env.lesson(t, lesson.ID)
	assert.Equal(t, model.LessonStatusInProgress, stored.Status)
	assert.Equal(t, access.RoomName, stored.MeetingRoomName)
	assert.Equal(t, access.RoomURL, stored.MeetingRoomURL)
	assert.Equal(t, access.Token, stored.MeetingToken)
	require.NotNil(t, stored.MeetingStartedAt)

	open, err := env.sessions.ListOpen(ctx, lesson.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, env.tutor.UserID, open[0].ParticipantID)
	assert.Equal(t, "desktop", open[0].Device)

	assert.Equal(t, []int64{lesson.ID}, env.notifier.roomReady)
}

func TestStartMeetingTwiceReusesRoom(t *testing.T) {
	env := newTestEnv(t)
	lesson, first := startedLesson(t, env)

	env.clock.Advance(5 * time.Minute)
	second, err := env.meetings.StartMeeting(context.Background(), env.tutor, lesson.ID, chrome)
	require.NoError(t, err)

	assert.Equal(t, first.RoomName, second.RoomName)
	assert.NotEmpty(t, second.Token)
	assert.NotEqual(t, first.Token, second.Token)
	assert.Equal(t, 1, env.provider.Created)
	assert.Equal(t, 1, env.provider.RoomCount())
	// студента уведомляем только о первом старте
	assert.Len(t, env.notifier.roomReady, 1)

	open, err := env.sessions.ListOpen(context.Background(), lesson.ID)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestStartMeetingConcurrent(t *testing.T) {
	env := newTestEnv(t)
	env.declareMonday(t)
	lesson := env.book(t, env.student, 540, 60)
	env.at(lesson, -5*time.Minute)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.meetings.StartMeeting(context.Background(), env.tutor, lesson.ID, chrome)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, env.provider.RoomCount())
	assert.Equal(t, model.LessonStatusInProgress, env.lesson(t, lesson.ID).Status)
}

func TestStartMeetingRecreatesExpiredRoom(t *testing.T) {
	env := newTestEnv(t)
	lesson, first := startedLesson(t, env)

	env.provider.Expire(first.RoomName)
	second, err := env.meetings.StartMeeting(context.Background(), env.tutor, lesson.ID, chrome)
	require.NoError(t, err)

	assert.NotEqual(t, first.RoomName, second.RoomName)
	assert.True(t, strings.HasPrefix(second.RoomName, first.RoomName+"-"))
	stored := env.lesson(t, lesson.ID)
	assert.Equal(t, second.RoomName, stored.MeetingRoomName)
	assert.Equal(t, model.LessonStatusInProgress, stored.Status)
}

func TestStartMeetingTokenFailureLeavesLessonUntouched(t *testing.T) {
	env := newTestEnv(t)
	env.declareMonday(t)
	lesson := env.book(t, env.student, 540, 60)
	env.at(lesson, -5*time.Minute)

	env.provider.FailToken = fmt.Errorf("%w: timeout", video.ErrProvider)
	_, err := env.meetings.StartMeeting(context.Background(), env.tutor, lesson.ID, chrome)
	assert.ErrorIs(t, err, video.ErrProvider)

	stored := env.lesson(t, lesson.ID)
	assert.Equal(t, model.LessonStatusScheduled, stored.Status)
	assert.False(t, stored.HasRoom())
	assert.Zero(t, env.provider.RoomCount(), "created room must be deleted")
	assert.Empty(t, env.notifier.roomReady)
}

func TestStartMeetingCreateFailure(t *testing.T) {
	env := newTestEnv(t)
	env.declareMonday(t)
	lesson := env.book(t, env.student, 540, 60)
	env.at(lesson, -5*time.Minute)

	env.provider.FailCreate = fmt.Errorf("%w: 503", video.ErrProvider)
	_, err := env.meetings.StartMeeting(context.Background(), env.tutor, lesson.ID, chrome)
	assert.ErrorIs(t, err, video.ErrProvider)
	assert.Equal(t, model.LessonStatusScheduled, env.lesson(t, lesson.ID).Status)
}

func TestStartMeetingFinishedLesson(t *testing.T) {
	env := newTestEnv(t)
	env.declareMonday(t)
	lesson := env.book(t, env.student, 540, 60)

	_, err := env.booking.Cancel(context.Background(), env.student, lesson.ID, "")
	require.NoError(t, err)

	env.at(lesson, 0)
	_, err = env.meetings.StartMeeting(context.Background(), env.tutor, lesson.ID, chrome)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
}

func TestJoinMeetingStudentLeadTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lesson, _ := startedLesson(t, env)

	env.at(lesson, -11*time.Minute)
	_, err := env.meetings.JoinMeeting(ctx, env.student, lesson.ID, chrome)
	assert.ErrorIs(t, err, service.ErrTooEarly)

	env.at(lesson, -9*time.Minute)
	access, err := env.meetings.JoinMeeting(ctx, env.student, lesson.ID, chrome)
	require.NoError(t, err)
	assert.False(t, access.IsModerator)
	assert.NotEmpty(t, access.Token)

	// повторный вход не плодит сессии
	_, err = env.meetings.JoinMeeting(ctx, env.student, lesson.ID, chrome)
	require.NoError(t, err)

	open, err := env.sessions.ListOpen(ctx, lesson.ID)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	_, err = env.meetings.JoinMeeting(ctx, env.other, lesson.ID, chrome)
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestJoinMeetingRequiresActiveRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.declareMonday(t)
	lesson := env.book(t, env.student, 540, 60)

	env.at(lesson, -5*time.Minute)
	_, err := env.meetings.JoinMeeting(ctx, env.student, lesson.ID, chrome)
	assert.ErrorIs(t, err, service.ErrRoomNotReady)

	_, err = env.meetings.StartMeeting(ctx, env.tutor, lesson.ID, chrome)
	require.NoError(t, err)
	env.provider.Expire(env.lesson(t, lesson.ID).MeetingRoomName)

	_, err = env.meetings.JoinMeeting(ctx, env.student, lesson.ID, chrome)
	assert.ErrorIs(t, err, service.ErrRoomNotReady)
}

func TestLeaveMeeting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lesson, _ := startedLesson(t, env)

	env.at(lesson, 0)
	_, err := env.meetings.JoinMeeting(ctx, env.student, lesson.ID, chrome)
	require.NoError(t, err)

	require.NoError(t, env.meetings.LeaveMeeting(ctx, env.student, lesson.ID))
	require.NoError(t, env.meetings.LeaveMeeting(ctx, env.student, lesson.ID))

	open, err := env.sessions.ListOpen(ctx, lesson.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, env.tutor.UserID, open[0].ParticipantID)

	// после выхода можно зайти снова
	_, err = env.meetings.JoinMeeting(ctx, env.student, lesson.ID, chrome)
	require.NoError(t, err)
	open, err = env.sessions.ListOpen(ctx, lesson.ID)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestEndMeeting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lesson, access := startedLesson(t, env)

	env.at(lesson, 0)
	_, err := env.meetings.JoinMeeting(ctx, env.student, lesson.ID, chrome)
	require.NoError(t, err)
	env.provider.SetRecording(access.RoomName, "https://video.test/rec/42")

	_, err = env.meetings.EndMeeting(ctx, env.student, lesson.ID)
	assert.ErrorIs(t, err, service.ErrForbidden)

	env.at(lesson, time.Hour)
	ended, err := env.meetings.EndMeeting(ctx, env.tutor, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LessonStatusCompleted, ended.Status)
	require.NotNil(t, ended.MeetingEndedAt)

	open, err := env.sessions.ListOpen(ctx, lesson.ID)
	require.NoError(t, err)
	assert.Empty(t, open)

	assert.False(t, env.provider.HasRoom(access.RoomName))
	stored := env.lesson(t, lesson.ID)
	assert.Equal(t, model.LessonStatusCompleted, stored.Status)
	assert.Equal(t, "https://video.test/rec/42", stored.RecordingURL)

	_, err = env.meetings.EndMeeting(ctx, env.tutor, lesson.ID)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
}

func TestEndMeetingSurvivesDeleteFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lesson, access := startedLesson(t, env)

	env.provider.FailDelete = fmt.Errorf("%w: timeout", video.ErrProvider)
	ended, err := env.meetings.EndMeeting(ctx, env.tutor, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LessonStatusCompleted, ended.Status)
	assert.True(t, env.provider.HasRoom(access.RoomName))

	// комнату подберёт чистка
	env.provider.FailDelete = nil
	env.clock.Advance(5 * time.Minute)
	deleted, err := env.meetings.SweepOrphanRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.False(t, env.provider.HasRoom(access.RoomName))
}

func TestEndMeetingRequiresInProgress(t *testing.T) {
	env := newTestEnv(t)
	env.declareMonday(t)
	lesson := env.book(t, env.student, 540, 60)

	_, err := env.meetings.EndMeeting(context.Background(), env.tutor, lesson.ID)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
}

func TestMeetingStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.declareMonday(t)
	lesson := env.book(t, env.student, 540, 60)

	env.at(lesson, -20*time.Minute)
	status, err := env.meetings.Status(ctx, env.tutor, lesson.ID)
	require.NoError(t, err)
	assert.False(t, status.HasRoom)
	assert.False(t, status.CanStart)
	assert.False(t, status.CanJoin)
	assert.Empty(t, status.ActiveParticipants)

	env.at(lesson, -15*time.Minute)
	status, err = env.meetings.Status(ctx, env.tutor, lesson.ID)
	require.NoError(t, err)
	assert.True(t, status.CanStart)

	_, err = env.meetings.StartMeeting(ctx, env.tutor, lesson.ID, chrome)
	require.NoError(t, err)

	status, err = env.meetings.Status(ctx, env.student, lesson.ID)
	require.NoError(t, err)
	assert.True(t, status.HasRoom)
	assert.True(t, status.IsActive)
	assert.False(t, status.CanStart)
	assert.False(t, status.CanJoin, "student is still outside the join window")
	assert.Equal(t, []int64{env.tutor.UserID}, status.ActiveParticipants)

	env.at(lesson, -10*time.Minute)
	status, err = env.meetings.Status(ctx, env.student, lesson.ID)
	require.NoError(t, err)
	assert.True(t, status.CanJoin)
	assert.NotEmpty(t, status.RoomURL)

	status, err = env.meetings.Status(ctx, env.admin, lesson.ID)
	require.NoError(t, err)
	assert.False(t, status.CanJoin)
	assert.Empty(t, status.RoomURL)

	_, err = env.meetings.Status(ctx, env.other, lesson.ID)
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestSweepOrphanRooms(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lesson, access := startedLesson(t, env)

	env.provider.AddRoom("lesson-9999")
	env.provider.AddRoom("standup")

	// свежие комнаты не трогаем
	deleted, err := env.meetings.SweepOrphanRooms(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	env.clock.Advance(3 * time.Minute)
	deleted, err = env.meetings.SweepOrphanRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	assert.True(t, env.provider.HasRoom(access.RoomName), "room of running lesson is kept")
	assert.True(t, env.provider.HasRoom("standup"), "foreign rooms are kept")
	assert.False(t, env.provider.HasRoom("lesson-9999"))
	assert.Equal(t, model.LessonStatusInProgress, env.lesson(t, lesson.ID).Status)
}

// ctxProvider как настоящий клиент не создаёт комнату по отменённому контексту
type ctxProvider struct {
	*fake.Provider
}

func (p ctxProvider) CreateRoom(ctx context.Context, req video.RoomRequest) (*video.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Provider.CreateRoom(ctx, req)
}

func TestStartMeetingIgnoresCallerCancellation(t *testing.T) {
	env := newTestEnv(t)
	env.declareMonday(t)
	lesson := env.book(t, env.student, 540, 60)
	env.at(lesson, -5*time.Minute)

	meetings := service.NewMeetingService(
		inmem.NewTransactor(env.store), env.users, env.lessons, env.sessions,
		ctxProvider{env.provider}, env.notifier, env.clock, service.DefaultSettings(), zap.NewNop(),
	)

	// отмена первого запроса не должна ронять схлопнутые с ним старты
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	access, err := meetings.StartMeeting(ctx, env.tutor, lesson.ID, chrome)
	require.NoError(t, err)
	assert.Equal(t, access.RoomName, env.lesson(t, lesson.ID).MeetingRoomName)
	assert.Equal(t, model.LessonStatusInProgress, env.lesson(t, lesson.ID).Status)
}
