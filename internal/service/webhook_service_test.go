package service_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func participant(a model.Actor) string {
	return strconv.FormatInt(a.UserID, 10)
}

func TestWebhookParticipantLeftIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lesson, access := startedLesson(t, env)

	env.at(lesson, 0)
	_, err := env.meetings.JoinMeeting(ctx, env.student, lesson.ID, chrome)
	require.NoError(t, err)

	left := service.WebhookEvent{
		Event:             service.WebhookParticipantLeft,
		RoomName:          access.RoomName,
		ParticipantUserID: participant(env.student),
	}

	result, err := env.webhooks.Handle(ctx, left)
	require.NoError(t, err)
	assert.Equal(t, service.WebhookApplied, result)

	result, err = env.webhooks.Handle(ctx, left)
	require.NoError(t, err)
	assert.Equal(t, service.WebhookIgnored, result)

	open, err := env.sessions.ListOpen(ctx, lesson.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, env.tutor.UserID, open[0].ParticipantID)
}

func TestWebhookParticipantJoined(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lesson, access := startedLesson(t, env)

	joinedAt := lesson.StartsAt(time.UTC).Add(-2 * time.Minute)
	joined := service.WebhookEvent{
		Event:             service.WebhookParticipantJoined,
		RoomName:          access.RoomName,
		ParticipantUserID: participant(env.student),
		Timestamp:         &joinedAt,
	}

	result, err := env.webhooks.Handle(ctx, joined)
	require.NoError(t, err)
	assert.Equal(t, service.WebhookApplied, result)

	// дубликат
	result, err = env.webhooks.Handle(ctx, joined)
	require.NoError(t, err)
	assert.Equal(t, service.WebhookIgnored, result)

	open, err := env.sessions.ListOpen(ctx, lesson.ID)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestWebhookStaleJoinAfterLeave(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lesson, access := startedLesson(t, env)

	joinedAt := lesson.StartsAt(time.UTC)
	leftAt := joinedAt.Add(20 * time.Minute)

	for _, ev := range []service.WebhookEvent{
		{Event: service.WebhookParticipantJoined, Timestamp: &joinedAt},
		{Event: service.WebhookParticipantLeft, Timestamp: &leftAt},
		// повтор join, доставленный после leave
		{Event: service.WebhookParticipantJoined, Timestamp: &joinedAt},
	} {
		ev.RoomName = access.RoomName
		ev.ParticipantUserID = participant(env.student)
		_, err := env.webhooks.Handle(ctx, ev)
		require.NoError(t, err)
	}

	open, err := env.sessions.ListOpen(ctx, lesson.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, env.tutor.UserID, open[0].ParticipantID)
}

func TestWebhookRecordingReady(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lesson, access := startedLesson(t, env)

	result, err := env.webhooks.Handle(ctx, service.WebhookEvent{
		Event:        service.WebhookRecordingReady,
		RoomName:     "lesson-unknown",
		RecordingURL: "https://video.test/rec/x",
	})
	require.NoError(t, err)
	assert.Equal(t, service.WebhookIgnored, result)

	_, err = env.meetings.EndMeeting(ctx, env.tutor, lesson.ID)
	require.NoError(t, err)

	// запись приходит уже после удаления комнаты
	result, err = env.webhooks.Handle(ctx, service.WebhookEvent{
		Event:        service.WebhookRecordingReady,
		RoomName:     access.RoomName,
		RecordingURL: "https://video.test/rec/7",
	})
	require.NoError(t, err)
	assert.Equal(t, service.WebhookApplied, result)
	assert.Equal(t, "https://video.test/rec/7", env.lesson(t, lesson.ID).RecordingURL)
}

func TestWebhookIgnoresUnrelatedEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lesson, access := startedLesson(t, env)

	tests := []struct {
		name  string
		event service.WebhookEvent
	}{
		{"unknown event", service.WebhookEvent{Event: "meeting-ended", RoomName: access.RoomName}},
		{"unknown room", service.WebhookEvent{
			Event: service.WebhookParticipantJoined, RoomName: "lesson-0", ParticipantUserID: participant(env.student),
		}},
		{"foreign participant id", service.WebhookEvent{
			Event: service.WebhookParticipantJoined, RoomName: access.RoomName, ParticipantUserID: "guest-abc",
		}},
		{"not a participant", service.WebhookEvent{
			Event: service.WebhookParticipantJoined, RoomName: access.RoomName, ParticipantUserID: participant(env.other),
		}},
		{"recording without url", service.WebhookEvent{Event: service.WebhookRecordingReady, RoomName: access.RoomName}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.webhooks.Handle(ctx, tt.event)
			require.NoError(t, err)
			assert.Equal(t, service.WebhookIgnored, result)
		})
	}

	open, err := env.sessions.ListOpen(ctx, lesson.ID)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestWebhookJoinForFinishedLesson(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lesson, access := startedLesson(t, env)

	_, err := env.meetings.EndMeeting(ctx, env.tutor, lesson.ID)
	require.NoError(t, err)

	result, err := env.webhooks.Handle(ctx, service.WebhookEvent{
		Event:             service.WebhookParticipantJoined,
		RoomName:          access.RoomName,
		ParticipantUserID: participant(env.student),
	})
	require.NoError(t, err)
	assert.Equal(t, service.WebhookIgnored, result)

	open, err := env.sessions.ListOpen(ctx, lesson.ID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestWebhookRedeliveredLeaveAfterRejoin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lesson, access := startedLesson(t, env)

	env.at(lesson, 0)
	_, err := env.meetings.JoinMeeting(ctx, env.student, lesson.ID, chrome)
	require.NoError(t, err)

	leftAt := lesson.StartsAt(time.UTC).Add(time.Minute)
	left := service.WebhookEvent{
		Event:             service.WebhookParticipantLeft,
		RoomName:          access.RoomName,
		ParticipantUserID: participant(env.student),
		Timestamp:         &leftAt,
	}

	result, err := env.webhooks.Handle(ctx, left)
	require.NoError(t, err)
	assert.Equal(t, service.WebhookApplied, result)

	env.at(lesson, 5*time.Minute)
	_, err = env.meetings.JoinMeeting(ctx, env.student, lesson.ID, chrome)
	require.NoError(t, err)

	// тот же leave пришёл повторно после нового входа
	result, err = env.webhooks.Handle(ctx, left)
	require.NoError(t, err)
	assert.Equal(t, service.WebhookIgnored, result)

	open, err := env.sessions.ListOpen(ctx, lesson.ID)
	require.NoError(t, err)
	require.Len(t, open, 2)
	for _, session := range open {
		if session.ParticipantID == env.student.UserID {
			assert.True(t, session.JoinedAt.Equal(lesson.StartsAt(time.UTC).Add(5*time.Minute)))
		}
	}
}
