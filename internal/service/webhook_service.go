package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/clock"
	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"go.uber.org/zap"
)

// События видеопровайдера
const (
	WebhookParticipantJoined = "participant-joined"
	WebhookParticipantLeft   = "participant-left"
	WebhookRecordingReady    = "recording-ready"
)

// WebhookEvent событие от видеопровайдера. Порядок и однократность доставки не гарантируются.
type WebhookEvent struct {
	Event             string     `json:"event"`
	RoomName          string     `json:"room_name"`
	ParticipantUserID string     `json:"participant_user_id"`
	RecordingURL      string     `json:"recording_url,omitempty"`
	Timestamp         *time.Time `json:"timestamp,omitempty"`
}

// WebhookResult что сделал обработчик с событием
type WebhookResult string

const (
	WebhookApplied WebhookResult = "applied"
	WebhookIgnored WebhookResult = "ignored"
)

// WebhookService сверяет сессии и занятия с событиями провайдера.
// Источник истины - наша БД; события, которые не к чему применить, игнорируются.
type WebhookService struct {
	lessons  LessonRepository
	sessions MeetingSessionRepository
	clock    clock.Clock
	logger   *zap.Logger
}

func NewWebhookService(lessons LessonRepository, sessions MeetingSessionRepository, clk clock.Clock, logger *zap.Logger) *WebhookService {
	return &WebhookService{
		lessons:  lessons,
		sessions: sessions,
		clock:    clk,
		logger:   logger,
	}
}

func (s *WebhookService) Handle(ctx context.Context, event WebhookEvent) (WebhookResult, error) {
	logger := s.logger.With(
		zap.String("event", event.Event),
		zap.String("room", event.RoomName),
	)

	var (
		result WebhookResult
		err    error
	)
	switch event.Event {
	case WebhookParticipantJoined:
		result, err = s.participantJoined(ctx, event, logger)
	case WebhookParticipantLeft:
		result, err = s.participantLeft(ctx, event, logger)
	case WebhookRecordingReady:
		result, err = s.recordingReady(ctx, event, logger)
	default:
		logger.Info("Unknown webhook event ignored")
		return WebhookIgnored, nil
	}

	if err != nil {
		logger.Error("Failed to handle webhook", zap.Error(err))
		return WebhookIgnored, err
	}

	logger.Debug("Webhook handled", zap.String("result", string(result)))
	return result, nil
}

func (s *WebhookService) participantJoined(ctx context.Context, event WebhookEvent, logger *zap.Logger) (WebhookResult, error) {
	lesson, participantID, ok, err := s.resolve(ctx, event, logger)
	if err != nil || !ok {
		return WebhookIgnored, err
	}
	if lesson.Status.IsTerminal() {
		logger.Info("Join for finished lesson ignored", zap.Int64("lesson_id", lesson.ID))
		return WebhookIgnored, nil
	}

	at := s.eventTime(event)

	// join пришёл позже leave той же сессии
	last, err := s.sessions.LastClosed(ctx, lesson.ID, participantID)
	if err != nil {
		return WebhookIgnored, fmt.Errorf("get last meeting session: %w", err)
	}
	if event.Timestamp != nil && last != nil && last.LeftAt.After(at) {
		logger.Info("Stale join ignored",
			zap.Int64("lesson_id", lesson.ID),
			zap.Int64("participant_id", participantID),
		)
		return WebhookIgnored, nil
	}

	_, created, err := s.sessions.Open(ctx, &model.MeetingSession{
		LessonID:      lesson.ID,
		ParticipantID: participantID,
		RoomName:      event.RoomName,
		JoinedAt:      at,
	})
	if err != nil {
		return WebhookIgnored, fmt.Errorf("open meeting session: %w", err)
	}
	if !created {
		return WebhookIgnored, nil
	}
	return WebhookApplied, nil
}

func (s *WebhookService) participantLeft(ctx context.Context, event WebhookEvent, logger *zap.Logger) (WebhookResult, error) {
	lesson, participantID, ok, err := s.resolve(ctx, event, logger)
	if err != nil || !ok {
		return WebhookIgnored, err
	}

	// повторный leave не закрывает сессию, открытую уже после него
	closed, err := s.sessions.Close(ctx, lesson.ID, participantID, s.eventTime(event))
	if err != nil {
		return WebhookIgnored, fmt.Errorf("close meeting session: %w", err)
	}
	if !closed {
		return WebhookIgnored, nil
	}
	return WebhookApplied, nil
}

func (s *WebhookService) recordingReady(ctx context.Context, event WebhookEvent, logger *zap.Logger) (WebhookResult, error) {
	if event.RecordingURL == "" {
		logger.Warn("Recording event without url")
		return WebhookIgnored, nil
	}

	lesson, err := s.lessons.GetByRoomName(ctx, event.RoomName)
	if err != nil {
		return WebhookIgnored, fmt.Errorf("get lesson by room: %w", err)
	}
	if lesson == nil {
		logger.Info("Recording for unknown room ignored")
		return WebhookIgnored, nil
	}
	if lesson.RecordingURL == event.RecordingURL {
		return WebhookIgnored, nil
	}

	if err := s.lessons.SetRecordingURL(ctx, lesson.ID, event.RecordingURL); err != nil {
		return WebhookIgnored, fmt.Errorf("set recording url: %w", err)
	}

	logger.Info("Recording attached", zap.Int64("lesson_id", lesson.ID))
	return WebhookApplied, nil
}

// resolve находит занятие по комнате и проверяет что участник к нему относится
func (s *WebhookService) resolve(ctx context.Context, event WebhookEvent, logger *zap.Logger) (*model.Lesson, int64, bool, error) {
	participantID, err := strconv.ParseInt(event.ParticipantUserID, 10, 64)
	if err != nil {
		logger.Warn("Webhook with foreign participant id ignored",
			zap.String("participant_user_id", event.ParticipantUserID),
		)
		return nil, 0, false, nil
	}

	lesson, err := s.lessons.GetByRoomName(ctx, event.RoomName)
	if err != nil {
		return nil, 0, false, fmt.Errorf("get lesson by room: %w", err)
	}
	if lesson == nil {
		logger.Info("Webhook for unknown room ignored")
		return nil, 0, false, nil
	}
	if !lesson.IsTutor(participantID) && !lesson.IsStudent(participantID) {
		logger.Warn("Webhook for non-participant ignored",
			zap.Int64("lesson_id", lesson.ID),
			zap.Int64("participant_id", participantID),
		)
		return nil, 0, false, nil
	}

	return lesson, participantID, true, nil
}

func (s *WebhookService) eventTime(event WebhookEvent) time.Time {
	if event.Timestamp != nil {
		return *event.Timestamp
	}
	return s.clock.Now()
}
