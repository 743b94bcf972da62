package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/lesson_scheduler/internal/clock"
	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/video"
	"go.uber.org/zap"
)

const (
	MinRating = 1
	MaxRating = 5
)

// LessonService явные переходы занятия помимо встречи: завершение, неявка, оценка
type LessonService struct {
	tx       Transactor
	lessons  LessonRepository
	sessions MeetingSessionRepository
	cleaner  roomCleaner
	timeline timeline
	logger   *zap.Logger
}

func NewLessonService(
	tx Transactor,
	lessons LessonRepository,
	sessions MeetingSessionRepository,
	provider video.Provider,
	clk clock.Clock,
	settings Settings,
	logger *zap.Logger,
) *LessonService {
	return &LessonService{
		tx:       tx,
		lessons:  lessons,
		sessions: sessions,
		cleaner:  roomCleaner{provider: provider, lessons: lessons, logger: logger},
		timeline: newTimeline(clk, settings.Location),
		logger:   logger,
	}
}

// Complete завершает занятие. Запланированное можно завершить только после его начала.
func (s *LessonService) Complete(ctx context.Context, actor model.Actor, lessonID int64) (*model.Lesson, error) {
	lesson, err := loadLesson(ctx, s.lessons, lessonID)
	if err != nil {
		return nil, err
	}
	if err := requireTutorOrAdmin(actor, lesson); err != nil {
		return nil, err
	}
	if lesson.Status == model.LessonStatusScheduled && s.timeline.now().Before(s.timeline.startsAt(lesson)) {
		return nil, fmt.Errorf("%w: lesson has not started yet", ErrTooEarly)
	}

	if err := s.finish(ctx, lesson, EventComplete); err != nil {
		return nil, err
	}

	s.logger.Info("Lesson completed",
		zap.Int64("lesson_id", lesson.ID),
		zap.Int64("actor_id", actor.UserID),
	)

	return lesson, nil
}

// MarkNoShow отмечает неявку студента. Встреча могла и не начинаться.
func (s *LessonService) MarkNoShow(ctx context.Context, actor model.Actor, lessonID int64) (*model.Lesson, error) {
	lesson, err := loadLesson(ctx, s.lessons, lessonID)
	if err != nil {
		return nil, err
	}
	if err := requireTutorOf(actor, lesson); err != nil {
		return nil, err
	}
	if s.timeline.now().Before(s.timeline.startsAt(lesson)) {
		return nil, fmt.Errorf("%w: lesson has not started yet", ErrTooEarly)
	}

	if err := s.finish(ctx, lesson, EventNoShow); err != nil {
		return nil, err
	}

	s.logger.Info("Lesson marked as no-show",
		zap.Int64("lesson_id", lesson.ID),
		zap.Int64("tutor_id", actor.UserID),
	)

	return lesson, nil
}

// finish переводит занятие в конечный статус, закрывает сессии и освобождает комнату
func (s *LessonService) finish(ctx context.Context, lesson *model.Lesson, event LessonEvent) error {
	now := s.timeline.now()
	wasRunning := lesson.Status == model.LessonStatusInProgress

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		err := applyTransition(ctx, s.lessons, lesson, event, func(l *model.Lesson) {
			if wasRunning {
				l.MeetingEndedAt = &now
			}
		})
		if err != nil {
			return err
		}

		if _, err := s.sessions.CloseAll(ctx, lesson.ID, now); err != nil {
			return fmt.Errorf("close meeting sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if lesson.HasRoom() {
		s.cleaner.release(ctx, lesson)
	}
	return nil
}

// Rate сохраняет оценку студента для завершённого занятия. Оценить можно один раз.
func (s *LessonService) Rate(ctx context.Context, actor model.Actor, lessonID int64, rating int, feedback string) (*model.Lesson, error) {
	if rating < MinRating || rating > MaxRating {
		return nil, fmt.Errorf("%w: rating must be between %d and %d", ErrValidation, MinRating, MaxRating)
	}

	lesson, err := loadLesson(ctx, s.lessons, lessonID)
	if err != nil {
		return nil, err
	}
	if err := requireStudentOf(actor, lesson); err != nil {
		return nil, err
	}
	if lesson.Status != model.LessonStatusCompleted {
		return nil, fmt.Errorf("%w: only completed lessons can be rated", ErrInvalidTransition)
	}
	if lesson.Rating != nil {
		return nil, ErrAlreadyRated
	}

	if err := s.lessons.SetRating(ctx, lesson.ID, rating, feedback); err != nil {
		if errors.Is(err, model.ErrLessonRated) {
			return nil, ErrAlreadyRated
		}
		return nil, fmt.Errorf("set rating: %w", err)
	}

	lesson.Rating = &rating
	lesson.Feedback = feedback

	s.logger.Info("Lesson rated",
		zap.Int64("lesson_id", lesson.ID),
		zap.Int("rating", rating),
	)

	return lesson, nil
}
