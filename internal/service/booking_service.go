package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/clock"
	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/notify"
	"go.uber.org/zap"
)

// ReserveRequest запрос на запись к учителю
type ReserveRequest struct {
	TutorID int64
	// StudentID заполняет только администратор, записывающий студента;
	// для студента берётся из actor
	StudentID       int64
	Date            time.Time
	StartTime       int // минуты от полуночи
	DurationMinutes int
	Topic           string
	Notes           string
}

type BookingService struct {
	tx           Transactor
	userRepo     UserRepository
	availability AvailabilityRepository
	lessons      LessonRepository
	notifier     notify.Sender
	timeline     timeline
	lead         time.Duration
	logger       *zap.Logger
}

func NewBookingService(
	tx Transactor,
	userRepo UserRepository,
	availability AvailabilityRepository,
	lessons LessonRepository,
	notifier notify.Sender,
	clk clock.Clock,
	settings Settings,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		tx:           tx,
		userRepo:     userRepo,
		availability: availability,
		lessons:      lessons,
		notifier:     notifier,
		timeline:     newTimeline(clk, settings.Location),
		lead:         settings.MinBookingLead,
		logger:       logger,
	}
}

// Reserve записывает студента на занятие.
// Список слотов мог устареть, поэтому доступность, запас по времени и пересечения
// проверяются заново внутри транзакции под блокировкой (учитель, дата).
func (s *BookingService) Reserve(ctx context.Context, actor model.Actor, req ReserveRequest) (*model.Lesson, error) {
	studentID, err := s.resolveStudent(actor, req)
	if err != nil {
		return nil, err
	}

	if req.DurationMinutes < model.MinLessonDuration || req.DurationMinutes > model.MaxLessonDuration {
		return nil, fmt.Errorf("%w: duration must be between %d and %d minutes",
			ErrValidation, model.MinLessonDuration, model.MaxLessonDuration)
	}
	requested := model.TimeRange{Start: req.StartTime, End: req.StartTime + req.DurationMinutes}
	if requested.Start < 0 || requested.End > model.MinutesPerDay {
		return nil, fmt.Errorf("%w: lesson must fit into one day", ErrValidation)
	}

	day := s.timeline.day(req.Date)
	if day.Before(s.timeline.today()) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDate, day.Format(time.DateOnly))
	}

	tutor, err := s.userRepo.GetByID(ctx, req.TutorID)
	if err != nil {
		return nil, fmt.Errorf("get tutor: %w", err)
	}
	if tutor == nil || tutor.Role != model.RoleTutor {
		return nil, fmt.Errorf("%w: tutor %d", ErrNotFound, req.TutorID)
	}

	student, err := s.userRepo.GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	if student == nil || student.Role != model.RoleStudent {
		return nil, fmt.Errorf("%w: student %d", ErrNotFound, studentID)
	}

	lesson := &model.Lesson{
		TutorID:         tutor.ID,
		StudentID:       student.ID,
		LessonDate:      day,
		StartTime:       requested.Start,
		EndTime:         requested.End,
		DurationMinutes: req.DurationMinutes,
		Status:          model.LessonStatusScheduled,
		Topic:           req.Topic,
		Notes:           req.Notes,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.lessons.LockTutorDate(ctx, tutor.ID, day); err != nil {
			return fmt.Errorf("lock tutor date: %w", err)
		}

		availability, err := s.availability.Get(ctx, tutor.ID)
		if err != nil {
			return fmt.Errorf("get availability: %w", err)
		}
		if !fitsAvailability(requested, availability.RangesFor(day.Weekday())) {
			return fmt.Errorf("%w: %s is outside of tutor availability", ErrSlotUnavailable, requested)
		}

		if requested.Start < s.timeline.earliestStart(day, s.lead) {
			return fmt.Errorf("%w: %s starts too soon", ErrSlotUnavailable, requested)
		}

		existing, err := s.lessons.ListActiveByTutorDate(ctx, tutor.ID, day)
		if err != nil {
			return fmt.Errorf("list lessons: %w", err)
		}
		if overlapsAny(requested, existing) {
			return fmt.Errorf("%w: %s overlaps another lesson", ErrSlotUnavailable, requested)
		}

		if err := s.lessons.Create(ctx, lesson); err != nil {
			if errors.Is(err, model.ErrLessonOverlap) {
				return fmt.Errorf("%w: %s overlaps another lesson", ErrSlotUnavailable, requested)
			}
			return fmt.Errorf("create lesson: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Lesson booked",
		zap.Int64("lesson_id", lesson.ID),
		zap.Int64("tutor_id", lesson.TutorID),
		zap.Int64("student_id", lesson.StudentID),
		zap.String("date", day.Format(time.DateOnly)),
		zap.String("time", requested.String()),
	)

	if err := s.notifier.BookingCreated(ctx, lesson, tutor, student); err != nil {
		s.logger.Warn("Failed to notify tutor about booking",
			zap.Int64("lesson_id", lesson.ID),
			zap.Error(err),
		)
	}

	return lesson, nil
}

func (s *BookingService) resolveStudent(actor model.Actor, req ReserveRequest) (int64, error) {
	switch {
	case actor.IsStudent():
		if req.StudentID != 0 && req.StudentID != actor.UserID {
			return 0, fmt.Errorf("%w: students book only for themselves", ErrForbidden)
		}
		return actor.UserID, nil
	case actor.IsAdmin():
		if req.StudentID == 0 {
			return 0, fmt.Errorf("%w: student_id is required", ErrValidation)
		}
		return req.StudentID, nil
	}
	return 0, fmt.Errorf("%w: only students can book lessons", ErrForbidden)
}

// Cancel отменяет запланированное занятие
func (s *BookingService) Cancel(ctx context.Context, actor model.Actor, lessonID int64, reason string) (*model.Lesson, error) {
	lesson, err := s.getLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if err := requireCanCancel(actor, lesson); err != nil {
		return nil, err
	}

	err = applyTransition(ctx, s.lessons, lesson, EventCancel, func(l *model.Lesson) {
		l.CancellationReason = reason
		l.CancelledBy = actor.Role
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Lesson cancelled",
		zap.Int64("lesson_id", lesson.ID),
		zap.Int64("actor_id", actor.UserID),
		zap.String("actor_role", string(actor.Role)),
	)

	return lesson, nil
}

// Get возвращает занятие участнику или администратору
func (s *BookingService) Get(ctx context.Context, actor model.Actor, lessonID int64) (*model.Lesson, error) {
	lesson, err := s.getLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if err := requireCanView(actor, lesson); err != nil {
		return nil, err
	}
	return lesson, nil
}

// ListForUser занятия пользователя (как студента или учителя) с from по to не включительно
func (s *BookingService) ListForUser(ctx context.Context, actor model.Actor, from, to time.Time) ([]*model.Lesson, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: empty period", ErrValidation)
	}
	return s.lessons.ListByUser(ctx, actor.UserID, s.timeline.day(from), s.timeline.day(to))
}

func (s *BookingService) getLesson(ctx context.Context, lessonID int64) (*model.Lesson, error) {
	return loadLesson(ctx, s.lessons, lessonID)
}

// loadLesson общий для сервисов поиск занятия; отсутствие - ErrNotFound
func loadLesson(ctx context.Context, lessons LessonRepository, lessonID int64) (*model.Lesson, error) {
	lesson, err := lessons.GetByID(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("get lesson: %w", err)
	}
	if lesson == nil {
		return nil, fmt.Errorf("%w: lesson %d", ErrNotFound, lessonID)
	}
	return lesson, nil
}
