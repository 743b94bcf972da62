package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/clock"
	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"go.uber.org/zap"
)

// SlotService считает свободные окна для записи.
// Результат носит рекомендательный характер: Reserve проверяет всё заново под блокировкой.
type SlotService struct {
	userRepo     UserRepository
	availability AvailabilityRepository
	lessons      LessonRepository
	timeline     timeline
	lead         time.Duration
	logger       *zap.Logger
}

func NewSlotService(
	userRepo UserRepository,
	availability AvailabilityRepository,
	lessons LessonRepository,
	clk clock.Clock,
	settings Settings,
	logger *zap.Logger,
) *SlotService {
	return &SlotService{
		userRepo:     userRepo,
		availability: availability,
		lessons:      lessons,
		timeline:     newTimeline(clk, settings.Location),
		lead:         settings.MinBookingLead,
		logger:       logger,
	}
}

// ListAvailableSlots возвращает упорядоченные 30-минутные окна учителя на дату
func (s *SlotService) ListAvailableSlots(ctx context.Context, tutorID int64, date time.Time) ([]model.Slot, error) {
	day := s.timeline.day(date)
	if day.Before(s.timeline.today()) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDate, day.Format(time.DateOnly))
	}

	tutor, err := s.userRepo.GetByID(ctx, tutorID)
	if err != nil {
		return nil, fmt.Errorf("get tutor: %w", err)
	}
	if tutor == nil || tutor.Role != model.RoleTutor {
		return nil, fmt.Errorf("%w: tutor %d", ErrNotFound, tutorID)
	}

	availability, err := s.availability.Get(ctx, tutorID)
	if err != nil {
		return nil, fmt.Errorf("get availability: %w", err)
	}

	lessons, err := s.lessons.ListActiveByTutorDate(ctx, tutorID, day)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}

	slots := buildSlots(day, availability.RangesFor(day.Weekday()), lessons, s.timeline.earliestStart(day, s.lead))

	s.logger.Debug("Slots computed",
		zap.Int64("tutor_id", tutorID),
		zap.String("date", day.Format(time.DateOnly)),
		zap.Int("count", len(slots)),
	)

	return slots, nil
}

// buildSlots нарезает интервалы доступности на окна SlotGranularity,
// выкидывая пересекающиеся с занятиями и начинающиеся раньше earliest
func buildSlots(day time.Time, ranges []model.TimeRange, lessons []*model.Lesson, earliest int) []model.Slot {
	slots := make([]model.Slot, 0)
	for _, r := range ranges {
		for start := r.Start; start+model.SlotGranularity <= r.End; start += model.SlotGranularity {
			if start < earliest {
				continue
			}
			candidate := model.TimeRange{Start: start, End: start + model.SlotGranularity}
			if overlapsAny(candidate, lessons) {
				continue
			}
			slots = append(slots, model.Slot{Date: day, StartTime: candidate.Start, EndTime: candidate.End})
		}
	}
	return slots
}

// overlapsAny true если интервал пересекается с любым не отменённым занятием
func overlapsAny(r model.TimeRange, lessons []*model.Lesson) bool {
	for _, l := range lessons {
		if l.Status == model.LessonStatusCancelled {
			continue
		}
		if l.Range().Overlaps(r) {
			return true
		}
	}
	return false
}

// fitsAvailability true если интервал целиком внутри одного объявленного диапазона
func fitsAvailability(r model.TimeRange, ranges []model.TimeRange) bool {
	for _, available := range ranges {
		if available.Contains(r) {
			return true
		}
	}
	return false
}
