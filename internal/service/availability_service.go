package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"go.uber.org/zap"
)

const maxHistoryLimit = 100

// AvailabilityService недельная доступность учителей и журнал её изменений
type AvailabilityService struct {
	tx           Transactor
	userRepo     UserRepository
	availability AvailabilityRepository
	logger       *zap.Logger
}

func NewAvailabilityService(
	tx Transactor,
	userRepo UserRepository,
	availability AvailabilityRepository,
	logger *zap.Logger,
) *AvailabilityService {
	return &AvailabilityService{
		tx:           tx,
		userRepo:     userRepo,
		availability: availability,
		logger:       logger,
	}
}

// Get возвращает неделю учителя
func (s *AvailabilityService) Get(ctx context.Context, tutorID int64) (*model.TutorAvailability, error) {
	if _, err := s.requireTutor(ctx, tutorID); err != nil {
		return nil, err
	}
	return s.availability.Get(ctx, tutorID)
}

// Replace заменяет всю неделю учителя и пишет запись в журнал в той же транзакции.
// Если неделя не изменилась, журнал не пополняется и возвращается nil запись.
func (s *AvailabilityService) Replace(ctx context.Context, actor model.Actor, tutorID int64, days model.WeekSnapshot) (*model.AvailabilityChangeLog, error) {
	if err := requireAvailabilityOwner(actor, tutorID); err != nil {
		return nil, err
	}
	if _, err := s.requireTutor(ctx, tutorID); err != nil {
		return nil, err
	}

	normalized, err := days.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var entry *model.AvailabilityChangeLog
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.availability.LockTutor(ctx, tutorID); err != nil {
			return err
		}

		current, err := s.availability.Get(ctx, tutorID)
		if err != nil {
			return fmt.Errorf("get availability: %w", err)
		}

		changed := current.Days.ChangedDays(normalized)
		if len(changed) == 0 {
			return nil
		}

		if err := s.availability.Replace(ctx, tutorID, normalized); err != nil {
			return fmt.Errorf("replace availability: %w", err)
		}

		entry = &model.AvailabilityChangeLog{
			TutorID:   tutorID,
			Action:    changeAction(current.Days, normalized, changed),
			Before:    current.Days.Clone(),
			After:     normalized.Clone(),
			ActorID:   actor.UserID,
			ActorRole: actor.Role,
		}
		if err := s.availability.AppendLog(ctx, entry); err != nil {
			return fmt.Errorf("append availability log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if entry == nil {
		s.logger.Debug("Availability unchanged", zap.Int64("tutor_id", tutorID))
		return nil, nil
	}

	s.logger.Info("Availability updated",
		zap.Int64("tutor_id", tutorID),
		zap.Int64("log_id", entry.ID),
		zap.String("action", string(entry.Action)),
		zap.Int64("actor_id", actor.UserID),
	)

	return entry, nil
}

// History журнал изменений, новые записи первыми
func (s *AvailabilityService) History(ctx context.Context, actor model.Actor, tutorID int64, limit int) ([]*model.AvailabilityChangeLog, error) {
	if err := requireAvailabilityOwner(actor, tutorID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.availability.ListLog(ctx, tutorID, limit)
}

// Rollback возвращает неделю к состоянию до указанной записи журнала.
// Сама запись не меняется, откат добавляет новую.
func (s *AvailabilityService) Rollback(ctx context.Context, actor model.Actor, tutorID, logID int64) (*model.AvailabilityChangeLog, error) {
	if err := requireAvailabilityOwner(actor, tutorID); err != nil {
		return nil, err
	}

	entry, err := s.availability.GetLog(ctx, tutorID, logID)
	if err != nil {
		return nil, fmt.Errorf("get availability log: %w", err)
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: availability log entry %d", ErrNotFound, logID)
	}

	s.logger.Info("Rolling back availability",
		zap.Int64("tutor_id", tutorID),
		zap.Int64("log_id", logID),
	)

	return s.Replace(ctx, actor, tutorID, entry.Before)
}

func (s *AvailabilityService) requireTutor(ctx context.Context, tutorID int64) (*model.User, error) {
	tutor, err := s.userRepo.GetByID(ctx, tutorID)
	if err != nil {
		return nil, fmt.Errorf("get tutor: %w", err)
	}
	if tutor == nil || tutor.Role != model.RoleTutor {
		return nil, fmt.Errorf("%w: tutor %d", ErrNotFound, tutorID)
	}
	return tutor, nil
}

// changeAction классифицирует изменение недели для журнала
func changeAction(before, after model.WeekSnapshot, changed []time.Weekday) model.AvailabilityAction {
	switch {
	case before.IsEmpty():
		return model.AvailabilityAdded
	case after.IsEmpty():
		return model.AvailabilityDeleted
	case len(changed) == 1:
		return model.AvailabilityUpdated
	default:
		return model.AvailabilityBulkUpdate
	}
}
