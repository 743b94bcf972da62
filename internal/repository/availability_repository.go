package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AvailabilityRepository хранит недельную доступность учителей и журнал её изменений
type AvailabilityRepository struct {
	*base.Repository
}

func NewAvailabilityRepository(pool *pgxpool.Pool) *AvailabilityRepository {
	return &AvailabilityRepository{Repository: base.NewRepository(pool)}
}

// Get возвращает неделю учителя; пустую неделю если расписание не задавалось
func (r *AvailabilityRepository) Get(ctx context.Context, tutorID int64) (*model.TutorAvailability, error) {
	availability := &model.TutorAvailability{
		TutorID: tutorID,
		Days:    model.WeekSnapshot{},
	}

	var updatedAt time.Time
	err := r.QueryRow(ctx, `SELECT updated_at FROM tutor_availability WHERE tutor_id = $1`, tutorID).Scan(&updatedAt)
	if err != nil {
		if base.IsNotFound(err) {
			return availability, nil
		}
		return nil, fmt.Errorf("get availability: %w", err)
	}
	availability.UpdatedAt = &updatedAt

	query := `
		SELECT weekday, start_minute, end_minute
		FROM tutor_availability_ranges
		WHERE tutor_id = $1
		ORDER BY weekday, start_minute
	`

	rows, err := r.Query(ctx, query, tutorID)
	if err != nil {
		return nil, fmt.Errorf("get availability ranges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			weekday int
			rng     model.TimeRange
		)
		if err := rows.Scan(&weekday, &rng.Start, &rng.End); err != nil {
			return nil, fmt.Errorf("scan availability range: %w", err)
		}
		day := time.Weekday(weekday)
		availability.Days[day] = append(availability.Days[day], rng)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate availability ranges: %w", err)
	}

	return availability, nil
}

// LockTutor берёт advisory lock на неделю учителя до конца транзакции: между чтением
// текущей недели и записью журнала её никто не меняет
func (r *AvailabilityRepository) LockTutor(ctx context.Context, tutorID int64) error {
	query := `SELECT pg_advisory_xact_lock(hashtextextended('availability:' || $1::bigint::text, 0))`
	if _, err := r.ExecAffected(ctx, query, tutorID); err != nil {
		return fmt.Errorf("lock tutor availability: %w", err)
	}
	return nil
}

// Replace заменяет всю неделю. Вызывается внутри транзакции вместе с AppendLog.
func (r *AvailabilityRepository) Replace(ctx context.Context, tutorID int64, days model.WeekSnapshot) error {
	upsert := `
		INSERT INTO tutor_availability (tutor_id, updated_at)
		VALUES ($1, NOW())
		ON CONFLICT (tutor_id) DO UPDATE SET updated_at = NOW()
	`
	if _, err := r.ExecAffected(ctx, upsert, tutorID); err != nil {
		return fmt.Errorf("upsert availability: %w", err)
	}

	if _, err := r.ExecAffected(ctx, `DELETE FROM tutor_availability_ranges WHERE tutor_id = $1`, tutorID); err != nil {
		return fmt.Errorf("clear availability ranges: %w", err)
	}

	insert := `
		INSERT INTO tutor_availability_ranges (tutor_id, weekday, start_minute, end_minute)
		VALUES ($1, $2, $3, $4)
	`
	for day, ranges := range days {
		for _, rng := range ranges {
			if _, err := r.ExecAffected(ctx, insert, tutorID, int(day), rng.Start, rng.End); err != nil {
				return fmt.Errorf("insert availability range: %w", err)
			}
		}
	}

	return nil
}

// AppendLog добавляет запись в журнал. Записи журнала не изменяются и не удаляются.
func (r *AvailabilityRepository) AppendLog(ctx context.Context, entry *model.AvailabilityChangeLog) error {
	query := `
		INSERT INTO availability_change_logs (tutor_id, action, before, after, actor_id, actor_role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.QueryRow(
		ctx, query,
		entry.TutorID,
		entry.Action,
		entry.Before,
		entry.After,
		entry.ActorID,
		entry.ActorRole,
	).Scan(&entry.ID, &entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("append availability log: %w", err)
	}

	return nil
}

const changeLogColumns = `id, tutor_id, action, before, after, actor_id, actor_role, created_at`

// GetLog получает запись журнала учителя
func (r *AvailabilityRepository) GetLog(ctx context.Context, tutorID, logID int64) (*model.AvailabilityChangeLog, error) {
	query := `SELECT ` + changeLogColumns + ` FROM availability_change_logs WHERE tutor_id = $1 AND id = $2`

	entry, err := scanChangeLog(r.QueryRow(ctx, query, tutorID, logID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get availability log: %w", err)
	}

	return entry, nil
}

// ListLog возвращает журнал, новые записи первыми
func (r *AvailabilityRepository) ListLog(ctx context.Context, tutorID int64, limit int) ([]*model.AvailabilityChangeLog, error) {
	query := `
		SELECT ` + changeLogColumns + `
		FROM availability_change_logs
		WHERE tutor_id = $1
		ORDER BY id DESC
		LIMIT $2
	`

	rows, err := r.Query(ctx, query, tutorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list availability log: %w", err)
	}
	defer rows.Close()

	var entries []*model.AvailabilityChangeLog
	for rows.Next() {
		entry, err := scanChangeLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan availability log: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChangeLog(row rowScanner) (*model.AvailabilityChangeLog, error) {
	var entry model.AvailabilityChangeLog
	err := row.Scan(
		&entry.ID,
		&entry.TutorID,
		&entry.Action,
		&entry.Before,
		&entry.After,
		&entry.ActorID,
		&entry.ActorRole,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
