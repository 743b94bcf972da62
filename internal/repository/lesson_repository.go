package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LessonRepository struct {
	*base.Repository
}

func NewLessonRepository(pool *pgxpool.Pool) *LessonRepository {
	return &LessonRepository{Repository: base.NewRepository(pool)}
}

const lessonColumns = `
	id, tutor_id, student_id, lesson_date, start_minute, end_minute, duration_minutes, status,
	topic, notes, cancellation_reason, cancelled_by, rating, feedback,
	meeting_room_name, meeting_room_url, meeting_token, meeting_started_at, meeting_ended_at,
	recording_url, created_at, updated_at`

func scanLesson(row rowScanner) (*model.Lesson, error) {
	var l model.Lesson
	err := row.Scan(
		&l.ID,
		&l.TutorID,
		&l.StudentID,
		&l.LessonDate,
		&l.StartTime,
		&l.EndTime,
		&l.DurationMinutes,
		&l.Status,
		&l.Topic,
		&l.Notes,
		&l.CancellationReason,
		&l.CancelledBy,
		&l.Rating,
		&l.Feedback,
		&l.MeetingRoomName,
		&l.MeetingRoomURL,
		&l.MeetingToken,
		&l.MeetingStartedAt,
		&l.MeetingEndedAt,
		&l.RecordingURL,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Create создаёт занятие. Пересечение с другим занятием учителя отсекается
// exclusion constraint lessons_no_overlap (SQLSTATE 23P01).
func (r *LessonRepository) Create(ctx context.Context, lesson *model.Lesson) error {
	query := `
		INSERT INTO lessons (tutor_id, student_id, lesson_date, start_minute, end_minute, duration_minutes, status, topic, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		lesson.TutorID,
		lesson.StudentID,
		lesson.LessonDate,
		lesson.StartTime,
		lesson.EndTime,
		lesson.DurationMinutes,
		lesson.Status,
		lesson.Topic,
		lesson.Notes,
	).Scan(&lesson.ID, &lesson.CreatedAt, &lesson.UpdatedAt)

	if err != nil {
		if base.HasCode(err, base.CodeExclusionViolation) {
			return model.ErrLessonOverlap
		}
		return fmt.Errorf("create lesson: %w", err)
	}

	return nil
}

// GetByID получает занятие по ID
func (r *LessonRepository) GetByID(ctx context.Context, id int64) (*model.Lesson, error) {
	lesson, err := scanLesson(r.QueryRow(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lesson by id: %w", err)
	}
	return lesson, nil
}

// GetByRoomName получает занятие по имени видеокомнаты
func (r *LessonRepository) GetByRoomName(ctx context.Context, roomName string) (*model.Lesson, error) {
	lesson, err := scanLesson(r.QueryRow(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE meeting_room_name = $1`, roomName))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lesson by room name: %w", err)
	}
	return lesson, nil
}

func (r *LessonRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.Lesson, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var lessons []*model.Lesson
	for rows.Next() {
		lesson, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		lessons = append(lessons, lesson)
	}

	return lessons, rows.Err()
}

// ListActiveByTutorDate получает не отменённые занятия учителя на дату
func (r *LessonRepository) ListActiveByTutorDate(ctx context.Context, tutorID int64, date time.Time) ([]*model.Lesson, error) {
	query := `
		SELECT ` + lessonColumns + `
		FROM lessons
		WHERE tutor_id = $1 AND lesson_date = $2 AND status <> 'cancelled'
		ORDER BY start_minute
	`
	return r.list(ctx, "list lessons by tutor date", query, tutorID, date)
}

// ListByUser получает занятия где пользователь учитель или студент
func (r *LessonRepository) ListByUser(ctx context.Context, userID int64, from, to time.Time) ([]*model.Lesson, error) {
	query := `
		SELECT ` + lessonColumns + `
		FROM lessons
		WHERE (tutor_id = $1 OR student_id = $1)
		  AND lesson_date >= $2
		  AND lesson_date < $3
		ORDER BY lesson_date, start_minute
	`
	return r.list(ctx, "list lessons by user", query, userID, from, to)
}

// LockTutorDate берёт advisory lock на пару (учитель, дата) до конца транзакции.
// Вне транзакции блокировка бессмысленна, поэтому вызывать только внутри WithinTx.
func (r *LessonRepository) LockTutorDate(ctx context.Context, tutorID int64, date time.Time) error {
	query := `SELECT pg_advisory_xact_lock(hashtextextended($1::bigint::text || ':' || $2::date::text, 0))`
	if _, err := r.ExecAffected(ctx, query, tutorID, date); err != nil {
		return fmt.Errorf("lock tutor date: %w", err)
	}
	return nil
}

// UpdateStatus записывает статус и связанные с переходом поля, если статус в БД всё ещё from
func (r *LessonRepository) UpdateStatus(ctx context.Context, lesson *model.Lesson, from model.LessonStatus) (bool, error) {
	query := `
		UPDATE lessons
		SET status = $1,
		    cancellation_reason = $2,
		    cancelled_by = $3,
		    meeting_started_at = $4,
		    meeting_ended_at = $5,
		    updated_at = NOW()
		WHERE id = $6 AND status = $7
		RETURNING updated_at
	`

	err := r.QueryRow(
		ctx, query,
		lesson.Status,
		lesson.CancellationReason,
		lesson.CancelledBy,
		lesson.MeetingStartedAt,
		lesson.MeetingEndedAt,
		lesson.ID,
		from,
	).Scan(&lesson.UpdatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("update lesson status: %w", err)
	}

	return true, nil
}

// UpdateMeeting сохраняет поля видеокомнаты
func (r *LessonRepository) UpdateMeeting(ctx context.Context, lesson *model.Lesson) error {
	query := `
		UPDATE lessons
		SET meeting_room_name = $1,
		    meeting_room_url = $2,
		    meeting_token = $3,
		    updated_at = NOW()
		WHERE id = $4
	`

	affected, err := r.ExecAffected(ctx, query, lesson.MeetingRoomName, lesson.MeetingRoomURL, lesson.MeetingToken, lesson.ID)
	if err != nil {
		return fmt.Errorf("update lesson meeting: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("lesson not found")
	}

	return nil
}

// SetRecordingURL сохраняет ссылку на запись
func (r *LessonRepository) SetRecordingURL(ctx context.Context, lessonID int64, url string) error {
	query := `UPDATE lessons SET recording_url = $1, updated_at = NOW() WHERE id = $2`

	affected, err := r.ExecAffected(ctx, query, url, lessonID)
	if err != nil {
		return fmt.Errorf("set recording url: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("lesson not found")
	}

	return nil
}

// SetRating сохраняет оценку. Повторная оценка не перезаписывает первую.
func (r *LessonRepository) SetRating(ctx context.Context, lessonID int64, rating int, feedback string) error {
	query := `
		UPDATE lessons
		SET rating = $1, feedback = $2, updated_at = NOW()
		WHERE id = $3 AND rating IS NULL
	`

	affected, err := r.ExecAffected(ctx, query, rating, feedback, lessonID)
	if err != nil {
		return fmt.Errorf("set lesson rating: %w", err)
	}
	if affected == 0 {
		return model.ErrLessonRated
	}

	return nil
}
