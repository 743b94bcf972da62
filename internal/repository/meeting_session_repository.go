package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MeetingSessionRepository хранит подключения участников к комнатам занятий.
// Уникальный частичный индекс meeting_sessions_one_open гарантирует не больше
// одной открытой сессии на (занятие, участник).
type MeetingSessionRepository struct {
	*base.Repository
}

func NewMeetingSessionRepository(pool *pgxpool.Pool) *MeetingSessionRepository {
	return &MeetingSessionRepository{Repository: base.NewRepository(pool)}
}

const sessionColumns = `id, lesson_id, participant_id, room_name, joined_at, left_at, user_agent, device`

func scanSession(row rowScanner) (*model.MeetingSession, error) {
	var s model.MeetingSession
	err := row.Scan(
		&s.ID,
		&s.LessonID,
		&s.ParticipantID,
		&s.RoomName,
		&s.JoinedAt,
		&s.LeftAt,
		&s.UserAgent,
		&s.Device,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Open создаёт сессию, если у участника нет открытой; иначе возвращает существующую
func (r *MeetingSessionRepository) Open(ctx context.Context, session *model.MeetingSession) (*model.MeetingSession, bool, error) {
	insert := `
		INSERT INTO meeting_sessions (lesson_id, participant_id, room_name, joined_at, user_agent, device)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (lesson_id, participant_id) WHERE left_at IS NULL DO NOTHING
		RETURNING id
	`

	err := r.QueryRow(
		ctx, insert,
		session.LessonID,
		session.ParticipantID,
		session.RoomName,
		session.JoinedAt,
		session.UserAgent,
		session.Device,
	).Scan(&session.ID)

	if err == nil {
		return session, true, nil
	}
	if !base.IsNotFound(err) {
		return nil, false, fmt.Errorf("open meeting session: %w", err)
	}

	query := `SELECT ` + sessionColumns + ` FROM meeting_sessions WHERE lesson_id = $1 AND participant_id = $2 AND left_at IS NULL`
	existing, err := scanSession(r.QueryRow(ctx, query, session.LessonID, session.ParticipantID))
	if err != nil {
		return nil, false, fmt.Errorf("get open meeting session: %w", err)
	}

	return existing, false, nil
}

// Close закрывает открытую сессию участника, начатую не позже at.
// Сессия, открытая после at, принадлежит новому входу и не трогается.
func (r *MeetingSessionRepository) Close(ctx context.Context, lessonID, participantID int64, at time.Time) (bool, error) {
	query := `
		UPDATE meeting_sessions
		SET left_at = $1
		WHERE lesson_id = $2 AND participant_id = $3 AND left_at IS NULL AND joined_at <= $1
	`

	affected, err := r.ExecAffected(ctx, query, at, lessonID, participantID)
	if err != nil {
		return false, fmt.Errorf("close meeting session: %w", err)
	}

	return affected > 0, nil
}

// CloseAll закрывает все открытые сессии занятия
func (r *MeetingSessionRepository) CloseAll(ctx context.Context, lessonID int64, at time.Time) (int64, error) {
	query := `UPDATE meeting_sessions SET left_at = $1 WHERE lesson_id = $2 AND left_at IS NULL`

	affected, err := r.ExecAffected(ctx, query, at, lessonID)
	if err != nil {
		return 0, fmt.Errorf("close all meeting sessions: %w", err)
	}

	return affected, nil
}

// ListOpen открытые сессии занятия
func (r *MeetingSessionRepository) ListOpen(ctx context.Context, lessonID int64) ([]*model.MeetingSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM meeting_sessions
		WHERE lesson_id = $1 AND left_at IS NULL
		ORDER BY joined_at
	`

	rows, err := r.Query(ctx, query, lessonID)
	if err != nil {
		return nil, fmt.Errorf("list open meeting sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.MeetingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting session: %w", err)
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// LastClosed последняя закрытая сессия участника
func (r *MeetingSessionRepository) LastClosed(ctx context.Context, lessonID, participantID int64) (*model.MeetingSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM meeting_sessions
		WHERE lesson_id = $1 AND participant_id = $2 AND left_at IS NOT NULL
		ORDER BY left_at DESC
		LIMIT 1
	`

	s, err := scanSession(r.QueryRow(ctx, query, lessonID, participantID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get last closed meeting session: %w", err)
	}

	return s, nil
}
