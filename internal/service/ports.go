package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
)

// Репозитории, которыми пользуются сервисы. Реализации: repository (PostgreSQL)
// и repository/inmem. Отсутствующая запись - (nil, nil).

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

type AvailabilityRepository interface {
	Get(ctx context.Context, tutorID int64) (*model.TutorAvailability, error)
	// LockTutor сериализует изменения недели учителя до конца транзакции
	LockTutor(ctx context.Context, tutorID int64) error
	// Replace заменяет всю неделю учителя
	Replace(ctx context.Context, tutorID int64, days model.WeekSnapshot) error
	AppendLog(ctx context.Context, entry *model.AvailabilityChangeLog) error
	GetLog(ctx context.Context, tutorID, logID int64) (*model.AvailabilityChangeLog, error)
	ListLog(ctx context.Context, tutorID int64, limit int) ([]*model.AvailabilityChangeLog, error)
}

type LessonRepository interface {
	Create(ctx context.Context, lesson *model.Lesson) error
	GetByID(ctx context.Context, id int64) (*model.Lesson, error)
	GetByRoomName(ctx context.Context, roomName string) (*model.Lesson, error)
	// ListActiveByTutorDate не отменённые занятия учителя на дату
	ListActiveByTutorDate(ctx context.Context, tutorID int64, date time.Time) ([]*model.Lesson, error)
	ListByUser(ctx context.Context, userID int64, from, to time.Time) ([]*model.Lesson, error)
	// LockTutorDate сериализует запись к учителю на дату до конца транзакции
	LockTutorDate(ctx context.Context, tutorID int64, date time.Time) error
	// UpdateStatus меняет статус только если текущий равен from (compare-and-set).
	// Возвращает false если статус уже другой.
	UpdateStatus(ctx context.Context, lesson *model.Lesson, from model.LessonStatus) (bool, error)
	UpdateMeeting(ctx context.Context, lesson *model.Lesson) error
	SetRecordingURL(ctx context.Context, lessonID int64, url string) error
	SetRating(ctx context.Context, lessonID int64, rating int, feedback string) error
}

type MeetingSessionRepository interface {
	// Open создаёт сессию если у участника нет открытой. Возвращает открытую сессию
	// и true если она создана этим вызовом.
	Open(ctx context.Context, session *model.MeetingSession) (*model.MeetingSession, bool, error)
	// Close закрывает открытую сессию участника, если она начата не позже at;
	// false если такой сессии нет
	Close(ctx context.Context, lessonID, participantID int64, at time.Time) (bool, error)
	CloseAll(ctx context.Context, lessonID int64, at time.Time) (int64, error)
	ListOpen(ctx context.Context, lessonID int64) ([]*model.MeetingSession, error)
	// LastClosed последняя закрытая сессия участника
	LastClosed(ctx context.Context, lessonID, participantID int64) (*model.MeetingSession, error)
}

// Transactor выполняет fn в одной транзакции; репозитории берут её из ctx
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
