// Package inmem хранилище в памяти с теми же контрактами, что и PostgreSQL
// репозитории. Используется для локального запуска (STORAGE=memory) и в тестах.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
)

type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex // сериализует транзакции и запись вне транзакций

	users        map[int64]*model.User
	availability map[int64]*model.TutorAvailability
	logs         []*model.AvailabilityChangeLog
	lessons      map[int64]*model.Lesson
	sessions     []*model.MeetingSession

	nextID int64
	now    func() time.Time
}

// NewStore создаёт пустое хранилище; now используется для created_at/updated_at
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		users:        make(map[int64]*model.User),
		availability: make(map[int64]*model.TutorAvailability),
		lessons:      make(map[int64]*model.Lesson),
		now:          now,
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

type snapshot struct {
	users        map[int64]*model.User
	availability map[int64]*model.TutorAvailability
	logs         []*model.AvailabilityChangeLog
	lessons      map[int64]*model.Lesson
	sessions     []*model.MeetingSession
	nextID       int64
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		users:        make(map[int64]*model.User, len(s.users)),
		availability: make(map[int64]*model.TutorAvailability, len(s.availability)),
		logs:         append([]*model.AvailabilityChangeLog(nil), s.logs...),
		lessons:      make(map[int64]*model.Lesson, len(s.lessons)),
		sessions:     make([]*model.MeetingSession, 0, len(s.sessions)),
		nextID:       s.nextID,
	}
	for id, u := range s.users {
		snap.users[id] = u
	}
	for id, a := range s.availability {
		copied := *a
		copied.Days = a.Days.Clone()
		snap.availability[id] = &copied
	}
	for id, l := range s.lessons {
		snap.lessons[id] = cloneLesson(l)
	}
	for _, ms := range s.sessions {
		snap.sessions = append(snap.sessions, cloneSession(ms))
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = snap.users
	s.availability = snap.availability
	s.logs = snap.logs
	s.lessons = snap.lessons
	s.sessions = snap.sessions
	s.nextID = snap.nextID
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	return ctx.Value(txKey{}) == s
}

// lockWrite берёт замок на запись. Вне транзакции запись ждёт txMu, иначе откат
// идущей транзакции восстановит снимок поверх неё.
func (s *Store) lockWrite(ctx context.Context) func() {
	inTx := s.inTx(ctx)
	if !inTx {
		s.txMu.Lock()
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if !inTx {
			s.txMu.Unlock()
		}
	}
}

// Transactor выполняет fn под общим замком и откатывает изменения при ошибке
type Transactor struct {
	store *Store
}

func NewTransactor(store *Store) *Transactor {
	return &Transactor{store: store}
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if t.store.inTx(ctx) {
		return fn(ctx)
	}

	t.store.txMu.Lock()
	defer t.store.txMu.Unlock()

	snap := t.store.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, t.store)); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

func cloneLesson(l *model.Lesson) *model.Lesson {
	copied := *l
	if l.Rating != nil {
		r := *l.Rating
		copied.Rating = &r
	}
	if l.MeetingStartedAt != nil {
		t := *l.MeetingStartedAt
		copied.MeetingStartedAt = &t
	}
	if l.MeetingEndedAt != nil {
		t := *l.MeetingEndedAt
		copied.MeetingEndedAt = &t
	}
	return &copied
}

func cloneSession(ms *model.MeetingSession) *model.MeetingSession {
	copied := *ms
	if ms.LeftAt != nil {
		t := *ms.LeftAt
		copied.LeftAt = &t
	}
	return &copied
}

// UserRepository пользователи
type UserRepository struct {
	store *Store
}

func NewUserRepository(store *Store) *UserRepository {
	return &UserRepository{store: store}
}

// Create добавляет пользователя (в проде пользователи создаются внешней системой)
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	defer r.store.lockWrite(ctx)()

	if user.TelegramID != nil {
		for _, u := range r.store.users {
			if u.TelegramID != nil && *u.TelegramID == *user.TelegramID {
				return model.ErrTelegramLinked
			}
		}
	}

	user.ID = r.store.id()
	user.CreatedAt = r.store.now()
	copied := *user
	r.store.users[user.ID] = &copied
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id int64) (*model.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	u, ok := r.store.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (r *UserRepository) GetByTelegramID(_ context.Context, telegramID int64) (*model.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, u := range r.store.users {
		if u.TelegramID != nil && *u.TelegramID == telegramID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

// AvailabilityRepository доступность и журнал
type AvailabilityRepository struct {
	store *Store
}

func NewAvailabilityRepository(store *Store) *AvailabilityRepository {
	return &AvailabilityRepository{store: store}
}

func (r *AvailabilityRepository) Get(_ context.Context, tutorID int64) (*model.TutorAvailability, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	a, ok := r.store.availability[tutorID]
	if !ok {
		return &model.TutorAvailability{TutorID: tutorID, Days: model.WeekSnapshot{}}, nil
	}
	copied := *a
	copied.Days = a.Days.Clone()
	return &copied, nil
}

// LockTutor транзакции и так выполняются по одной
func (r *AvailabilityRepository) LockTutor(_ context.Context, _ int64) error {
	return nil
}

func (r *AvailabilityRepository) Replace(ctx context.Context, tutorID int64, days model.WeekSnapshot) error {
	defer r.store.lockWrite(ctx)()

	now := r.store.now()
	r.store.availability[tutorID] = &model.TutorAvailability{
		TutorID:   tutorID,
		Days:      days.Clone(),
		UpdatedAt: &now,
	}
	return nil
}

func (r *AvailabilityRepository) AppendLog(ctx context.Context, entry *model.AvailabilityChangeLog) error {
	defer r.store.lockWrite(ctx)()

	entry.ID = r.store.id()
	entry.CreatedAt = r.store.now()
	copied := *entry
	copied.Before = entry.Before.Clone()
	copied.After = entry.After.Clone()
	r.store.logs = append(r.store.logs, &copied)
	return nil
}

func (r *AvailabilityRepository) GetLog(_ context.Context, tutorID, logID int64) (*model.AvailabilityChangeLog, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, e := range r.store.logs {
		if e.ID == logID && e.TutorID == tutorID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *AvailabilityRepository) ListLog(_ context.Context, tutorID int64, limit int) ([]*model.AvailabilityChangeLog, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*model.AvailabilityChangeLog
	for i := len(r.store.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if e := r.store.logs[i]; e.TutorID == tutorID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

// LessonRepository занятия
type LessonRepository struct {
	store *Store
}

func NewLessonRepository(store *Store) *LessonRepository {
	return &LessonRepository{store: store}
}

// Create повторяет exclusion constraint из миграции lessons_no_overlap
func (r *LessonRepository) Create(ctx context.Context, lesson *model.Lesson) error {
	defer r.store.lockWrite(ctx)()

	for _, l := range r.store.lessons {
		if l.TutorID == lesson.TutorID &&
			l.Status != model.LessonStatusCancelled &&
			model.SameDate(l.LessonDate, lesson.LessonDate) &&
			l.Range().Overlaps(lesson.Range()) {
			return model.ErrLessonOverlap
		}
	}

	now := r.store.now()
	lesson.ID = r.store.id()
	lesson.CreatedAt = now
	lesson.UpdatedAt = now
	r.store.lessons[lesson.ID] = cloneLesson(lesson)
	return nil
}

func (r *LessonRepository) GetByID(_ context.Context, id int64) (*model.Lesson, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	l, ok := r.store.lessons[id]
	if !ok {
		return nil, nil
	}
	return cloneLesson(l), nil
}

func (r *LessonRepository) GetByRoomName(_ context.Context, roomName string) (*model.Lesson, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, l := range r.store.lessons {
		if roomName != "" && l.MeetingRoomName == roomName {
			return cloneLesson(l), nil
		}
	}
	return nil, nil
}

func (r *LessonRepository) filter(keep func(l *model.Lesson) bool) []*model.Lesson {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*model.Lesson
	for _, l := range r.store.lessons {
		if keep(l) {
			out = append(out, cloneLesson(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !model.SameDate(out[i].LessonDate, out[j].LessonDate) {
			return out[i].LessonDate.Before(out[j].LessonDate)
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *LessonRepository) ListActiveByTutorDate(_ context.Context, tutorID int64, date time.Time) ([]*model.Lesson, error) {
	return r.filter(func(l *model.Lesson) bool {
		return l.TutorID == tutorID &&
			l.Status != model.LessonStatusCancelled &&
			model.SameDate(l.LessonDate, date)
	}), nil
}

func (r *LessonRepository) ListByUser(_ context.Context, userID int64, from, to time.Time) ([]*model.Lesson, error) {
	return r.filter(func(l *model.Lesson) bool {
		return (l.TutorID == userID || l.StudentID == userID) &&
			!l.LessonDate.Before(model.DateOnly(from)) &&
			l.LessonDate.Before(to)
	}), nil
}

// LockTutorDate транзакции и так выполняются по одной
func (r *LessonRepository) LockTutorDate(_ context.Context, _ int64, _ time.Time) error {
	return nil
}

func (r *LessonRepository) UpdateStatus(ctx context.Context, lesson *model.Lesson, from model.LessonStatus) (bool, error) {
	defer r.store.lockWrite(ctx)()

	stored, ok := r.store.lessons[lesson.ID]
	if !ok || stored.Status != from {
		return false, nil
	}

	stored.Status = lesson.Status
	stored.CancellationReason = lesson.CancellationReason
	stored.CancelledBy = lesson.CancelledBy
	stored.MeetingStartedAt = lesson.MeetingStartedAt
	stored.MeetingEndedAt = lesson.MeetingEndedAt
	stored.UpdatedAt = r.store.now()
	lesson.UpdatedAt = stored.UpdatedAt
	r.store.lessons[lesson.ID] = cloneLesson(stored)
	return true, nil
}

func (r *LessonRepository) update(ctx context.Context, id int64, fn func(l *model.Lesson) bool) bool {
	defer r.store.lockWrite(ctx)()

	stored, ok := r.store.lessons[id]
	if !ok || !fn(stored) {
		return false
	}
	stored.UpdatedAt = r.store.now()
	return true
}

func (r *LessonRepository) UpdateMeeting(ctx context.Context, lesson *model.Lesson) error {
	ok := r.update(ctx, lesson.ID, func(l *model.Lesson) bool {
		l.MeetingRoomName = lesson.MeetingRoomName
		l.MeetingRoomURL = lesson.MeetingRoomURL
		l.MeetingToken = lesson.MeetingToken
		return true
	})
	if !ok {
		return errLessonNotFound
	}
	return nil
}

func (r *LessonRepository) SetRecordingURL(ctx context.Context, lessonID int64, url string) error {
	if !r.update(ctx, lessonID, func(l *model.Lesson) bool { l.RecordingURL = url; return true }) {
		return errLessonNotFound
	}
	return nil
}

func (r *LessonRepository) SetRating(ctx context.Context, lessonID int64, rating int, feedback string) error {
	ok := r.update(ctx, lessonID, func(l *model.Lesson) bool {
		if l.Rating != nil {
			return false
		}
		l.Rating = &rating
		l.Feedback = feedback
		return true
	})
	if !ok {
		return model.ErrLessonRated
	}
	return nil
}

// MeetingSessionRepository подключения к комнатам
type MeetingSessionRepository struct {
	store *Store
}

func NewMeetingSessionRepository(store *Store) *MeetingSessionRepository {
	return &MeetingSessionRepository{store: store}
}

func (r *MeetingSessionRepository) Open(ctx context.Context, session *model.MeetingSession) (*model.MeetingSession, bool, error) {
	defer r.store.lockWrite(ctx)()

	for _, s := range r.store.sessions {
		if s.LessonID == session.LessonID && s.ParticipantID == session.ParticipantID && s.IsOpen() {
			return cloneSession(s), false, nil
		}
	}

	session.ID = r.store.id()
	r.store.sessions = append(r.store.sessions, cloneSession(session))
	return session, true, nil
}

func (r *MeetingSessionRepository) Close(ctx context.Context, lessonID, participantID int64, at time.Time) (bool, error) {
	defer r.store.lockWrite(ctx)()

	for _, s := range r.store.sessions {
		if s.LessonID == lessonID && s.ParticipantID == participantID && s.IsOpen() && !s.JoinedAt.After(at) {
			left := at
			s.LeftAt = &left
			return true, nil
		}
	}
	return false, nil
}

func (r *MeetingSessionRepository) CloseAll(ctx context.Context, lessonID int64, at time.Time) (int64, error) {
	defer r.store.lockWrite(ctx)()

	var closed int64
	for _, s := range r.store.sessions {
		if s.LessonID == lessonID && s.IsOpen() {
			left := at
			s.LeftAt = &left
			closed++
		}
	}
	return closed, nil
}

func (r *MeetingSessionRepository) ListOpen(_ context.Context, lessonID int64) ([]*model.MeetingSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*model.MeetingSession
	for _, s := range r.store.sessions {
		if s.LessonID == lessonID && s.IsOpen() {
			out = append(out, cloneSession(s))
		}
	}
	return out, nil
}

func (r *MeetingSessionRepository) LastClosed(_ context.Context, lessonID, participantID int64) (*model.MeetingSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var last *model.MeetingSession
	for _, s := range r.store.sessions {
		if s.LessonID != lessonID || s.ParticipantID != participantID || s.IsOpen() {
			continue
		}
		if last == nil || s.LeftAt.After(*last.LeftAt) {
			last = s
		}
	}
	if last == nil {
		return nil, nil
	}
	return cloneSession(last), nil
}
