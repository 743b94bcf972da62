package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/clock"
	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/notify"
	"github.com/Freeeeeet/lesson_scheduler/internal/video"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// roomPrefix все комнаты занятий называются lesson-<id>[-<suffix>]
	roomPrefix = "lesson-"
	// orphanGrace комнаты моложе этого не трогаем: старт мог ещё не закоммититься
	orphanGrace = 2 * time.Minute
	// lessonParticipants занятие один на один
	lessonParticipants = 2
)

// roomName имя комнаты занятия. Первое имя детерминировано по id, поэтому повторное
// создание после сбоя возвращает ту же комнату. Истёкшую комнату заменяет новая с суффиксом.
func roomName(lesson *model.Lesson) string {
	base := roomPrefix + strconv.FormatInt(lesson.ID, 10)
	if !lesson.HasRoom() {
		return base
	}
	return base + "-" + uuid.NewString()[:8]
}

// roomCleaner освобождает комнату завершённого занятия: забирает ссылку на запись
// и удаляет комнату. Всё best-effort, статус занятия от этого не зависит.
type roomCleaner struct {
	provider video.Provider
	lessons  LessonRepository
	logger   *zap.Logger
}

func (c roomCleaner) release(ctx context.Context, lesson *model.Lesson) {
	if c.provider == nil {
		return
	}

	if lesson.RecordingURL == "" {
		url, err := c.provider.GetRecordingURL(ctx, lesson.MeetingRoomName)
		if err != nil {
			c.logger.Warn("Failed to get recording url",
				zap.Int64("lesson_id", lesson.ID),
				zap.String("room", lesson.MeetingRoomName),
				zap.Error(err),
			)
		} else if url != "" {
			if err := c.lessons.SetRecordingURL(ctx, lesson.ID, url); err != nil {
				c.logger.Warn("Failed to save recording url",
					zap.Int64("lesson_id", lesson.ID),
					zap.Error(err),
				)
			} else {
				lesson.RecordingURL = url
			}
		}
	}

	c.deleteRoom(ctx, lesson.MeetingRoomName)
}

func (c roomCleaner) deleteRoom(ctx context.Context, name string) {
	if err := c.provider.DeleteRoom(ctx, name); err != nil {
		c.logger.Error("Failed to delete meeting room, left for orphan sweep",
			zap.String("room", name),
			zap.Error(err),
		)
		return
	}
	c.logger.Info("Meeting room deleted", zap.String("room", name))
}

// MeetingService видеокомнаты занятий и подключения участников
type MeetingService struct {
	tx       Transactor
	userRepo UserRepository
	lessons  LessonRepository
	sessions MeetingSessionRepository
	provider video.Provider
	notifier notify.Sender
	cleaner  roomCleaner
	timeline timeline
	settings Settings
	starts   singleflight.Group
	logger   *zap.Logger
}

func NewMeetingService(
	tx Transactor,
	userRepo UserRepository,
	lessons LessonRepository,
	sessions MeetingSessionRepository,
	provider video.Provider,
	notifier notify.Sender,
	clk clock.Clock,
	settings Settings,
	logger *zap.Logger,
) *MeetingService {
	return &MeetingService{
		tx:       tx,
		userRepo: userRepo,
		lessons:  lessons,
		sessions: sessions,
		provider: provider,
		notifier: notifier,
		cleaner:  roomCleaner{provider: provider, lessons: lessons, logger: logger},
		timeline: newTimeline(clk, settings.Location),
		settings: settings,
		logger:   logger,
	}
}

// StartMeeting открывает комнату занятия учителем и переводит занятие в in_progress.
// Если комната уже есть и активна, выдаёт новый токен в ту же комнату.
// Параллельные старты одного занятия схлопываются в один.
func (s *MeetingService) StartMeeting(ctx context.Context, actor model.Actor, lessonID int64, client model.ClientInfo) (*model.MeetingAccess, error) {
	lesson, err := loadLesson(ctx, s.lessons, lessonID)
	if err != nil {
		return nil, err
	}
	if err := requireTutorOf(actor, lesson); err != nil {
		return nil, err
	}

	// общий старт не должен зависеть от отмены запроса, который его запустил;
	// время вызовов провайдера ограничивает video.Guard
	v, err, _ := s.starts.Do(strconv.FormatInt(lessonID, 10), func() (interface{}, error) {
		return s.start(context.WithoutCancel(ctx), actor, lessonID, client)
	})
	if err != nil {
		return nil, err
	}
	access := *v.(*model.MeetingAccess)
	return &access, nil
}

func (s *MeetingService) start(ctx context.Context, actor model.Actor, lessonID int64, client model.ClientInfo) (*model.MeetingAccess, error) {
	// перечитываем: пока ждали singleflight, занятие могли уже запустить
	lesson, err := loadLesson(ctx, s.lessons, lessonID)
	if err != nil {
		return nil, err
	}

	now := s.timeline.now()

	switch lesson.Status {
	case model.LessonStatusInProgress:
	case model.LessonStatusScheduled:
		if now.Before(s.timeline.startsAt(lesson).Add(-s.settings.TutorStartLead)) {
			return nil, fmt.Errorf("%w: meeting can be started %s before the lesson",
				ErrTooEarly, s.settings.TutorStartLead)
		}
	default:
		if _, err := NextStatus(lesson.Status, EventStart); err != nil {
			return nil, err
		}
	}

	if lesson.HasRoom() {
		active, err := s.provider.IsRoomActive(ctx, lesson.MeetingRoomName)
		if err != nil {
			return nil, fmt.Errorf("check meeting room: %w", err)
		}
		if active && lesson.Status == model.LessonStatusInProgress {
			return s.reuseRoom(ctx, actor, lesson, client)
		}
	}

	return s.createRoom(ctx, actor, lesson, client)
}

// reuseRoom выдаёт учителю свежий токен в уже открытую комнату
func (s *MeetingService) reuseRoom(ctx context.Context, actor model.Actor, lesson *model.Lesson, client model.ClientInfo) (*model.MeetingAccess, error) {
	token, err := s.issueToken(ctx, lesson, actor, lesson.MeetingRoomName)
	if err != nil {
		return nil, err
	}
	if err := s.openSession(ctx, lesson, actor.UserID, client); err != nil {
		return nil, err
	}

	s.logger.Info("Meeting room reused",
		zap.Int64("lesson_id", lesson.ID),
		zap.String("room", lesson.MeetingRoomName),
	)

	return &model.MeetingAccess{
		LessonID:    lesson.ID,
		RoomName:    lesson.MeetingRoomName,
		RoomURL:     lesson.MeetingRoomURL,
		Token:       token,
		IsModerator: true,
	}, nil
}

// createRoom создаёт комнату, выдаёт токен и в одной транзакции сохраняет комнату,
// переводит занятие в in_progress и открывает сессию учителя.
// При любой ошибке после создания комната удаляется, занятие не меняется.
func (s *MeetingService) createRoom(ctx context.Context, actor model.Actor, lesson *model.Lesson, client model.ClientInfo) (*model.MeetingAccess, error) {
	room, err := s.provider.CreateRoom(ctx, video.RoomRequest{
		Name:            roomName(lesson),
		ExpiresAt:       s.roomExpiry(lesson),
		MaxParticipants: lessonParticipants,
		EnableRecording: s.settings.EnableRecording,
	})
	if err != nil {
		return nil, fmt.Errorf("create meeting room: %w", err)
	}

	token, err := s.issueToken(ctx, lesson, actor, room.Name)
	if err != nil {
		s.cleaner.deleteRoom(ctx, room.Name)
		return nil, err
	}

	fresh := lesson.Status == model.LessonStatusScheduled
	now := s.timeline.now()

	updated := *lesson
	updated.MeetingRoomName = room.Name
	updated.MeetingRoomURL = room.URL
	updated.MeetingToken = token

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.lessons.UpdateMeeting(ctx, &updated); err != nil {
			return fmt.Errorf("save meeting room: %w", err)
		}
		if fresh {
			err := applyTransition(ctx, s.lessons, &updated, EventStart, func(l *model.Lesson) {
				l.MeetingStartedAt = &now
			})
			if err != nil {
				return err
			}
		}
		return s.openSession(ctx, &updated, actor.UserID, client)
	})
	if err != nil {
		s.discardRoom(ctx, lesson.ID, room.Name)
		return nil, err
	}
	*lesson = updated

	s.logger.Info("Meeting started",
		zap.Int64("lesson_id", lesson.ID),
		zap.String("room", room.Name),
		zap.Bool("recreated", !fresh),
	)

	if fresh {
		s.notifyStudent(ctx, lesson)
	}

	return &model.MeetingAccess{
		LessonID:    lesson.ID,
		RoomName:    room.Name,
		RoomURL:     room.URL,
		Token:       token,
		IsModerator: true,
	}, nil
}

// discardRoom удаляет комнату после неудачного сохранения, если её не успел
// сохранить параллельный старт из другого процесса
func (s *MeetingService) discardRoom(ctx context.Context, lessonID int64, name string) {
	stored, err := s.lessons.GetByID(ctx, lessonID)
	if err == nil && stored != nil && stored.MeetingRoomName == name {
		return
	}
	s.cleaner.deleteRoom(ctx, name)
}

func (s *MeetingService) notifyStudent(ctx context.Context, lesson *model.Lesson) {
	student, err := s.userRepo.GetByID(ctx, lesson.StudentID)
	if err != nil || student == nil {
		s.logger.Warn("Student not found for room notification",
			zap.Int64("lesson_id", lesson.ID),
			zap.Int64("student_id", lesson.StudentID),
			zap.Error(err),
		)
		return
	}

	if err := s.notifier.LessonRoomAvailable(ctx, lesson, student, lesson.MeetingRoomURL); err != nil {
		s.logger.Warn("Failed to notify student about room",
			zap.Int64("lesson_id", lesson.ID),
			zap.Error(err),
		)
	}
}

// JoinMeeting выдаёт участнику токен в активную комнату.
// Студент может войти не раньше чем за StudentJoinLead до начала.
func (s *MeetingService) JoinMeeting(ctx context.Context, actor model.Actor, lessonID int64, client model.ClientInfo) (*model.MeetingAccess, error) {
	lesson, err := loadLesson(ctx, s.lessons, lessonID)
	if err != nil {
		return nil, err
	}
	if err := requireParticipant(actor, lesson); err != nil {
		return nil, err
	}

	if actor.IsStudent() {
		if s.timeline.now().Before(s.timeline.startsAt(lesson).Add(-s.settings.StudentJoinLead)) {
			return nil, fmt.Errorf("%w: students can join %s before the lesson",
				ErrTooEarly, s.settings.StudentJoinLead)
		}
	}

	if !lesson.HasRoom() || lesson.Status != model.LessonStatusInProgress {
		return nil, fmt.Errorf("%w: meeting has not been started", ErrRoomNotReady)
	}

	active, err := s.provider.IsRoomActive(ctx, lesson.MeetingRoomName)
	if err != nil {
		return nil, fmt.Errorf("check meeting room: %w", err)
	}
	if !active {
		return nil, fmt.Errorf("%w: room %s is not active", ErrRoomNotReady, lesson.MeetingRoomName)
	}

	token, err := s.issueToken(ctx, lesson, actor, lesson.MeetingRoomName)
	if err != nil {
		return nil, err
	}
	if err := s.openSession(ctx, lesson, actor.UserID, client); err != nil {
		return nil, err
	}

	s.logger.Info("Participant joined meeting",
		zap.Int64("lesson_id", lesson.ID),
		zap.Int64("user_id", actor.UserID),
		zap.String("role", string(actor.Role)),
	)

	return &model.MeetingAccess{
		LessonID:    lesson.ID,
		RoomName:    lesson.MeetingRoomName,
		RoomURL:     lesson.MeetingRoomURL,
		Token:       token,
		IsModerator: actor.IsTutor(),
	}, nil
}

// LeaveMeeting закрывает открытую сессию участника; повторный выход ничего не делает
func (s *MeetingService) LeaveMeeting(ctx context.Context, actor model.Actor, lessonID int64) error {
	lesson, err := loadLesson(ctx, s.lessons, lessonID)
	if err != nil {
		return err
	}
	if err := requireParticipant(actor, lesson); err != nil {
		return err
	}

	closed, err := s.sessions.Close(ctx, lesson.ID, actor.UserID, s.timeline.now())
	if err != nil {
		return fmt.Errorf("close meeting session: %w", err)
	}

	if closed {
		s.logger.Info("Participant left meeting",
			zap.Int64("lesson_id", lesson.ID),
			zap.Int64("user_id", actor.UserID),
		)
	}
	return nil
}

// EndMeeting завершает встречу и занятие. После коммита перехода запись
// и удаление комнаты выполняются best-effort.
func (s *MeetingService) EndMeeting(ctx context.Context, actor model.Actor, lessonID int64) (*model.Lesson, error) {
	lesson, err := loadLesson(ctx, s.lessons, lessonID)
	if err != nil {
		return nil, err
	}
	if err := requireTutorOf(actor, lesson); err != nil {
		return nil, err
	}

	now := s.timeline.now()
	var closed int64

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		err := applyTransition(ctx, s.lessons, lesson, EventEnd, func(l *model.Lesson) {
			l.MeetingEndedAt = &now
		})
		if err != nil {
			return err
		}

		closed, err = s.sessions.CloseAll(ctx, lesson.ID, now)
		if err != nil {
			return fmt.Errorf("close meeting sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Meeting ended",
		zap.Int64("lesson_id", lesson.ID),
		zap.Int64("closed_sessions", closed),
	)

	if lesson.HasRoom() {
		s.cleaner.release(ctx, lesson)
	}

	return lesson, nil
}

// Status сводка по встрече для интерфейса
func (s *MeetingService) Status(ctx context.Context, actor model.Actor, lessonID int64) (*model.MeetingStatus, error) {
	lesson, err := loadLesson(ctx, s.lessons, lessonID)
	if err != nil {
		return nil, err
	}
	if err := requireCanView(actor, lesson); err != nil {
		return nil, err
	}

	status := &model.MeetingStatus{
		LessonID:           lesson.ID,
		Status:             lesson.Status,
		HasRoom:            lesson.HasRoom(),
		ActiveParticipants: []int64{},
	}

	running := lesson.Status == model.LessonStatusInProgress
	if running && lesson.HasRoom() {
		active, err := s.provider.IsRoomActive(ctx, lesson.MeetingRoomName)
		if err != nil {
			s.logger.Warn("Failed to check meeting room",
				zap.Int64("lesson_id", lesson.ID),
				zap.Error(err),
			)
		}
		status.IsActive = active
	}

	now := s.timeline.now()
	startsAt := s.timeline.startsAt(lesson)
	isTutor := actor.IsTutor() && lesson.IsTutor(actor.UserID)
	isStudent := actor.IsStudent() && lesson.IsStudent(actor.UserID)

	if isTutor {
		switch lesson.Status {
		case model.LessonStatusScheduled:
			status.CanStart = !now.Before(startsAt.Add(-s.settings.TutorStartLead))
		case model.LessonStatusInProgress:
			status.CanStart = !status.IsActive
		}
	}

	if status.IsActive {
		status.CanJoin = isTutor || (isStudent && !now.Before(startsAt.Add(-s.settings.StudentJoinLead)))
		if isTutor || isStudent {
			status.RoomURL = lesson.MeetingRoomURL
		}
	}

	open, err := s.sessions.ListOpen(ctx, lesson.ID)
	if err != nil {
		return nil, fmt.Errorf("list meeting sessions: %w", err)
	}
	for _, session := range open {
		status.ActiveParticipants = append(status.ActiveParticipants, session.ParticipantID)
	}

	return status, nil
}

// SweepOrphanRooms удаляет комнаты занятий, которые не принадлежат идущему занятию:
// оставшиеся после сбоя старта или неудачного удаления. Возвращает число удалённых.
func (s *MeetingService) SweepOrphanRooms(ctx context.Context) (int, error) {
	rooms, err := s.provider.ListRooms(ctx)
	if err != nil {
		return 0, fmt.Errorf("list meeting rooms: %w", err)
	}

	now := s.timeline.now()
	deleted := 0

	for _, room := range rooms {
		if !strings.HasPrefix(room.Name, roomPrefix) {
			continue
		}
		if !room.CreatedAt.IsZero() && now.Sub(room.CreatedAt) < orphanGrace {
			continue
		}

		lesson, err := s.lessons.GetByRoomName(ctx, room.Name)
		if err != nil {
			s.logger.Warn("Failed to find lesson for room",
				zap.String("room", room.Name),
				zap.Error(err),
			)
			continue
		}
		if lesson != nil && lesson.Status == model.LessonStatusInProgress {
			continue
		}

		if err := s.provider.DeleteRoom(ctx, room.Name); err != nil {
			s.logger.Warn("Failed to delete orphan room",
				zap.String("room", room.Name),
				zap.Error(err),
			)
			continue
		}
		deleted++

		s.logger.Info("Orphan meeting room deleted", zap.String("room", room.Name))
	}

	return deleted, nil
}

func (s *MeetingService) issueToken(ctx context.Context, lesson *model.Lesson, actor model.Actor, room string) (string, error) {
	name := ""
	user, err := s.userRepo.GetByID(ctx, actor.UserID)
	if err == nil && user != nil {
		name = user.FullName()
	}

	token, err := s.provider.GenerateToken(ctx, video.TokenRequest{
		RoomName:    room,
		UserID:      actor.UserID,
		UserName:    name,
		IsModerator: actor.IsTutor(),
		ExpiresAt:   s.roomExpiry(lesson),
	})
	if err != nil {
		return "", fmt.Errorf("generate meeting token: %w", err)
	}
	return token, nil
}

func (s *MeetingService) openSession(ctx context.Context, lesson *model.Lesson, userID int64, client model.ClientInfo) error {
	_, created, err := s.sessions.Open(ctx, &model.MeetingSession{
		LessonID:      lesson.ID,
		ParticipantID: userID,
		RoomName:      lesson.MeetingRoomName,
		JoinedAt:      s.timeline.now(),
		UserAgent:     client.UserAgent,
		Device:        client.Device,
	})
	if err != nil {
		return fmt.Errorf("open meeting session: %w", err)
	}
	if !created {
		s.logger.Debug("Meeting session already open",
			zap.Int64("lesson_id", lesson.ID),
			zap.Int64("user_id", userID),
		)
	}
	return nil
}

// roomExpiry комната и токены живут до конца занятия плюс RoomTTL
func (s *MeetingService) roomExpiry(lesson *model.Lesson) time.Time {
	return lesson.EndsAt(s.timeline.loc).Add(s.settings.RoomTTL)
}
