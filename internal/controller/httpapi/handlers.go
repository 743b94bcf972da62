package httpapi

import (
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/clock"
	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const defaultListPeriod = 30 * 24 * time.Hour

// Services бизнес-логика, которую обслуживает API
type Services struct {
	Users        *service.UserService
	Availability *service.AvailabilityService
	Slots        *service.SlotService
	Booking      *service.BookingService
	Lessons      *service.LessonService
	Meetings     *service.MeetingService
	Webhooks     *service.WebhookService
}

type Handlers struct {
	svc    Services
	clock  clock.Clock
	loc    *time.Location
	logger *zap.Logger
}

func NewHandlers(svc Services, clk clock.Clock, loc *time.Location, logger *zap.Logger) *Handlers {
	return &Handlers{svc: svc, clock: clk, loc: loc, logger: logger}
}

// Health GET /health
func (h *Handlers) Health(c *fiber.Ctx) error {
	return Success(c, "ok", fiber.Map{"time": h.clock.Now().In(h.loc)})
}

// Me GET /api/me
func (h *Handlers) Me(c *fiber.Ctx) error {
	user, err := h.svc.Users.GetByID(c.UserContext(), actorFrom(c).UserID)
	if err != nil {
		return err
	}
	return Success(c, "user", user)
}

// RegisterUser POST /api/users
func (h *Handlers) RegisterUser(c *fiber.Ctx) error {
	var req registerUserRequest
	if err := bind(c, &req); err != nil {
		return respondBindError(c, err)
	}

	user, err := h.svc.Users.RegisterUser(c.UserContext(), actorFrom(c), &model.User{
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Role:       req.Role,
		TelegramID: req.TelegramID,
	})
	if err != nil {
		return err
	}
	return SuccessWithCode(c, fiber.StatusCreated, "user registered", user)
}

// GetAvailability GET /api/tutors/:id/availability
func (h *Handlers) GetAvailability(c *fiber.Ctx) error {
	tutorID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	availability, err := h.svc.Availability.Get(c.UserContext(), tutorID)
	if err != nil {
		return err
	}
	return Success(c, "availability", toAvailabilityResponse(availability))
}

// ReplaceAvailability PUT /api/tutors/:id/availability
func (h *Handlers) ReplaceAvailability(c *fiber.Ctx) error {
	tutorID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var req replaceAvailabilityRequest
	if err := bind(c, &req); err != nil {
		return respondBindError(c, err)
	}
	week, err := weekFromDTO(req.Days)
	if err != nil {
		return err
	}

	entry, err := h.svc.Availability.Replace(c.UserContext(), actorFrom(c), tutorID, week)
	if err != nil {
		return err
	}
	if entry == nil {
		return Success(c, "availability unchanged", nil)
	}
	return Success(c, "availability updated", toChangeLogResponse(entry))
}

// AvailabilityHistory GET /api/tutors/:id/availability/history?limit=
func (h *Handlers) AvailabilityHistory(c *fiber.Ctx) error {
	tutorID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	entries, err := h.svc.Availability.History(c.UserContext(), actorFrom(c), tutorID, c.QueryInt("limit", 20))
	if err != nil {
		return err
	}

	out := make([]changeLogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toChangeLogResponse(e))
	}
	return Success(c, "availability history", out)
}

// RollbackAvailability POST /api/tutors/:id/availability/rollback/:logID
func (h *Handlers) RollbackAvailability(c *fiber.Ctx) error {
	tutorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	logID, err := idParam(c, "logID")
	if err != nil {
		return err
	}

	entry, err := h.svc.Availability.Rollback(c.UserContext(), actorFrom(c), tutorID, logID)
	if err != nil {
		return err
	}
	if entry == nil {
		return Success(c, "availability unchanged", nil)
	}
	return Success(c, "availability rolled back", toChangeLogResponse(entry))
}

// ListSlots GET /api/tutors/:id/slots?date=YYYY-MM-DD
func (h *Handlers) ListSlots(c *fiber.Ctx) error {
	tutorID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	date, err := parseDate(c.Query("date"), h.loc)
	if err != nil {
		return err
	}

	slots, err := h.svc.Slots.ListAvailableSlots(c.UserContext(), tutorID, date)
	if err != nil {
		return err
	}

	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotResponse{
			Date:      s.Date.Format(time.DateOnly),
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			Label:     model.TimeRange{Start: s.StartTime, End: s.EndTime}.String(),
		})
	}
	return Success(c, "available slots", out)
}

// CreateLesson POST /api/lessons
func (h *Handlers) CreateLesson(c *fiber.Ctx) error {
	var req reserveRequest
	if err := bind(c, &req); err != nil {
		return respondBindError(c, err)
	}
	date, err := parseDate(req.Date, h.loc)
	if err != nil {
		return err
	}

	lesson, err := h.svc.Booking.Reserve(c.UserContext(), actorFrom(c), service.ReserveRequest{
		TutorID:         req.TutorID,
		StudentID:       req.StudentID,
		Date:            date,
		StartTime:       *req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Topic:           req.Topic,
		Notes:           req.Notes,
	})
	if err != nil {
		return err
	}
	return SuccessWithCode(c, fiber.StatusCreated, "lesson booked", lesson)
}

// ListLessons GET /api/lessons?from=&to=
func (h *Handlers) ListLessons(c *fiber.Ctx) error {
	from := model.DateOnly(h.clock.Now().In(h.loc))
	if v := c.Query("from"); v != "" {
		parsed, err := parseDate(v, h.loc)
		if err != nil {
			return err
		}
		from = parsed
	}

	to := from.Add(defaultListPeriod)
	if v := c.Query("to"); v != "" {
		parsed, err := parseDate(v, h.loc)
		if err != nil {
			return err
		}
		// to включительно
		to = parsed.AddDate(0, 0, 1)
	}

	lessons, err := h.svc.Booking.ListForUser(c.UserContext(), actorFrom(c), from, to)
	if err != nil {
		return err
	}
	if lessons == nil {
		lessons = []*model.Lesson{}
	}
	return Success(c, "lessons", lessons)
}

// GetLesson GET /api/lessons/:id
func (h *Handlers) GetLesson(c *fiber.Ctx) error {
	lessonID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	lesson, err := h.svc.Booking.Get(c.UserContext(), actorFrom(c), lessonID)
	if err != nil {
		return err
	}
	return Success(c, "lesson", lesson)
}

// CancelLesson POST /api/lessons/:id/cancel
func (h *Handlers) CancelLesson(c *fiber.Ctx) error {
	lessonID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req cancelRequest
	if err := bind(c, &req); err != nil {
		return respondBindError(c, err)
	}

	lesson, err := h.svc.Booking.Cancel(c.UserContext(), actorFrom(c), lessonID, req.Reason)
	if err != nil {
		return err
	}
	return Success(c, "lesson cancelled", lesson)
}

// CompleteLesson POST /api/lessons/:id/complete
func (h *Handlers) CompleteLesson(c *fiber.Ctx) error {
	lessonID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	lesson, err := h.svc.Lessons.Complete(c.UserContext(), actorFrom(c), lessonID)
	if err != nil {
		return err
	}
	return Success(c, "lesson completed", lesson)
}

// MarkNoShow POST /api/lessons/:id/no-show
func (h *Handlers) MarkNoShow(c *fiber.Ctx) error {
	lessonID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	lesson, err := h.svc.Lessons.MarkNoShow(c.UserContext(), actorFrom(c), lessonID)
	if err != nil {
		return err
	}
	return Success(c, "lesson marked as no-show", lesson)
}

// RateLesson POST /api/lessons/:id/rate
func (h *Handlers) RateLesson(c *fiber.Ctx) error {
	lessonID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req rateRequest
	if err := bind(c, &req); err != nil {
		return respondBindError(c, err)
	}

	lesson, err := h.svc.Lessons.Rate(c.UserContext(), actorFrom(c), lessonID, req.Rating, req.Feedback)
	if err != nil {
		return err
	}
	return Success(c, "lesson rated", lesson)
}

// StartMeeting POST /api/lessons/:id/meeting/start
func (h *Handlers) StartMeeting(c *fiber.Ctx) error {
	lessonID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req meetingRequest
	if err := bind(c, &req); err != nil {
		return respondBindError(c, err)
	}

	access, err := h.svc.Meetings.StartMeeting(c.UserContext(), actorFrom(c), lessonID, clientInfo(c, req.Device))
	if err != nil {
		return err
	}
	return Success(c, "meeting started", access)
}

// JoinMeeting POST /api/lessons/:id/meeting/join
func (h *Handlers) JoinMeeting(c *fiber.Ctx) error {
	lessonID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req meetingRequest
	if err := bind(c, &req); err != nil {
		return respondBindError(c, err)
	}

	access, err := h.svc.Meetings.JoinMeeting(c.UserContext(), actorFrom(c), lessonID, clientInfo(c, req.Device))
	if err != nil {
		return err
	}
	return Success(c, "meeting joined", access)
}

// LeaveMeeting POST /api/lessons/:id/meeting/leave
func (h *Handlers) LeaveMeeting(c *fiber.Ctx) error {
	lessonID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.svc.Meetings.LeaveMeeting(c.UserContext(), actorFrom(c), lessonID); err != nil {
		return err
	}
	return Success(c, "meeting left", nil)
}

// EndMeeting POST /api/lessons/:id/meeting/end
func (h *Handlers) EndMeeting(c *fiber.Ctx) error {
	lessonID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	lesson, err := h.svc.Meetings.EndMeeting(c.UserContext(), actorFrom(c), lessonID)
	if err != nil {
		return err
	}
	return Success(c, "meeting ended", lesson)
}

// MeetingStatus GET /api/lessons/:id/meeting
func (h *Handlers) MeetingStatus(c *fiber.Ctx) error {
	lessonID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	status, err := h.svc.Meetings.Status(c.UserContext(), actorFrom(c), lessonID)
	if err != nil {
		return err
	}
	return Success(c, "meeting status", status)
}
