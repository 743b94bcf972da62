package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// Дни недели в API передаются именами: {"monday": [{"start_time": 540, "end_time": 600}]}
type weekDTO map[string][]model.TimeRange

func weekToDTO(w model.WeekSnapshot) weekDTO {
	out := make(weekDTO, len(w))
	for day, ranges := range w {
		if len(ranges) == 0 {
			continue
		}
		out[strings.ToLower(day.String())] = ranges
	}
	return out
}

func weekFromDTO(d weekDTO) (model.WeekSnapshot, error) {
	out := make(model.WeekSnapshot, len(d))
	for name, ranges := range d {
		day, ok := parseWeekday(name)
		if !ok {
			return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown weekday %q", name))
		}
		out[day] = ranges
	}
	return out, nil
}

func parseWeekday(name string) (time.Weekday, bool) {
	for day := time.Sunday; day <= time.Saturday; day++ {
		if strings.EqualFold(day.String(), name) {
			return day, true
		}
	}
	return 0, false
}

type replaceAvailabilityRequest struct {
	Days weekDTO `json:"days" validate:"required,dive,keys,oneof=sunday monday tuesday wednesday thursday friday saturday,endkeys"`
}

type availabilityResponse struct {
	TutorID   int64      `json:"tutor_id"`
	Days      weekDTO    `json:"days"`
	UpdatedAt *time.Time `json:"updated_at"`
}

func toAvailabilityResponse(a *model.TutorAvailability) availabilityResponse {
	return availabilityResponse{TutorID: a.TutorID, Days: weekToDTO(a.Days), UpdatedAt: a.UpdatedAt}
}

type changeLogResponse struct {
	ID        int64                    `json:"id"`
	TutorID   int64                    `json:"tutor_id"`
	Action    model.AvailabilityAction `json:"action"`
	Before    weekDTO                  `json:"before"`
	After     weekDTO                  `json:"after"`
	ActorID   int64                    `json:"actor_id"`
	ActorRole model.Role               `json:"actor_role"`
	CreatedAt time.Time                `json:"created_at"`
}

func toChangeLogResponse(e *model.AvailabilityChangeLog) changeLogResponse {
	return changeLogResponse{
		ID:        e.ID,
		TutorID:   e.TutorID,
		Action:    e.Action,
		Before:    weekToDTO(e.Before),
		After:     weekToDTO(e.After),
		ActorID:   e.ActorID,
		ActorRole: e.ActorRole,
		CreatedAt: e.CreatedAt,
	}
}

type slotResponse struct {
	Date      string `json:"date"`
	StartTime int    `json:"start_time"`
	EndTime   int    `json:"end_time"`
	Label     string `json:"label"`
}

type reserveRequest struct {
	TutorID         int64  `json:"tutor_id" validate:"required,gt=0"`
	StudentID       int64  `json:"student_id" validate:"omitempty,gt=0"`
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime       *int   `json:"start_time" validate:"required,min=0,max=1439"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,min=30,max=120"`
	Topic           string `json:"topic" validate:"max=200"`
	Notes           string `json:"notes" validate:"max=2000"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type rateRequest struct {
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Feedback string `json:"feedback" validate:"max=2000"`
}

type meetingRequest struct {
	Device string `json:"device" validate:"omitempty,oneof=desktop mobile tablet"`
}

type registerUserRequest struct {
	Email      string     `json:"email" validate:"omitempty,email"`
	FirstName  string     `json:"first_name" validate:"required,max=100"`
	LastName   string     `json:"last_name" validate:"max=100"`
	Role       model.Role `json:"role" validate:"required,oneof=student tutor admin"`
	TelegramID *int64     `json:"telegram_id" validate:"omitempty,gt=0"`
}

// parseDate разбирает YYYY-MM-DD в рабочей таймзоне
func parseDate(value string, loc *time.Location) (time.Time, error) {
	date, err := time.ParseInLocation(time.DateOnly, value, loc)
	if err != nil {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", value))
	}
	return date, nil
}

// idParam положительный числовой параметр пути
func idParam(c *fiber.Ctx, name string) (int64, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid %s", name))
	}
	return int64(id), nil
}

// bind разбирает тело запроса в req и проверяет его.
// Пустое тело допустимо для запросов без обязательных полей.
func bind(c *fiber.Ctx, req interface{}) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
	}
	return validate.Struct(req)
}

// respondBindError 400 с деталями для ошибок валидатора
func respondBindError(c *fiber.Ctx, err error) error {
	if _, ok := err.(validator.ValidationErrors); ok {
		return ValidationError(c, err)
	}
	return err
}

func clientInfo(c *fiber.Ctx, device string) model.ClientInfo {
	return model.ClientInfo{UserAgent: c.Get(fiber.HeaderUserAgent), Device: device}
}
