// Package sendgrid доставляет уведомления по email через SendGrid.
package sendgrid

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/notify"
	"github.com/sendgrid/rest"
	sg "github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

// doFunc отправка готового запроса; подменяется в тестах
type doFunc func(ctx context.Context, req rest.Request) (*rest.Response, error)

type Sender struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	do         doFunc
	logger     *zap.Logger
}

var _ notify.Sender = (*Sender)(nil)

func New(key, appName, fromEmail string, logger *zap.Logger) *Sender {
	return &Sender{
		key:        key,
		from:       sgmail.NewEmail(appName, fromEmail),
		subjPrefix: "[" + appName + "] ",
		do: func(ctx context.Context, req rest.Request) (*rest.Response, error) {
			return sg.MakeRequestWithContext(ctx, req)
		},
		logger: logger,
	}
}

func (s *Sender) BookingCreated(ctx context.Context, lesson *model.Lesson, tutor, student *model.User) error {
	return s.send(ctx, tutor, "Новая запись на занятие", notify.BookingCreatedText(lesson, student))
}

func (s *Sender) LessonRoomAvailable(ctx context.Context, lesson *model.Lesson, student *model.User, roomURL string) error {
	return s.send(ctx, student, "Комната занятия открыта", notify.RoomAvailableText(lesson, roomURL))
}

func (s *Sender) prepare(to *model.User, subject, text string) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + subject
	p.AddTos(sgmail.NewEmail(to.FullName(), to.Email))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", text))
	return m
}

// send пропускает пользователей без email
func (s *Sender) send(ctx context.Context, to *model.User, subject, text string) error {
	if to == nil || to.Email == "" {
		return nil
	}

	req := sg.GetRequest(s.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(to, subject, text))

	res, err := s.do(ctx, req)
	if err != nil {
		return fmt.Errorf("send email to user %d: %w", to.ID, err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		s.logger.Error("SendGrid rejected email",
			zap.Int64("user_id", to.ID),
			zap.Int("status", res.StatusCode),
			zap.String("body", res.Body),
		)
		return fmt.Errorf("send email to user %d: status %d", to.ID, res.StatusCode)
	}
	return nil
}
