package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const headerWebhookSignature = "X-Webhook-Signature"

// SignWebhook hex(HMAC-SHA256(body)), как его считает провайдер
func SignWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret string, body []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// VideoWebhook POST /webhooks/video
// Всё кроме неверной подписи подтверждаем 200: ошибки обработки только логируются.
func (h *Handlers) VideoWebhook(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := c.Body()
		if !validSignature(secret, body, c.Get(headerWebhookSignature)) {
			return Error(c, fiber.StatusUnauthorized, "invalid signature")
		}

		var event service.WebhookEvent
		if err := json.Unmarshal(body, &event); err != nil {
			h.logger.Warn("Malformed webhook payload", zap.Error(err))
			return Success(c, "ignored", fiber.Map{"result": service.WebhookIgnored})
		}

		result, err := h.svc.Webhooks.Handle(c.UserContext(), event)
		if err != nil {
			h.logger.Error("Failed to handle webhook",
				zap.String("event", event.Event),
				zap.String("room", event.RoomName),
				zap.Error(err),
			)
			return Success(c, "ignored", fiber.Map{"result": service.WebhookIgnored})
		}
		return Success(c, string(result), fiber.Map{"result": result})
	}
}
