package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

const localActor = "actor"

// Claims токен доступа. Выдаёт внешний сервис авторизации, мы только проверяем.
type Claims struct {
	UserID int64      `json:"user_id"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken подписывает HS256 токен для actor. Нужен dev-утилите и тестам.
func IssueToken(secret string, actor model.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: actor.UserID,
		Role:   actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken проверяет подпись, срок и состав claims
func ParseToken(secret, raw string) (model.Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return model.Actor{}, fmt.Errorf("parse token: %w", err)
	}

	if claims.UserID <= 0 || !claims.Role.Valid() {
		return model.Actor{}, fmt.Errorf("token has invalid user_id or role")
	}
	return model.Actor{UserID: claims.UserID, Role: claims.Role}, nil
}

// AuthMiddleware требует Bearer токен и кладёт model.Actor в Locals
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		const prefix = "Bearer "
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, prefix) {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		actor, err := ParseToken(secret, strings.TrimSpace(header[len(prefix):]))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(localActor, actor)
		return c.Next()
	}
}

// actorFrom достаёт actor, положенный AuthMiddleware
func actorFrom(c *fiber.Ctx) model.Actor {
	actor, _ := c.Locals(localActor).(model.Actor)
	return actor
}
