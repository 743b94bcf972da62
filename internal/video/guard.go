package video

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// GuardConfig ограничения на вызовы провайдера
type GuardConfig struct {
	Timeout     time.Duration // на одну попытку
	ReadRetries uint64        // повторы для идемпотентных чтений
	BaseBackoff time.Duration
}

// Guard оборачивает Provider: каждый вызов ограничен таймаутом,
// идемпотентные чтения повторяются с экспоненциальной задержкой.
// CreateRoom не повторяется, чтобы не плодить комнаты.
type Guard struct {
	next   Provider
	cfg    GuardConfig
	logger *zap.Logger
}

var _ Provider = (*Guard)(nil)

// NewGuard создаёт обёртку над провайдером
func NewGuard(next Provider, cfg GuardConfig, logger *zap.Logger) *Guard {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 200 * time.Millisecond
	}
	return &Guard{next: next, cfg: cfg, logger: logger}
}

func (g *Guard) CreateRoom(ctx context.Context, req RoomRequest) (*Room, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	return g.next.CreateRoom(ctx, req)
}

func (g *Guard) IsRoomActive(ctx context.Context, roomName string) (bool, error) {
	var active bool
	err := g.readWithRetry(ctx, "is_room_active", func(ctx context.Context) error {
		var err error
		active, err = g.next.IsRoomActive(ctx, roomName)
		return err
	})
	return active, err
}

func (g *Guard) GenerateToken(ctx context.Context, req TokenRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	return g.next.GenerateToken(ctx, req)
}

func (g *Guard) DeleteRoom(ctx context.Context, roomName string) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	return g.next.DeleteRoom(ctx, roomName)
}

func (g *Guard) GetRecordingURL(ctx context.Context, roomName string) (string, error) {
	var url string
	err := g.readWithRetry(ctx, "get_recording_url", func(ctx context.Context) error {
		var err error
		url, err = g.next.GetRecordingURL(ctx, roomName)
		return err
	})
	return url, err
}

func (g *Guard) ListRooms(ctx context.Context) ([]Room, error) {
	var rooms []Room
	err := g.readWithRetry(ctx, "list_rooms", func(ctx context.Context) error {
		var err error
		rooms, err = g.next.ListRooms(ctx)
		return err
	})
	return rooms, err
}

// readWithRetry повторяет только ошибки провайдера; отсутствие комнаты и
// отмена контекста возвращаются сразу
func (g *Guard) readWithRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(g.cfg.ReadRetries, retry.NewExponential(g.cfg.BaseBackoff))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrProvider) {
			g.logger.Warn("Video provider read failed",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
}
