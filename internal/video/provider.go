// Package video описывает внешний видеосервис, в котором проходят занятия.
package video

import (
	"context"
	"errors"
	"time"
)

// ErrProvider любая ошибка внешнего видеосервиса (сеть, таймаут, 5xx)
var ErrProvider = errors.New("video provider error")

// ErrRoomNotFound комната не существует у провайдера
var ErrRoomNotFound = errors.New("video room not found")

// Room комната у провайдера
type Room struct {
	Name      string
	URL       string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// RoomRequest параметры создания комнаты
type RoomRequest struct {
	Name      string
	ExpiresAt time.Time
	// MaxParticipants 0 - без ограничения
	MaxParticipants int
	EnableRecording bool
}

// TokenRequest параметры токена доступа участника
type TokenRequest struct {
	RoomName    string
	UserID      int64
	UserName    string
	IsModerator bool
	ExpiresAt   time.Time
}

// Provider клиент видеосервиса
type Provider interface {
	CreateRoom(ctx context.Context, req RoomRequest) (*Room, error)
	IsRoomActive(ctx context.Context, roomName string) (bool, error)
	GenerateToken(ctx context.Context, req TokenRequest) (string, error)
	DeleteRoom(ctx context.Context, roomName string) error
	// GetRecordingURL возвращает пустую строку если записи нет
	GetRecordingURL(ctx context.Context, roomName string) (string, error)
	ListRooms(ctx context.Context) ([]Room, error)
}
