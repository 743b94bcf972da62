// Package fake in-memory видеопровайдер для локальной разработки и тестов.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/video"
)

type Provider struct {
	mu         sync.Mutex
	baseURL    string
	now        func() time.Time
	rooms      map[string]*video.Room
	recordings map[string]string

	// счётчики вызовов для проверок в тестах
	Created int
	Deleted int
	Tokens  int

	// LastRoom параметры последней созданной комнаты
	LastRoom video.RoomRequest

	// ошибки, которые вернут следующие вызовы
	FailCreate error
	FailDelete error
	FailToken  error
	FailActive error
}

var _ video.Provider = (*Provider)(nil)

// New создаёт провайдер; now может быть nil
func New(baseURL string, now func() time.Time) *Provider {
	if now == nil {
		now = time.Now
	}
	return &Provider{
		baseURL:    baseURL,
		now:        now,
		rooms:      make(map[string]*video.Room),
		recordings: make(map[string]string),
	}
}

func (p *Provider) CreateRoom(_ context.Context, req video.RoomRequest) (*video.Room, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailCreate != nil {
		return nil, p.FailCreate
	}
	if room, ok := p.rooms[req.Name]; ok {
		copied := *room
		return &copied, nil
	}

	room := &video.Room{
		Name:      req.Name,
		URL:       fmt.Sprintf("%s/%s", p.baseURL, req.Name),
		CreatedAt: p.now(),
	}
	if !req.ExpiresAt.IsZero() {
		exp := req.ExpiresAt
		room.ExpiresAt = &exp
	}
	p.rooms[req.Name] = room
	p.Created++
	p.LastRoom = req

	copied := *room
	return &copied, nil
}

func (p *Provider) IsRoomActive(_ context.Context, roomName string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailActive != nil {
		return false, p.FailActive
	}
	room, ok := p.rooms[roomName]
	if !ok {
		return false, nil
	}
	if room.ExpiresAt != nil && !room.ExpiresAt.After(p.now()) {
		return false, nil
	}
	return true, nil
}

func (p *Provider) GenerateToken(_ context.Context, req video.TokenRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailToken != nil {
		return "", p.FailToken
	}
	if _, ok := p.rooms[req.RoomName]; !ok {
		return "", fmt.Errorf("%w: token for unknown room %s", video.ErrProvider, req.RoomName)
	}
	p.Tokens++
	return fmt.Sprintf("tok-%s-%d-%t-%d", req.RoomName, req.UserID, req.IsModerator, p.Tokens), nil
}

func (p *Provider) DeleteRoom(_ context.Context, roomName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailDelete != nil {
		return p.FailDelete
	}
	if _, ok := p.rooms[roomName]; ok {
		delete(p.rooms, roomName)
		p.Deleted++
	}
	return nil
}

func (p *Provider) GetRecordingURL(_ context.Context, roomName string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recordings[roomName], nil
}

func (p *Provider) ListRooms(_ context.Context) ([]video.Room, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rooms := make([]video.Room, 0, len(p.rooms))
	for _, r := range p.rooms {
		rooms = append(rooms, *r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms, nil
}

// SetRecording регистрирует запись для комнаты
func (p *Provider) SetRecording(roomName, url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recordings[roomName] = url
}

// AddRoom добавляет комнату в обход CreateRoom (например, осиротевшую)
func (p *Provider) AddRoom(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms[name] = &video.Room{Name: name, URL: p.baseURL + "/" + name, CreatedAt: p.now()}
}

// HasRoom проверяет существование комнаты
func (p *Provider) HasRoom(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.rooms[name]
	return ok
}

// Expire помечает комнату истёкшей
func (p *Provider) Expire(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if room, ok := p.rooms[name]; ok {
		exp := p.now().Add(-time.Second)
		room.ExpiresAt = &exp
	}
}

// RoomCount количество существующих комнат
func (p *Provider) RoomCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rooms)
}
