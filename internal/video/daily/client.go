// Package daily реализует video.Provider поверх REST API Daily.
package daily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/video"
)

const DefaultBaseURL = "https://api.daily.co/v1"

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	now     func() time.Time
}

var _ video.Provider = (*Client)(nil)

// NewClient создаёт клиента. Таймауты задаются контекстом (см. video.Guard).
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{},
		now:     time.Now,
	}
}

type roomProperties struct {
	Exp             int64  `json:"exp,omitempty"`
	MaxParticipants int    `json:"max_participants,omitempty"`
	EnableRecording string `json:"enable_recording,omitempty"`
	EjectAtRoomExp  bool   `json:"eject_at_room_exp,omitempty"`
}

type createRoomRequest struct {
	Name       string         `json:"name"`
	Privacy    string         `json:"privacy"`
	Properties roomProperties `json:"properties"`
}

type roomResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	URL       string         `json:"url"`
	CreatedAt time.Time      `json:"created_at"`
	Config    roomProperties `json:"config"`
}

func (r roomResponse) toRoom() video.Room {
	room := video.Room{Name: r.Name, URL: r.URL, CreatedAt: r.CreatedAt}
	if r.Config.Exp > 0 {
		exp := time.Unix(r.Config.Exp, 0)
		room.ExpiresAt = &exp
	}
	return room
}

// CreateRoom создаёт приватную комнату. Если комната с таким именем уже есть,
// возвращает существующую: имя комнаты служит ключом идемпотентности.
func (c *Client) CreateRoom(ctx context.Context, req video.RoomRequest) (*video.Room, error) {
	body := createRoomRequest{
		Name:    req.Name,
		Privacy: "private",
		Properties: roomProperties{
			Exp:             req.ExpiresAt.Unix(),
			MaxParticipants: req.MaxParticipants,
			EjectAtRoomExp:  true,
		},
	}
	if req.EnableRecording {
		body.Properties.EnableRecording = "cloud"
	}

	var resp roomResponse
	status, err := c.do(ctx, http.MethodPost, "/rooms", body, &resp)
	if status == http.StatusBadRequest {
		existing, getErr := c.getRoom(ctx, req.Name)
		if getErr == nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create room %s: %w", req.Name, err)
	}

	room := resp.toRoom()
	return &room, nil
}

func (c *Client) getRoom(ctx context.Context, name string) (*video.Room, error) {
	var resp roomResponse
	status, err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(name), nil, &resp)
	if status == http.StatusNotFound {
		return nil, video.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	room := resp.toRoom()
	return &room, nil
}

// IsRoomActive комната существует и ещё не истекла
func (c *Client) IsRoomActive(ctx context.Context, roomName string) (bool, error) {
	room, err := c.getRoom(ctx, roomName)
	if err == video.ErrRoomNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get room %s: %w", roomName, err)
	}
	if room.ExpiresAt != nil && !room.ExpiresAt.After(c.now()) {
		return false, nil
	}
	return true, nil
}

type tokenProperties struct {
	RoomName string `json:"room_name"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	IsOwner  bool   `json:"is_owner"`
	Exp      int64  `json:"exp,omitempty"`
}

type tokenRequest struct {
	Properties tokenProperties `json:"properties"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// GenerateToken выпускает meeting token. user_id совпадает с нашим ID пользователя,
// он же приходит в вебхуках как participant_user_id.
func (c *Client) GenerateToken(ctx context.Context, req video.TokenRequest) (string, error) {
	body := tokenRequest{Properties: tokenProperties{
		RoomName: req.RoomName,
		UserID:   strconv.FormatInt(req.UserID, 10),
		UserName: req.UserName,
		IsOwner:  req.IsModerator,
	}}
	if !req.ExpiresAt.IsZero() {
		body.Properties.Exp = req.ExpiresAt.Unix()
	}

	var resp tokenResponse
	if _, err := c.do(ctx, http.MethodPost, "/meeting-tokens", body, &resp); err != nil {
		return "", fmt.Errorf("generate token for room %s: %w", req.RoomName, err)
	}
	return resp.Token, nil
}

// DeleteRoom удаляет комнату; уже удалённая комната не ошибка
func (c *Client) DeleteRoom(ctx context.Context, roomName string) error {
	status, err := c.do(ctx, http.MethodDelete, "/rooms/"+url.PathEscape(roomName), nil, nil)
	if status == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete room %s: %w", roomName, err)
	}
	return nil
}

type recordingsResponse struct {
	Data []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

type accessLinkResponse struct {
	DownloadLink string `json:"download_link"`
}

// GetRecordingURL ссылка на последнюю готовую запись комнаты
func (c *Client) GetRecordingURL(ctx context.Context, roomName string) (string, error) {
	var list recordingsResponse
	path := "/recordings?room_name=" + url.QueryEscape(roomName)
	if _, err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return "", fmt.Errorf("list recordings of %s: %w", roomName, err)
	}

	for _, rec := range list.Data {
		if rec.Status != "finished" {
			continue
		}
		var link accessLinkResponse
		if _, err := c.do(ctx, http.MethodGet, "/recordings/"+url.PathEscape(rec.ID)+"/access-link", nil, &link); err != nil {
			return "", fmt.Errorf("recording access link %s: %w", rec.ID, err)
		}
		return link.DownloadLink, nil
	}

	return "", nil
}

// roomsPageSize максимальный limit у GET /rooms
var roomsPageSize = 100

type listRoomsResponse struct {
	Data []roomResponse `json:"data"`
}

// ListRooms обходит все страницы: следующая начинается после id последней комнаты
func (c *Client) ListRooms(ctx context.Context) ([]video.Room, error) {
	var (
		rooms []video.Room
		after string
	)
	for {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(roomsPageSize))
		if after != "" {
			query.Set("starting_after", after)
		}

		var resp listRoomsResponse
		if _, err := c.do(ctx, http.MethodGet, "/rooms?"+query.Encode(), nil, &resp); err != nil {
			return nil, fmt.Errorf("list rooms: %w", err)
		}

		for _, r := range resp.Data {
			rooms = append(rooms, r.toRoom())
		}
		if len(resp.Data) < roomsPageSize {
			return rooms, nil
		}

		last := resp.Data[len(resp.Data)-1]
		if last.ID == "" {
			return rooms, nil
		}
		after = last.ID
	}
}

// do выполняет запрос и возвращает HTTP статус (0 если ответа нет).
// Любой неуспешный ответ оборачивается в video.ErrProvider.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) (int, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %v", video.ErrProvider, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("%w: %s %s: status %d: %s",
			video.ErrProvider, method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode %s response: %v", video.ErrProvider, path, err)
		}
	}
	return resp.StatusCode, nil
}
