package model

import "time"

// MeetingSession одно подключение участника к комнате занятия
type MeetingSession struct {
	ID            int64      `json:"id"`
	LessonID      int64      `json:"lesson_id"`
	ParticipantID int64      `json:"participant_id"`
	RoomName      string     `json:"room_name"`
	JoinedAt      time.Time  `json:"joined_at"`
	LeftAt        *time.Time `json:"left_at"` // nil - участник сейчас в комнате
	UserAgent     string     `json:"user_agent,omitempty"`
	Device        string     `json:"device,omitempty"`
}

// IsOpen true пока участник не вышел
func (s *MeetingSession) IsOpen() bool {
	return s.LeftAt == nil
}

// ClientInfo метаданные браузера/устройства участника
type ClientInfo struct {
	UserAgent string
	Device    string
}

// MeetingStatus сводка состояния встречи для UI
type MeetingStatus struct {
	LessonID           int64        `json:"lesson_id"`
	Status             LessonStatus `json:"status"`
	HasRoom            bool         `json:"has_room"`
	IsActive           bool         `json:"is_active"`
	CanStart           bool         `json:"can_start"`
	CanJoin            bool         `json:"can_join"`
	ActiveParticipants []int64      `json:"active_participants"`
	RoomURL            string       `json:"room_url,omitempty"`
}

// MeetingAccess то, что получает участник для входа в комнату
type MeetingAccess struct {
	LessonID    int64  `json:"lesson_id"`
	RoomName    string `json:"room_name"`
	RoomURL     string `json:"room_url"`
	Token       string `json:"token"`
	IsModerator bool   `json:"is_moderator"`
}
