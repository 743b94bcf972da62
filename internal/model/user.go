package model

import (
	"errors"
	"time"
)

// ErrTelegramLinked Telegram аккаунт уже привязан к другому пользователю
var ErrTelegramLinked = errors.New("telegram account is already linked")

// Role закрытый набор ролей участников платформы
type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
	RoleAdmin   Role = "admin"
)

// Valid проверяет что роль входит в известный набор
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTutor, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Role       Role      `json:"role"`
	TelegramID *int64    `json:"telegram_id"` // nil - пользователь не привязал Telegram
	CreatedAt  time.Time `json:"created_at"`
}

// FullName возвращает имя для уведомлений
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Actor тот, кто выполняет операцию. Заполняется из токена запроса.
type Actor struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

func (a Actor) IsStudent() bool { return a.Role == RoleStudent }
func (a Actor) IsTutor() bool   { return a.Role == RoleTutor }
func (a Actor) IsAdmin() bool   { return a.Role == RoleAdmin }
