package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"go.uber.org/zap"
)

// UserStore пользователи с возможностью создания и поиска по Telegram
type UserStore interface {
	UserRepository
	Create(ctx context.Context, user *model.User) error
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
}

// UserService заведение участников платформы администратором и профиль текущего пользователя
type UserService struct {
	userRepo UserStore
	logger   *zap.Logger
}

func NewUserService(userRepo UserStore, logger *zap.Logger) *UserService {
	return &UserService{
		userRepo: userRepo,
		logger:   logger,
	}
}

// RegisterUser создаёт пользователя. Доступно только администратору.
func (s *UserService) RegisterUser(ctx context.Context, actor model.Actor, user *model.User) (*model.User, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can register users", ErrForbidden)
	}

	user.Email = strings.TrimSpace(user.Email)
	user.FirstName = strings.TrimSpace(user.FirstName)
	user.LastName = strings.TrimSpace(user.LastName)

	if !user.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, user.Role)
	}
	if user.FirstName == "" {
		return nil, fmt.Errorf("%w: first name is required", ErrValidation)
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrTelegramLinked) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("New user registered",
		zap.Int64("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.Int64("admin_id", actor.UserID),
	)

	return user, nil
}

// GetByID получает пользователя по ID
func (s *UserService) GetByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	return user, nil
}

// GetByTelegramID пользователь, привязавший Telegram; nil если такого нет
func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := s.userRepo.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("get user by telegram id: %w", err)
	}
	return user, nil
}
