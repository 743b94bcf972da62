package service

import "errors"

// Ошибки бизнес-правил. Сервисы оборачивают их с деталями:
// fmt.Errorf("%w: lesson already started", ErrInvalidTransition)
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("action not allowed for this user")
	ErrInvalidDate       = errors.New("date is in the past")
	ErrSlotUnavailable   = errors.New("slot is not available")
	ErrTooEarly          = errors.New("too early")
	ErrAlreadyTerminal   = errors.New("lesson is already finished")
	ErrInvalidTransition = errors.New("invalid lesson status transition")
	ErrRoomNotReady      = errors.New("meeting room is not active")
	ErrAlreadyRated      = errors.New("lesson is already rated")
)
