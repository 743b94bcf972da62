package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
)

// LessonEvent событие, которое двигает занятие по статусам
type LessonEvent string

const (
	EventStart    LessonEvent = "start"    // учитель открыл комнату
	EventEnd      LessonEvent = "end"      // учитель завершил встречу
	EventComplete LessonEvent = "complete" // явное завершение занятия
	EventNoShow   LessonEvent = "no_show"  // студент не пришёл
	EventCancel   LessonEvent = "cancel"
)

// Transition разрешённое ребро машины состояний занятия
type Transition struct {
	From  model.LessonStatus
	Event LessonEvent
	To    model.LessonStatus
}

// transitionsTable полный набор разрешённых переходов; всё остальное - ErrInvalidTransition
var transitionsTable = []Transition{
	{From: model.LessonStatusScheduled, Event: EventStart, To: model.LessonStatusInProgress},
	{From: model.LessonStatusScheduled, Event: EventCancel, To: model.LessonStatusCancelled},
	{From: model.LessonStatusScheduled, Event: EventComplete, To: model.LessonStatusCompleted},
	{From: model.LessonStatusScheduled, Event: EventNoShow, To: model.LessonStatusNoShow},

	{From: model.LessonStatusInProgress, Event: EventEnd, To: model.LessonStatusCompleted},
	{From: model.LessonStatusInProgress, Event: EventComplete, To: model.LessonStatusCompleted},
	{From: model.LessonStatusInProgress, Event: EventNoShow, To: model.LessonStatusNoShow},
}

// Transitions копия таблицы переходов
func Transitions() []Transition {
	return append([]Transition(nil), transitionsTable...)
}

// NextStatus возвращает статус после события или ошибку, если ребра нет.
// Отмена уже завершённого занятия - ErrAlreadyTerminal, остальные
// недопустимые пары (в том числе повтор того же перехода) - ErrInvalidTransition.
func NextStatus(from model.LessonStatus, event LessonEvent) (model.LessonStatus, error) {
	for _, t := range transitionsTable {
		if t.From == from && t.Event == event {
			return t.To, nil
		}
	}

	if event == EventCancel && from.IsTerminal() {
		return "", fmt.Errorf("%w: lesson is %s", ErrAlreadyTerminal, from)
	}
	return "", fmt.Errorf("%w: cannot %s a lesson that is %s", ErrInvalidTransition, event, from)
}

// applyTransition переводит занятие по событию и сохраняет через compare-and-set.
// mutate заполняет поля, сопутствующие переходу. Если статус в БД успел
// измениться (параллельный запрос, повтор вебхука) - ErrInvalidTransition.
func applyTransition(ctx context.Context, lessons LessonRepository, lesson *model.Lesson, event LessonEvent, mutate func(l *model.Lesson)) error {
	from := lesson.Status
	to, err := NextStatus(from, event)
	if err != nil {
		return err
	}

	updated := *lesson
	updated.Status = to
	if mutate != nil {
		mutate(&updated)
	}

	ok, err := lessons.UpdateStatus(ctx, &updated, from)
	if err != nil {
		return fmt.Errorf("update lesson status: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: lesson %d is no longer %s", ErrInvalidTransition, lesson.ID, from)
	}

	*lesson = updated
	return nil
}
