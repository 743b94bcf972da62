package service

import (
	"fmt"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
)

// Проверки прав по ролям. Каждая операция вызывает ровно одну из них,
// сравнения ролей строками в обработчиках не допускаются.

// requireTutorOf только учитель занятия
func requireTutorOf(actor model.Actor, lesson *model.Lesson) error {
	if actor.IsTutor() && lesson.IsTutor(actor.UserID) {
		return nil
	}
	return fmt.Errorf("%w: only the lesson tutor can do this", ErrForbidden)
}

// requireTutorOrAdmin учитель занятия или администратор
func requireTutorOrAdmin(actor model.Actor, lesson *model.Lesson) error {
	if actor.IsAdmin() {
		return nil
	}
	return requireTutorOf(actor, lesson)
}

// requireParticipant студент или учитель занятия
func requireParticipant(actor model.Actor, lesson *model.Lesson) error {
	switch {
	case actor.IsTutor() && lesson.IsTutor(actor.UserID):
		return nil
	case actor.IsStudent() && lesson.IsStudent(actor.UserID):
		return nil
	}
	return fmt.Errorf("%w: not a participant of this lesson", ErrForbidden)
}

// requireCanView участник занятия или администратор
func requireCanView(actor model.Actor, lesson *model.Lesson) error {
	if actor.IsAdmin() {
		return nil
	}
	return requireParticipant(actor, lesson)
}

// requireCanCancel студент и учитель - только свои занятия, администратор - любые
func requireCanCancel(actor model.Actor, lesson *model.Lesson) error {
	return requireCanView(actor, lesson)
}

// requireStudentOf только студент занятия
func requireStudentOf(actor model.Actor, lesson *model.Lesson) error {
	if actor.IsStudent() && lesson.IsStudent(actor.UserID) {
		return nil
	}
	return fmt.Errorf("%w: only the lesson student can do this", ErrForbidden)
}

// requireAvailabilityOwner учитель редактирует только свою доступность, администратор - любую
func requireAvailabilityOwner(actor model.Actor, tutorID int64) error {
	if actor.IsAdmin() || (actor.IsTutor() && actor.UserID == tutorID) {
		return nil
	}
	return fmt.Errorf("%w: cannot change availability of another tutor", ErrForbidden)
}
