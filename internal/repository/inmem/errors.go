package inmem

import "errors"

var errLessonNotFound = errors.New("lesson not found")
