package store

import "errors"

var (
	// ErrNotFound is returned when a referenced class, question, or
	// ticket id does not exist. Callers surface it as a 404.
	ErrNotFound = errors.New("not found")

	// ErrEmptyTeacherName rejects class creation with a blank teacher
	// name (after trimming).
	ErrEmptyTeacherName = errors.New("teacher name is required")

	// ErrClassMismatch is returned when an answer submission names a
	// released question that belongs to a different class.
	ErrClassMismatch = errors.New("question does not belong to class")
)
