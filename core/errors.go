package core

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateSchedule = errors.New("an identical exam schedule already exists")
	ErrCourseScheduled   = errors.New("course already has a scheduled exam")
	ErrDoubleBooked      = errors.New("venue already booked for an overlapping time window")
	ErrDuplicateSlot     = errors.New("invigilator assigned to more than one slot of the same report")
	ErrDuplicateEvent    = errors.New("duplicate attendance event")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// NewFieldValidationError is a shortcut for a validation error on a single field.
func NewFieldValidationError(field, msg string) error {
	return &ValidationError{Err: errors.New(field + ": " + msg), Fields: []FieldError{{Field: field, Error: msg}}}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// ConflictError identifies the entity a request collides with.
// Kind is one of the Err* sentinels so callers can errors.Is on it.
type ConflictError struct {
	Kind   error
	Entity string
	ID     string
}

func NewConflictError(kind error, entity, id string) error {
	return &ConflictError{Kind: kind, Entity: entity, ID: id}
}

func (err ConflictError) Error() string {
	return fmt.Sprintf("%v (%s %s)", err.Kind, err.Entity, err.ID)
}

func (err ConflictError) Unwrap() error { return err.Kind }

type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func (err NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", err.Entity, err.ID)
}

func (err NotFoundError) Unwrap() error { return ErrNotFound }

// OutOfWindowError is returned when an attendance timestamp falls outside the allowed bounds.
type OutOfWindowError struct {
	Field    string
	At       time.Time
	From, To time.Time
}

func (err OutOfWindowError) Error() string {
	return fmt.Sprintf("%s %s is outside [%s, %s]",
		err.Field, err.At.Format(time.RFC3339), err.From.Format(time.RFC3339), err.To.Format(time.RFC3339))
}

// OrderingError is returned when check-in and check-out are not in order.
type OrderingError struct {
	CheckIn, CheckOut time.Time
}

func (err OrderingError) Error() string {
	if err.CheckIn.IsZero() {
		return "check-out recorded without a check-in"
	}
	return fmt.Sprintf("check-in %s must be before check-out %s",
		err.CheckIn.Format(time.RFC3339), err.CheckOut.Format(time.RFC3339))
}

// InsufficientGapError names the exam blocking an invigilator assignment.
type InsufficientGapError struct {
	InvigilatorID string
	ExamID        string
	MinGap        time.Duration
}

func (err InsufficientGapError) Error() string {
	return fmt.Sprintf("invigilator %s needs at least %v between duties; blocked by exam %s",
		err.InvigilatorID, err.MinGap, err.ExamID)
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
