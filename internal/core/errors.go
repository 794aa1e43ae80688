package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidMonth    = errors.New("invalid payment month")
	ErrDuplicateMonth  = errors.New("fee already recorded for this month")
	ErrNotFound        = errors.New("not found")
	ErrStudentInactive = errors.New("student has left the school")
	ErrPersistence     = errors.New("persistence failure")
)

// FieldError is used to indicate an error with a specific input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError reports input rejected before any write happened.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		if len(e.Fields) > 0 {
			return e.Fields[0].Field + ": " + e.Fields[0].Error
		}
		return "validation failed"
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// InactiveStudentError rejects a payment for a student who has left.
func InactiveStudentError() error {
	return NewValidationError(ErrStudentInactive, FieldError{
		Field: "student_id",
		Error: ErrStudentInactive.Error(),
	})
}

// PersistenceError wraps any failure of the underlying store. It matches
// ErrPersistence with errors.Is and unwraps to the driver error.
type PersistenceError struct {
	Op  string
	Err error
}

func NewPersistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
