package domain

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeConflict    ErrorType = "conflict"
	ErrorTypeUnavailable ErrorType = "unavailable"
	ErrorTypeInternal    ErrorType = "internal"
)

type Error struct {
	Type    ErrorType
	Message string
	Details map[string]interface{}
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func NewValidationError(field, message string) Error {
	return Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: map[string]interface{}{"field": field},
	}
}

func NewNotFoundError(resource, id string) Error {
	return Error{
		Type:    ErrorTypeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{"resource": resource, "id": id},
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var domainErr Error
	if errors.As(err, &domainErr) {
		return domainErr.Type == errorType
	}
	return false
}

// ErrorClass is the execution-time failure classification surfaced by step
// executors. Retryable classes go back through the retry policy; terminal
// classes never do.
type ErrorClass string

const (
	ErrClassValidation          ErrorClass = "VALIDATION_ERROR"
	ErrClassCredentialsNotFound ErrorClass = "CREDENTIALS_NOT_FOUND"
	ErrClassProvider            ErrorClass = "PROVIDER_ERROR"
	ErrClassExecution           ErrorClass = "EXECUTION_ERROR"
)

func (c ErrorClass) Retryable() bool {
	return c == ErrClassProvider
}

type ExecutionError struct {
	Class   ErrorClass
	Message string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

func NewExecutionError(class ErrorClass, format string, args ...interface{}) *ExecutionError {
	return &ExecutionError{
		Class:   class,
		Message: fmt.Sprintf(format, args...),
	}
}

type StepPanicError struct {
	PanicValue interface{}
	StackTrace string
}

func (e *StepPanicError) Error() string {
	return fmt.Sprintf("step execution panicked: %v", e.PanicValue)
}

var (
	ErrClosed          = errors.New("adapter closed")
	ErrNotStarted      = errors.New("adapter not started")
	ErrAlreadyStarted  = errors.New("adapter already started")
	ErrKeyNotFound     = errors.New("key not found")
	ErrRunNotActive    = errors.New("run is not active")
	ErrDefinitionFroze = errors.New("definition is active and immutable")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound) || IsErrorType(err, ErrorTypeNotFound)
}
