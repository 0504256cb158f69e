package service

import (
	"errors"
	"fmt"
)

const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeNotFound    = "NOT_FOUND"
	CodePersistence = "PERSISTENCE_ERROR"
	CodeSourceRead  = "SOURCE_READ_ERROR"
)

// BusinessError - ошибка, которую handlers превращают в HTTP ответ.
// Message уходит клиенту, Err только в логи.
type BusinessError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

type Detail struct {
	Key     string
	Payload any
}

func (b *BusinessError) Error() string {
	if b.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", b.Code, b.Message, b.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", b.Code, b.Message)
}

func (b *BusinessError) Unwrap() error {
	return b.Err
}

func ToDetail(key string, payload any) Detail {
	return Detail{
		Key:     key,
		Payload: payload,
	}
}

func NewBusinessError(code string, message string, details ...Detail) *BusinessError {
	busErr := &BusinessError{
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}

	for _, detail := range details {
		busErr.Details[detail.Key] = detail.Payload
	}

	return busErr
}

func NewNotFound(resource string, id string) *BusinessError {
	return NewBusinessError(CodeNotFound,
		fmt.Sprintf("%s %s not found", resource, id),
		ToDetail("resource", resource),
		ToDetail("id", id),
	)
}

func NewValidationError(field, message string) *BusinessError {
	return NewBusinessError(CodeValidation, message,
		ToDetail("field", field),
	)
}

// NewPersistenceError не раскрывает клиенту причину, она остаётся в Err
func NewPersistenceError(operation string, err error) *BusinessError {
	busErr := NewBusinessError(CodePersistence, "Failed to "+operation,
		ToDetail("operation", operation),
	)
	busErr.Err = err
	return busErr
}

func NewSourceReadError(err error) *BusinessError {
	busErr := NewBusinessError(CodeSourceRead, "Failed to read import source")
	busErr.Err = err
	return busErr
}

// AsBusinessError достаёт BusinessError из цепочки ошибок
func AsBusinessError(err error) (*BusinessError, bool) {
	var busErr *BusinessError
	if errors.As(err, &busErr) {
		return busErr, true
	}
	return nil, false
}

func IsCode(err error, code string) bool {
	busErr, ok := AsBusinessError(err)
	return ok && busErr.Code == code
}
