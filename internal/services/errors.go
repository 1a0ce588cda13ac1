package services

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorForbidden    ErrorCode = "forbidden"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorConflict     ErrorCode = "conflict"
	ErrorUnauthorized ErrorCode = "unauthorized"
)

// ServiceError is a caller-fixable failure. None of them are transient.
type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func invalidf(format string, args ...any) error {
	return NewInvalidError(fmt.Sprintf(format, args...))
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsCode reports whether err is a ServiceError carrying code.
func IsCode(err error, code ErrorCode) bool {
	se, ok := AsServiceError(err)
	return ok && se.Code == code
}

// ErrDuplicateKey is returned by stores when a unique question key is already taken.
var ErrDuplicateKey = errors.New("duplicate key")

// BulkItemError reports why one item of a bulk request was rejected.
type BulkItemError struct {
	Index   int    `json:"index"`
	Ref     string `json:"ref,omitempty"`
	Message string `json:"message"`
}

// BulkError is returned when every item of a bulk request failed.
type BulkError struct {
	ServiceError
	Items []BulkItemError
}

func newBulkError(msg string, items []BulkItemError) error {
	return &BulkError{ServiceError: ServiceError{Code: ErrorInvalid, Message: msg}, Items: items}
}

func (e *BulkError) Error() string { return e.Message }

// Unwrap exposes the embedded ServiceError so AsServiceError keeps working.
func (e *BulkError) Unwrap() error { return &e.ServiceError }

// BulkResult carries the successes and per-item failures of a bulk operation.
type BulkResult[T any] struct {
	Created []T             `json:"created"`
	Errors  []BulkItemError `json:"errors"`
}

// finish escalates a bulk result with zero successes into a single error.
func (r *BulkResult[T]) finish(total int, msg string) (*BulkResult[T], error) {
	if total > 0 && len(r.Created) == 0 {
		return nil, newBulkError(msg, r.Errors)
	}
	return r, nil
}

func bulkItemError(index int, ref string, err error) BulkItemError {
	msg := err.Error()
	if se, ok := AsServiceError(err); ok {
		msg = se.Message
	}
	return BulkItemError{Index: index, Ref: ref, Message: msg}
}
