package apperr

import (
	"errors"
	"net/http"
)

// Kind identifies a class of failure independent of its message.
type Kind string

const (
	KindInvalidParameter   Kind = "invalid_parameter"
	KindParameterRequired  Kind = "parameter_required"
	KindInvalidStockChange Kind = "invalid_stock_change"
	KindNotFound           Kind = "not_found"
	KindDuplicated         Kind = "duplicated"
	KindUnauthorized       Kind = "unauthorized"
	KindUnauthenticated    Kind = "unauthenticated"
	KindService            Kind = "service_error"
	KindOptimisticLock     Kind = "optimistic_lock_conflict"
)

var messages = map[Kind]string{
	KindInvalidParameter:   "Invalid parameter",
	KindParameterRequired:  "Parameter required",
	KindInvalidStockChange: "Invalid stock change",
	KindNotFound:           "Not found",
	KindDuplicated:         "Duplicated",
	KindUnauthorized:       "Unauthorized",
	KindUnauthenticated:    "Unauthenticated",
	KindService:            "Service error",
	KindOptimisticLock:     "DB insert conflict",
}

var statuses = map[Kind]int{
	KindInvalidParameter:   http.StatusBadRequest,
	KindParameterRequired:  http.StatusBadRequest,
	KindInvalidStockChange: http.StatusBadRequest,
	KindNotFound:           http.StatusNotFound,
	KindDuplicated:         http.StatusConflict,
	KindUnauthorized:       http.StatusUnauthorized,
	KindUnauthenticated:    http.StatusUnauthorized,
	KindService:            http.StatusInternalServerError,
	KindOptimisticLock:     http.StatusInternalServerError,
}

// Sentinels for errors.Is checks; matching is by Kind only.
var (
	ErrOptimisticLock = &Error{Kind: KindOptimisticLock}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrDuplicated     = &Error{Kind: KindDuplicated}
)

// Error is the error type returned by the core and its adapters.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Message returns the stable human-readable message for the kind.
func (e *Error) Message() string {
	if msg, ok := messages[e.Kind]; ok {
		return msg
	}
	return "Unknown error"
}

// Status returns the HTTP status code for the kind.
func (e *Error) Status() int {
	if status, ok := statuses[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func InvalidParameter(detail string) *Error {
	return New(KindInvalidParameter, detail)
}

func ParameterRequired(field string) *Error {
	return New(KindParameterRequired, field)
}

func InvalidStockChange(detail string) *Error {
	return New(KindInvalidStockChange, detail)
}

func NotFound(detail string) *Error {
	return New(KindNotFound, detail)
}

func Service(detail string) *Error {
	return New(KindService, detail)
}

func OptimisticLock(err error) *Error {
	return Wrap(KindOptimisticLock, "", err)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsClient reports whether err is a caller mistake (4xx).
func IsClient(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Status() < http.StatusInternalServerError
}

// HTTPStatus maps err to a response status; unknown errors are 500.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status()
	}
	return http.StatusInternalServerError
}
