package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels classify failures independently of their transport mapping.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrNoCart         = errors.New("no active cart")
)

// AppError carries a machine-readable code, a display message and the HTTP
// status the failure maps to.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

type kind struct {
	sentinel error
	code     string
	status   int
}

// kinds is ordered: the first sentinel matched by errors.Is wins.
var kinds = []kind{
	{ErrNoCart, "NO_CART", http.StatusConflict},
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound},
	{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest},
	{ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized},
	{ErrConflict, "CONFLICT", http.StatusConflict},
	{ErrServiceUnavail, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable},
}

func newError(sentinel error, message string) *AppError {
	for _, k := range kinds {
		if k.sentinel == sentinel {
			return &AppError{Code: k.code, Message: message, Status: k.status, Err: sentinel}
		}
	}
	return &AppError{Code: "INTERNAL_ERROR", Message: message, Status: http.StatusInternalServerError, Err: sentinel}
}

// NotFound reports a missing resource of the given kind.
func NotFound(resource, id string) *AppError {
	return newError(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id))
}

func InvalidInput(message string) *AppError { return newError(ErrInvalidInput, message) }

func Unauthorized(message string) *AppError { return newError(ErrUnauthorized, message) }

func Conflict(message string) *AppError { return newError(ErrConflict, message) }

func ServiceUnavailable(message string) *AppError { return newError(ErrServiceUnavail, message) }

// NoCart is returned by mutations that need a cart when none is held.
func NoCart(message string) *AppError { return newError(ErrNoCart, message) }

// Classify returns the code and HTTP status for err. AppErrors report their
// own; wrapped sentinels are looked up; anything else is INTERNAL_ERROR.
func Classify(err error) (code string, status int) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code, appErr.Status
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.code, k.status
		}
	}
	return "INTERNAL_ERROR", http.StatusInternalServerError
}

// HTTPStatus returns the HTTP status code for err.
func HTTPStatus(err error) int {
	_, status := Classify(err)
	return status
}

// Message returns a description of err suitable for showing to a shopper.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
