// Package httpx holds the JSON envelope every endpoint responds with.
//
// The envelope is keyed on a boolean "success"; the string "status" variant
// some older clients expect is never emitted.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Error is an error with an HTTP status and a stable machine-readable code.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func NewError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func BadRequest(message string) *Error {
	return NewError(http.StatusBadRequest, "BAD_REQUEST", message)
}

func NotFound(message string) *Error {
	return NewError(http.StatusNotFound, "NOT_FOUND", message)
}

var (
	ErrUnauthorized = NewError(http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	ErrForbidden    = NewError(http.StatusForbidden, "FORBIDDEN", "forbidden")
	ErrInvalidJSON  = NewError(http.StatusBadRequest, "INVALID_JSON", "invalid json")
)

func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Envelope{Success: true, Data: data})
}

func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

func Message(w http.ResponseWriter, status int, data any, message string) {
	write(w, status, Envelope{Success: true, Data: data, Message: message})
}

// Fail writes err as an error envelope. Anything that is not an *Error is
// reported as a 500 without leaking its text.
func Fail(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = NewError(http.StatusInternalServerError, "INTERNAL", "internal error")
	}
	write(w, e.Status, Envelope{Success: false, Message: e.Message, ErrorCode: e.Code})
}

// Decode reads a JSON request body into v.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return ErrInvalidJSON
	}
	return nil
}

func write(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
