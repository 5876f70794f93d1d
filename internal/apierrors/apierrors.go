// Package apierrors defines the error taxonomy shared by every client that
// talks to the storefront backend. Transport failures and HTTP status codes
// are translated into these categories at the API-client boundary so the
// rest of the application never sees a raw fetch error.
package apierrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetworkUnreachable is a transport-level failure. Retryable by the user.
	ErrNetworkUnreachable = errors.New("cannot connect to server")

	// ErrAuthExpired is a 401 on a protected call. Triggers one refresh attempt.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrValidation is any other 4xx; the server message is surfaced verbatim.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is a 404 on a resource lookup.
	ErrNotFound = errors.New("not found")

	// ErrServer is a 5xx. Retryable by the user.
	ErrServer = errors.New("server error")
)

// Error carries the HTTP status and the server-supplied message alongside
// its taxonomy category. errors.Is matches against the category sentinel.
type Error struct {
	Status  int
	Message string
	kind    error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

func (e *Error) Unwrap() error {
	return e.kind
}

// FromStatus classifies a non-2xx response. The body, if JSON, is probed for
// "message" or "msg" fields (the backend uses both, depending on endpoint).
func FromStatus(status int, body []byte) error {
	kind := ErrValidation
	switch {
	case status == http.StatusUnauthorized:
		kind = ErrAuthExpired
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status >= 500:
		kind = ErrServer
	}
	return &Error{Status: status, Message: extractMessage(body), kind: kind}
}

// Transport wraps a fetch-level failure as ErrNetworkUnreachable.
func Transport(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
}

func extractMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Msg
}
