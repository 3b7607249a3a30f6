package collabsphere

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the client error taxonomy.
var (
	// ErrAuthRequired indicates a missing, invalid or expired credential.
	// Callers should send the user to the login flow.
	ErrAuthRequired = errors.New("authentication required")

	// ErrRoomUnavailable indicates an empty room id or a room the backend
	// refused to let the caller join.
	ErrRoomUnavailable = errors.New("room unavailable")

	// ErrConnection indicates the live channel could not connect or reconnect.
	ErrConnection = errors.New("connection error")

	// ErrRequestFailed indicates a REST call returned a non-success status.
	ErrRequestFailed = errors.New("request failed")

	// ErrValidation indicates a malformed message payload.
	ErrValidation = errors.New("validation failure")

	// ErrSessionClosed indicates an operation on a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// Kind names an error class shown to the user.
type Kind string

const (
	KindNone            Kind = ""
	KindAuthRequired    Kind = "auth_required"
	KindRoomUnavailable Kind = "room_unavailable"
	KindConnection      Kind = "connection_error"
	KindRequestFailed   Kind = "request_failed"
	KindValidation      Kind = "validation_failure"
	KindSessionClosed   Kind = "session_closed"
)

// KindOf classifies err. Unknown errors are reported as request failures.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAuthRequired):
		return KindAuthRequired
	case errors.Is(err, ErrRoomUnavailable):
		return KindRoomUnavailable
	case errors.Is(err, ErrConnection):
		return KindConnection
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrSessionClosed):
		return KindSessionClosed
	default:
		return KindRequestFailed
	}
}

// RequestError is returned for non-success REST responses.
type RequestError struct {
	Op         string
	StatusCode int
	Message    string

	// Room marks requests scoped to a room, where 403/404 mean the room
	// cannot be used.
	Room bool
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *RequestError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return ErrAuthRequired
	case e.Room && (e.StatusCode == http.StatusForbidden || e.StatusCode == http.StatusNotFound):
		return ErrRoomUnavailable
	default:
		return ErrRequestFailed
	}
}

// ValidationError describes a message rejected by the message store.
type ValidationError struct {
	MessageID string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.MessageID == "" {
		return "invalid message: " + e.Reason
	}
	return fmt.Sprintf("invalid message %s: %s", e.MessageID, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ConnectionError wraps a transport failure.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnection, e.Err}
}
