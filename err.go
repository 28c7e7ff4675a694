package liveq

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCancelled marks a fetch that was abandoned by its issuer, usually
	// because a newer fetch for the same logical query superseded it.
	// Engines absorb it silently; it never surfaces in a Result.
	ErrCancelled = errors.New("request cancelled")

	// ErrNotFound is returned by backends when no record matches.
	ErrNotFound = errors.New("record not found")

	// ErrRecordDeleted is the terminal error of a record query whose held
	// record was deleted after a successful fetch.
	ErrRecordDeleted = errors.New("Record has been deleted") //nolint:stylecheck // user-facing message

	// ErrMissingID rejects record mutations issued without an identifier.
	ErrMissingID = errors.New("missing record id")

	// ErrNoBackend rejects Params without a Backend.
	ErrNoBackend = errors.New("no backend provided")
)

// BackendError is a structured failure from the backend API.
type BackendError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend error (status %d)", e.Status)
}

// Is maps not-found responses onto ErrNotFound so callers can test with
// errors.Is without inspecting status codes.
func (e *BackendError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// isCancellation reports whether err represents an abandoned fetch rather
// than a real failure. Backends signal abandonment by wrapping ErrCancelled
// or by returning the context's cancellation.
func isCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// errorMessage renders err for a Result: the backend's own message when the
// failure is structured, the error text otherwise.
func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	var backendErr *BackendError
	if errors.As(err, &backendErr) && backendErr.Message != "" {
		return backendErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "something went wrong"
}
