package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the HTTP layer. Each maps to exactly one
// status code; see httpserver.statusFor.
var (
	// ErrUnauthenticated means no caller identity could be established.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUserNotFound means the caller identity resolves to no account.
	ErrUserNotFound = errors.New("user not found")

	// ErrQuotaExceeded means the user's cumulative token budget is spent.
	ErrQuotaExceeded = errors.New("token limit exceeded, please upgrade your plan")

	// ErrInvalidInput means the request body failed validation.
	ErrInvalidInput = errors.New("invalid messages format")

	// ErrEmailTaken means signup was attempted with a registered email.
	ErrEmailTaken = errors.New("user already exists with this email")

	// ErrTemplateNotFound means no active template matches the id.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrFileNotFound means a referenced file id does not exist for the user.
	ErrFileNotFound = errors.New("file not found")

	// ErrSessionNotFound means the session token is unknown or expired.
	ErrSessionNotFound = errors.New("session not found")
)

// UpstreamError reports a backend rejection or connection failure that
// occurred before any delta event was emitted. The relay surfaces it as a
// generic 500 since no partial response exists yet.
type UpstreamError struct {
	Provider string
	Status   int
	Message  string
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s upstream error (status %d): %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s upstream error: %s", e.Provider, e.Message)
}

// IsUpstreamError reports whether err wraps an UpstreamError.
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
