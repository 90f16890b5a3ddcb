package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized is returned when the backend answers 401. Callers must not
// render anything and hand control to the session guard.
var ErrUnauthorized = errors.New("backend: unauthorized")

// ErrInvalidPassword is returned by Login when the backend rejects the password.
var ErrInvalidPassword = errors.New("backend: invalid password")

// APIError is a non-success backend answer: an HTTP error status, an
// envelope with success=false, or a body that could not be decoded.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: HTTP %d", e.StatusCode)
	}
	return e.Message
}

func newAPIError(status int, msg string) *APIError {
	if msg == "" {
		msg = http.StatusText(status)
	}
	if msg == "" {
		msg = "request failed"
	}
	return &APIError{StatusCode: status, Message: msg}
}

// Outcome classifies a finished backend call.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeFailed       Outcome = "failed"
)

// Classify maps an error returned by Client to an Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrUnauthorized):
		return OutcomeUnauthorized
	default:
		return OutcomeFailed
	}
}

// ErrorMessage returns the text to show a user for err. APIError messages are
// passed through; anything else is the error text.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
