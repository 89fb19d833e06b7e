package httpretry

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// StatusError is returned for responses outside the 2xx range. Status codes of 400
// and above are terminal; anything below is retried.
type StatusError struct {
	StatusCode int
	Status     string
	Message    string
	Body       []byte
	Header     http.Header
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Message)
}

// Resumable implements retryable.Resumable.
func (e *StatusError) Resumable() bool {
	return e.StatusCode < http.StatusBadRequest
}

// ValidationError is returned when FetchOptions.Validate rejects a 2xx payload.
type ValidationError struct {
	Message string
	Payload any

	resumable bool
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Message
}

// Resumable implements retryable.Resumable. Rejected payloads are terminal unless the
// client was built WithRetryOnValidationFailure(true).
func (e *ValidationError) Resumable() bool {
	return e.resumable
}

// errorMessage picks the message of a failed response: the "Message" field of a
// JSON body, else the body text, else the status line.
func errorMessage(body []byte, status string) string {
	if gjson.ValidBytes(body) {
		if m := gjson.GetBytes(body, "Message"); m.Exists() && m.String() != "" {
			return m.String()
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return status
}
