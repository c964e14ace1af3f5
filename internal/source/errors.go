package source

import (
	"errors"
	"fmt"
)

// Retryable failure classes. Both become fatal only once their retry budget
// is exhausted; callers check them with errors.Is.
var (
	ErrRateLimited = errors.New("source: rate limit retries exhausted")
	ErrTransient   = errors.New("source: transient retries exhausted")
)

// RequestError is a non-retryable request failure (4xx other than 429):
// bad credentials, malformed request, unknown endpoint.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("source: request failed with HTTP %d: %s", e.StatusCode, e.Message)
}
