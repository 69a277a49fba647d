package enablebanking

import "fmt"

// APIError is the uniform error for any non-2xx upstream response. It
// carries the upstream status and raw body; the client never retries.
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface. The body is truncated so a large
// upstream HTML error page doesn't flood the logs.
func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("enablebanking: upstream status %d: %s", e.StatusCode, body)
}
