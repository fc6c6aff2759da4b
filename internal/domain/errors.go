package domain

import (
	"fmt"
	"time"
)

// RateLimitError is returned by a ContentClient when the provider throttles
// the caller. RetryAfter is zero when the provider did not advertise a delay.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
	}
	return "rate limited"
}

// ValidationError is returned when a provider response does not have the
// expected shape.
type ValidationError struct {
	Endpoint string
	Details  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid response from %s: %s", e.Endpoint, e.Details)
}

// APIError is a non-2xx provider response other than throttling.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Body)
}
