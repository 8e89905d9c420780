package platform

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a channel reference does not resolve to an entity.
	ErrNotFound = errors.New("entity not found")

	// ErrPrivate is returned when a channel exists but cannot be accessed or joined.
	ErrPrivate = errors.New("channel is private or inaccessible")
)

// RateLimitError signals that the provider requires a wait before the
// operation may be retried.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.Wait)
}

// AsRateLimit reports whether err carries a provider rate limit and returns the
// required wait.
func AsRateLimit(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.Wait, true
	}
	return 0, false
}

// AuthError wraps a failure to establish an authenticated session.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
