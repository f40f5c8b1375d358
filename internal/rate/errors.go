package rate

import (
	"errors"
	"time"
)

var (
	// ErrRateLimited means the caller is over budget until the window expires.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter store failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// LimitError is the concrete over-budget error. It matches ErrRateLimited.
type LimitError struct {
	// RetryAfter is what is left of the window. Zero when unknown.
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	if e.RetryAfter > 0 {
		return ErrRateLimited.Error() + ", retry after " + e.RetryAfter.Round(time.Second).String()
	}
	return ErrRateLimited.Error()
}

func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter reports how long a rate-limited caller should wait. ok is false
// for errors that are not rate limits or carry no window.
func RetryAfter(err error) (time.Duration, bool) {
	var le *LimitError
	if !errors.As(err, &le) || le.RetryAfter <= 0 {
		return 0, false
	}
	return le.RetryAfter, true
}
