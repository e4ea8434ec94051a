package rate

import "errors"

var (
	// ErrRateLimited means the caller exhausted its attempt budget for
	// the current window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps transport-level Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
