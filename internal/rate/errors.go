package rate

import "errors"

var (
	// ErrRateLimited is returned when a counter is over its configured budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable is returned when the counter backend is unreachable.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
