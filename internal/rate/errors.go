package rate

import "errors"

var (
	// ErrRateLimited reports that the address exhausted its failure budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable reports a counter backend failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
