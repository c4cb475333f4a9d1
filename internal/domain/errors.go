package domain

import "errors"

var (
	ErrNoCredentials      = errors.New("no upstream credentials configured")
	ErrUpstreamThrottled  = errors.New("upstream credential throttled")
	ErrUpstreamError      = errors.New("upstream provider error")
	ErrToolNotFound       = errors.New("tool not found")
	ErrInvalidToolArgs    = errors.New("invalid tool arguments")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrWeatherUnavailable = errors.New("weather service unavailable")
	ErrCircuitOpen        = errors.New("circuit breaker open")
)
