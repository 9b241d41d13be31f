package ratelimiter

import "errors"

// Package-level error definitions for rate limiter operations.
var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrBusNil            = errors.New("broker is nil")
	ErrAlreadyStarted    = errors.New("rate limiter cleanup already started")
	ErrNotStarted        = errors.New("rate limiter cleanup not started")
	ErrCleanupDisabled   = errors.New("cleanup interval must be > 0")
	ErrShutdownTimeout   = errors.New("rate limiter shutdown timeout exceeded")
	ErrHealthcheckFailed = errors.New("rate limiter healthcheck failed")
	ErrCleanupNotRunning = errors.New("cleanup is configured but not running")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)
