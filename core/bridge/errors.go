package bridge

import "errors"

var (
	ErrNoRoutes          = errors.New("bridge has no routes")
	ErrAlreadyStarted    = errors.New("bridge already started")
	ErrNotRunning        = errors.New("bridge receive loop is not running")
	ErrHealthcheckFailed = errors.New("bridge healthcheck failed")
)
