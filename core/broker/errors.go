package broker

import "errors"

var (
	// ErrBrokerAlreadyStarted is returned when Start is called while a dispatch loop is running.
	ErrBrokerAlreadyStarted = errors.New("broker already started")

	// ErrBrokerNotStarted is returned when Stop is called without a running dispatch loop.
	ErrBrokerNotStarted = errors.New("broker not started")

	// ErrShutdownTimeout is returned by Stop when the in-flight handler did not return in time.
	ErrShutdownTimeout = errors.New("broker shutdown timeout exceeded")

	// ErrHealthcheckFailed is the umbrella error returned by Healthcheck.
	ErrHealthcheckFailed = errors.New("broker healthcheck failed")

	// ErrBrokerNotRunning indicates the dispatch loop is not running.
	ErrBrokerNotRunning = errors.New("broker dispatch loop not running")

	// ErrBrokerStalled indicates no dispatch pass completed within the stale threshold.
	ErrBrokerStalled = errors.New("broker dispatch loop stalled")

	// ErrHandlerPanic wraps a value recovered from a panicking handler.
	ErrHandlerPanic = errors.New("panic in handler")

	// ErrPayloadType is returned by typed handlers when the payload has an unexpected type.
	ErrPayloadType = errors.New("unexpected payload type")

	// ErrHandlerInterrupted wraps the context error when a handler acknowledged after
	// its deadline expired or the loop was stopped.
	ErrHandlerInterrupted = errors.New("handler outlived its context")

	// ErrRetryRequested is used when a handler asks for a retry without giving a reason.
	ErrRetryRequested = errors.New("handler requested retry")

	// ErrQueueFull is reported when a retried message no longer fits into its bounded queue.
	ErrQueueFull = errors.New("queue is full")
)
