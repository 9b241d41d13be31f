package async

import "errors"

var (
	// ErrTimeout is returned by AwaitWithTimeout when the function did not finish in time.
	ErrTimeout = errors.New("async: timeout")

	// ErrNoFutures is returned by ExecAny when called without futures.
	ErrNoFutures = errors.New("async: no futures provided")

	// ErrPanic wraps a value recovered from a panicking function.
	ErrPanic = errors.New("async: function panicked")
)
