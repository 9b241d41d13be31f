package supervisor

import "errors"

var (
	// ErrStopTimeout is returned by Stop when a task ignored cancellation for longer than the shutdown timeout.
	ErrStopTimeout = errors.New("task did not stop in time")

	// ErrInvalidEvent is returned for task events missing a name or job.
	ErrInvalidEvent = errors.New("invalid task event")

	// ErrUnknownAction is returned for task events with an unrecognized action.
	ErrUnknownAction = errors.New("unknown task action")

	// ErrHealthcheckFailed is the umbrella error returned by Healthcheck.
	ErrHealthcheckFailed = errors.New("supervisor healthcheck failed")

	// ErrTaskNotRunning indicates a required task is not running.
	ErrTaskNotRunning = errors.New("task not running")
)
