package registry

import "errors"

var (
	// ErrClientNotFound is returned when an operation targets an unknown client.
	ErrClientNotFound = errors.New("client not found")

	// ErrNotSender is returned when a client's session cannot deliver messages.
	ErrNotSender = errors.New("session does not implement Sender")

	// ErrSendFailed wraps an error returned by a session's Send. The client is disconnected.
	ErrSendFailed = errors.New("send to client failed")

	// ErrUnknownEvent is returned for events with an unrecognized type.
	ErrUnknownEvent = errors.New("unknown event type")

	// ErrInvalidEvent is returned for events missing required fields.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrHealthcheckFailed is the umbrella error returned by Healthcheck.
	ErrHealthcheckFailed = errors.New("registry healthcheck failed")

	// ErrOverloaded indicates the registry is above its load warning ratio.
	ErrOverloaded = errors.New("registry is under high load")
)
