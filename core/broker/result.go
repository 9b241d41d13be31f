package broker

import "errors"

// Outcome is the verdict a handler returns for a delivered message.
type Outcome int

const (
	// OutcomeAck means the message was processed and can be discarded.
	OutcomeAck Outcome = iota
	// OutcomeRetry means a transient failure: the message is redelivered until retries run out.
	OutcomeRetry
	// OutcomeReject means a permanent failure: the message is dropped and reported right away.
	OutcomeReject
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeRetry:
		return "retry"
	case OutcomeReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Result is returned by Handler.Handle. The zero value acknowledges the message.
type Result struct {
	Outcome Outcome
	Err     error
}

// Ack acknowledges successful processing.
func Ack() Result {
	return Result{Outcome: OutcomeAck}
}

// Retry asks for redelivery. A nil err is replaced with ErrRetryRequested.
func Retry(err error) Result {
	if err == nil {
		err = ErrRetryRequested
	}
	return Result{Outcome: OutcomeRetry, Err: err}
}

// Reject drops the message without further attempts.
func Reject(err error) Result {
	return Result{Outcome: OutcomeReject, Err: err}
}

// ResultOf maps an error to a Result: nil acknowledges, an error marked with
// Permanent rejects, anything else retries.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return Ack()
	case IsPermanent(err):
		return Reject(err)
	default:
		return Retry(err)
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Permanent(nil) returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or any error it wraps, was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
