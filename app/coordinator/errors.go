package coordinator

import "errors"

var (
	ErrAlreadyStarted = errors.New("coordinator already started")
	ErrNotStarted     = errors.New("coordinator not started")
	ErrNilDependency  = errors.New("coordinator dependency cannot be nil")
)
