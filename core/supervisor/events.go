package supervisor

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/sessioncore/core/broker"
)

// TaskEventsQueue is the queue the supervisor consumes task events from.
const TaskEventsQueue = "task_events"

// Task event actions.
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// TaskEvent asks the supervisor to start or stop a named task.
// Job is required for ActionStart and ignored otherwise.
type TaskEvent struct {
	Action string `json:"action"`
	Name   string `json:"name"`
	Job    Job    `json:"-"`
}

// Bus is the subset of the broker the supervisor needs.
type Bus interface {
	Subscribe(queue string, handler broker.Handler)
}

// Subscribe registers the task event handler on TaskEventsQueue.
func (s *Supervisor) Subscribe(bus Bus) {
	bus.Subscribe(TaskEventsQueue, broker.Typed(s.handleEvent))
}

func (s *Supervisor) handleEvent(ctx context.Context, ev TaskEvent) error {
	if ev.Name == "" {
		return broker.Permanent(fmt.Errorf("%w: missing name", ErrInvalidEvent))
	}

	switch ev.Action {
	case ActionStart:
		if ev.Job == nil {
			return broker.Permanent(fmt.Errorf("%w: start %q without job", ErrInvalidEvent, ev.Name))
		}
		s.StartContext(ctx, ev.Name, ev.Job)
		return nil
	case ActionStop:
		// The handler may be running on the task being stopped, so never wait for it here.
		// Stop timeouts are already logged and the entry is gone either way.
		go func() { _ = s.Stop(ev.Name) }()
		return nil
	default:
		return broker.Permanent(fmt.Errorf("%w: %q", ErrUnknownAction, ev.Action))
	}
}
