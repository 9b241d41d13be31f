package broker

import (
	"time"

	"github.com/google/uuid"
)

// Message is a unit of work travelling through a queue.
// It is owned by its queue until dequeued and by the handler invocation while processing.
type Message struct {
	ID         string    `json:"id"`
	Queue      string    `json:"queue"`
	Payload    any       `json:"payload"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`
}

// newMessage builds a message with a time-ordered identifier prefixed by the queue name.
func newMessage(queue string, payload any, maxRetries int, now time.Time) *Message {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	return &Message{
		ID:         queue + "_" + id.String(),
		Queue:      queue,
		Payload:    payload,
		EnqueuedAt: now,
		MaxRetries: maxRetries,
	}
}
