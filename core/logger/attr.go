package logger

import (
	"log/slog"
	"time"
)

// Helpers taking optional values return the empty Attr when the value is missing,
// and slog handlers skip empty attributes. That keeps logger.Error(err) safe for nil errors.

// Group nests attrs under name.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error logs err under "error". Nil errors produce an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Duration logs d under "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Elapsed logs the time since start under "elapsed".
func Elapsed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}

// ID logs an identifier under a caller-chosen key. Nil values produce an empty Attr.
func ID(key string, value any) slog.Attr {
	if value == nil {
		return slog.Attr{}
	}
	return slog.Any(key, value)
}

// Queue logs a broker queue name.
func Queue(name string) slog.Attr {
	return slog.String("queue", name)
}

// MessageID logs a broker message id.
func MessageID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("message_id", id)
}

// ClientID logs a connected client id.
func ClientID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("client_id", id)
}

// GroupName logs a connection group name.
func GroupName(name string) slog.Attr {
	return slog.String("group", name)
}

// TaskName logs a supervised task name.
func TaskName(name string) slog.Attr {
	return slog.String("task", name)
}

// RateLimitKey logs the key a limiter decision was made for.
func RateLimitKey(key string) slog.Attr {
	if key == "" {
		return slog.Attr{}
	}
	return slog.String("rate_limit_key", key)
}

// Percent logs a percentage reading such as CPU load.
func Percent(key string, value float64) slog.Attr {
	return slog.Float64(key, value)
}

// Component tags records with the emitting component.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event logs an event name.
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Type logs a type or kind discriminator.
func Type(t string) slog.Attr {
	return slog.String("type", t)
}

// Count logs an integer counter.
func Count(key string, n int) slog.Attr {
	return slog.Int(key, n)
}

// RetryCount logs how many times a message was retried.
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}
