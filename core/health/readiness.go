package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/sessioncore/core/logger"
)

var (
	// ErrNotReady is returned by Readiness when any check fails.
	ErrNotReady = errors.New("health: not ready")

	// ErrMetricsUnavailable is returned when resource metrics cannot be read.
	ErrMetricsUnavailable = errors.New("health: metrics unavailable")
)

// Readiness returns a check that passes only if every dependency check passes.
// Checks run in order; the first failure is logged and returned wrapped in ErrNotReady.
//
// Example:
//
//	ready := health.Readiness(log, b.Healthcheck, reg.Healthcheck)
func Readiness(log *slog.Logger, fn ...func(context.Context) error) func(context.Context) error {
	if log == nil {
		log = logger.Discard()
	}
	return func(ctx context.Context) error {
		for _, f := range fn {
			if err := f(ctx); err != nil {
				log.ErrorContext(ctx, "Readiness check failed", logger.Error(err))
				return fmt.Errorf("%w: %w", ErrNotReady, err)
			}
		}
		return nil
	}
}
