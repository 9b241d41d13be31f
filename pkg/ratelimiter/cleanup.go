package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Start begins the background cleanup of stale keys. This is a blocking operation
// that runs until the context is cancelled. Use Run() for errgroup pattern or call this in a goroutine.
func (l *Limiter) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}

	if l.cleanupInterval <= 0 {
		l.mu.Unlock()
		return fmt.Errorf("%w, got %v", ErrCleanupDisabled, l.cleanupInterval)
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.cancel = nil
		l.mu.Unlock()
		cancel()
	}()

	l.logger.InfoContext(ctx, "rate limiter cleanup started",
		slog.Duration("cleanup_interval", l.cleanupInterval),
		slog.Duration("stale_after", l.staleAfter))

	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.InfoContext(context.Background(), "rate limiter cleanup stopping")
			return ctx.Err()
		case <-ticker.C:
			l.cleanupWithWait()
		}
	}
}

// Stop gracefully shuts down the background cleanup with a timeout.
// Returns an error if the shutdown timeout is exceeded.
func (l *Limiter) Stop() error {
	l.mu.Lock()
	if l.cancel == nil {
		l.mu.Unlock()
		return ErrNotStarted
	}
	cancel := l.cancel
	l.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.InfoContext(context.Background(), "rate limiter cleanup stopped cleanly")
		return nil
	case <-ctx.Done():
		l.logger.WarnContext(context.Background(), "rate limiter shutdown timeout exceeded",
			slog.Duration("timeout", l.shutdownTimeout))
		return fmt.Errorf("%w after %s", ErrShutdownTimeout, l.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
// Returns a function that starts the cleanup, monitors context cancellation,
// and performs graceful shutdown when the context is cancelled.
func (l *Limiter) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- l.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = l.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

func (l *Limiter) cleanupWithWait() {
	l.wg.Add(1)
	defer l.wg.Done()

	if removed := l.Cleanup(); removed > 0 {
		l.logger.Debug("stale rate limit keys removed", slog.Int("count", removed))
	}
}

// Cleanup removes keys whose window has expired and that have not been used
// for StaleAfter. Returns the number of keys removed.
func (l *Limiter) Cleanup() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.states {
		if now.After(w.resetAt) && now.Sub(w.lastAccess) > l.staleAfter {
			delete(l.states, key)
			removed++
		}
	}

	if removed > 0 {
		l.keysRemoved.Add(int64(removed))
	}
	return removed
}

// Healthcheck validates that the cleanup loop is running when it is configured.
func (l *Limiter) Healthcheck(ctx context.Context) error {
	if l.cleanupInterval > 0 && !l.Stats().IsRunning {
		return errors.Join(ErrHealthcheckFailed, ErrCleanupNotRunning)
	}
	return nil
}
