// Package supervisor runs named background jobs with at most one running
// instance per name.
//
// A job is a func(ctx) error. Start registers it under a name; starting the same
// name again while it runs is logged and ignored. The job runs on a context that
// ignores the caller's cancellation, so only Stop (or StopAll) ends it. When the
// job returns, whether with nil, an error or a panic, the name is released and can
// be started again. Failures are logged and never propagated; context.Canceled is
// a normal exit.
//
//	sup := supervisor.NewFromConfig(cfg, supervisor.WithLogger(log))
//	sup.Start("registry.cleanup", func(ctx context.Context) error {
//		return reg.CleanupInactive(ctx, 30*time.Minute)
//	})
//	defer sup.StopAll()
//
// Components without a direct reference can publish a TaskEvent to the
// task_events queue once Subscribe has been called.
package supervisor
