// Package health provides resource metrics for admission control and a
// readiness combinator for component health checks.
//
// Providers:
//   - System: live CPU and memory readings via gopsutil
//   - Static: fixed readings, for tests and for disabling admission gating
//   - ProviderFunc: adapt any function
//
// Readiness composes component checks that follow the
// func(context.Context) error signature:
//
//	ready := health.Readiness(logger,
//		broker.Healthcheck,
//		supervisor.Healthcheck,
//	)
//	if err := ready(ctx); err != nil {
//		// not ready
//	}
package health
