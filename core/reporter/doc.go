// Package reporter defines the error-reporting collaborator used when the
// core gives up on something (for example a message that exhausted its
// retries) and ships a few implementations: a no-op, a log sink, a broker
// sink publishing to the error_events queue, and a fan-out.
//
// Example:
//
//	rep := reporter.Multi(
//		reporter.NewLog(log),
//		reporter.NewBroker(bus),
//	)
//	b := broker.New(broker.WithReporter(rep))
package reporter
