// Package logger provides structured logging utilities built on Go's standard slog package.
//
// # Basic Usage
//
// Create loggers using the factory function with environment presets:
//
//	import "github.com/dmitrymomot/sessioncore/core/logger"
//
//	// Development: text format, debug level, source locations
//	log := logger.New(logger.WithDevelopment("sessioncore"))
//
//	// Production: JSON format, info level
//	log := logger.New(
//		logger.WithProduction("sessioncore"),
//		logger.WithLevelString(cfg.LogLevel),
//	)
//
//	// Preset chosen from APP_ENV
//	log := logger.New(logger.WithEnvironment(cfg.Env, cfg.AppName))
//
// Components in this module accept a *slog.Logger through their WithLogger
// option and stay silent by default. Discard returns the no-op logger they use.
//
// # Attributes
//
// Attribute helpers keep keys consistent across components:
//
//	log.WarnContext(ctx, "message dropped after max retries",
//		logger.Queue(msg.Queue),
//		logger.MessageID(msg.ID),
//		logger.RetryCount(msg.RetryCount),
//		logger.Error(err),
//	)
//
// Helpers that receive an empty value (nil error, empty ID) return an empty
// slog.Attr, which slog omits, so calls need no nil checks.
package logger
