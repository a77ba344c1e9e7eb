// Package logger builds log/slog loggers with environment presets and
// context-driven attributes.
//
// Request-scoped values are attached through ContextExtractor functions that
// run on every record, so handlers only need to log with the request context:
//
//	log := logger.New(
//		logger.WithEnvironment(environment.Production, "psikit"),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "webhook processed", logger.EventType("customer.subscription.updated"))
package logger
