// Package logger builds *slog.Logger instances with functional options and a
// handler decorator that injects request-scoped attributes (request id, tenant)
// pulled from context.Context on every record.
//
// Attribute helpers in attr.go keep key names consistent across the engine:
// notification_id, batch_id, tenant_id, user_id, channel, type_id and so on.
// Helpers for optional identifiers return an empty slog.Attr for empty input,
// which slog drops, so callers can pass them unconditionally.
//
// # Usage
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "courier"),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.LogAttrs(ctx, slog.LevelInfo, "notification sent",
//		logger.NotificationID(n.ID),
//		logger.Channel(n.Channel),
//	)
package logger
