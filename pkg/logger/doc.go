// Package logger builds configured slog loggers and provides typed attribute
// helpers for the notification tracking domain.
//
// The factory wraps the standard library handlers with a decorator that can
// inject request-scoped attributes from context, so components keep accepting
// a plain *slog.Logger while logs still carry correlation data.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithProduction("notiftrack"),
//	    logger.WithContextValue("request_id", requestIDKey),
//	)
//
//	log.LogAttrs(ctx, slog.LevelWarn, "Retention sweep failed",
//	    logger.AppID(appID),
//	    logger.UserID(userID),
//	    logger.Error(err),
//	)
//
// Attribute helpers return an empty Attr for zero values, which slog drops,
// so call sites never need nil checks.
package logger
