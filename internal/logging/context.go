package logging

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/samber/lo"
)

type loggerContextKey struct{}

var fallbackLogger = sync.OnceValue(func() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("logger", "fallback"))
})

func FromContext(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger)
	if !ok || logger == nil {
		return fallbackLogger()
	}
	return logger
}

func AddToContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

func AddMetaToContext(ctx context.Context, args ...slog.Attr) context.Context {
	logger := FromContext(ctx)

	withMeta := logger.With(lo.Map(args, func(attr slog.Attr, _ int) any { return attr })...)

	return AddToContext(ctx, withMeta)
}
