package logging_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/Amund211/atlas/internal/logging"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestTracingLogHandler(t *testing.T) {
	t.Parallel()

	t.Run("no span", func(t *testing.T) {
		t.Parallel()

		w := newWriter(t)
		logger := slog.New(logging.NewTracingLogHandler(slog.NewJSONHandler(w, nil)))

		logger.InfoContext(context.Background(), "test")
		entry, ok := w.PopWithoutTime()
		require.True(t, ok)
		require.Equal(t, map[string]any{"level": "INFO", "msg": "test"}, entry)
	})

	t.Run("with span", func(t *testing.T) {
		t.Parallel()

		traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		require.NoError(t, err)
		spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
		require.NoError(t, err)

		ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
		}))

		w := newWriter(t)
		logger := slog.New(logging.NewTracingLogHandler(slog.NewJSONHandler(w, nil))).With(slog.String("component", "cache"))

		logger.InfoContext(ctx, "test")
		entry, ok := w.PopWithoutTime()
		require.True(t, ok)
		require.Equal(t, map[string]any{
			"level":         "INFO",
			"msg":           "test",
			"component":     "cache",
			"trace_id":      "4bf92f3577b34da6a3ce929d0e0e4736",
			"span_id":       "00f067aa0ba902b7",
			"trace_sampled": true,
		}, entry)
	})
}
