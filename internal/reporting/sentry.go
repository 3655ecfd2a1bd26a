package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/Amund211/atlas/internal/config"
	"github.com/Amund211/atlas/internal/logging"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
)

var hostRx = regexp.MustCompile(`\[:{0,2}([0-9a-f]{0,4}:?){1,8}\]:\d+`)
var ipv4HostRx = regexp.MustCompile(`\b\d{1,3}(\.\d{1,3}){3}:\d+\b`)
var tilePathRx = regexp.MustCompile(`/\d{1,2}/\d+/\d+(\.png)?\b`)
var tileKeyRx = regexp.MustCompile(`\btile \d{1,2}/\d+/\d+\b`)
var chunkRx = regexp.MustCompile(`chunk\(-?\d+,-?\d+\)-\(-?\d+,-?\d+\)`)

func sanitizeError(err string) string {
	err = hostRx.ReplaceAllString(err, "<host>")
	err = ipv4HostRx.ReplaceAllString(err, "<host>")
	err = tilePathRx.ReplaceAllString(err, "/<z>/<x>/<y>$1")
	err = tileKeyRx.ReplaceAllString(err, "tile <z>/<x>/<y>")
	err = chunkRx.ReplaceAllString(err, "<chunk>")
	return err
}

func Report(ctx context.Context, err error, extras ...map[string]string) {
	hub := sentry.GetHubFromContext(ctx)
	logger := logging.FromContext(ctx)
	if hub == nil {
		logger.WarnContext(ctx, "Failed to get Sentry hub from context", "error", err, "extras", extras)
		return
	}

	if err == nil {
		err = errors.New("No error provided")
	}

	logger.ErrorContext(
		ctx,
		"Reporting error to Sentry",
		slog.String("error", err.Error()),
		slog.Any("extras", extras),
	)

	hub.WithScope(func(scope *sentry.Scope) {
		MetaFromContext(ctx).apply(scope)

		for _, extra := range extras {
			for key, value := range extra {
				scope.SetExtra(key, value)
			}
		}

		scope.SetFingerprint([]string{"{{ default }}", sanitizeError(err.Error())})
		hub.CaptureException(err)
	})
}

func addMetaMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userAgent := r.UserAgent()
		if userAgent == "" {
			userAgent = "<missing>"
		}
		methodPath := fmt.Sprintf("%s %s", r.Method, r.URL.Path)

		ctx = AddComponentToContext(ctx, "diagnostics")
		ctx = AddTagsToContext(ctx,
			map[string]string{
				"userAgent":  userAgent,
				"methodPath": methodPath,
			},
		)

		ctx = SetStartedAtInContext(ctx, time.Now())

		next(w, r.WithContext(ctx))
	}
}

// InitSentry initializes the global Sentry client and returns a function flushing buffered events
func InitSentry(sentryDSN string, environment string) (func(), error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              sentryDSN,
		Environment:      environment,
		EnableTracing:    true,
		TracesSampleRate: 1.0 / 100.0,
	})
	if err != nil {
		return nil, err
	}

	flush := func() {
		sentry.Flush(5 * time.Second)
	}

	return flush, nil
}

// NewSentryOrMock initializes Sentry when a DSN is configured. Development runs without one.
func NewSentryOrMock(config config.Config) (func(), error) {
	if config.SentryDSN() != "" {
		return InitSentry(config.SentryDSN(), config.Environment())
	}

	if config.IsDevelopment() {
		return func() {}, nil
	}

	return nil, fmt.Errorf("Missing Sentry DSN in non-development environment")
}

// NewSentryMiddleware attaches a request scoped hub and reporting meta to each request
func NewSentryMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	sentryHandler := sentryhttp.New(sentryhttp.Options{})

	return func(next http.HandlerFunc) http.HandlerFunc {
		withMeta := addMetaMiddleware(next)
		return func(w http.ResponseWriter, r *http.Request) {
			sentryHandler.HandleFunc(withMeta).ServeHTTP(w, r)
		}
	}
}
