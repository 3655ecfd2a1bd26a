package reporting

import (
	"context"
	"maps"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
)

type reportingMetaContextKey struct{}

// ReportingMeta is attached to every event reported from a context
type ReportingMeta struct {
	tags   map[string]string
	extras map[string]string

	// Set on request contexts
	startedAt time.Time
	// Set on frame loop contexts, 0 outside of a frame
	frame uint64
}

func (m ReportingMeta) clone() ReportingMeta {
	m.tags = maps.Clone(m.tags)
	m.extras = maps.Clone(m.extras)
	if m.tags == nil {
		m.tags = make(map[string]string)
	}
	if m.extras == nil {
		m.extras = make(map[string]string)
	}
	return m
}

// apply sets the meta on a scope
func (m ReportingMeta) apply(scope *sentry.Scope) {
	scope.SetTags(m.tags)
	for key, value := range m.extras {
		scope.SetExtra(key, value)
	}
	if !m.startedAt.IsZero() {
		scope.SetExtra("secondsSinceStart", time.Since(m.startedAt).Seconds())
	}
	if m.frame != 0 {
		scope.SetExtra("frame", strconv.FormatUint(m.frame, 10))
	}
}

func MetaFromContext(ctx context.Context) ReportingMeta {
	meta, _ := ctx.Value(reportingMetaContextKey{}).(ReportingMeta)
	return meta.clone()
}

func updateMeta(ctx context.Context, update func(meta *ReportingMeta)) context.Context {
	meta := MetaFromContext(ctx)
	update(&meta)
	return context.WithValue(ctx, reportingMetaContextKey{}, meta)
}

func SetStartedAtInContext(ctx context.Context, startedAt time.Time) context.Context {
	return updateMeta(ctx, func(meta *ReportingMeta) {
		meta.startedAt = startedAt
	})
}

// SetFrameInContext marks events reported from ctx as happening during the given frame
func SetFrameInContext(ctx context.Context, frame uint64) context.Context {
	return updateMeta(ctx, func(meta *ReportingMeta) {
		meta.frame = frame
	})
}

// AddComponentToContext tags events with the part of the renderer they came from (a cache, a pool, a port)
func AddComponentToContext(ctx context.Context, component string) context.Context {
	return AddTagsToContext(ctx, map[string]string{"component": component})
}

func AddExtrasToContext(ctx context.Context, extras map[string]string) context.Context {
	return updateMeta(ctx, func(meta *ReportingMeta) {
		maps.Copy(meta.extras, extras)
	})
}

func AddTagsToContext(ctx context.Context, tags map[string]string) context.Context {
	return updateMeta(ctx, func(meta *ReportingMeta) {
		maps.Copy(meta.tags, tags)
	})
}

// AddHubToContext attaches a clone of the current Sentry hub for use outside of request handlers
func AddHubToContext(ctx context.Context) context.Context {
	if sentry.HasHubOnContext(ctx) {
		return ctx
	}
	return sentry.SetHubOnContext(ctx, sentry.CurrentHub().Clone())
}
