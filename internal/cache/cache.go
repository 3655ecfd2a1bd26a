package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Amund211/atlas/internal/domain"
	"github.com/Amund211/atlas/internal/workerpool"
	"github.com/hashicorp/go-set/v2"
	"github.com/samber/lo"
)

// Constructor builds the value for a key on a background worker.
//
// Returning a value together with an error wrapping domain.ErrTemporarilyUnavailable marks the value as a
// placeholder. Placeholders are handed to onReady and served by Get, but they are not owned by the cache:
// they don't count towards its size, are never disposed and are replaced by the first successful construct.
type Constructor[K comparable, V any] interface {
	Construct(ctx context.Context, key K) (V, error)
}

type ConstructorFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

func (f ConstructorFunc[K, V]) Construct(ctx context.Context, key K) (V, error) {
	return f(ctx, key)
}

// Disposable values are disposed when they leave the cache
type Disposable interface {
	Dispose()
}

type entry[V any] struct {
	value    V
	lastUsed uint64
}

type placeholder[V any] struct {
	value V
	// Frame the placeholder was produced in
	since uint64
}

// AsyncCache is a capacity bounded map whose values are built asynchronously.
//
// Retrieve, MarkUsed and Get may be called from any goroutine. GarbageCollect, NextFrame, Evict, Purge and
// Close dispose values on the calling goroutine, so they belong on the thread owning the values.
type AsyncCache[K comparable, V any] struct {
	name        string
	constructor Constructor[K, V]
	opts        Options[K, V]
	logger      *slog.Logger
	pool        *workerpool.Pool
	metrics     cacheMetricsCollection

	mu           sync.Mutex
	entries      map[K]*entry[V]
	placeholders map[K]placeholder[V]
	pending      *set.Set[K]
	used         *set.Set[K]
	frame        uint64
	gcNextFrame  bool
	closed       bool

	gcs       uint64
	evictions uint64
	hits      uint64
	misses    uint64
	latency   windowedMean
}

func New[K comparable, V any](name string, constructor Constructor[K, V], opts Options[K, V], logger *slog.Logger) (*AsyncCache[K, V], error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	metrics, err := setupCacheMetrics(name)
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	logger = logger.With(slog.String("component", "cache"), slog.String("cache", name))

	return &AsyncCache[K, V]{
		name:        name,
		constructor: constructor,
		opts:        opts,
		logger:      logger,
		pool:        workerpool.New(name, opts.Workers, logger),
		metrics:     metrics,

		entries:      make(map[K]*entry[V], opts.MaxItems),
		placeholders: make(map[K]placeholder[V]),
		pending:      set.New[K](16),
		used:         set.New[K](opts.MaxItems / 4),
	}, nil
}

func (c *AsyncCache[K, V]) Name() string {
	return c.name
}

func (c *AsyncCache[K, V]) MaxItems() int {
	return c.opts.MaxItems
}

// Retrieve never blocks. A stored value, or a placeholder younger than PlaceholderRetryFrames, is passed to
// onReady immediately. Otherwise a construct is started unless one is already in flight for key, and onReady
// is called from the worker once it finishes.
func (c *AsyncCache[K, V]) Retrieve(key K, onReady func(V)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if e, ok := c.entries[key]; ok {
		c.hits++
		value := e.value
		c.mu.Unlock()

		c.metrics.hits.Add(context.Background(), 1, c.metrics.attrs)
		if onReady != nil {
			onReady(value)
		}
		return
	}
	if p, ok := c.placeholders[key]; ok && c.frame-p.since < uint64(c.opts.PlaceholderRetryFrames) {
		value := p.value
		c.mu.Unlock()

		if onReady != nil {
			onReady(value)
		}
		return
	}
	if c.pending.Contains(key) {
		c.mu.Unlock()
		return
	}
	c.pending.Insert(key)
	c.mu.Unlock()

	err := c.pool.Submit(func(ctx context.Context) error {
		return c.construct(ctx, key, onReady)
	})
	if err != nil {
		c.mu.Lock()
		c.pending.Remove(key)
		c.mu.Unlock()
		c.logger.Warn("Failed to submit construct", "key", fmt.Sprint(key), "error", err.Error())
	}
}

func (c *AsyncCache[K, V]) construct(ctx context.Context, key K, onReady func(V)) error {
	start := c.opts.Now()
	value, err := c.constructor.Construct(ctx, key)
	elapsed := c.opts.Now().Sub(start)

	if err != nil {
		isPlaceholder := errors.Is(err, domain.ErrTemporarilyUnavailable)

		c.mu.Lock()
		c.pending.Remove(key)
		if isPlaceholder && !c.closed {
			c.placeholders[key] = placeholder[V]{value: value, since: c.frame}
		}
		c.mu.Unlock()

		c.metrics.constructFailure.Add(ctx, 1, c.metrics.attrs)

		if isPlaceholder {
			c.logger.DebugContext(ctx, "Construct produced placeholder", "key", fmt.Sprint(key), "error", err.Error())
			if onReady != nil {
				onReady(value)
			}
			return nil
		}

		return fmt.Errorf("failed to construct %v: %w", key, err)
	}

	c.mu.Lock()
	if c.closed {
		c.pending.Remove(key)
		c.mu.Unlock()
		c.dispose(key, value)
		return nil
	}
	c.entries[key] = &entry[V]{value: value, lastUsed: c.frame}
	delete(c.placeholders, key)
	c.pending.Remove(key)
	c.misses++
	c.latency.add(elapsed)
	c.mu.Unlock()

	c.metrics.misses.Add(ctx, 1, c.metrics.attrs)
	c.metrics.constructLatency.Record(ctx, elapsed.Seconds(), c.metrics.attrs)

	if onReady != nil {
		onReady(value)
	}
	return nil
}

// MarkUsed protects key from eviction until the end of the frame
func (c *AsyncCache[K, V]) MarkUsed(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.used.Insert(key)
	if e, ok := c.entries[key]; ok {
		e.lastUsed = c.frame
	}
}

// Get returns the stored value for key, or the placeholder from its last construct, without scheduling a
// construct or touching the stats
func (c *AsyncCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return e.value, true
	}
	if p, ok := c.placeholders[key]; ok {
		return p.value, true
	}
	var empty V
	return empty, false
}

// Contains reports whether a constructed value is stored for key. Placeholders don't count.

func (c *AsyncCache[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	return ok
}

type evicted[K comparable, V any] struct {
	key   K
	value V
}

// GarbageCollect evicts unused entries once the fill rate reaches the start threshold, until it is at or
// below the end threshold. force evicts every unused entry regardless of the fill rate.
//
// Entries are evicted least recently used first. Returns the number of evicted entries.
func (c *AsyncCache[K, V]) GarbageCollect(force bool) int {
	c.mu.Lock()

	maxItems := float64(c.opts.MaxItems)
	fillRate := float64(len(c.entries)) / maxItems
	if fillRate < c.opts.StartGCThreshold && !force {
		c.mu.Unlock()
		return 0
	}

	// Most recently used first, evict from the back
	keys := lo.Keys(c.entries)
	slices.SortStableFunc(keys, func(a, b K) int {
		ua, ub := c.entries[a].lastUsed, c.entries[b].lastUsed
		switch {
		case ua > ub:
			return -1
		case ua < ub:
			return 1
		default:
			return 0
		}
	})

	removed := make([]evicted[K, V], 0)
	for i := len(keys) - 1; i >= 0; i-- {
		if !force && float64(len(c.entries))/maxItems <= c.opts.EndGCThreshold {
			break
		}
		key := keys[i]
		if c.used.Contains(key) {
			continue
		}
		removed = append(removed, evicted[K, V]{key: key, value: c.entries[key].value})
		delete(c.entries, key)
	}

	c.gcs++
	c.evictions += uint64(len(removed))
	inUse := c.used.Size()
	remaining := len(c.entries)
	c.mu.Unlock()

	for _, e := range removed {
		c.dispose(e.key, e.value)
	}

	ctx := context.Background()
	c.metrics.gcs.Add(ctx, 1, c.metrics.attrs)
	c.metrics.evictions.Add(ctx, int64(len(removed)), c.metrics.attrs)

	if force {
		c.logger.Debug("Forced garbage collection", "evicted", len(removed), "inUse", inUse, "remaining", remaining)
	} else {
		c.logger.Info(
			"Garbage collection",
			"fillRate", fmt.Sprintf("%.0f%%", fillRate*100),
			"inUse", inUse,
			"evicted", len(removed),
			"remaining", remaining,
		)
	}

	return len(removed)
}

// GCNextFrame makes the next NextFrame run a forced collection
func (c *AsyncCache[K, V]) GCNextFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gcNextFrame = true
}

// NextFrame collects garbage and starts a new frame with no used keys.
// Placeholders of keys that were not used during the frame are forgotten.
func (c *AsyncCache[K, V]) NextFrame() {
	c.mu.Lock()
	force := c.gcNextFrame
	c.gcNextFrame = false
	c.mu.Unlock()

	c.GarbageCollect(force)

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.placeholders {
		if !c.used.Contains(key) {
			delete(c.placeholders, key)
		}
	}
	c.used = set.New[K](c.opts.MaxItems / 4)
	c.frame++
}

// Evict removes key, ignoring whether it is in use. Returns false if key was not stored.
func (c *AsyncCache[K, V]) Evict(key K) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
		c.evictions++
	}
	c.mu.Unlock()

	if !ok {
		return false
	}

	c.metrics.evictions.Add(context.Background(), 1, c.metrics.attrs)
	c.dispose(key, e.value)
	return true
}

// Purge evicts everything and resets the stats. Constructs in flight still complete and store their values.
func (c *AsyncCache[K, V]) Purge() int {
	c.mu.Lock()
	removed := make([]evicted[K, V], 0, len(c.entries))
	for key, e := range c.entries {
		removed = append(removed, evicted[K, V]{key: key, value: e.value})
	}
	c.entries = make(map[K]*entry[V], c.opts.MaxItems)
	c.placeholders = make(map[K]placeholder[V])
	c.used = set.New[K](c.opts.MaxItems / 4)
	c.gcNextFrame = false
	c.gcs = 0
	c.evictions = 0
	c.hits = 0
	c.misses = 0
	c.latency = windowedMean{}
	c.mu.Unlock()

	for _, e := range removed {
		c.dispose(e.key, e.value)
	}

	c.metrics.evictions.Add(context.Background(), int64(len(removed)), c.metrics.attrs)
	c.logger.Info("Purged cache", "evicted", len(removed))
	return len(removed)
}

func (c *AsyncCache[K, V]) dispose(key K, value V) {
	if c.opts.OnEvict != nil {
		c.opts.OnEvict(key, value)
	}
	if disposable, ok := any(value).(Disposable); ok {
		disposable.Dispose()
	}
}

func (c *AsyncCache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Pending is the number of keys with a construct in flight
func (c *AsyncCache[K, V]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pending.Size()
}

func (c *AsyncCache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Name:                 c.name,
		Size:                 len(c.entries),
		MaxItems:             c.opts.MaxItems,
		GCs:                  c.gcs,
		Evictions:            c.evictions,
		Hits:                 c.hits,
		Misses:               c.misses,
		Placeholders:         len(c.placeholders),
		Pending:              c.pending.Size(),
		Backlog:              c.pool.Backlog(),
		MeanConstructLatency: c.latency.mean(),
	}
}

// Close stops the workers and purges the cache. Values from constructs that finish afterwards are disposed
// immediately.
func (c *AsyncCache[K, V]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	dropped := c.pool.Close()

	c.mu.Lock()
	c.pending = set.New[K](0)
	c.mu.Unlock()

	c.Purge()

	c.logger.Info("Closed cache", "droppedConstructs", dropped)
}
