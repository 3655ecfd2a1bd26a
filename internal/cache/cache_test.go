package cache_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Amund211/atlas/internal/cache"
	"github.com/Amund211/atlas/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type resource struct {
	key      int
	disposed atomic.Bool
}

func (r *resource) Dispose() {
	r.disposed.Store(true)
}

type constructorCalls struct {
	mu    sync.Mutex
	calls map[int]int
}

func (c *constructorCalls) add(key int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[int]int)
	}
	c.calls[key]++
}

func (c *constructorCalls) get(key int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[key]
}

func instantConstructor(calls *constructorCalls) cache.ConstructorFunc[int, *resource] {
	return func(ctx context.Context, key int) (*resource, error) {
		calls.add(key)
		return &resource{key: key}, nil
	}
}

func newCache(t *testing.T, constructor cache.Constructor[int, *resource], opts cache.Options[int, *resource]) *cache.AsyncCache[int, *resource] {
	t.Helper()

	c, err := cache.New("test", constructor, opts, newTestLogger())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func fill(t *testing.T, c *cache.AsyncCache[int, *resource], keys ...int) {
	t.Helper()

	want := c.Size() + len(keys)
	for _, key := range keys {
		c.Retrieve(key, nil)
	}
	require.Eventually(t, func() bool { return c.Size() == want }, 5*time.Second, time.Millisecond)
}

func TestNewValidatesOptions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		opts  cache.Options[int, *resource]
		valid bool
	}{
		{name: "defaults", opts: cache.DefaultOptions[int, *resource](10), valid: true},
		{name: "no capacity", opts: cache.DefaultOptions[int, *resource](0)},
		{name: "end above start", opts: cache.Options[int, *resource]{MaxItems: 10, StartGCThreshold: 0.5, EndGCThreshold: 0.9}},
		{name: "zero start", opts: cache.Options[int, *resource]{MaxItems: 10, StartGCThreshold: 0, EndGCThreshold: 0}},
		{name: "negative end", opts: cache.Options[int, *resource]{MaxItems: 10, StartGCThreshold: 0.9, EndGCThreshold: -0.1}},
		{name: "start equals end", opts: cache.Options[int, *resource]{MaxItems: 10, StartGCThreshold: 0.7, EndGCThreshold: 0.7}, valid: true},
		{name: "negative placeholder retry", opts: cache.Options[int, *resource]{MaxItems: 10, StartGCThreshold: 0.9, EndGCThreshold: 0.5, PlaceholderRetryFrames: -1}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			created, err := cache.New("test", instantConstructor(&constructorCalls{}), c.opts, newTestLogger())
			if !c.valid {
				require.ErrorIs(t, err, cache.ErrInvalidOptions)
				return
			}
			require.NoError(t, err)
			created.Close()
		})
	}
}

func TestRetrieve(t *testing.T) {
	t.Parallel()

	t.Run("double retrieve before completion constructs once", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		calls := &constructorCalls{}
		c := newCache(t, cache.ConstructorFunc[int, *resource](func(ctx context.Context, key int) (*resource, error) {
			calls.add(key)
			<-release
			return &resource{key: key}, nil
		}), cache.DefaultOptions[int, *resource](10))

		ready := make(chan *resource, 2)
		onReady := func(r *resource) { ready <- r }

		c.Retrieve(1, onReady)
		c.Retrieve(1, onReady)
		require.Equal(t, 1, c.Pending())
		require.False(t, c.Contains(1))

		close(release)

		select {
		case r := <-ready:
			require.Equal(t, 1, r.key)
		case <-time.After(5 * time.Second):
			t.Fatal("construct did not finish")
		}
		require.Eventually(t, func() bool { return c.Pending() == 0 }, 5*time.Second, time.Millisecond)
		require.Equal(t, 1, calls.get(1))
		require.Empty(t, ready, "onReady of the second retrieve is not called")

		stats := c.Stats()
		require.Equal(t, uint64(1), stats.Misses)
		require.Equal(t, uint64(0), stats.Hits)
	})

	t.Run("stored values are handed over synchronously", func(t *testing.T) {
		t.Parallel()

		calls := &constructorCalls{}
		c := newCache(t, instantConstructor(calls), cache.DefaultOptions[int, *resource](10))
		fill(t, c, 7)

		var got *resource
		c.Retrieve(7, func(r *resource) { got = r })
		require.NotNil(t, got)
		require.Equal(t, 7, got.key)
		require.Equal(t, 1, calls.get(7))
		require.Equal(t, uint64(1), c.Stats().Hits)

		peeked, ok := c.Get(7)
		require.True(t, ok)
		require.Same(t, got, peeked)

		_, ok = c.Get(8)
		require.False(t, ok)
		require.Zero(t, c.Pending(), "Get does not schedule constructs")
	})

	t.Run("placeholders are served until retried", func(t *testing.T) {
		t.Parallel()

		placeholder := &resource{key: -1}
		var attempts atomic.Int64
		opts := cache.DefaultOptions[int, *resource](10)
		opts.PlaceholderRetryFrames = 3
		c := newCache(t, cache.ConstructorFunc[int, *resource](func(ctx context.Context, key int) (*resource, error) {
			attempts.Add(1)
			return placeholder, fmt.Errorf("tile server down: %w", domain.ErrTemporarilyUnavailable)
		}), opts)

		ready := make(chan *resource, 1)
		c.Retrieve(3, func(r *resource) { ready <- r })

		select {
		case r := <-ready:
			require.Same(t, placeholder, r)
		case <-time.After(5 * time.Second):
			t.Fatal("placeholder was not handed over")
		}
		require.Eventually(t, func() bool { return c.Pending() == 0 }, 5*time.Second, time.Millisecond)

		got, ok := c.Get(3)
		require.True(t, ok)
		require.Same(t, placeholder, got)
		require.False(t, c.Contains(3), "placeholders are not stored")
		require.Zero(t, c.Size())
		require.Equal(t, 1, c.Stats().Placeholders)

		// Served without constructing again inside the retry window
		for range 3 {
			var handed *resource
			c.Retrieve(3, func(r *resource) { handed = r })
			require.Same(t, placeholder, handed)
			c.MarkUsed(3)
			c.NextFrame()
		}
		require.Equal(t, int64(1), attempts.Load())

		c.Retrieve(3, nil)
		require.Eventually(t, func() bool { return attempts.Load() == 2 }, 5*time.Second, time.Millisecond)
		require.Eventually(t, func() bool { return c.Pending() == 0 }, 5*time.Second, time.Millisecond)

		c.Purge()
		_, ok = c.Get(3)
		require.False(t, ok)
		require.False(t, placeholder.disposed.Load())
	})

	t.Run("unused placeholders are forgotten", func(t *testing.T) {
		t.Parallel()

		placeholder := &resource{key: -1}
		c := newCache(t, cache.ConstructorFunc[int, *resource](func(ctx context.Context, key int) (*resource, error) {
			return placeholder, fmt.Errorf("tile server down: %w", domain.ErrTemporarilyUnavailable)
		}), cache.DefaultOptions[int, *resource](10))

		c.Retrieve(3, nil)
		c.Retrieve(4, nil)
		require.Eventually(t, func() bool { return c.Stats().Placeholders == 2 }, 5*time.Second, time.Millisecond)

		c.MarkUsed(4)
		c.NextFrame()

		_, ok := c.Get(3)
		require.False(t, ok)
		_, ok = c.Get(4)
		require.True(t, ok)
		require.False(t, placeholder.disposed.Load())
	})

	t.Run("a successful construct replaces the placeholder", func(t *testing.T) {
		t.Parallel()

		placeholder := &resource{key: -1}
		var fail atomic.Bool
		fail.Store(true)
		opts := cache.DefaultOptions[int, *resource](10)
		opts.PlaceholderRetryFrames = 0
		c := newCache(t, cache.ConstructorFunc[int, *resource](func(ctx context.Context, key int) (*resource, error) {
			if fail.Load() {
				return placeholder, fmt.Errorf("tile server down: %w", domain.ErrTemporarilyUnavailable)
			}
			return &resource{key: key}, nil
		}), opts)

		c.Retrieve(3, nil)
		require.Eventually(t, func() bool { return c.Stats().Placeholders == 1 }, 5*time.Second, time.Millisecond)
		require.Eventually(t, func() bool { return c.Pending() == 0 }, 5*time.Second, time.Millisecond)

		fail.Store(false)
		fill(t, c, 3)

		got, ok := c.Get(3)
		require.True(t, ok)
		require.Equal(t, 3, got.key)
		require.Zero(t, c.Stats().Placeholders)
	})

	t.Run("concurrent retrieves construct once", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		calls := &constructorCalls{}
		c := newCache(t, cache.ConstructorFunc[int, *resource](func(ctx context.Context, key int) (*resource, error) {
			calls.add(key)
			<-release
			return &resource{key: key}, nil
		}), cache.DefaultOptions[int, *resource](10))

		var ready atomic.Int64
		start := make(chan struct{})
		var wg sync.WaitGroup
		for range 64 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				c.Retrieve(9, func(*resource) { ready.Add(1) })
			}()
		}
		close(start)
		wg.Wait()

		require.Equal(t, 1, c.Pending())
		close(release)

		require.Eventually(t, func() bool { return c.Contains(9) }, 5*time.Second, time.Millisecond)
		require.Eventually(t, func() bool { return ready.Load() == 1 }, 5*time.Second, time.Millisecond)
		require.Equal(t, 1, calls.get(9))
	})

	t.Run("failed constructs free the key", func(t *testing.T) {
		t.Parallel()

		var fail atomic.Bool
		fail.Store(true)
		c := newCache(t, cache.ConstructorFunc[int, *resource](func(ctx context.Context, key int) (*resource, error) {
			if fail.Load() {
				return nil, errors.New("invalid footprint")
			}
			return &resource{key: key}, nil
		}), cache.DefaultOptions[int, *resource](10))

		called := atomic.Bool{}
		c.Retrieve(5, func(r *resource) { called.Store(true) })
		require.Eventually(t, func() bool { return c.Pending() == 0 }, 5*time.Second, time.Millisecond)
		require.False(t, c.Contains(5))
		require.False(t, called.Load())

		fail.Store(false)
		fill(t, c, 5)
		require.True(t, c.Contains(5))
	})
}

func TestGarbageCollect(t *testing.T) {
	t.Parallel()

	t.Run("hysteresis keeps used entries", func(t *testing.T) {
		t.Parallel()

		opts := cache.Options[int, *resource]{MaxItems: 10, StartGCThreshold: 0.9, EndGCThreshold: 0.5}
		c := newCache(t, instantConstructor(&constructorCalls{}), opts)
		fill(t, c, 0, 1, 2, 3, 4, 5, 6, 7, 8)

		used := []int{2, 4, 6}
		for _, key := range used {
			c.MarkUsed(key)
		}

		c.NextFrame()

		require.Equal(t, 5, c.Size())
		for _, key := range used {
			require.True(t, c.Contains(key), "used key %d was evicted", key)
		}

		stats := c.Stats()
		require.Equal(t, uint64(1), stats.GCs)
		require.Equal(t, uint64(4), stats.Evictions)
	})

	t.Run("below the start threshold nothing is evicted", func(t *testing.T) {
		t.Parallel()

		opts := cache.Options[int, *resource]{MaxItems: 10, StartGCThreshold: 0.9, EndGCThreshold: 0.5}
		c := newCache(t, instantConstructor(&constructorCalls{}), opts)
		fill(t, c, 0, 1, 2, 3, 4, 5, 6, 7)

		require.Zero(t, c.GarbageCollect(false))
		require.Equal(t, 8, c.Size())
		require.Zero(t, c.Stats().GCs)
	})

	t.Run("all entries used", func(t *testing.T) {
		t.Parallel()

		opts := cache.Options[int, *resource]{MaxItems: 4, StartGCThreshold: 0.5, EndGCThreshold: 0.25}
		c := newCache(t, instantConstructor(&constructorCalls{}), opts)
		fill(t, c, 0, 1, 2, 3)
		for key := range 4 {
			c.MarkUsed(key)
		}

		require.Zero(t, c.GarbageCollect(false))
		require.Equal(t, 4, c.Size())
	})

	t.Run("least recently used first", func(t *testing.T) {
		t.Parallel()

		opts := cache.Options[int, *resource]{MaxItems: 4, StartGCThreshold: 1, EndGCThreshold: 0.5}
		c := newCache(t, instantConstructor(&constructorCalls{}), opts)

		fill(t, c, 1, 2)
		c.MarkUsed(1)
		c.MarkUsed(2)
		c.NextFrame()

		fill(t, c, 3, 4)
		c.NextFrame()

		require.Equal(t, 2, c.Size())
		require.True(t, c.Contains(3))
		require.True(t, c.Contains(4))
	})

	t.Run("forced collection on the next frame", func(t *testing.T) {
		t.Parallel()

		var evicted []int
		opts := cache.DefaultOptions[int, *resource](100)
		opts.OnEvict = func(key int, value *resource) {
			evicted = append(evicted, key)
		}
		c := newCache(t, instantConstructor(&constructorCalls{}), opts)
		fill(t, c, 1, 2, 3)

		first, ok := c.Get(1)
		require.True(t, ok)

		c.MarkUsed(2)
		c.GCNextFrame()
		c.NextFrame()

		require.Equal(t, 1, c.Size())
		require.True(t, c.Contains(2))
		require.ElementsMatch(t, []int{1, 3}, evicted)
		require.True(t, first.disposed.Load())

		// The request is consumed by a single frame
		fill(t, c, 4)
		c.NextFrame()
		require.Equal(t, 2, c.Size())
	})
}

func TestEvictAndPurge(t *testing.T) {
	t.Parallel()

	t.Run("evict", func(t *testing.T) {
		t.Parallel()

		c := newCache(t, instantConstructor(&constructorCalls{}), cache.DefaultOptions[int, *resource](10))
		fill(t, c, 1, 2)
		c.MarkUsed(1)

		value, ok := c.Get(1)
		require.True(t, ok)

		require.True(t, c.Evict(1), "evict ignores the used set")
		require.False(t, c.Evict(1))
		require.True(t, value.disposed.Load())
		require.Equal(t, 1, c.Size())
		require.Equal(t, uint64(1), c.Stats().Evictions)
	})

	t.Run("purge resets stats", func(t *testing.T) {
		t.Parallel()

		c := newCache(t, instantConstructor(&constructorCalls{}), cache.DefaultOptions[int, *resource](10))
		fill(t, c, 1, 2, 3)
		c.Retrieve(1, nil)

		values := make([]*resource, 0, 3)
		for key := 1; key <= 3; key++ {
			value, ok := c.Get(key)
			require.True(t, ok)
			values = append(values, value)
		}

		require.Equal(t, 3, c.Purge())
		require.Zero(t, c.Size())
		for _, value := range values {
			require.True(t, value.disposed.Load())
		}

		stats := c.Stats()
		require.Zero(t, stats.Hits)
		require.Zero(t, stats.Misses)
		require.Zero(t, stats.Evictions)
		require.Zero(t, stats.MeanConstructLatency)
	})

	t.Run("closed caches ignore retrieves", func(t *testing.T) {
		t.Parallel()

		calls := &constructorCalls{}
		c, err := cache.New("test", instantConstructor(calls), cache.DefaultOptions[int, *resource](10), newTestLogger())
		require.NoError(t, err)
		fill(t, c, 1)

		c.Close()
		c.Close()

		require.Zero(t, c.Size())
		c.Retrieve(2, nil)
		require.Zero(t, c.Pending())
		require.Zero(t, calls.get(2))
	})
}

type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (s *steppingClock) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(s.step)
	return s.now
}

func TestStats(t *testing.T) {
	t.Parallel()

	clock := &steppingClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), step: 20 * time.Millisecond}
	opts := cache.DefaultOptions[int, *resource](4096)
	opts.Now = clock.Now
	opts.Workers = 1

	c, err := cache.New("tiles", instantConstructor(&constructorCalls{}), opts, newTestLogger())
	require.NoError(t, err)
	defer c.Close()

	fill(t, c, 1, 2, 3)
	c.Retrieve(1, nil)

	stats := c.Stats()
	require.Equal(t, "tiles", stats.Name)
	require.Equal(t, 3, stats.Size)
	require.Equal(t, 4096, stats.MaxItems)
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(3), stats.Misses)
	require.Equal(t, 20*time.Millisecond, stats.MeanConstructLatency)
	require.InDelta(t, 0.25, stats.HitRate(), 1e-9)

	require.Equal(t, "tiles: 3/4,096 items, 0 placeholders, 0 pending (0 queued), 0 GCs, 0 evictions, 25% hits, 20ms mean construct", stats.String())
}
