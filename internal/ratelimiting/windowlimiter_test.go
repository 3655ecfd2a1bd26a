package ratelimiting_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Amund211/atlas/internal/ratelimiting"
	"github.com/stretchr/testify/require"
)

type mockedTime struct {
	mu          sync.Mutex
	currentTime time.Time
	timers      []mockedTimer
}

type mockedTimer struct {
	at time.Time
	ch chan time.Time
}

func newMockedTime(start time.Time) *mockedTime {
	return &mockedTime{currentTime: start}
}

func (m *mockedTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

func (m *mockedTime) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan time.Time, 1)
	m.timers = append(m.timers, mockedTimer{at: m.currentTime.Add(d), ch: ch})
	return ch
}

func (m *mockedTime) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *mockedTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)

	remaining := m.timers[:0]
	for _, timer := range m.timers {
		if timer.at.After(m.currentTime) {
			remaining = append(remaining, timer)
			continue
		}
		timer.ch <- m.currentTime
	}
	m.timers = remaining
}

func TestWindowLimiter(t *testing.T) {
	t.Parallel()

	t.Run("limits operations within the window", func(t *testing.T) {
		t.Parallel()

		clock := newMockedTime(time.Now())
		limiter := ratelimiting.NewWindowLimiter(2, 5*time.Second, clock.Now, clock.After)

		ctx := context.Background()
		var count atomic.Int64
		operation := func() { count.Add(1) }

		require.NoError(t, limiter.Limit(ctx, ratelimiting.MaxOperationTime(time.Second), operation))
		require.NoError(t, limiter.Limit(ctx, ratelimiting.MaxOperationTime(time.Second), operation))
		require.Equal(t, int64(2), count.Load())

		done := make(chan error, 1)
		go func() {
			done <- limiter.Limit(ctx, ratelimiting.MaxOperationTime(time.Second), operation)
		}()

		require.Eventually(t, func() bool { return clock.Waiting() == 1 }, time.Second, time.Millisecond)
		require.Equal(t, int64(2), count.Load())

		clock.Advance(4 * time.Second)
		require.Equal(t, 1, clock.Waiting(), "window has not slid yet")

		clock.Advance(time.Second)
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("operation did not run after the window slid")
		}
		require.Equal(t, int64(3), count.Load())
	})

	t.Run("refuses to start when the deadline is too close", func(t *testing.T) {
		t.Parallel()

		now := time.Now()
		clock := newMockedTime(now)
		limiter := ratelimiting.NewWindowLimiter(1, 5*time.Second, clock.Now, clock.After)

		require.NoError(t, limiter.Limit(context.Background(), ratelimiting.MaxOperationTime(time.Second), func() {}))

		ctx, cancel := context.WithDeadline(context.Background(), now.Add(time.Minute))
		defer cancel()

		ran := false
		err := limiter.Limit(ctx, ratelimiting.MaxOperationTime(2*time.Minute), func() { ran = true })
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.False(t, ran)
		require.Zero(t, clock.Waiting())

		// The rejected call must not consume the slot
		clock.Advance(5 * time.Second)
		require.NoError(t, limiter.Limit(context.Background(), ratelimiting.MaxOperationTime(time.Second), func() { ran = true }))
		require.True(t, ran)
	})

	t.Run("cancellation while waiting", func(t *testing.T) {
		t.Parallel()

		clock := newMockedTime(time.Now())
		limiter := ratelimiting.NewWindowLimiter(1, 5*time.Second, clock.Now, clock.After)

		require.NoError(t, limiter.Limit(context.Background(), ratelimiting.MaxOperationTime(time.Second), func() {}))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- limiter.Limit(ctx, ratelimiting.MaxOperationTime(time.Second), func() {
				t.Error("operation should not run")
			})
		}()

		require.Eventually(t, func() bool { return clock.Waiting() == 1 }, time.Second, time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("cancelled operation did not return")
		}
	})
}
