package ratelimiting

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MaxOperationTime is an upper bound on how long a limited operation runs
type MaxOperationTime time.Duration

// WindowLimiter allows at most limit operations to finish within any window.
//
// Completion times of the last limit operations are kept sorted. A new operation waits until the
// oldest of them has left the window.
type WindowLimiter struct {
	limit     int
	window    time.Duration
	nowFunc   func() time.Time
	afterFunc func(time.Duration) <-chan time.Time

	availableSlots   chan struct{}
	finishedRequests []time.Time
	mutex            sync.Mutex
}

func NewWindowLimiter(
	limit int,
	window time.Duration,
	nowFunc func() time.Time,
	afterFunc func(time.Duration) <-chan time.Time,
) *WindowLimiter {
	availableSlots := make(chan struct{}, limit)
	for range limit {
		availableSlots <- struct{}{}
	}

	// Nothing has finished within the window, so the first operations run immediately
	finishedRequests := make([]time.Time, limit)
	veryOldTime := nowFunc().Add(-window)
	for i := range finishedRequests {
		finishedRequests[i] = veryOldTime
	}

	return &WindowLimiter{
		limit:     limit,
		window:    window,
		nowFunc:   nowFunc,
		afterFunc: afterFunc,

		availableSlots:   availableSlots,
		finishedRequests: finishedRequests,
	}
}

func insertSortedOrder(arr []time.Time, t time.Time) []time.Time {
	i, _ := slices.BinarySearchFunc(arr, t, func(a, b time.Time) int {
		return a.Compare(b)
	})
	return slices.Insert(arr, i, t)
}

// Limit runs operation once the window allows it.
//
// Returns context.DeadlineExceeded without waiting when the wait plus maxOperationTime would overrun the
// deadline of ctx, and ctx.Err() if ctx is done while waiting.
func (l *WindowLimiter) Limit(ctx context.Context, maxOperationTime MaxOperationTime, operation func()) error {
	select {
	case <-l.availableSlots:
		defer func() {
			l.availableSlots <- struct{}{}
		}()
	case <-ctx.Done():
		return ctx.Err()
	}

	oldestRequest, err := l.grabOldestFinishedRequest(ctx, time.Duration(maxOperationTime))
	if err != nil {
		return err
	}
	// Put back what we grabbed unless the operation runs
	requestToInsert := oldestRequest
	defer func() {
		l.insertFinishedRequest(requestToInsert)
	}()

	if wait := l.computeWait(oldestRequest); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.afterFunc(wait):
		}
	}

	operation()

	requestToInsert = l.nowFunc()
	return nil
}

func (l *WindowLimiter) computeWait(oldRequest time.Time) time.Duration {
	return l.window - l.nowFunc().Sub(oldRequest)
}

func (l *WindowLimiter) insertFinishedRequest(finishedRequest time.Time) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.finishedRequests = insertSortedOrder(l.finishedRequests, finishedRequest)
}

func (l *WindowLimiter) grabOldestFinishedRequest(ctx context.Context, maxOperationTime time.Duration) (time.Time, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	oldestRequest := l.finishedRequests[0]

	if deadline, ok := ctx.Deadline(); ok {
		wait := max(l.computeWait(oldestRequest), 0)
		if wait+maxOperationTime > deadline.Sub(l.nowFunc()) {
			return time.Time{}, context.DeadlineExceeded
		}
	}

	l.finishedRequests = l.finishedRequests[1:]
	return oldestRequest, nil
}
