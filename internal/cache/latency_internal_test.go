package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindowedMean(t *testing.T) {
	t.Parallel()

	w := windowedMean{}
	require.Zero(t, w.mean())

	w.add(10 * time.Millisecond)
	w.add(30 * time.Millisecond)
	require.Equal(t, 20*time.Millisecond, w.mean())

	for range latencyWindow {
		w.add(time.Second)
	}
	require.Equal(t, time.Second, w.mean(), "old samples leave the window")

	w.add(time.Second + latencyWindow*time.Millisecond)
	require.Equal(t, time.Second+time.Millisecond, w.mean())
}
