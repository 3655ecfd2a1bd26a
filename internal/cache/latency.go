package cache

import "time"

const latencyWindow = 50

// windowedMean is the mean of the last latencyWindow samples
type windowedMean struct {
	samples [latencyWindow]time.Duration
	next    int
	count   int
	sum     time.Duration
}

func (w *windowedMean) add(sample time.Duration) {
	if w.count == latencyWindow {
		w.sum -= w.samples[w.next]
	} else {
		w.count++
	}
	w.samples[w.next] = sample
	w.sum += sample
	w.next = (w.next + 1) % latencyWindow
}

func (w *windowedMean) mean() time.Duration {
	if w.count == 0 {
		return 0
	}
	return w.sum / time.Duration(w.count)
}
