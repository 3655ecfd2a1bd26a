package cache

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

type Stats struct {
	Name      string `json:"name"`
	Size      int    `json:"size"`
	MaxItems  int    `json:"maxItems"`
	GCs       uint64 `json:"gcs"`
	Evictions uint64 `json:"evictions"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`

	// Keys currently served by a placeholder
	Placeholders int `json:"placeholders"`

	// Keys with a construct in flight, and how many of those are still waiting for a worker
	Pending int `json:"pending"`
	Backlog int `json:"backlog"`

	MeanConstructLatency time.Duration `json:"meanConstructLatency"`
}

func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s Stats) String() string {
	return fmt.Sprintf(
		"%s: %s/%s items, %s placeholders, %s pending (%s queued), %s GCs, %s evictions, %s%% hits, %s mean construct",
		s.Name,
		humanize.Comma(int64(s.Size)),
		humanize.Comma(int64(s.MaxItems)),
		humanize.Comma(int64(s.Placeholders)),
		humanize.Comma(int64(s.Pending)),
		humanize.Comma(int64(s.Backlog)),
		humanize.Comma(int64(s.GCs)),
		humanize.Comma(int64(s.Evictions)),
		humanize.FtoaWithDigits(100*s.HitRate(), 1),
		s.MeanConstructLatency.Round(time.Millisecond),
	)
}
