package detector

import (
	"sync/atomic"
	"time"
)

// counters tracks service activity.
type counters struct {
	detections     atomic.Int64
	hits           atomic.Int64
	misses         atomic.Int64
	sets           atomic.Int64
	swaps          atomic.Int64
	reloadFailures atomic.Int64
	startTime      time.Time
}

func newCounters() *counters {
	return &counters{startTime: time.Now()}
}

// Stats is a snapshot of service activity.
type Stats struct {
	Detections     int64         `json:"detections"`
	Hits           int64         `json:"hits"`
	Misses         int64         `json:"misses"`
	Sets           int64         `json:"sets"`
	HitRate        float64       `json:"hit_rate"`
	Swaps          int64         `json:"swaps"`
	ReloadFailures int64         `json:"reload_failures"`
	Generation     uint64        `json:"generation"`
	Uptime         time.Duration `json:"uptime"`
}

func (c *counters) snapshot(generation uint64) Stats {
	s := Stats{
		Detections:     c.detections.Load(),
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		Sets:           c.sets.Load(),
		Swaps:          c.swaps.Load(),
		ReloadFailures: c.reloadFailures.Load(),
		Generation:     generation,
		Uptime:         time.Since(c.startTime),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
