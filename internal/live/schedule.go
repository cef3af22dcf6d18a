package live

import (
	"sync"
	"time"
)

// PlaybackSchedule is the logical clock for gapless playback. Each frame is
// assigned a start time of max(cursor, now); the cursor then advances by the
// frame duration, so frames play back-to-back in arrival order with no
// overlap even under jittery delivery.
type PlaybackSchedule struct {
	mu     sync.Mutex
	now    func() time.Time
	cursor time.Time
}

// NewPlaybackSchedule builds a schedule using the given clock (time.Now in
// production).
func NewPlaybackSchedule(now func() time.Time) *PlaybackSchedule {
	if now == nil {
		now = time.Now
	}
	return &PlaybackSchedule{now: now}
}

// Next reserves a playback slot of duration d and returns its start time.
// The returned start times are non-decreasing and never overlap previously
// reserved slots.
func (p *PlaybackSchedule) Next(d time.Duration) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	start := p.cursor
	if n := p.now(); n.After(start) {
		start = n
	}
	p.cursor = start.Add(d)
	return start
}

// Reset clears the cursor, so the next frame starts immediately. Used on
// teardown and on model interruption.
func (p *PlaybackSchedule) Reset() {
	p.mu.Lock()
	p.cursor = time.Time{}
	p.mu.Unlock()
}
