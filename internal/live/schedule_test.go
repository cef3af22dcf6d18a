package live

import (
	"testing"
	"time"
)

func TestPlaybackSchedule_BackToBackNoJitter(t *testing.T) {
	base := time.Unix(1000, 0)
	clock := base
	sched := NewPlaybackSchedule(func() time.Time { return clock })

	durations := []time.Duration{100 * time.Millisecond, 250 * time.Millisecond, 40 * time.Millisecond}
	starts := make([]time.Time, len(durations))
	for i, d := range durations {
		starts[i] = sched.Next(d)
	}
	if !starts[0].Equal(base) {
		t.Fatalf("first frame must start immediately, got %v", starts[0])
	}
	for i := 1; i < len(starts); i++ {
		want := starts[i-1].Add(durations[i-1])
		if !starts[i].Equal(want) {
			t.Fatalf("frame %d: expected gapless start %v, got %v", i, want, starts[i])
		}
	}
}

func TestPlaybackSchedule_JitterNeverOverlaps(t *testing.T) {
	base := time.Unix(2000, 0)
	clock := base
	sched := NewPlaybackSchedule(func() time.Time { return clock })

	durations := []time.Duration{30 * time.Millisecond, 30 * time.Millisecond, 30 * time.Millisecond, 30 * time.Millisecond}
	// arrival jitter: the third frame arrives late, after the queue drained
	arrivals := []time.Duration{0, 5 * time.Millisecond, 200 * time.Millisecond, 202 * time.Millisecond}

	var prevStart time.Time
	var prevDur time.Duration
	for i, d := range durations {
		clock = base.Add(arrivals[i])
		start := sched.Next(d)
		if i > 0 {
			if start.Before(prevStart.Add(prevDur)) {
				t.Fatalf("frame %d overlaps previous: start %v < %v", i, start, prevStart.Add(prevDur))
			}
		}
		if start.Before(clock) {
			t.Fatalf("frame %d scheduled in the past: %v < %v", i, start, clock)
		}
		prevStart, prevDur = start, d
	}
}

func TestPlaybackSchedule_Reset(t *testing.T) {
	clock := time.Unix(3000, 0)
	sched := NewPlaybackSchedule(func() time.Time { return clock })
	_ = sched.Next(10 * time.Second)
	sched.Reset()
	start := sched.Next(time.Millisecond)
	if !start.Equal(clock) {
		t.Fatalf("after reset the next frame must start now, got %v", start)
	}
}
