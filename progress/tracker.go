// Package progress derives a moving-average throughput estimate and an ETA
// from completion samples reported by the engine. The tracker keeps a bounded
// sliding window of samples so the rate reflects recent behavior rather than
// the whole run.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/deepresearch/core"
)

// Estimate is the derived throughput view. When too little has happened to
// compute a rate, Known is false and Rate/ETA are meaningless.
type Estimate struct {
	// Rate is completed items per second between the oldest and newest
	// retained samples.
	Rate float64
	// ETA is the projected time to finish the remaining items.
	ETA time.Duration
	// Known reports whether Rate and ETA carry information.
	Known bool
}

type sample struct {
	at        time.Time
	completed int
}

// Options configures a Tracker.
type Options struct {
	// WindowSize is the maximum number of retained samples.
	WindowSize int
	// Now injects a clock for tests.
	Now func() time.Time
}

// Tracker maintains the sliding sample window. Safe for concurrent use by
// multiple in-flight workers.
type Tracker struct {
	mu      sync.Mutex
	opts    Options
	samples []sample
	total   int
}

// NewTracker creates a tracker. Construction fails with
// core.ErrInvalidConfiguration when the window cannot hold the two samples a
// rate computation needs.
func NewTracker(optFns ...func(o *Options)) (*Tracker, error) {
	opts := Options{
		WindowSize: 32,
		Now:        time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.WindowSize < 2 {
		return nil, fmt.Errorf("%w: window size must be >= 2, got %d", core.ErrInvalidConfiguration, opts.WindowSize)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Tracker{opts: opts}, nil
}

// SetTotal records the number of items the run is expected to complete.
func (t *Tracker) SetTotal(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = total
}

// Record adds a completion sample. Redundant updates (no change in the
// completed count) are suppressed so bursts of identical snapshots do not
// flush useful history out of the window.
func (t *Tracker) Record(completed int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.samples); n > 0 && t.samples[n-1].completed == completed {
		return
	}

	t.samples = append(t.samples, sample{at: t.opts.Now(), completed: completed})
	if len(t.samples) > t.opts.WindowSize {
		t.samples = t.samples[len(t.samples)-t.opts.WindowSize:]
	}
}

// Estimate derives the current rate and ETA from the retained window. The
// rate is Δcompleted/Δtime between the oldest and newest samples; the ETA is
// remaining/rate. It never divides by zero and never reports a negative ETA.
func (t *Tracker) Estimate() Estimate {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.samples)
	if n < 2 {
		return Estimate{}
	}

	oldest, newest := t.samples[0], t.samples[n-1]
	elapsed := newest.at.Sub(oldest.at).Seconds()
	delta := newest.completed - oldest.completed
	if elapsed <= 0 || delta <= 0 {
		return Estimate{}
	}

	rate := float64(delta) / elapsed
	remaining := t.total - newest.completed
	if remaining < 0 {
		remaining = 0
	}

	return Estimate{
		Rate:  rate,
		ETA:   time.Duration(float64(remaining) / rate * float64(time.Second)),
		Known: true,
	}
}
