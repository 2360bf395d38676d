package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultWindow is the number of recent frames kept for rate statistics
const DefaultWindow = 300

// Recorder collects frame arrivals from a streaming thread.
//
// Totals are atomic; the timestamp window is a ring buffer guarded by a
// mutex, so a long session never grows memory.
type Recorder struct {
	frames atomic.Uint64
	bytes  atomic.Uint64

	mu    sync.Mutex
	times []time.Time
	next  int
	full  bool
	now   func() time.Time
}

// NewRecorder creates a recorder keeping the last window frame times
func NewRecorder(window int) *Recorder {
	if window < 2 {
		window = DefaultWindow
	}
	return &Recorder{
		times: make([]time.Time, window),
		now:   time.Now,
	}
}

// Observe records one frame of the given size
func (r *Recorder) Observe(size int) {
	r.frames.Add(1)
	if size > 0 {
		r.bytes.Add(uint64(size))
	}

	t := r.now()

	r.mu.Lock()
	r.times[r.next] = t
	r.next++
	if r.next == len(r.times) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// Frames returns the total number of observed frames
func (r *Recorder) Frames() uint64 {
	return r.frames.Load()
}

// Summary computes statistics over the current window
func (r *Recorder) Summary() Summary {
	times := r.snapshot()

	// n frames spanning n-1 intervals cover n intervals' worth of time.
	var duration time.Duration
	if n := len(times); n > 1 {
		span := times[n-1].Sub(times[0])
		duration = span * time.Duration(n) / time.Duration(n-1)
	}

	s := Calculate(times, duration)
	s.Frames = r.frames.Load()
	s.Bytes = r.bytes.Load()
	return s
}

// snapshot returns the window in arrival order
func (r *Recorder) snapshot() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]time.Time, r.next)
		copy(out, r.times[:r.next])
		return out
	}

	out := make([]time.Time, 0, len(r.times))
	out = append(out, r.times[r.next:]...)
	out = append(out, r.times[:r.next]...)
	return out
}
