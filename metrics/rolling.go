package metrics

import (
	"sort"
	"sync"
	"time"
)

// rollingCounter is a monotonic counter that also answers "how much in the
// last N minutes" from sixty one-minute buckets. Each counter carries its own
// mutex so metric families stripe independently.
type rollingCounter struct {
	mu      sync.Mutex
	total   float64
	buckets [60]bucket
}

type bucket struct {
	minute int64
	n      float64
}

func (r *rollingCounter) Inc(n float64) {
	r.incAt(time.Now(), n)
}

func (r *rollingCounter) incAt(now time.Time, n float64) {
	minute := now.Unix() / 60
	idx := minute % 60

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buckets[idx].minute != minute {
		r.buckets[idx] = bucket{minute: minute}
	}
	r.buckets[idx].n += n
	r.total += n
}

// Total returns the all-time count.
func (r *rollingCounter) Total() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// SumLast returns the count accumulated over the last window. The window is
// capped at one hour (the bucket horizon).
func (r *rollingCounter) SumLast(window time.Duration) float64 {
	return r.sumLastAt(time.Now(), window)
}

func (r *rollingCounter) sumLastAt(now time.Time, window time.Duration) float64 {
	minutes := int64(window / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	if minutes > 60 {
		minutes = 60
	}
	current := now.Unix() / 60

	r.mu.Lock()
	defer r.mu.Unlock()

	var sum float64
	for _, b := range r.buckets {
		if b.minute > current-minutes {
			sum += b.n
		}
	}
	return sum
}

// latencyRing keeps the most recent observations for percentile computation.
// Percentiles are computed at read time from a snapshot.
type latencyRing struct {
	mu   sync.Mutex
	buf  []float64
	next int
	full bool
}

func newLatencyRing(capacity int) *latencyRing {
	return &latencyRing{buf: make([]float64, capacity)}
}

func (l *latencyRing) Observe(seconds float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf[l.next] = seconds
	l.next++
	if l.next == len(l.buf) {
		l.next = 0
		l.full = true
	}
}

// Percentiles returns the requested percentiles (0–100) over the retained
// observations. Returns zeros when nothing was observed yet.
func (l *latencyRing) Percentiles(ps ...float64) []float64 {
	l.mu.Lock()
	n := l.next
	if l.full {
		n = len(l.buf)
	}
	snapshot := make([]float64, n)
	copy(snapshot, l.buf[:n])
	l.mu.Unlock()

	out := make([]float64, len(ps))
	if n == 0 {
		return out
	}

	sort.Float64s(snapshot)
	for i, p := range ps {
		idx := int(p / 100 * float64(n-1))
		out[i] = snapshot[idx]
	}
	return out
}

// ewma is an exponentially-weighted moving average with a fixed smoothing
// factor, used for the dashboard's typical-duration figures.
type ewma struct {
	mu    sync.Mutex
	alpha float64
	value float64
	set   bool
}

func newEWMA(alpha float64) *ewma {
	return &ewma{alpha: alpha}
}

func (e *ewma) Observe(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.set {
		e.value = v
		e.set = true
		return
	}
	e.value = e.alpha*v + (1-e.alpha)*e.value
}

func (e *ewma) Value() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}
