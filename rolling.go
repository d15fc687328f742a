package pallium

import (
	"math"
	"time"
)

// rollingWindow is a fixed-capacity ring of anomaly scores with running sum
// and sum of squares, giving O(1) push/evict and O(1) mean and variance.
type rollingWindow struct {
	values []float64
	head   int
	count  int
	sum    float64
	sumSq  float64
}

func newRollingWindow(capacity int) *rollingWindow {
	return &rollingWindow{values: make([]float64, capacity)}
}

// Push appends a score, evicting the oldest once the window is full.
func (w *rollingWindow) Push(v float64) {
	if w.count == len(w.values) {
		old := w.values[w.head]
		w.sum -= old
		w.sumSq -= old * old
	} else {
		w.count++
	}
	w.values[w.head] = v
	w.sum += v
	w.sumSq += v * v
	w.head = (w.head + 1) % len(w.values)
}

func (w *rollingWindow) Len() int {
	return w.count
}

func (w *rollingWindow) Full() bool {
	return w.count == len(w.values)
}

func (w *rollingWindow) Mean() float64 {
	if w.count == 0 {
		return 0
	}
	return w.sum / float64(w.count)
}

// Variance returns the sample variance of the window contents.
func (w *rollingWindow) Variance() float64 {
	if w.count < 2 {
		return 0
	}
	n := float64(w.count)
	v := (w.sumSq - w.sum*w.sum/n) / (n - 1)
	if v < 0 {
		// Guard against negative values from floating point cancellation.
		return 0
	}
	return v
}

func (w *rollingWindow) StdDev() float64 {
	return math.Sqrt(w.Variance())
}

// CountAtOrAbove returns how many window entries are >= threshold.
func (w *rollingWindow) CountAtOrAbove(threshold float64) int {
	n := 0
	for i := 0; i < w.count; i++ {
		if w.values[(w.head-w.count+i+len(w.values))%len(w.values)] >= threshold {
			n++
		}
	}
	return n
}

// Values returns the window contents, oldest first.
func (w *rollingWindow) Values() []float64 {
	out := make([]float64, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.values[(w.head-w.count+i+len(w.values))%len(w.values)]
	}
	return out
}

func (w *rollingWindow) Reset() {
	w.head = 0
	w.count = 0
	w.sum = 0
	w.sumSq = 0
}

// throughputMeter tracks processed vectors per second over a sliding
// wall-clock window using one counter bucket per second.
type throughputMeter struct {
	windowSecs int64
	buckets    []int64
	seconds    []int64
	now        func() time.Time
}

func newThroughputMeter(window time.Duration, now func() time.Time) *throughputMeter {
	secs := int64(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	if now == nil {
		now = time.Now
	}
	return &throughputMeter{
		windowSecs: secs,
		buckets:    make([]int64, secs+1),
		seconds:    make([]int64, secs+1),
		now:        now,
	}
}

// Mark records one processed vector.
func (m *throughputMeter) Mark() {
	sec := m.now().Unix()
	idx := sec % int64(len(m.buckets))
	if m.seconds[idx] != sec {
		m.seconds[idx] = sec
		m.buckets[idx] = 0
	}
	m.buckets[idx]++
}

// Rate returns vectors per second over the sliding window.
func (m *throughputMeter) Rate() float64 {
	sec := m.now().Unix()
	var total int64
	for i, s := range m.seconds {
		if s > sec-m.windowSecs && s <= sec {
			total += m.buckets[i]
		}
	}
	return float64(total) / float64(m.windowSecs)
}

func (m *throughputMeter) Reset() {
	for i := range m.buckets {
		m.buckets[i] = 0
		m.seconds[i] = 0
	}
}
