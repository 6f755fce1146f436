package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/gcbaptista/go-doc-stats/model"
)

// DefaultSampleWindow bounds how many processing times are kept for the summary.
const DefaultSampleWindow = 1000

// ProcessingTracker records how long each uploaded document took to process.
// Distribution figures are computed over the most recent window of samples;
// FilesProcessed counts every recorded document.
type ProcessingTracker struct {
	mu             sync.RWMutex
	window         int
	filesProcessed int64
	samples        []float64
	latest         time.Time
	now            func() time.Time
}

// NewProcessingTracker creates a tracker keeping at most window samples.
// A non-positive window falls back to DefaultSampleWindow.
func NewProcessingTracker(window int) *ProcessingTracker {
	if window <= 0 {
		window = DefaultSampleWindow
	}
	return &ProcessingTracker{
		window:  window,
		samples: make([]float64, 0, min(window, 64)),
		now:     time.Now,
	}
}

// Record adds one processed document.
func (t *ProcessingTracker) Record(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.filesProcessed++
	t.samples = append(t.samples, d.Seconds())
	if len(t.samples) > t.window {
		t.samples = t.samples[len(t.samples)-t.window:]
	}
	t.latest = t.now()
}

// Snapshot summarizes the recorded samples, rounded to milliseconds.
func (t *ProcessingTracker) Snapshot() model.ProcessingMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.samples) == 0 {
		return model.ProcessingMetrics{FilesProcessed: t.filesProcessed}
	}

	sorted := make([]float64, len(t.samples))
	copy(sorted, t.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}
	n := float64(len(sorted))
	avg := sum / n

	// Sample standard deviation; a single sample has zero spread.
	var stdDev float64
	if len(sorted) > 1 {
		var sq float64
		for _, s := range sorted {
			sq += (s - avg) * (s - avg)
		}
		stdDev = math.Sqrt(sq / (n - 1))
	}

	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}

	latest := t.latest
	return model.ProcessingMetrics{
		FilesProcessed:        t.filesProcessed,
		MinTimeProcessed:      rounded(sorted[0]),
		AvgTimeProcessed:      rounded(avg),
		MaxTimeProcessed:      rounded(sorted[len(sorted)-1]),
		StdDevProcessingTime:  rounded(stdDev),
		MedianProcessingTime:  rounded(median),
		LatestFileProcessedAt: &latest,
	}
}

func rounded(v float64) *float64 {
	r := math.Round(v*1000) / 1000
	return &r
}
