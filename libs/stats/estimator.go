// Package stats implements the buffer's online statistical estimator: a
// bounded sliding window of samples with O(1) amortized mean/stddev and an
// on-demand empirical quantile, used to turn a source's observed period and
// latency into release-policy deadlines.
package stats

import (
	"math"
	"sort"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"

	"jax-fusionbuffer/libs/fusiontime"
)

// DefaultHistorySize is the default bound on the sliding window (component B,
// §4.2's N=1024).
const DefaultHistorySize = 1024

// DefaultWarmupThreshold is the default sample count before an Estimator
// reports ready.
const DefaultWarmupThreshold = 32

// histogramMaxValue bounds the diagnostic HdrHistogram to one hour of
// microseconds; any sample beyond this (or below zero) is still folded into
// the exact ring-buffer window (the authoritative path) but is not recorded
// in the histogram at all.
const histogramMaxValue = int64(3_600_000_000)

const histogramSigFigures = 3

// Estimator is the per-stream online estimator of component B: a bounded
// ring buffer of recent Duration samples plus running sum/sum-of-squares for
// O(1) mean and stddev, and an empirical "method 7" quantile computed over
// the current window on demand.
//
// An Estimator is not safe for concurrent use; it is owned exclusively by
// the SourceState that holds it (§5).
type Estimator struct {
	window       []fusiontime.Duration
	head         int // index of the oldest sample
	count        int // number of valid samples in window (≤ len(window))
	historySize  int
	warmupThresh int
	sum          float64 // running sum, microseconds
	sumSq        float64 // running sum of squares, microseconds²
	longRun      *hdrhistogram.Histogram
}

// NewEstimator constructs an Estimator with the given bounded history size
// and warmup threshold. A historySize or warmupThreshold of 0 selects the
// package defaults.
func NewEstimator(historySize, warmupThreshold int) *Estimator {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	if warmupThreshold <= 0 {
		warmupThreshold = DefaultWarmupThreshold
	}
	return &Estimator{
		window:       make([]fusiontime.Duration, historySize),
		historySize:  historySize,
		warmupThresh: warmupThreshold,
		longRun:      hdrhistogram.New(0, histogramMaxValue, histogramSigFigures),
	}
}

// Observe appends sample to the window, evicting the oldest sample once the
// window is full. O(1) amortized.
func (e *Estimator) Observe(sample fusiontime.Duration) {
	us := float64(sample.Micros())

	if e.count < e.historySize {
		idx := (e.head + e.count) % e.historySize
		e.window[idx] = sample
		e.count++
	} else {
		evicted := e.window[e.head]
		e.sum -= float64(evicted.Micros())
		e.sumSq -= float64(evicted.Micros()) * float64(evicted.Micros())
		e.window[e.head] = sample
		e.head = (e.head + 1) % e.historySize
	}
	e.sum += us
	e.sumSq += us * us

	// Diagnostic only: never consulted by the release decision path.
	_ = e.longRun.RecordValue(sample.Micros())
}

// Count returns the number of samples currently held in the window.
func (e *Estimator) Count() int { return e.count }

// Ready reports whether enough samples have been observed for estimates to
// be trusted by the release policy.
func (e *Estimator) Ready() bool { return e.count >= e.warmupThresh }

// Mean returns the arithmetic mean of the current window, O(1). Zero if the
// window is empty.
func (e *Estimator) Mean() fusiontime.Duration {
	if e.count == 0 {
		return 0
	}
	return fusiontime.FromMicros(int64(e.sum / float64(e.count)))
}

// Stddev returns the population standard deviation of the current window,
// O(1). Zero if the window has fewer than 2 samples.
func (e *Estimator) Stddev() fusiontime.Duration {
	if e.count < 2 {
		return 0
	}
	n := float64(e.count)
	mean := e.sum / n
	variance := e.sumSq/n - mean*mean
	if variance < 0 {
		// Floating-point cancellation on a near-constant window.
		variance = 0
	}
	return fusiontime.FromMicros(int64(math.Sqrt(variance)))
}

// Quantile returns the empirical q-quantile (0 ≤ q ≤ 1) of the current
// window using linear interpolation between order statistics ("method 7",
// matching R's default and NumPy's "linear" interpolation). Returns zero if
// the window is empty.
func (e *Estimator) Quantile(q float64) fusiontime.Duration {
	if e.count == 0 {
		return 0
	}
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}

	sorted := e.sortedSamples()
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}

	// Method 7: h = (n-1)*q + 1 (1-indexed); here 0-indexed as (n-1)*q.
	h := q * float64(n-1)
	lo := int(h)
	frac := h - float64(lo)
	if lo >= n-1 {
		return sorted[n-1]
	}
	loUs := float64(sorted[lo].Micros())
	hiUs := float64(sorted[lo+1].Micros())
	interpolated := loUs + frac*(hiUs-loUs)
	return fusiontime.FromMicros(int64(interpolated))
}

// sortedSamples returns the current window's samples in ascending order,
// unwrapping the ring buffer's head offset.
func (e *Estimator) sortedSamples() []fusiontime.Duration {
	out := make([]fusiontime.Duration, e.count)
	for i := 0; i < e.count; i++ {
		out[i] = e.window[(e.head+i)%e.historySize]
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LongRunSnapshot reports the diagnostic, unbounded-lifetime view of this
// estimator's history via HdrHistogram. It is informational only — it has
// coarser-than-microsecond precision at high magnitudes and must never be
// consulted by the release decision path (see invariant #5: exact estimates
// to within 1µs).
type LongRunSnapshot struct {
	TotalCount int64
	Min        fusiontime.Duration
	Max        fusiontime.Duration
	Mean       fusiontime.Duration
	P99        fusiontime.Duration
}

// LongRunSnapshot returns the current diagnostic snapshot.
func (e *Estimator) LongRunSnapshot() LongRunSnapshot {
	return LongRunSnapshot{
		TotalCount: e.longRun.TotalCount(),
		Min:        fusiontime.FromMicros(e.longRun.Min()),
		Max:        fusiontime.FromMicros(e.longRun.Max()),
		Mean:       fusiontime.FromMicros(int64(e.longRun.Mean())),
		P99:        fusiontime.FromMicros(e.longRun.ValueAtQuantile(99)),
	}
}
