package stats

import (
	"testing"

	"jax-fusionbuffer/libs/fusiontime"
)

func TestEstimator_NotReadyWhenEmpty(t *testing.T) {
	e := NewEstimator(0, 0)
	if e.Ready() {
		t.Fatal("expected not ready on empty estimator")
	}
	if e.Mean() != 0 || e.Stddev() != 0 || e.Quantile(0.5) != 0 {
		t.Fatal("expected zero-value sentinels on empty estimator")
	}
}

func TestEstimator_ReadyAtWarmupThreshold(t *testing.T) {
	e := NewEstimator(0, 5)
	for i := 0; i < 4; i++ {
		e.Observe(fusiontime.FromMillis(100))
		if e.Ready() {
			t.Fatalf("expected not ready after %d samples", i+1)
		}
	}
	e.Observe(fusiontime.FromMillis(100))
	if !e.Ready() {
		t.Fatal("expected ready after 5 samples")
	}
}

func TestEstimator_MeanAndStddev_ConstantSamples(t *testing.T) {
	e := NewEstimator(0, 1)
	for i := 0; i < 50; i++ {
		e.Observe(fusiontime.FromMillis(100))
	}
	if got := e.Mean(); got != fusiontime.FromMillis(100) {
		t.Fatalf("expected mean 100ms, got %v", got)
	}
	if got := e.Stddev(); got != 0 {
		t.Fatalf("expected zero stddev on constant samples, got %v", got)
	}
}

func TestEstimator_MeanAndStddev_KnownDistribution(t *testing.T) {
	e := NewEstimator(0, 1)
	samples := []int64{10, 20, 30, 40, 50}
	for _, s := range samples {
		e.Observe(fusiontime.FromMillis(s))
	}
	if got := e.Mean(); got != fusiontime.FromMillis(30) {
		t.Fatalf("expected mean 30ms, got %v", got)
	}
	// population stddev of {10,20,30,40,50} is sqrt(200) ≈ 14.142
	if got := e.Stddev(); got < fusiontime.FromMillis(14) || got > fusiontime.FromMillis(15) {
		t.Fatalf("expected stddev ~14.14ms, got %v", got)
	}
}

func TestEstimator_Quantile_LinearInterpolation(t *testing.T) {
	e := NewEstimator(0, 1)
	for _, s := range []int64{10, 20, 30, 40, 50} {
		e.Observe(fusiontime.FromMillis(s))
	}
	// method 7: h = (5-1)*0.5 = 2.0 -> exactly the 3rd order statistic, 30ms
	if got := e.Quantile(0.5); got != fusiontime.FromMillis(30) {
		t.Fatalf("expected median 30ms, got %v", got)
	}
	// h = (5-1)*0.25 = 1.0 -> exactly the 2nd order statistic, 20ms
	if got := e.Quantile(0.25); got != fusiontime.FromMillis(20) {
		t.Fatalf("expected p25 20ms, got %v", got)
	}
	if got := e.Quantile(0); got != fusiontime.FromMillis(10) {
		t.Fatalf("expected min at q=0, got %v", got)
	}
	if got := e.Quantile(1); got != fusiontime.FromMillis(50) {
		t.Fatalf("expected max at q=1, got %v", got)
	}
}

func TestEstimator_Quantile_InterpolatesBetweenOrderStatistics(t *testing.T) {
	e := NewEstimator(0, 1)
	for _, s := range []int64{0, 100} {
		e.Observe(fusiontime.FromMillis(s))
	}
	// h = (2-1)*0.5 = 0.5 -> halfway between 0 and 100ms
	got := e.Quantile(0.5)
	if got != fusiontime.FromMillis(50) {
		t.Fatalf("expected interpolated 50ms, got %v", got)
	}
}

func TestEstimator_SlidingWindowEvictsOldest(t *testing.T) {
	e := NewEstimator(3, 1)
	e.Observe(fusiontime.FromMillis(10))
	e.Observe(fusiontime.FromMillis(20))
	e.Observe(fusiontime.FromMillis(30))
	if e.Count() != 3 {
		t.Fatalf("expected count 3, got %d", e.Count())
	}
	// Evicts the 10ms sample; window is now {20,30,40}.
	e.Observe(fusiontime.FromMillis(40))
	if e.Count() != 3 {
		t.Fatalf("expected count capped at 3, got %d", e.Count())
	}
	if got := e.Mean(); got != fusiontime.FromMillis(30) {
		t.Fatalf("expected mean 30ms after eviction, got %v", got)
	}
	if got := e.Quantile(0); got != fusiontime.FromMillis(20) {
		t.Fatalf("expected min 20ms after eviction, got %v", got)
	}
}

func TestEstimator_NegativeSamplesNotClampedByEstimatorItself(t *testing.T) {
	// Clamping negative latency to zero is the caller's responsibility
	// (per-source push logic), not the estimator's — the estimator just
	// observes whatever Duration it is given.
	e := NewEstimator(0, 1)
	e.Observe(fusiontime.FromMillis(-5))
	if got := e.Mean(); got != fusiontime.FromMillis(-5) {
		t.Fatalf("expected estimator to pass through raw samples, got %v", got)
	}
}

func TestEstimator_LongRunSnapshot_TracksCount(t *testing.T) {
	e := NewEstimator(5, 1)
	for i := 0; i < 20; i++ {
		e.Observe(fusiontime.FromMillis(int64(10 + i)))
	}
	snap := e.LongRunSnapshot()
	if snap.TotalCount != 20 {
		t.Fatalf("expected long-run count to retain all 20 observations despite a 5-sample window, got %d", snap.TotalCount)
	}
	if e.Count() != 5 {
		t.Fatalf("expected windowed count capped at 5, got %d", e.Count())
	}
}
