// Package source holds the per-source state the adaptive release engine
// consults on every pop: the FIFO of queued measurements, the period and
// latency estimators that drive release deadlines, and the one-way breaker
// that stops a permanently slow source from holding up every other source.
package source

import (
	"jax-fusionbuffer/libs/fusiontime"
	"jax-fusionbuffer/libs/stats"
)

// Id is the opaque, hashable identity of a stream. Any comparable value the
// producer assigns — a small integer, a short string — is valid; distinct
// values denote distinct streams.
type Id = string

// Record is one queued measurement awaiting release, identified by its
// source and carrying the caller's opaque payload.
type Record struct {
	ID          Id
	ReceiptTime fusiontime.Timestamp
	MeasTime    fusiontime.Timestamp
	Payload     any

	// EarliestMeasTime and LatestReceiptTime are filled in at release time
	// by the engine (§4.4 step 6); zero until then.
	EarliestMeasTime fusiontime.Timestamp
	LatestReceiptTime fusiontime.Timestamp
}

// PushOutcome reports whether a push was accepted.
type PushOutcome int

const (
	// PushOK means the record was enqueued.
	PushOK PushOutcome = iota
	// PushOutOfOrder means the record's receipt time regressed the
	// buffer-wide high-water mark and was rejected without enqueueing.
	PushOutOfOrder
)

// State is the per-source state of component C: the FIFO queue, the period
// and latency estimators, and the bookkeeping push needs to compute sample
// deltas. It does not check that meas_time is non-decreasing within the
// source.
//
// A State is owned exclusively by the Engine that created it and is never
// shared; it holds no reference once a Record is released or discarded.
type State struct {
	ID Id

	Queue []Record

	PeriodEst  *stats.Estimator
	LatencyEst *stats.Estimator

	SamplesSeen     int64
	warmupThreshold int64

	lastReceipt fusiontime.Timestamp
	lastMeas    fusiontime.Timestamp
	hasLast     bool

	Breaker *JitterBreaker
}

// NewState constructs a State with fresh estimators sized per historySize
// and gated by warmupThreshold, and a breaker that trips one-way once an
// observed latency jitter sample exceeds maxJitter.
func NewState(id Id, historySize, warmupThreshold int, maxJitter fusiontime.Duration) *State {
	return &State{
		ID:              id,
		PeriodEst:       stats.NewEstimator(historySize, warmupThreshold),
		LatencyEst:      stats.NewEstimator(historySize, warmupThreshold),
		Breaker:         NewJitterBreaker(id, maxJitter),
		warmupThreshold: int64(warmupThreshold),
	}
}

// Ready reports whether this source has accumulated enough samples for its
// estimates to be trusted by the release policy, per invariant #4's literal
// samples_seen ≥ warmup_threshold gate — not the estimators' own internal
// counts, which lag SamplesSeen by one (the first Observe call only seeds
// last_receipt/last_meas and feeds neither estimator).
func (s *State) Ready() bool {
	return s.SamplesSeen >= s.warmupThreshold
}

// Observe applies §4.3's per-push bookkeeping: on the first sample for this
// source it just records last_receipt/last_meas; on subsequent samples it
// feeds Δmeas into period_est and clamped latency into latency_est, then
// trips the jitter breaker if the new latency sample's distance from the
// mean exceeds maxJitter.
func (s *State) Observe(receiptTime, measTime fusiontime.Timestamp) {
	if !s.hasLast {
		s.lastReceipt = receiptTime
		s.lastMeas = measTime
		s.hasLast = true
		s.SamplesSeen++
		return
	}

	deltaMeas := measTime.Sub(s.lastMeas)
	latency := fusiontime.Clamp0(receiptTime.Sub(measTime))

	s.PeriodEst.Observe(deltaMeas)
	s.LatencyEst.Observe(latency)
	s.Breaker.Observe(latency, s.LatencyEst.Mean())

	s.lastReceipt = receiptTime
	s.lastMeas = measTime
	s.SamplesSeen++
}

// LastReceipt returns the most recently observed receipt time for this
// source, or zero if no sample has been observed yet.
func (s *State) LastReceipt() fusiontime.Timestamp { return s.lastReceipt }

// LastMeas returns the most recently observed measurement time for this
// source, or zero if no sample has been observed yet.
func (s *State) LastMeas() fusiontime.Timestamp { return s.lastMeas }

// Enqueue appends rec to this source's FIFO. Callers are responsible for
// the buffer-wide out-of-order rejection check (§4.3 rule 3) before calling
// this; State itself only maintains per-source order.
func (s *State) Enqueue(rec Record) {
	s.Queue = append(s.Queue, rec)
}

// PopFront removes and returns the head of the queue. Callers must check
// len(Queue) > 0 first.
func (s *State) PopFront() Record {
	rec := s.Queue[0]
	s.Queue = s.Queue[1:]
	return rec
}

// Stale reports whether this source has gone silent long enough that it no
// longer constrains release regardless of warmup state (§4.4's Stale state:
// current_time − last_receipt exceeds max_jitter by a large margin).
func (s *State) Stale(currentTime fusiontime.Timestamp, maxJitter fusiontime.Duration) bool {
	if !s.hasLast {
		return false
	}
	const staleMultiplier = 10
	gap := currentTime.Sub(s.lastReceipt)
	return gap > maxJitter*staleMultiplier
}
