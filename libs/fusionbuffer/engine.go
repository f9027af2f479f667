package fusionbuffer

import (
	"context"
	"sort"

	"jax-fusionbuffer/libs/fusiontime"
	"jax-fusionbuffer/libs/observability"
	"jax-fusionbuffer/libs/source"
)

// Engine is the adaptive release engine (component D): per-source online
// estimators plus the release policy of §4.4. An Engine owns every piece of
// state it touches and holds no process-global state, so many can run
// concurrently in independent goroutines or processes (§5).
type Engine struct {
	params MLParams

	sources map[SourceID]*source.State
	order   []SourceID

	highWater fusiontime.Timestamp
	hasHigh   bool

	releasedWatermark fusiontime.Timestamp
	hasReleased       bool

	ctx context.Context
}

// NewAdaptive constructs an adaptive Engine. It returns ErrModeUnsupported
// if params.Mode is not Single (§9).
func NewAdaptive(params MLParams) (*Engine, error) {
	if params.Mode != Single {
		return nil, ErrModeUnsupported
	}
	params = params.WithDefaults()

	bufferID := observability.NewBufferID()
	return &Engine{
		params:  params,
		sources: make(map[SourceID]*source.State),
		ctx:     observability.WithRunInfo(context.Background(), observability.RunInfo{BufferID: bufferID}),
	}, nil
}

func (e *Engine) sourceState(id SourceID) *source.State {
	st, ok := e.sources[id]
	if !ok {
		st = source.NewState(id, e.params.HistorySize, e.params.WarmupThreshold, e.params.MaxJitter)
		e.sources[id] = st
		e.order = append(e.order, id)
	}
	return st
}

// Push implements the Buffer interface (§4.3).
func (e *Engine) Push(id SourceID, receiptTime, measTime fusiontime.Timestamp, payload any) PushStatus {
	if e.hasHigh && receiptTime < e.highWater {
		observability.LogPushRejected(e.ctx, id, receiptTime.Micros(), e.highWater.Micros())
		return PushOutOfOrder
	}
	e.highWater = receiptTime
	e.hasHigh = true

	st := e.sourceState(id)
	st.Observe(receiptTime, measTime)
	st.Enqueue(source.Record{ID: id, ReceiptTime: receiptTime, MeasTime: measTime, Payload: payload})
	return PushOK
}

// Pop implements the release algorithm of §4.4.
func (e *Engine) Pop(currentTime fusiontime.Timestamp) PopResult {
	var releasable, discarded []source.Record

	// Step 1: expire stale queue heads.
	for _, id := range e.order {
		st := e.sources[id]
		if len(st.Queue) == 0 {
			continue
		}
		head := st.Queue[0]
		if currentTime.Sub(head.ReceiptTime) > e.expiryThreshold(st) {
			expired := st.PopFront()
			discarded = append(discarded, expired)
			observability.LogDiscard(e.ctx, id, "expired-wait", expired.MeasTime.Micros(), expired.ReceiptTime.Micros())
		}
	}

	// Step 2: safety watermark W.
	w, unconstrained := e.safetyWatermark(currentTime)

	// Step 3: releasable set — everything with meas_time ≤ W (or everything,
	// if no source currently constrains release).
	for _, id := range e.order {
		st := e.sources[id]
		for len(st.Queue) > 0 {
			head := st.Queue[0]
			if !unconstrained && head.MeasTime > w {
				break
			}
			releasable = append(releasable, st.PopFront())
		}
	}

	// Step 4: global monotonicity guard.
	var released []source.Record
	for _, rec := range releasable {
		if e.hasReleased && rec.MeasTime < e.releasedWatermark {
			discarded = append(discarded, rec)
			observability.LogDiscard(e.ctx, rec.ID, "out-of-order-at-release", rec.MeasTime.Micros(), rec.ReceiptTime.Micros())
			continue
		}
		released = append(released, rec)
	}

	// Step 5: sort both sets.
	sortRecords(released)
	sortRecords(discarded)

	// Step 6: annotate released records with the span of this pop's
	// released ∪ discarded set.
	annotateSpan(released, discarded)

	// Step 7: advance the released watermark.
	for _, rec := range released {
		if !e.hasReleased || rec.MeasTime > e.releasedWatermark {
			e.releasedWatermark = rec.MeasTime
			e.hasReleased = true
		}
	}

	return PopResult{
		BufferTime:    currentTime,
		Data:          toReleasedRecords(released),
		DiscardedData: toReleasedRecords(discarded),
	}
}

// expiryThreshold returns the dwell-time cutoff beyond which a source's
// queue head is expired. A not-yet-warm source (whose latency distribution
// can't yet be trusted) falls back to the global max_wait_duration alone;
// once ready, the cutoff tightens to the max_wait_duration_quantile tail of
// its own latency distribution, capped by that same global constant.
func (e *Engine) expiryThreshold(st *source.State) fusiontime.Duration {
	if !st.Ready() {
		return e.params.MaxWaitDuration
	}
	tail := st.LatencyEst.Quantile(e.params.MaxWaitDurationQuantile)
	if e.params.MaxWaitDuration <= 0 {
		return tail
	}
	return fusiontime.Min(tail, e.params.MaxWaitDuration)
}

// waitTolerance returns the jitter_quantile tail of a source's latency
// distribution, capped by max_jitter (§4.4).
func (e *Engine) waitTolerance(st *source.State) fusiontime.Duration {
	tail := st.LatencyEst.Quantile(e.params.JitterQuantile)
	if e.params.MaxJitter <= 0 {
		return tail
	}
	return fusiontime.Min(tail, e.params.MaxJitter)
}

// constrains reports whether source st currently forces the engine to wait
// (is "possibly-late-with-older-data", or is still warming up, which this
// conservative engine treats the same way — see §4.4's state-machine note
// and DESIGN.md's open-question resolution). A stale or breaker-tripped
// source never constrains, regardless of warmup state.
func (e *Engine) constrains(st *source.State, currentTime fusiontime.Timestamp) bool {
	if st.Breaker.Tripped() {
		return false
	}
	if st.Stale(currentTime, e.params.MaxJitter) {
		return false
	}
	if !st.Ready() {
		return true
	}
	return currentTime.Sub(st.LastReceipt()) <= e.waitTolerance(st)
}

// safetyWatermark computes W (§4.4 step 2): the minimum, over every
// currently-constraining source, of the earliest possible meas_time of a
// still-unseen measurement from that source. unconstrained is true (W = +∞)
// when no source currently constrains release.
func (e *Engine) safetyWatermark(currentTime fusiontime.Timestamp) (w fusiontime.Timestamp, unconstrained bool) {
	unconstrained = true
	lowerQuantile := 1 - e.params.JitterQuantile

	for _, id := range e.order {
		st := e.sources[id]
		if !e.constrains(st, currentTime) {
			continue
		}
		downside := st.PeriodEst.Mean() - st.PeriodEst.Quantile(lowerQuantile)
		ws := st.LastMeas().Add(downside)
		if ws < 0 {
			ws = 0
		}
		if unconstrained || ws < w {
			w = ws
			unconstrained = false
		}
	}
	return w, unconstrained
}

// EstimatedPeriod returns the source's current mean inter-meas_time gap, or
// zero if not yet ready (§6).
func (e *Engine) EstimatedPeriod(id SourceID) fusiontime.Duration {
	return e.estimate(id, func(st *source.State) fusiontime.Duration { return st.PeriodEst.Mean() })
}

// EstimatedPeriodStddev returns the source's current period stddev, or zero
// if not yet ready.
func (e *Engine) EstimatedPeriodStddev(id SourceID) fusiontime.Duration {
	return e.estimate(id, func(st *source.State) fusiontime.Duration { return st.PeriodEst.Stddev() })
}

// EstimatedPeriodJitter returns the q-quantile tail of the source's period
// distribution, or zero if not yet ready.
func (e *Engine) EstimatedPeriodJitter(id SourceID, q float64) fusiontime.Duration {
	return e.estimate(id, func(st *source.State) fusiontime.Duration { return st.PeriodEst.Quantile(q) })
}

// EstimatedLatency returns the source's current mean latency, or zero if
// not yet ready.
func (e *Engine) EstimatedLatency(id SourceID) fusiontime.Duration {
	return e.estimate(id, func(st *source.State) fusiontime.Duration { return st.LatencyEst.Mean() })
}

// EstimatedLatencyStddev returns the source's current latency stddev, or
// zero if not yet ready.
func (e *Engine) EstimatedLatencyStddev(id SourceID) fusiontime.Duration {
	return e.estimate(id, func(st *source.State) fusiontime.Duration { return st.LatencyEst.Stddev() })
}

// EstimatedLatencyJitter returns the q-quantile tail of the source's latency
// distribution, or zero if not yet ready.
func (e *Engine) EstimatedLatencyJitter(id SourceID, q float64) fusiontime.Duration {
	return e.estimate(id, func(st *source.State) fusiontime.Duration { return st.LatencyEst.Quantile(q) })
}

func (e *Engine) estimate(id SourceID, fn func(*source.State) fusiontime.Duration) fusiontime.Duration {
	st, ok := e.sources[id]
	if !ok || !st.Ready() {
		return 0
	}
	return fn(st)
}

func sortRecords(recs []source.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].MeasTime != recs[j].MeasTime {
			return recs[i].MeasTime < recs[j].MeasTime
		}
		if recs[i].ReceiptTime != recs[j].ReceiptTime {
			return recs[i].ReceiptTime < recs[j].ReceiptTime
		}
		return recs[i].ID < recs[j].ID
	})
}

// annotateSpan sets EarliestMeasTime/LatestReceiptTime on every record in
// released, computed over the union of released and discarded (§4.4 step 6).
func annotateSpan(released, discarded []source.Record) {
	var earliest, latest fusiontime.Timestamp
	has := false
	for _, g := range [][]source.Record{released, discarded} {
		for _, rec := range g {
			if !has || rec.MeasTime < earliest {
				earliest = rec.MeasTime
			}
			if !has || rec.ReceiptTime > latest {
				latest = rec.ReceiptTime
			}
			has = true
		}
	}
	if !has {
		return
	}
	for i := range released {
		released[i].EarliestMeasTime = earliest
		released[i].LatestReceiptTime = latest
	}
}

func toReleasedRecords(recs []source.Record) []ReleasedRecord {
	out := make([]ReleasedRecord, len(recs))
	for i, rec := range recs {
		out[i] = ReleasedRecord{
			ID:                rec.ID,
			MeasTime:          rec.MeasTime,
			ReceiptTime:       rec.ReceiptTime,
			EarliestMeasTime:  rec.EarliestMeasTime,
			LatestReceiptTime: rec.LatestReceiptTime,
			Data:              rec.Payload,
		}
	}
	return out
}

var _ Buffer = (*Engine)(nil)
