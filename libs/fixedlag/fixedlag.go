// Package fixedlag implements component E: a reference buffer that releases
// by a constant (or distribution-derived) lag behind the current pop time,
// with no per-source estimation. It exists to make the adaptive engine's
// contract precise by contrast (§4.5).
package fixedlag

import (
	"sort"

	"jax-fusionbuffer/libs/fusionbuffer"
	"jax-fusionbuffer/libs/fusiontime"
	"jax-fusionbuffer/libs/source"
)

// Params configures a fixed-lag engine: either a constant Lag, or
// (DelayMean, DelayStddev, DelayQuantile) from which Lag is derived via the
// inverse normal CDF. FromDistribution selects which form applies — Lag's
// zero value is a legitimate "release with no lag" setting, so it cannot
// double as the "unset" sentinel.
type Params struct {
	Lag fusiontime.Duration

	FromDistribution bool
	DelayMean        fusiontime.Duration
	DelayStddev      fusiontime.Duration
	DelayQuantile    float64
}

// ResolvedLag returns the lag this Params implies: Lag directly unless
// FromDistribution is set, in which case
// DelayMean + invNormalCDF(DelayQuantile) * DelayStddev.
func (p Params) ResolvedLag() fusiontime.Duration {
	if !p.FromDistribution {
		return p.Lag
	}
	z := invNormalCDF(p.DelayQuantile)
	offset := z * float64(p.DelayStddev.Micros())
	return p.DelayMean + fusiontime.FromMicros(int64(offset))
}

// Engine is the fixed-lag reference buffer. It has no per-source state
// beyond the FIFO queues and the released watermark; see fusionbuffer.Engine
// for the adaptive policy this contrasts with.
type Engine struct {
	lag fusiontime.Duration

	queues map[source.Id]*[]source.Record
	order  []source.Id

	highWater fusiontime.Timestamp
	hasHigh   bool

	releasedWatermark fusiontime.Timestamp
	hasReleased       bool
}

// New constructs a fixed-lag Engine from Params.
func New(params Params) *Engine {
	return &Engine{
		lag:    params.ResolvedLag(),
		queues: make(map[source.Id]*[]source.Record),
	}
}

// Push enqueues a record, rejecting out-of-order receipts exactly as the
// adaptive engine does (§4.3 rule 3): a receipt_time strictly less than the
// buffer-wide high-water mark is rejected without enqueueing.
func (e *Engine) Push(id source.Id, receiptTime, measTime fusiontime.Timestamp, payload any) fusionbuffer.PushStatus {
	if e.hasHigh && receiptTime < e.highWater {
		return fusionbuffer.PushOutOfOrder
	}
	e.highWater = receiptTime
	e.hasHigh = true

	q, ok := e.queues[id]
	if !ok {
		empty := make([]source.Record, 0, 4)
		q = &empty
		e.queues[id] = q
		e.order = append(e.order, id)
	}
	*q = append(*q, source.Record{ID: id, ReceiptTime: receiptTime, MeasTime: measTime, Payload: payload})
	return fusionbuffer.PushOK
}

// Pop releases every queued record with receipt_time ≤ current_time − lag,
// sorted by meas_time with the §4.4 tie-break, subject to the same global
// monotonicity guard.
func (e *Engine) Pop(currentTime fusiontime.Timestamp) fusionbuffer.PopResult {
	deadline := currentTime.Add(-e.lag)

	var released, discarded []source.Record
	for _, id := range e.order {
		q := e.queues[id]
		kept := (*q)[:0]
		for _, rec := range *q {
			if rec.ReceiptTime <= deadline {
				released = append(released, rec)
			} else {
				kept = append(kept, rec)
			}
		}
		*q = kept
	}

	sortRecords(released)

	final := released[:0:0]
	for _, rec := range released {
		if e.hasReleased && rec.MeasTime < e.releasedWatermark {
			discarded = append(discarded, rec)
			continue
		}
		final = append(final, rec)
		if !e.hasReleased || rec.MeasTime > e.releasedWatermark {
			e.releasedWatermark = rec.MeasTime
			e.hasReleased = true
		}
	}
	sortRecords(discarded)

	annotate(final, discarded)

	return fusionbuffer.PopResult{
		BufferTime:    currentTime,
		Data:          toReleasedRecords(final),
		DiscardedData: toReleasedRecords(discarded),
	}
}

// EstimatedPeriod always returns zero: the fixed-lag engine keeps no
// per-source estimators (§4.5).
func (e *Engine) EstimatedPeriod(id source.Id) fusiontime.Duration { return 0 }

// EstimatedPeriodStddev always returns zero; see EstimatedPeriod.
func (e *Engine) EstimatedPeriodStddev(id source.Id) fusiontime.Duration { return 0 }

// EstimatedPeriodJitter always returns zero; see EstimatedPeriod.
func (e *Engine) EstimatedPeriodJitter(id source.Id, q float64) fusiontime.Duration { return 0 }

// EstimatedLatency always returns zero; see EstimatedPeriod.
func (e *Engine) EstimatedLatency(id source.Id) fusiontime.Duration { return 0 }

// EstimatedLatencyStddev always returns zero; see EstimatedPeriod.
func (e *Engine) EstimatedLatencyStddev(id source.Id) fusiontime.Duration { return 0 }

// EstimatedLatencyJitter always returns zero; see EstimatedPeriod.
func (e *Engine) EstimatedLatencyJitter(id source.Id, q float64) fusiontime.Duration { return 0 }

var _ fusionbuffer.Buffer = (*Engine)(nil)

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

func annotate(groups ...[]source.Record) {
	var earliest, latest fusiontime.Timestamp
	has := false
	for _, g := range groups {
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
	for _, g := range groups {
		for i := range g {
			g[i].EarliestMeasTime = earliest
			g[i].LatestReceiptTime = latest
		}
	}
}

func toReleasedRecords(recs []source.Record) []fusionbuffer.ReleasedRecord {
	out := make([]fusionbuffer.ReleasedRecord, len(recs))
	for i, rec := range recs {
		out[i] = fusionbuffer.ReleasedRecord{
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
