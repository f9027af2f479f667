// Package fusionbuffer implements the adaptive release engine (component D)
// and the value objects (component F) that cross the Buffer boundary:
// PopResult, ReleasedRecord, and the Buffer interface both the adaptive and
// fixed-lag engines implement.
package fusionbuffer

import (
	"jax-fusionbuffer/libs/fusiontime"
	"jax-fusionbuffer/libs/source"
)

// SourceID is the opaque, hashable identity of a stream (§3).
type SourceID = source.Id

// PushStatus reports whether a push was accepted.
type PushStatus = source.PushOutcome

const (
	// PushOK means the record was enqueued.
	PushOK = source.PushOK
	// PushOutOfOrder means the record's receipt_time regressed the
	// buffer-wide high-water mark; the caller must not retry it.
	PushOutOfOrder = source.PushOutOfOrder
)

// ReleasedRecord is the record a Buffer hands back to the caller (§6).
// EarliestMeasTime and LatestReceiptTime span every record released or
// discarded in the same pop; the adaptive Engine sets them on released
// records only and leaves them zero on discarded ones.
type ReleasedRecord struct {
	ID                SourceID
	MeasTime          fusiontime.Timestamp
	ReceiptTime       fusiontime.Timestamp
	EarliestMeasTime  fusiontime.Timestamp
	LatestReceiptTime fusiontime.Timestamp
	Data              any
}

// PopResult is the output of one pop call: the records now safe to release,
// in meas_time order, and those discarded in the same pop, in the same
// order (§4.4 step 8).
type PopResult struct {
	BufferTime    fusiontime.Timestamp
	Data          []ReleasedRecord
	DiscardedData []ReleasedRecord
}

// Buffer is the programmatic API (§6) both the adaptive engine and the
// fixed-lag reference engine implement.
type Buffer interface {
	Push(id SourceID, receiptTime, measTime fusiontime.Timestamp, payload any) PushStatus
	Pop(currentTime fusiontime.Timestamp) PopResult

	EstimatedPeriod(id SourceID) fusiontime.Duration
	EstimatedPeriodStddev(id SourceID) fusiontime.Duration
	EstimatedPeriodJitter(id SourceID, q float64) fusiontime.Duration
	EstimatedLatency(id SourceID) fusiontime.Duration
	EstimatedLatencyStddev(id SourceID) fusiontime.Duration
	EstimatedLatencyJitter(id SourceID, q float64) fusiontime.Duration
}
