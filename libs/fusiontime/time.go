// Package fusiontime provides the absolute-timestamp and duration
// arithmetic the fusion buffer is built on. Values are microsecond-precision
// integers rather than time.Time so that MLParams/FLParams/PopResult/
// ReleasedRecord round-trip losslessly through encoding/gob across a
// process boundary (a time.Time carries a monotonic reading and, for
// non-UTC zones, a *Location pointer, neither of which compares equal
// after such a round trip).
package fusiontime

import (
	"fmt"
	"time"
)

// Timestamp is an absolute point in time, in microseconds since the Unix
// epoch. Totally ordered via the normal integer comparison operators.
type Timestamp int64

// Duration is a signed difference of two Timestamps, in microseconds.
type Duration int64

// Zero is the Duration with no elapsed time.
const Zero Duration = 0

// FromEpochMillis constructs a Timestamp from epoch milliseconds.
func FromEpochMillis(ms int64) Timestamp {
	return Timestamp(ms * 1000)
}

// FromEpochMicros constructs a Timestamp from epoch microseconds.
func FromEpochMicros(us int64) Timestamp {
	return Timestamp(us)
}

// FromTime converts a time.Time to a Timestamp, rounding to the nearest
// microsecond (finer inputs are not representable).
func FromTime(t time.Time) Timestamp {
	us := t.UnixNano()
	// round to nearest microsecond rather than truncating
	rounded := (us + 500) / 1000
	return Timestamp(rounded)
}

// Time converts a Timestamp back to a UTC time.Time.
func (t Timestamp) Time() time.Time {
	return time.UnixMicro(int64(t)).UTC()
}

// Add returns t advanced by d (d may be negative).
func (t Timestamp) Add(d Duration) Timestamp {
	return Timestamp(int64(t) + int64(d))
}

// Sub returns the Duration from o to t (t - o).
func (t Timestamp) Sub(o Timestamp) Duration {
	return Duration(int64(t) - int64(o))
}

// Before reports whether t is strictly earlier than o.
func (t Timestamp) Before(o Timestamp) bool { return t < o }

// After reports whether t is strictly later than o.
func (t Timestamp) After(o Timestamp) bool { return t > o }

// String formats t as decimal milliseconds since epoch, for logs.
func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%03dms", int64(t)/1000, abs64(int64(t)%1000))
}

// FromMillis constructs a Duration from a count of milliseconds.
func FromMillis(ms int64) Duration {
	return Duration(ms * 1000)
}

// FromMicros constructs a Duration from a count of microseconds.
func FromMicros(us int64) Duration {
	return Duration(us)
}

// Micros returns the Duration as a count of microseconds.
func (d Duration) Micros() int64 { return int64(d) }

// Millis returns the Duration as a floating-point count of milliseconds,
// for formatting and logging.
func (d Duration) Millis() float64 { return float64(d) / 1000 }

// Std converts d to the standard library's time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) * time.Microsecond }

// Max returns the larger of d and o.
func Max(d, o Duration) Duration {
	if d > o {
		return d
	}
	return o
}

// Min returns the smaller of d and o.
func Min(d, o Duration) Duration {
	if d < o {
		return d
	}
	return o
}

// Clamp0 returns d if it is non-negative, otherwise Zero. Used to clamp
// negative latency samples per the buffer's data-model invariant that
// latency_est.mean is never negative.
func Clamp0(d Duration) Duration {
	if d < 0 {
		return 0
	}
	return d
}

// String formats d as decimal milliseconds, e.g. "123.456ms".
func (d Duration) String() string {
	return fmt.Sprintf("%.3fms", d.Millis())
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
