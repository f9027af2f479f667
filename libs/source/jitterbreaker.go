package source

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"jax-fusionbuffer/libs/fusiontime"
	"jax-fusionbuffer/libs/observability"
)

// breakerForeverTimeout is the Timeout gobreaker waits in the Open state
// before probing a half-open request. The jitter breaker never recovers on
// its own (§9: "no learning across restarts, and no evidence of recovery
// handling in the sources inspected"), so this is set far beyond any
// realistic buffer lifetime, making a trip effectively permanent.
const breakerForeverTimeout = 100 * 365 * 24 * time.Hour

// JitterBreaker wraps a gobreaker.CircuitBreaker to implement §4.4's
// "permanently slow source" rule: once a source's observed latency jitter
// exceeds max_jitter, the breaker trips and the source is excluded from
// constraining release for every other source, even after it starts
// behaving again.
type JitterBreaker struct {
	cb        *gobreaker.CircuitBreaker[any]
	sourceID  Id
	maxJitter fusiontime.Duration
}

// NewJitterBreaker constructs a breaker for sourceID that trips the first
// time an observed sample exceeds maxJitter. maxJitter <= 0 disables the
// breaker. MLParams.WithDefaults replaces a zero MaxJitter with the large
// DefaultMaxJitterMillis sentinel, so an Engine's breakers are enabled but
// trip only on jitter beyond that bound.
func NewJitterBreaker(sourceID Id, maxJitter fusiontime.Duration) *JitterBreaker {
	jb := &JitterBreaker{sourceID: sourceID, maxJitter: maxJitter}

	settings := gobreaker.Settings{
		Name:        "jitter:" + sourceID,
		MaxRequests: 1,
		Interval:    0, // never reset Counts while Closed
		Timeout:     breakerForeverTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.LogBreakerStateChange(context.Background(), sourceID, from.String(), to.String())
		},
	}
	jb.cb = gobreaker.NewCircuitBreaker[any](settings)
	return jb
}

// Observe records one latency sample against the breaker. sample is the
// clamped per-push latency (receipt_time − meas_time); mean is the source's
// current latency_est.mean, used so the breaker trips on jitter — distance
// from the source's own mean — rather than on absolute latency, matching
// §4.4's "a source may contribute before the engine stops waiting for it at
// all" framing.
func (b *JitterBreaker) Observe(sample, mean fusiontime.Duration) {
	if b.maxJitter <= 0 {
		return
	}
	jitter := sample - mean
	if jitter < 0 {
		jitter = -jitter
	}
	_, _ = b.cb.Execute(func() (any, error) {
		if jitter > b.maxJitter {
			return nil, errJitterExceeded
		}
		return nil, nil
	})
}

// Tripped reports whether this source has been marked permanently slow.
func (b *JitterBreaker) Tripped() bool {
	return b.cb.State() == gobreaker.StateOpen
}

var errJitterExceeded = jitterExceededError{}

type jitterExceededError struct{}

func (jitterExceededError) Error() string { return "observed jitter exceeds max_jitter" }
