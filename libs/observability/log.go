package observability

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"
)

var logger = log.New(os.Stdout, "", 0)

// LogEvent writes one JSON-encoded line carrying level, event name, any
// buffer/source identifiers present in ctx, and the given fields.
func LogEvent(ctx context.Context, level string, event string, fields map[string]any) {
	payload := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"level": level,
		"event": event,
	}

	info := RunInfoFromContext(ctx)
	if info.BufferID != "" {
		payload["buffer_id"] = info.BufferID
	}
	if info.SourceID != "" {
		payload["source_id"] = info.SourceID
	}

	for key, value := range normalizeFields(fields) {
		payload[key] = value
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("{\"level\":\"error\",\"event\":\"log_marshal_failed\",\"error\":%q}", err.Error())
		return
	}
	logger.Print(string(raw))
}

// LogDiscard records that a queued measurement was dropped from release
// rather than emitted in data, along with why.
func LogDiscard(ctx context.Context, sourceID string, reason string, measTimeUs, receiptTimeUs int64) {
	LogEvent(WithSourceID(ctx, sourceID), "info", "record_discarded", map[string]any{
		"reason":          reason,
		"meas_time_us":    measTimeUs,
		"receipt_time_us": receiptTimeUs,
	})
}

// LogPushRejected records an out-of-order push that was rejected without
// enqueueing.
func LogPushRejected(ctx context.Context, sourceID string, receiptTimeUs, highWaterUs int64) {
	LogEvent(WithSourceID(ctx, sourceID), "info", "push_out_of_order", map[string]any{
		"receipt_time_us":   receiptTimeUs,
		"high_water_mark_us": highWaterUs,
	})
}

// LogBreakerStateChange records a source's jitter-breaker tripping or
// resetting.
func LogBreakerStateChange(ctx context.Context, sourceID string, from, to string) {
	LogEvent(WithSourceID(ctx, sourceID), "info", "source_breaker_state_change", map[string]any{
		"from": from,
		"to":   to,
	})
}

func normalizeFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		switch key {
		case "payload":
			out[key] = RedactValue(value)
			continue
		}
		if err, ok := value.(error); ok {
			out[key] = err.Error()
			continue
		}
		out[key] = value
	}
	return out
}
