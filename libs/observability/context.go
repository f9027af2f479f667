package observability

import "context"

type contextKey string

const (
	bufferIDKey contextKey = "buffer_id"
	sourceIDKey contextKey = "source_id"
)

// RunInfo carries trace identifiers through a context. BufferID
// distinguishes one Engine instance's log lines from another's when many
// buffers run concurrently (e.g. under a Monte-Carlo harness). SourceID,
// when set, scopes a log line to the per-source decision that produced it.
type RunInfo struct {
	BufferID string
	SourceID string
}

func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	if info.BufferID != "" {
		ctx = context.WithValue(ctx, bufferIDKey, info.BufferID)
	}
	if info.SourceID != "" {
		ctx = context.WithValue(ctx, sourceIDKey, info.SourceID)
	}
	return ctx
}

func RunInfoFromContext(ctx context.Context) RunInfo {
	info := RunInfo{}
	if value := ctx.Value(bufferIDKey); value != nil {
		if id, ok := value.(string); ok {
			info.BufferID = id
		}
	}
	if value := ctx.Value(sourceIDKey); value != nil {
		if id, ok := value.(string); ok {
			info.SourceID = id
		}
	}
	return info
}

// WithSourceID attaches a source_id to the context, scoping subsequent log
// lines to a single source's per-pop decision.
func WithSourceID(ctx context.Context, sourceID string) context.Context {
	if sourceID == "" {
		return ctx
	}
	return context.WithValue(ctx, sourceIDKey, sourceID)
}

// SourceIDFromContext retrieves the source_id set by WithSourceID.
func SourceIDFromContext(ctx context.Context) string {
	if v := ctx.Value(sourceIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
