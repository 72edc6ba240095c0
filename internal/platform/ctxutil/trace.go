package ctxutil

import "context"

type traceDataKey struct{}

// TraceData carries correlation identifiers through request and background-task contexts.
type TraceData struct {
	TraceID       string
	RequestID     string
	CorrelationID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// CorrelationID returns the background correlation id, falling back to the request id.
func CorrelationID(ctx context.Context) string {
	td := GetTraceData(ctx)
	if td == nil {
		return ""
	}
	if td.CorrelationID != "" {
		return td.CorrelationID
	}
	return td.RequestID
}
