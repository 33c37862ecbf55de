package analyses

import "context"

type ctxKey int

const requestIDCtxKey ctxKey = iota

// WithRequestID carries the HTTP request id into the pipeline so log lines
// and scan events can be correlated with the access log.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDCtxKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}
