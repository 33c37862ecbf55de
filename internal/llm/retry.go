package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"skinscan-backend/internal/shared/telemetry"
)

const retryBaseDelay = 300 * time.Millisecond

type retrying struct {
	base  Analyzer
	delay time.Duration
}

// WithRetry retries base once on transient failures, bounded by ctx.
func WithRetry(base Analyzer) Analyzer {
	if base == nil {
		return nil
	}
	return retrying{base: base, delay: retryBaseDelay}
}

func (r retrying) Analyze(ctx context.Context, input Input) (Output, error) {
	out, err := r.base.Analyze(ctx, input)
	if err == nil || !ShouldRetry(err) || ctx.Err() != nil {
		return out, err
	}

	telemetry.Warn("llm.retry", map[string]any{
		"attempt": 1,
		"error":   err.Error(),
	})
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return Output{}, ctx.Err()
	}
	return r.base.Analyze(ctx, input)
}

// ShouldRetry reports whether err looks transient.
func ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, ErrNotConfigured) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "status code: 5") || strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") {
		return true
	}
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "unexpected eof")
}
