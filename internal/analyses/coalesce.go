package analyses

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"skinscan-backend/internal/fusion"
)

const (
	defaultPipelineTimeout = 60 * time.Second
	maxCoalesceRounds      = 2
)

// coalescer runs at most one escalation per fingerprint. The escalation
// runs on a context detached from any single caller and bounded by the
// pipeline timeout; it is cancelled only once every waiting caller has
// gone away.
type coalescer struct {
	group   singleflight.Group
	timeout time.Duration

	mu    sync.Mutex
	calls map[string]*flightCtx
}

type flightCtx struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func newCoalescer(timeout time.Duration) *coalescer {
	if timeout <= 0 {
		timeout = defaultPipelineTimeout
	}
	return &coalescer{timeout: timeout, calls: map[string]*flightCtx{}}
}

func (c *coalescer) join(parent context.Context, key string) *flightCtx {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.calls[key]
	if !ok {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.timeout)
		f = &flightCtx{ctx: ctx, cancel: cancel}
		c.calls[key] = f
	}
	f.waiters++
	return f
}

func (c *coalescer) leave(key string, f *flightCtx) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.calls[key] == f {
		delete(c.calls, key)
	}
}

func (c *coalescer) waiting(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.calls[key]; ok {
		return f.waiters
	}
	return 0
}

// do returns fn's result for key, running fn only if no call for key is in
// flight. led reports whether this caller's fn produced the result. A caller
// whose ctx ends stops waiting with ctx.Err(); the shared call keeps going
// while anyone else still waits on it.
func (c *coalescer) do(ctx context.Context, key string, fn func(context.Context) (escalation, error)) (out escalation, led bool, err error) {
	f := c.join(ctx, key)
	defer c.leave(key, f)

	ran := false
	ch := c.group.DoChan(key, func() (any, error) {
		ran = true
		return fn(f.ctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return escalation{}, ran, res.Err
		}
		return res.Val.(escalation), ran, nil
	case <-ctx.Done():
		return escalation{}, false, ctx.Err()
	}
}

// stageRelay forwards stages to a caller's observer until the caller
// returns. A shared escalation can outlive the caller that started it.
type stageRelay struct {
	mu sync.Mutex
	fn ProgressFunc
}

func (r *stageRelay) emit(stage Stage, detail map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fn != nil {
		r.fn(stage, detail)
	}
}

func (r *stageRelay) detach() {
	r.mu.Lock()
	r.fn = nil
	r.mu.Unlock()
}

// shareable reports whether a result produced for another caller can be
// handed out as cache-derived: only tiers that are written to the cache.
func shareable(r fusion.Result) bool {
	return r.Tier == fusion.TierPrimary || r.Tier == fusion.TierSignals
}
