package analyses

import (
	"context"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"skinscan-backend/internal/fanout"
	"skinscan-backend/internal/llm"
	"skinscan-backend/internal/queue"
	"skinscan-backend/internal/quota"
	"skinscan-backend/internal/scancache"
	"skinscan-backend/internal/vision"
)

var pngImage = base64.StdEncoding.EncodeToString(append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...))

type fakeFanout struct {
	calls   atomic.Int32
	signals []vision.ModelSignal
	gate    chan struct{}
	entered chan struct{}
	panics  any
}

func (f *fakeFanout) RunAll(ctx context.Context, image []byte) fanout.Result {
	f.calls.Add(1)
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return fanout.Result{Signals: []vision.ModelSignal{}, ModelsUsed: []string{}}
		}
	}
	if f.panics != nil {
		panic(f.panics)
	}
	out := fanout.Result{Signals: []vision.ModelSignal{}, ModelsUsed: []string{}}
	for _, s := range f.signals {
		out.Signals = append(out.Signals, s)
		if s.OK {
			out.ModelsUsed = append(out.ModelsUsed, s.Name)
		}
	}
	return out
}

type fakeAnalyzer struct {
	calls atomic.Int32
	raw   string
	err   error
	seen  llm.Input
	mu    sync.Mutex
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, in llm.Input) (llm.Output, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = in
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return llm.Output{}, err
	}
	if f.err != nil {
		return llm.Output{}, f.err
	}
	return llm.Output{Raw: f.raw, Model: "gpt-4o", CostUSD: decimal.RequireFromString("0.0125"), Tokens: 2500}, nil
}

type fakeQuota struct {
	reserve  quota.Reservation
	err      error
	reserves atomic.Int32
	commits  atomic.Int32
	releases atomic.Int32
}

func (f *fakeQuota) Reserve(ctx context.Context, tenantID, scanType string) (quota.Reservation, error) {
	f.reserves.Add(1)
	if f.err != nil {
		return quota.Reservation{}, f.err
	}
	res := f.reserve
	res.TenantID = tenantID
	res.ScanType = scanType
	return res, nil
}

func (f *fakeQuota) Commit(ctx context.Context, res quota.Reservation, out quota.Outcome) error {
	f.commits.Add(1)
	return nil
}

func (f *fakeQuota) Release(ctx context.Context, res quota.Reservation) error {
	f.releases.Add(1)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ScanEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, evt queue.ScanEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type pipeline struct {
	svc      *Service
	quota    *quota.Service
	cache    *scancache.Gate
	fanout   *fakeFanout
	analyzer *fakeAnalyzer
	events   *recordingPublisher
	repo     *MemoryRepo
}

func newPipeline(t *testing.T, plan string) *pipeline {
	t.Helper()
	p := &pipeline{
		quota:    quota.NewService(plan),
		cache:    scancache.NewGate(scancache.NewMemoryStore(), 0),
		fanout:   &fakeFanout{},
		analyzer: &fakeAnalyzer{raw: "Here you go:\n```json\n{\"overallScore\": 78, \"skinAge\": 31, \"skinType\": \"combination\"}\n```"},
		events:   &recordingPublisher{},
		repo:     NewMemoryRepo(),
	}
	p.svc = NewService(Options{
		Cache:        p.cache,
		Quota:        p.quota,
		Fanout:       p.fanout,
		Primary:      p.analyzer,
		PrimaryModel: "gpt-4o",
		Recorder:     NewRecorder(p.quota, p.cache, p.events),
		Repo:         p.repo,
		AIEnabled:    true,
	})
	return p
}

func (p *pipeline) used(t *testing.T) int {
	t.Helper()
	usage, err := p.quota.Usage(context.Background(), "clinic-1")
	require.NoError(t, err)
	return usage.Used
}

func janeRequest() Request {
	return Request{
		ClinicID:  "clinic-1",
		UserID:    "staff-7",
		Customer:  Customer{CustomerID: "cust-1", Name: "Jane", Email: "jane@x.com", Age: 30},
		ImageData: "data:image/png;base64," + pngImage,
		UseAI:     true,
	}
}
