package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultCheckTimeout = 2 * time.Second

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// Report is the health payload.
type Report struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Service runs registered dependency checks.
type Service struct {
	mu      sync.RWMutex
	names   []string
	checks  map[string]Check
	timeout time.Duration
}

// NewService constructs a new health service with no checks.
func NewService() *Service {
	return &Service{checks: map[string]Check{}, timeout: defaultCheckTimeout}
}

// Register adds or replaces a named check.
func (s *Service) Register(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.checks[name]; !ok {
		s.names = append(s.names, name)
		sort.Strings(s.names)
	}
	s.checks[name] = check
}

// Status runs every check concurrently, each bounded by the service timeout.
func (s *Service) Status(ctx context.Context) Report {
	s.mu.RLock()
	names := append([]string(nil), s.names...)
	checks := make([]Check, len(names))
	for i, n := range names {
		checks[i] = s.checks[n]
	}
	s.mu.RUnlock()

	results := make([]string, len(names))
	var g errgroup.Group
	for i := range names {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			if err := checks[i](cctx); err != nil {
				results[i] = err.Error()
				return nil
			}
			results[i] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{OK: true}
	if len(names) > 0 {
		rep.Checks = make(map[string]string, len(names))
	}
	for i, n := range names {
		rep.Checks[n] = results[i]
		if results[i] != "ok" {
			rep.OK = false
		}
	}
	return rep
}
