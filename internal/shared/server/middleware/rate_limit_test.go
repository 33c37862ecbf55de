package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func limitedRouter(limiter *RateLimiter, rules map[string]RateLimitRule) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Tenant(), RateLimit(RateLimitConfig{
		Limiter: limiter,
		Rules:   rules,
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodGet {
				return "READ"
			}
			return "SCAN"
		},
	}))
	r.GET("/api/v1/analyses", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/v1/analysis/skin", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func hit(r http.Handler, method, path, clinic string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if clinic != "" {
		req.Header.Set("X-Clinic-Id", clinic)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestRateLimitGroupsHaveSeparateBuckets(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := limitedRouter(NewRateLimiter(func() time.Time { return now }), map[string]RateLimitRule{
		"SCAN": {Rate: 1, Burst: 2},
		"READ": {Rate: 5, Burst: 10},
	})

	for i := 0; i < 2; i++ {
		if resp := hit(r, http.MethodPost, "/api/v1/analysis/skin", "clinic-1"); resp.Code != http.StatusOK {
			t.Fatalf("scan %d expected 200, got %d", i+1, resp.Code)
		}
	}
	if resp := hit(r, http.MethodPost, "/api/v1/analysis/skin", "clinic-1"); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("third scan expected 429, got %d", resp.Code)
	}
	for i := 0; i < 10; i++ {
		if resp := hit(r, http.MethodGet, "/api/v1/analyses", "clinic-1"); resp.Code != http.StatusOK {
			t.Fatalf("read %d expected 200, got %d", i+1, resp.Code)
		}
	}
}

func TestRateLimitIsolatesClinics(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := limitedRouter(NewRateLimiter(func() time.Time { return now }), map[string]RateLimitRule{
		"SCAN": {Rate: 1, Burst: 1},
	})

	if resp := hit(r, http.MethodPost, "/api/v1/analysis/skin", "clinic-1"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp := hit(r, http.MethodPost, "/api/v1/analysis/skin", "clinic-2"); resp.Code != http.StatusOK {
		t.Fatalf("other clinic expected its own bucket, got %d", resp.Code)
	}
	if resp := hit(r, http.MethodGet, "/api/v1/analyses", "clinic-1"); resp.Code != http.StatusOK {
		t.Fatalf("group without a rule expected unlimited, got %d", resp.Code)
	}
}

func TestRateLimit429Envelope(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := limitedRouter(NewRateLimiter(func() time.Time { return now }), map[string]RateLimitRule{
		"SCAN": {Rate: 1, Burst: 1},
	})

	hit(r, http.MethodPost, "/api/v1/analysis/skin", "clinic-1")
	resp := hit(r, http.MethodPost, "/api/v1/analysis/skin", "clinic-1")
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After 1, got %q", resp.Header().Get("Retry-After"))
	}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Group        string `json:"group"`
				RetryAfterMs int64  `json:"retryAfterMs"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error.Code != "rate_limited" || body.Error.Details.Group != "SCAN" || body.Error.Details.RetryAfterMs <= 0 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestRateLimiterEvictsIdleBuckets(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(func() time.Time { return now })
	rule := RateLimitRule{Rate: 1, Burst: 1}

	for _, clinic := range []string{"clinic-1", "clinic-2", "clinic-3"} {
		if ok, _ := l.Allow(clinic+"|SCAN", rule); !ok {
			t.Fatalf("%s: expected first request allowed", clinic)
		}
	}
	if len(l.buckets) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(l.buckets))
	}

	now = now.Add(6 * time.Minute)
	l.Allow("clinic-1|SCAN", rule)
	now = now.Add(5 * time.Minute)
	l.Allow("clinic-4|SCAN", rule)

	if len(l.buckets) != 2 {
		t.Fatalf("expected idle buckets evicted, have %d", len(l.buckets))
	}
	if _, ok := l.buckets["clinic-1|SCAN"]; !ok {
		t.Fatal("expected recently used bucket kept")
	}
	if _, ok := l.buckets["clinic-2|SCAN"]; ok {
		t.Fatal("expected idle bucket dropped")
	}
}
