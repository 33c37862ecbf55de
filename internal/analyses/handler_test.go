package analyses

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"skinscan-backend/internal/quota"
	"skinscan-backend/internal/scancache"
	"skinscan-backend/internal/shared/server/middleware"
	"skinscan-backend/internal/shared/storage/object/local"
)

func newTestRouter(t *testing.T, svc *Service, cache CacheStats) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Tenant())
	NewHandler(svc, cache).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func postJSON(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeEndpointReturnsProvenance(t *testing.T) {
	p := newPipeline(t, "professional")
	r := newTestRouter(t, p.svc, p.cache)

	rec := postJSON(t, r, "/api/v1/analysis/skin", janeRequest())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		AnalysisID string `json:"analysisId"`
		Analysis   struct {
			OverallScore int `json:"overallScore"`
		} `json:"analysis"`
		UsedCache bool `json:"usedCache"`
		AIPowered bool `json:"aiPowered"`
		QuotaInfo *struct {
			Remaining        int  `json:"remaining"`
			WouldIncurCharge bool `json:"wouldIncurCharge"`
		} `json:"quotaInfo"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.AnalysisID == "" || body.Analysis.OverallScore != 78 {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if body.UsedCache || !body.AIPowered || body.QuotaInfo == nil || body.QuotaInfo.Remaining != 200 {
		t.Fatalf("unexpected provenance %s", rec.Body.String())
	}
}

func TestAnalyzeEndpointUsesClinicHeader(t *testing.T) {
	p := newPipeline(t, "professional")
	r := newTestRouter(t, p.svc, p.cache)

	req := janeRequest()
	req.ClinicID = ""
	raw, _ := json.Marshal(req)
	httpReq := httptest.NewRequest(http.MethodPost, "/api/v1/analysis/skin", bytes.NewReader(raw))
	httpReq.Header.Set("X-Clinic-Id", "clinic-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httpReq)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if p.analyzer.calls.Load() != 1 {
		t.Fatalf("expected AI path via header tenant")
	}
}

func TestAnalyzeEndpointValidation(t *testing.T) {
	p := newPipeline(t, "professional")
	r := newTestRouter(t, p.svc, p.cache)

	rec := postJSON(t, r, "/api/v1/analysis/skin", map[string]any{"customerInfo": map[string]any{"name": "Jane"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"validation_error"`) || !strings.Contains(rec.Body.String(), `"age"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	bad := httptest.NewRequest(http.MethodPost, "/api/v1/analysis/skin", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", rec.Code)
	}
}

func TestAnalyzeEndpointQuotaExceeded(t *testing.T) {
	q := &fakeQuota{reserve: quota.Reservation{Allowed: false, Remaining: 0, WouldIncurCharge: true}}
	svc := NewService(Options{Quota: q, Cache: scancache.NewGate(scancache.NewMemoryStore(), 0), Fanout: &fakeFanout{}, AIEnabled: true})
	r := newTestRouter(t, svc, nil)

	rec := postJSON(t, r, "/api/v1/analysis/skin", janeRequest())
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				QuotaRemaining   int  `json:"quotaRemaining"`
				WouldIncurCharge bool `json:"wouldIncurCharge"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != ErrorCodeQuotaExceeded || !body.Error.Details.WouldIncurCharge {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestAnalyzeEndpointQuotaUnavailable(t *testing.T) {
	q := &fakeQuota{err: quota.ErrQuotaUnavailable}
	svc := NewService(Options{Quota: q, Cache: scancache.NewGate(scancache.NewMemoryStore(), 0), AIEnabled: true})
	r := newTestRouter(t, svc, nil)

	rec := postJSON(t, r, "/api/v1/analysis/skin", janeRequest())
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), ErrorCodeQuotaUnavailable) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestStreamEndpointEmitsStagesThenResult(t *testing.T) {
	p := newPipeline(t, "professional")
	r := newTestRouter(t, p.svc, p.cache)

	rec := postJSON(t, r, "/api/v1/analysis/skin/stream", janeRequest())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	out := rec.Body.String()
	if !strings.Contains(out, "event:stage") || !strings.Contains(out, `"stage":"fanout"`) {
		t.Fatalf("expected stage events, got %s", out)
	}
	if strings.LastIndex(out, "event:result") < strings.LastIndex(out, "event:stage") {
		t.Fatalf("expected result after stages, got %s", out)
	}
}

func TestBaselinePreview(t *testing.T) {
	p := newPipeline(t, "professional")
	r := newTestRouter(t, p.svc, p.cache)

	for _, kind := range []string{"symmetry", "metrics", "wrinkles", "comprehensive"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analysis/skin/baseline?type="+kind+"&age=40", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", kind, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analysis/skin/baseline", nil))
	if !strings.Contains(rec.Body.String(), `"overallScore":61`) {
		t.Fatalf("expected comprehensive age-35 default, got %s", rec.Body.String())
	}

	for _, q := range []string{"?type=bogus", "?age=abc", "?age=0"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analysis/skin/baseline"+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestGetAnalysisScopedToClinic(t *testing.T) {
	p := newPipeline(t, "professional")
	r := newTestRouter(t, p.svc, p.cache)
	created := postJSON(t, r, "/api/v1/analysis/skin", janeRequest())
	var resp Response
	if err := json.Unmarshal(created.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	get := func(id, clinic string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+id, nil)
		if clinic != "" {
			req.Header.Set("X-Clinic-Id", clinic)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := get(resp.AnalysisID, "clinic-1"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := get(resp.AnalysisID, "clinic-2"); code != http.StatusNotFound {
		t.Fatalf("expected 404 for other clinic, got %d", code)
	}
	if code := get("missing", ""); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestGetImageServesArchivedPhoto(t *testing.T) {
	p := newPipeline(t, "professional")
	p.svc.opts.Archive = local.New(t.TempDir())
	r := newTestRouter(t, p.svc, p.cache)
	created := postJSON(t, r, "/api/v1/analysis/skin", janeRequest())
	var resp Response
	if err := json.Unmarshal(created.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	get := func(clinic string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+resp.AnalysisID+"/image", nil)
		if clinic != "" {
			req.Header.Set("X-Clinic-Id", clinic)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := get("clinic-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}
	want, _ := base64.StdEncoding.DecodeString(pngImage)
	if !bytes.Equal(rec.Body.Bytes(), want) {
		t.Fatalf("expected archived bytes back, got %d bytes", rec.Body.Len())
	}
	if code := get("clinic-2").Code; code != http.StatusNotFound {
		t.Fatalf("expected 404 for other clinic, got %d", code)
	}
	if code := get("").Code; code != http.StatusBadRequest {
		t.Fatalf("expected 400 without clinic, got %d", code)
	}
}

func TestGetImageWithoutArchive(t *testing.T) {
	p := newPipeline(t, "professional")
	r := newTestRouter(t, p.svc, p.cache)
	created := postJSON(t, r, "/api/v1/analysis/skin", janeRequest())
	var resp Response
	if err := json.Unmarshal(created.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+resp.AnalysisID+"/image", nil)
	req.Header.Set("X-Clinic-Id", "clinic-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListAnalysesRequiresClinic(t *testing.T) {
	p := newPipeline(t, "professional")
	r := newTestRouter(t, p.svc, p.cache)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analyses", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCacheStatsEndpoint(t *testing.T) {
	p := newPipeline(t, "professional")
	r := newTestRouter(t, p.svc, p.cache)
	postJSON(t, r, "/api/v1/analysis/skin", janeRequest())
	postJSON(t, r, "/api/v1/analysis/skin", janeRequest())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st scancache.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.ActiveEntries != 1 || st.QuotaSaved < 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}
