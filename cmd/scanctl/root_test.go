package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"skinscan-backend/internal/bootstrap"
	"skinscan-backend/internal/shared/config"
)

func memoryBuilder(t *testing.T) appBuilder {
	t.Helper()
	cfg := config.Config{
		Env:                "dev",
		CacheStore:         "memory",
		CacheTTL:           time.Hour,
		DefaultQuotaPlan:   "professional",
		ObjectStoreType:    "none",
		PrimaryProvider:    "openai",
		PrimaryModel:       "gpt-4o",
		FanoutTimeout:      time.Second,
		FanoutConcurrency:  2,
		PrimaryTimeout:     time.Second,
		RateLimitPerMinute: 60,
		RateLimitBurst:     10,
	}
	return func(ctx context.Context) (*bootstrap.App, error) {
		return bootstrap.Build(ctx, cfg)
	}
}

func execute(t *testing.T, build appBuilder, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(build)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBaselineCommand(t *testing.T) {
	out, err := execute(t, memoryBuilder(t), "baseline", "--age", "35")
	if err != nil {
		t.Fatalf("baseline: %v", err)
	}
	var res struct {
		OverallScore int `json:"overallScore"`
		SkinAge      int `json:"skinAge"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.OverallScore != 61 || res.SkinAge != 37 {
		t.Fatalf("unexpected baseline %+v", res)
	}

	if _, err := execute(t, memoryBuilder(t), "baseline", "--type", "bogus"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
	if _, err := execute(t, memoryBuilder(t), "baseline", "--age", "0"); err == nil {
		t.Fatalf("expected error for zero age")
	}
}

func TestAnalyzeCommandWithoutClinicStaysOnBaseline(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "face.png")
	if err := os.WriteFile(img, append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...), 0o600); err != nil {
		t.Fatalf("write image: %v", err)
	}

	out, err := execute(t, memoryBuilder(t), "analyze", "--age", "35", "--image", img)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var resp struct {
		AnalysisID string `json:"analysisId"`
		Analysis   struct {
			OverallScore int `json:"overallScore"`
		} `json:"analysis"`
		AIPowered bool `json:"aiPowered"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if resp.AnalysisID == "" || resp.AIPowered || resp.Analysis.OverallScore != 61 {
		t.Fatalf("unexpected response %s", out)
	}
}

func TestAnalyzeCommandRequiresAge(t *testing.T) {
	if _, err := execute(t, memoryBuilder(t), "analyze"); err == nil {
		t.Fatalf("expected missing --age error")
	}
}

func TestQuotaShowAndReset(t *testing.T) {
	for _, sub := range []string{"show", "reset"} {
		out, err := execute(t, memoryBuilder(t), "quota", sub, "clinic-1")
		if err != nil {
			t.Fatalf("quota %s: %v", sub, err)
		}
		var u struct {
			Plan      string `json:"plan"`
			Limit     int    `json:"limit"`
			Remaining int    `json:"remaining"`
		}
		if err := json.Unmarshal([]byte(out), &u); err != nil {
			t.Fatalf("decode %q: %v", out, err)
		}
		if u.Plan != "professional" || u.Limit != 200 || u.Remaining != 200 {
			t.Fatalf("quota %s: unexpected usage %+v", sub, u)
		}
	}

	if _, err := execute(t, memoryBuilder(t), "quota", "show"); err == nil {
		t.Fatalf("expected argument error")
	}
}
