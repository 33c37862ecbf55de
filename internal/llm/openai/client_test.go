package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"skinscan-backend/internal/llm"
)

func TestIsReasoningModel(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "gpt5", model: "gpt-5", want: true},
		{name: "gpt5 variant", model: "gpt-5-mini", want: true},
		{name: "o3 uppercase", model: " O3-mini ", want: true},
		{name: "gpt4o", model: "gpt-4o", want: false},
		{name: "empty", model: "", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := isReasoningModel(tt.model); got != tt.want {
				t.Fatalf("isReasoningModel(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestCost(t *testing.T) {
	rate := decimal.RequireFromString("0.005")
	if got := Cost(2000, rate); !got.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("expected 0.01, got %s", got)
	}
	if got := Cost(0, rate); !got.IsZero() {
		t.Fatalf("expected zero cost, got %s", got)
	}
}

func TestAnalyzeSendsImageAndPricesUsage(t *testing.T) {
	var mu sync.Mutex
	var lastBody map[string]any
	var lastAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		lastBody = payload
		lastAuth = r.Header.Get("Authorization")
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"{\"overallScore\":81}"}}],"usage":{"prompt_tokens":900,"completion_tokens":100,"total_tokens":1000}}`))
	}))
	defer server.Close()

	client, err := NewClient(Options{
		APIKey:    "test-key",
		BaseURL:   server.URL,
		CostPer1K: decimal.RequireFromString("0.005"),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	out, err := client.Analyze(context.Background(), llm.Input{
		Image:    []byte{0xff, 0xd8, 0xff},
		MimeType: "image/jpeg",
		Age:      35,
		Context:  "Skin Type: oily (80% confidence)",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.Raw != `{"overallScore":81}` {
		t.Fatalf("unexpected raw %q", out.Raw)
	}
	if !out.CostUSD.Equal(decimal.RequireFromString("0.005")) || out.Tokens != 1000 {
		t.Fatalf("unexpected cost %s tokens %d", out.CostUSD, out.Tokens)
	}

	mu.Lock()
	defer mu.Unlock()
	if lastAuth != "Bearer test-key" {
		t.Fatalf("unexpected auth header %q", lastAuth)
	}
	if lastBody["model"] != "gpt-4o" {
		t.Fatalf("expected default model, got %v", lastBody["model"])
	}
	raw, _ := json.Marshal(lastBody["messages"])
	if !strings.Contains(string(raw), "data:image/jpeg;base64,") || !strings.Contains(string(raw), "Skin Type: oily") {
		t.Fatalf("expected image data url and brief in messages: %s", raw)
	}
}

func TestAnalyzeSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream down","type":"server_error"}}`))
	}))
	defer server.Close()

	client, err := NewClient(Options{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Analyze(context.Background(), llm.Input{Image: []byte("img"), Age: 30})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !llm.ShouldRetry(err) {
		t.Fatalf("expected 5xx to be retryable, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Fatalf("expected missing key error")
	}
}
