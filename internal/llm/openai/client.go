package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"

	"skinscan-backend/internal/llm"
	"skinscan-backend/internal/shared/telemetry"
)

const (
	defaultModel     = "gpt-4o"
	defaultMaxTokens = 1500
	defaultTimeout   = 15 * time.Second
)

// Options configures the vision client.
type Options struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
	// CostPer1K is the USD price per thousand total tokens.
	CostPer1K decimal.Decimal
}

// Client implements llm.Analyzer on OpenAI vision chat completions.
type Client struct {
	api       *goopenai.Client
	model     string
	maxTokens int
	costPer1K decimal.Decimal
}

// NewClient constructs the primary analyzer client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	cfg := goopenai.DefaultConfig(opts.APIKey)
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.BaseURL = strings.TrimRight(base, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		api:       goopenai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: maxTokens,
		costPer1K: opts.CostPer1K,
	}, nil
}

// Model returns the configured model id.
func (c *Client) Model() string {
	return c.model
}

// Analyze sends the image, age and grounding brief in one request.
func (c *Client) Analyze(ctx context.Context, input llm.Input) (llm.Output, error) {
	if len(input.Image) == 0 {
		return llm.Output{}, errors.New("openai: image is required")
	}
	req := goopenai.ChatCompletionRequest{
		Model:    c.model,
		Messages: BuildMessages(input),
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	if isReasoningModel(c.model) {
		req.MaxCompletionTokens = c.maxTokens
	} else {
		req.MaxTokens = c.maxTokens
		req.Temperature = 0.2
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return llm.Output{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Output{}, errors.New("openai response missing choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return llm.Output{}, errors.New("openai response empty content")
	}

	cost := Cost(resp.Usage.TotalTokens, c.costPer1K)
	telemetry.Info("llm.response", map[string]any{
		"model":             c.model,
		"prompt_hash":       promptHash(req.Messages),
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"total_tokens":      resp.Usage.TotalTokens,
		"cost_usd":          cost.String(),
		"latency_ms":        time.Since(start).Milliseconds(),
	})

	return llm.Output{
		Raw:     content,
		CostUSD: cost,
		Model:   c.model,
		Tokens:  resp.Usage.TotalTokens,
	}, nil
}

// Cost prices totalTokens at costPer1K USD per thousand.
func Cost(totalTokens int, costPer1K decimal.Decimal) decimal.Decimal {
	if totalTokens <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(totalTokens)).Div(decimal.NewFromInt(1000)).Mul(costPer1K)
}

func dataURL(image []byte, mime string) string {
	if strings.TrimSpace(mime) == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
}

func isReasoningModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

var _ llm.Analyzer = (*Client)(nil)
