package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"skinscan-backend/internal/vision"
)

const (
	defaultBaseURL = "https://api-inference.huggingface.co/models"
	maxErrorBody   = 512
)

// APIError is a non-2xx response from the inference API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("huggingface status %d: %s", e.StatusCode, e.Message)
}

// Client calls hosted image classifiers on the Hugging Face inference API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a client. The token is attached as a bearer credential on
// every request; an empty token sends anonymous requests.
func New(ctx context.Context, token, baseURL string, timeout time.Duration) *Client {
	var hc *http.Client
	if strings.TrimSpace(token) != "" {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
		}))
	} else {
		hc = &http.Client{}
	}
	if timeout > 0 {
		hc.Timeout = timeout
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: hc}
}

// Classify posts raw image bytes to the model and returns its predictions.
func (c *Client) Classify(ctx context.Context, modelID string, image []byte) ([]vision.Prediction, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("huggingface %s: empty image", modelID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+strings.TrimLeft(modelID, "/"), bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface %s: %w", modelID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("huggingface %s read body: %w", modelID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return decodePredictions(body)
}

// decodePredictions accepts both the flat [{label,score}] shape and the
// batched [[{label,score}]] shape.
func decodePredictions(body []byte) ([]vision.Prediction, error) {
	var flat []vision.Prediction
	if err := json.Unmarshal(body, &flat); err == nil {
		return flat, nil
	}
	var nested [][]vision.Prediction
	if err := json.Unmarshal(body, &nested); err == nil {
		if len(nested) == 0 {
			return nil, nil
		}
		return nested[0], nil
	}
	return nil, fmt.Errorf("decode predictions: unexpected payload %q", truncate(string(body)))
}

func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return truncate(strings.TrimSpace(string(body)))
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}

var _ vision.Provider = (*Client)(nil)
