package llm

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Analyzer is the primary contextual vision provider.
type Analyzer interface {
	Analyze(ctx context.Context, input Input) (Output, error)
}

// Input captures what the primary analyzer sees for one scan.
type Input struct {
	Image    []byte
	MimeType string
	Age      int
	// Context is the grounding brief from the fan-out; empty is valid.
	Context string
}

// Output is the raw provider answer plus its cost.
type Output struct {
	Raw     string
	CostUSD decimal.Decimal
	Model   string
	Tokens  int
}

// ErrNotConfigured is returned by Disabled.
var ErrNotConfigured = errors.New("primary analyzer not configured")

// Disabled stands in when no provider credentials are configured.
type Disabled struct{}

// Analyze returns ErrNotConfigured.
func (Disabled) Analyze(context.Context, Input) (Output, error) {
	return Output{}, ErrNotConfigured
}
