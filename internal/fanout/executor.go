// Package fanout dispatches the registered vision models concurrently and
// joins on all of them, keeping whichever calls succeed.
package fanout

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"skinscan-backend/internal/shared/metrics"
	"skinscan-backend/internal/shared/telemetry"
	"skinscan-backend/internal/vision"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultConcurrency = 4
)

// Result is the joined outcome of one fan-out.
type Result struct {
	Signals          []vision.ModelSignal `json:"signals"`
	ModelsUsed       []string             `json:"modelsUsed"`
	ProcessingTimeMs int64                `json:"processingTimeMs"`
}

// Executor runs every registered model against one image.
type Executor struct {
	provider    vision.Provider
	models      []vision.Model
	timeout     time.Duration
	concurrency int
}

// New constructs an Executor. Non-positive timeout or concurrency use the defaults.
func New(provider vision.Provider, models []vision.Model, timeout time.Duration, concurrency int) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Executor{provider: provider, models: models, timeout: timeout, concurrency: concurrency}
}

// Models returns the registry the executor dispatches.
func (e *Executor) Models() []vision.Model {
	return e.models
}

// RunAll dispatches one call per model, each bounded by the per-call
// timeout, and waits for all of them. Failed, timed-out and panicking
// calls are left out of Signals and ModelsUsed; an empty result is valid.
func (e *Executor) RunAll(ctx context.Context, image []byte) Result {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "fanout.Executor.RunAll",
		trace.WithAttributes(attribute.Int("fanout.models", len(e.models))),
	)
	defer span.End()

	slots := make([]*vision.ModelSignal, len(e.models))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, m := range e.models {
		g.Go(func() error {
			sig, err := e.call(ctx, m, image)
			if err != nil {
				telemetry.Warn("fanout.model_failed", map[string]any{
					"model": m.Name,
					"task":  string(m.Task),
					"error": err.Error(),
				})
				return nil
			}
			slots[i] = &sig
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Signals: []vision.ModelSignal{}, ModelsUsed: []string{}}
	for _, sig := range slots {
		if sig == nil {
			continue
		}
		res.Signals = append(res.Signals, *sig)
		res.ModelsUsed = append(res.ModelsUsed, sig.Name)
	}
	res.ProcessingTimeMs = time.Since(start).Milliseconds()

	span.SetAttributes(
		attribute.Int("fanout.succeeded", len(res.Signals)),
		attribute.Int64("fanout.processing_ms", res.ProcessingTimeMs),
	)
	if len(res.Signals) == 0 && len(e.models) > 0 {
		span.SetStatus(codes.Error, "all models failed")
	}
	return res
}

func (e *Executor) call(parent context.Context, m vision.Model, image []byte) (sig vision.ModelSignal, err error) {
	ctx, cancel := context.WithTimeout(parent, e.timeout)
	defer cancel()

	ctx, span := telemetry.Tracer().Start(ctx, "fanout.Executor.call",
		trace.WithAttributes(
			attribute.String("model.name", m.Name),
			attribute.String("model.id", m.ID),
			attribute.String("model.task", string(m.Task)),
		),
	)
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("model %s panicked: %v", m.Name, rec)
		}
		latency := time.Since(start)
		metrics.ObserveModelCall(m.Name, err == nil, latency)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	preds, err := e.provider.Classify(ctx, m.ID, image)
	if err != nil {
		return vision.ModelSignal{}, err
	}
	if err := ctx.Err(); err != nil {
		return vision.ModelSignal{}, err
	}
	sig, err = vision.Interpret(m, preds)
	if err != nil {
		return vision.ModelSignal{}, err
	}
	sig.Latency = time.Since(start)
	return sig, nil
}
