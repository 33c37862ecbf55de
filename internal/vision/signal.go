// Package vision describes the multi-model vision provider used by the
// fan-out stage: which models run, how their raw predictions map to
// ModelSignal values, and the provider contract.
package vision

import (
	"context"
	"time"
)

// Task names a kind of classification the fan-out can run.
type Task string

const (
	TaskSkinType  Task = "skin_type"
	TaskAge       Task = "age"
	TaskCondition Task = "condition"
	TaskAcne      Task = "acne"
)

// Prediction is one label/score pair returned by a classifier.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Provider runs one hosted classifier against an image.
type Provider interface {
	Classify(ctx context.Context, modelID string, image []byte) ([]Prediction, error)
}

// Condition is one detected skin condition.
type Condition struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// ModelSignal is the interpreted output of one fan-out call.
type ModelSignal struct {
	ModelID    string        `json:"modelId"`
	Name       string        `json:"name"`
	Task       Task          `json:"task"`
	Label      string        `json:"label,omitempty"`
	Confidence float64       `json:"confidence"`
	Value      float64       `json:"value,omitempty"`
	AgeRange   string        `json:"ageRange,omitempty"`
	Conditions []Condition   `json:"conditions,omitempty"`
	Latency    time.Duration `json:"latency"`
	OK         bool          `json:"ok"`
}
