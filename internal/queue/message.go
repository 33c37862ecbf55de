package queue

import (
	"context"
	"encoding/json"
)

// EventVersion is bumped when ScanEvent gains a breaking change.
const EventVersion = 1

// ScanEvent announces a finished scan to downstream consumers (billing, CRM sync).
type ScanEvent struct {
	AnalysisID  string  `json:"analysisId"`
	RequestID   string  `json:"requestId,omitempty"`
	TenantID    string  `json:"clinicId"`
	UserID      string  `json:"userId,omitempty"`
	Fingerprint string  `json:"fingerprint"`
	Tier        string  `json:"tier"`
	Score       float64 `json:"overallScore"`
	Successful  bool    `json:"successful"`
	Charged     bool    `json:"charged"`
	AICostUSD   string  `json:"aiCostUsd"`
	CompletedAt string  `json:"completedAt"`
	Version     int     `json:"version"`
}

// Publisher sends scan events to a queue backend.
type Publisher interface {
	Publish(ctx context.Context, evt ScanEvent) error
}

// EncodeEvent returns the JSON representation of an event.
func EncodeEvent(evt ScanEvent) ([]byte, error) {
	if evt.Version == 0 {
		evt.Version = EventVersion
	}
	return json.Marshal(evt)
}

// DecodeEvent parses a JSON payload into a ScanEvent.
func DecodeEvent(payload []byte) (ScanEvent, error) {
	var evt ScanEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return ScanEvent{}, err
	}
	return evt, nil
}

// Discard drops every event. Used when no queue is configured.
type Discard struct{}

func (Discard) Publish(context.Context, ScanEvent) error { return nil }
