package queue

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

func TestEventRoundTrip(t *testing.T) {
	evt := ScanEvent{
		AnalysisID:  "analysis-123",
		RequestID:   "request-456",
		TenantID:    "clinic-1",
		Fingerprint: "abc",
		Tier:        "primary",
		Score:       78,
		Successful:  true,
		AICostUSD:   "0.0123",
		CompletedAt: "2026-01-30T22:00:00Z",
		Version:     1,
	}

	payload, err := EncodeEvent(evt)
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}

	got, err := DecodeEvent(payload)
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}

	if !reflect.DeepEqual(got, evt) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, evt)
	}
}

func TestEncodeEventDefaultsVersion(t *testing.T) {
	payload, err := EncodeEvent(ScanEvent{AnalysisID: "a"})
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	got, _ := DecodeEvent(payload)
	if got.Version != EventVersion {
		t.Fatalf("expected version %d, got %d", EventVersion, got.Version)
	}
}

type fakeSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSPublisherSendsAttributes(t *testing.T) {
	fake := &fakeSQS{}
	p := &SQSPublisher{client: fake, queueURL: "https://sqs.example/queue"}

	if err := p.Publish(context.Background(), ScanEvent{AnalysisID: "a", TenantID: "clinic-9"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if aws.ToString(fake.input.QueueUrl) != "https://sqs.example/queue" {
		t.Fatalf("unexpected queue url %q", aws.ToString(fake.input.QueueUrl))
	}
	if got := aws.ToString(fake.input.MessageAttributes["clinicId"].StringValue); got != "clinic-9" {
		t.Fatalf("expected clinic attribute, got %q", got)
	}
	if got := aws.ToString(fake.input.MessageAttributes["tier"].StringValue); got != "unknown" {
		t.Fatalf("expected unknown tier attribute, got %q", got)
	}
}

func TestSQSPublisherWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	p := &SQSPublisher{client: &fakeSQS{err: boom}, queueURL: "q"}
	if err := p.Publish(context.Background(), ScanEvent{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewSQSPublisherRequiresURL(t *testing.T) {
	if _, err := NewSQSPublisher(context.Background(), "", "  "); err == nil {
		t.Fatalf("expected error for empty queue url")
	}
}
