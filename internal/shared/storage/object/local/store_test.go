package local

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestPutAndOpenRoundTrip(t *testing.T) {
	store := New(t.TempDir())
	jpeg := []byte("\xff\xd8\xff\xe0fake-jpeg")

	key, err := store.Put(context.Background(), "clinic-1", "analysis-1", jpeg)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasSuffix(key, "analysis-1.jpg") {
		t.Fatalf("expected jpg key, got %q", key)
	}
	rc, err := store.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != string(jpeg) {
		t.Fatalf("round trip mismatch")
	}
}

func TestOpenRejectsTraversal(t *testing.T) {
	store := New(t.TempDir())
	if _, err := store.Open(context.Background(), "../secret"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
}
