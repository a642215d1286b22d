package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestWithMessageMatchesKind(t *testing.T) {
	err := fmt.Errorf("join: %w", WithMessage(ErrCapacityExceeded, "closing soon"))
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected kind to match")
	}
	if got := Message(err); got != "closing soon" {
		t.Fatalf("unexpected message %q", got)
	}
	if !errors.Is(ErrServiceNotFound, ErrNotFound) {
		t.Fatalf("expected service not found to be a not found kind")
	}
	if Message(errors.New("boom")) != "" {
		t.Fatalf("expected empty message for untagged error")
	}
}
