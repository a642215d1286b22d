package store

import "testing"

func TestValidItemTransition(t *testing.T) {
	cases := []struct {
		action string
		from   string
		valid  bool
	}{
		{"start", "WAITING", true},
		{"start", "IN_PROGRESS", false},
		{"complete", "IN_PROGRESS", true},
		{"complete", "WAITING", false},
		{"skip", "WAITING", true},
		{"skip", "IN_PROGRESS", false},
		{"cancel", "WAITING", true},
		{"cancel", "IN_PROGRESS", false},
		{"cancel", "COMPLETED", false},
		{"start", "CANCELLED", false},
		{"start", "SKIPPED", false},
		{"unknown", "WAITING", false},
	}

	for _, tt := range cases {
		if got := ValidItemTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidItemTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}

func TestValidQueueTransition(t *testing.T) {
	cases := []struct {
		action string
		from   string
		valid  bool
	}{
		{"pause", "ACTIVE", true},
		{"pause", "PAUSED", false},
		{"resume", "PAUSED", true},
		{"resume", "ACTIVE", false},
		{"close", "ACTIVE", true},
		{"close", "PAUSED", true},
		{"close", "CLOSED", false},
		{"resume", "CLOSED", false},
	}

	for _, tt := range cases {
		if got := ValidQueueTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidQueueTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}

func TestTargets(t *testing.T) {
	if status, ok := ItemTarget(ItemComplete); !ok || status != "COMPLETED" {
		t.Fatalf("unexpected complete target %q", status)
	}
	if status, ok := QueueTarget(QueueClose); !ok || status != "CLOSED" {
		t.Fatalf("unexpected close target %q", status)
	}
	if _, ok := ItemTarget("unknown"); ok {
		t.Fatalf("expected no target for unknown action")
	}
}
