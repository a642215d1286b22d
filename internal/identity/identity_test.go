package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestVerifyRoundTrip(t *testing.T) {
	verifier := NewVerifier("secret", "")
	now := time.Now()
	token, err := verifier.Issue(User{ID: "u-1", Role: "owner", OwnedBusinessIDs: []string{"b-1"}}, time.Hour, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	user, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if user.ID != "u-1" || user.Role != "owner" {
		t.Fatalf("unexpected user %+v", user)
	}
	if !user.IsAdminOf("b-1") {
		t.Fatalf("expected owner to administer b-1")
	}
	if user.IsAdminOf("b-2") || user.IsAdmin() {
		t.Fatalf("expected owner to be limited to b-1")
	}
}

func TestVerifyAdminRole(t *testing.T) {
	verifier := NewVerifier("secret", "platform-admin")
	token, err := verifier.Issue(User{ID: "root", Role: "platform-admin"}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	user, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !user.IsAdmin() || !user.IsAdminOf("any-business") {
		t.Fatalf("expected admin rights, got %+v", user)
	}
}

func TestVerifyRejects(t *testing.T) {
	verifier := NewVerifier("secret", "")
	expired, err := verifier.Issue(User{ID: "u-1"}, time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	foreign, err := NewVerifier("other", "").Issue(User{ID: "u-1"}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	anonymous, err := verifier.Issue(User{}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "expired", token: expired},
		{name: "wrong secret", token: foreign},
		{name: "missing subject", token: anonymous},
		{name: "garbage", token: "not-a-jwt"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := verifier.Verify(tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestCurrentUser(t *testing.T) {
	if _, ok := CurrentUser(context.Background()); ok {
		t.Fatalf("expected no user on empty context")
	}
	ctx := WithUser(context.Background(), User{ID: "u-9"})
	user, ok := CurrentUser(ctx)
	if !ok || user.ID != "u-9" {
		t.Fatalf("expected u-9, got %+v ok=%v", user, ok)
	}
}
