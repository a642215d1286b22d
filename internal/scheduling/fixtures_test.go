package scheduling

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"queueless/scheduling-service/internal/identity"
	"queueless/scheduling-service/internal/models"
	"queueless/scheduling-service/internal/store"
	"queueless/scheduling-service/internal/store/memory"
)

const (
	businessID = "b-1"
	serviceID  = "s-1"
	ownerID    = "owner-1"
)

// monday is 2025-03-10, a Monday.
func monday(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mondayService(opens, closes string) models.Service {
	return models.Service{
		ServiceID:          serviceID,
		BusinessID:         businessID,
		Name:               "Checkup",
		IsActive:           true,
		AvgDurationMinutes: 20,
		BufferMinutes:      10,
		WeeklySchedule: []models.DaySchedule{
			{Day: "monday", OpensAt: opens, ClosesAt: closes, IsOpen: true},
			{Day: "sunday", OpensAt: "09:00", ClosesAt: "17:00", IsOpen: false},
		},
	}
}

func newFixture(t *testing.T, service models.Service) (*Service, *memory.Store) {
	t.Helper()
	st := memory.NewStore()
	st.PutBusiness(models.Business{BusinessID: businessID, OwnerID: ownerID, Name: "Clinic", IsActive: true})
	st.PutService(service)
	return New(st, Options{Logger: testLogger()}), st
}

func owner() identity.User {
	return identity.User{ID: ownerID, Role: "owner", OwnedBusinessIDs: []string{businessID}}
}

// admin verifies a freshly signed token carrying the admin role, the same path
// a platform administrator takes through the HTTP surface.
func admin(t *testing.T) identity.User {
	t.Helper()
	verifier := identity.NewVerifier("test-secret", "admin")
	token, err := verifier.Issue(identity.User{ID: "root", Role: "admin"}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue admin token: %v", err)
	}
	user, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify admin token: %v", err)
	}
	return user
}

func customer(id string) identity.User {
	return identity.User{ID: id, Role: "customer"}
}

func mustJoin(t *testing.T, svc *Service, customerID string, now time.Time) JoinResult {
	t.Helper()
	result, err := svc.Join(context.Background(), serviceID, customerID, now)
	if err != nil {
		t.Fatalf("join %s: %v", customerID, err)
	}
	return result
}

func todaysItems(t *testing.T, st *memory.Store) (models.ServiceQueue, []models.QueueItem) {
	t.Helper()
	ctx := context.Background()
	queue, found, err := st.GetQueue(ctx, serviceID, monday(0, 0))
	if err != nil || !found {
		t.Fatalf("get queue: found=%v err=%v", found, err)
	}
	items, err := st.ListItems(ctx, queue.QueueID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	return queue, items
}

func retries(n int) *int {
	return &n
}

// conflictingStore fails the first failures transactions with ErrConflict.
type conflictingStore struct {
	store.Store
	failures int
	calls    int
}

func (s *conflictingStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.calls++
	if s.calls <= s.failures {
		return store.ErrConflict
	}
	return s.Store.InTx(ctx, fn)
}
