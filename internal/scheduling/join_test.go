package scheduling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"queueless/scheduling-service/internal/models"
	"queueless/scheduling-service/internal/store"
	"queueless/scheduling-service/internal/store/memory"
)

func TestJoinConcurrentIssuesDistinctTokens(t *testing.T) {
	svc, st := newFixture(t, mondayService("09:00", "23:59"))
	now := monday(10, 0)

	const joins = 16
	var wg sync.WaitGroup
	results := make(chan JoinResult, joins)
	errs := make(chan error, joins)
	for i := 0; i < joins; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			result, err := svc.Join(context.Background(), serviceID, id, now)
			if err != nil {
				errs <- err
				return
			}
			results <- result
		}(string(rune('a' + i)))
	}
	wg.Wait()
	close(results)
	close(errs)
	for err := range errs {
		t.Fatalf("join: %v", err)
	}

	var tokens []int
	inProgress := 0
	for result := range results {
		tokens = append(tokens, result.TokenNumber)
		if result.Status == models.StatusInProgress {
			inProgress++
			if result.TokenNumber != 1 {
				t.Fatalf("expected token 1 in progress, got %d", result.TokenNumber)
			}
		}
	}
	sort.Ints(tokens)
	for i, token := range tokens {
		if token != i+1 {
			t.Fatalf("expected tokens 1..%d, got %v", joins, tokens)
		}
	}
	if inProgress != 1 {
		t.Fatalf("expected exactly one in-progress admission, got %d", inProgress)
	}

	queue, items := todaysItems(t, st)
	if queue.LastTokenIssued != joins || queue.CurrentToken != 1 {
		t.Fatalf("expected last token %d and current 1, got %d/%d", joins, queue.LastTokenIssued, queue.CurrentToken)
	}
	if len(items) != joins || len(queue.WalkInItems) != joins {
		t.Fatalf("expected %d items and refs, got %d/%d", joins, len(items), len(queue.WalkInItems))
	}
}

func TestJoinFirstAdmissionStartsService(t *testing.T) {
	svc, st := newFixture(t, mondayService("09:00", "17:00"))
	now := monday(10, 0)

	first := mustJoin(t, svc, "c-1", now)
	if first.TokenNumber != 1 || first.Status != models.StatusInProgress || first.Position != 1 {
		t.Fatalf("unexpected first admission %+v", first)
	}
	if !first.EstimatedStartTime.Equal(now) {
		t.Fatalf("expected first ETA now, got %s", first.EstimatedStartTime)
	}
	second := mustJoin(t, svc, "c-2", now)
	if second.TokenNumber != 2 || second.Status != models.StatusWaiting {
		t.Fatalf("unexpected second admission %+v", second)
	}

	_, items := todaysItems(t, st)
	if items[0].ActualStartTime == nil || !items[0].ActualStartTime.Equal(now) {
		t.Fatalf("expected first item started at %s", now)
	}
}

func TestJoinEstimateAccountsForServiceInProgress(t *testing.T) {
	svc, _ := newFixture(t, mondayService("09:00", "17:00"))

	mustJoin(t, svc, "c-1", monday(9, 50))
	mustJoin(t, svc, "c-2", monday(9, 55))
	mustJoin(t, svc, "c-3", monday(9, 55))

	now := monday(10, 0)
	result := mustJoin(t, svc, "c-4", now)
	if want := now.Add(80 * time.Minute); !result.EstimatedStartTime.Equal(want) {
		t.Fatalf("expected ETA %s, got %s", want, result.EstimatedStartTime)
	}
	if result.Position != 3 {
		t.Fatalf("expected position 3, got %d", result.Position)
	}
}

func TestJoinRejectsDoubleAdmission(t *testing.T) {
	svc, st := newFixture(t, mondayService("09:00", "17:00"))
	now := monday(10, 0)

	mustJoin(t, svc, "c-1", now)
	_, err := svc.Join(context.Background(), serviceID, "c-1", now)
	if !errors.Is(err, store.ErrAlreadyQueued) {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}
	if store.Message(err) != "You are already in queue" {
		t.Fatalf("unexpected message %q", store.Message(err))
	}
	queue, items := todaysItems(t, st)
	if len(items) != 1 || queue.LastTokenIssued != 1 {
		t.Fatalf("expected one item and token, got %d/%d", len(items), queue.LastTokenIssued)
	}
}

func TestJoinAfterLeavingIsAllowed(t *testing.T) {
	svc, _ := newFixture(t, mondayService("09:00", "17:00"))
	now := monday(10, 0)

	mustJoin(t, svc, "c-1", now)
	waiting := mustJoin(t, svc, "c-2", now)
	if _, err := svc.UpdateItem(context.Background(), customer("c-2"), waiting.ItemID, store.ItemCancel, now); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	again := mustJoin(t, svc, "c-2", now)
	if again.TokenNumber != 3 {
		t.Fatalf("expected a fresh token 3, got %d", again.TokenNumber)
	}
}

func TestJoinFailures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		target  string
		setup   func(t *testing.T, svc *Service, st *memory.Store)
		service models.Service
		now     time.Time
		kind    error
		message string
	}{
		{
			name:    "unknown service",
			target:  "missing",
			service: mondayService("09:00", "17:00"),
			now:     monday(10, 0),
			kind:    store.ErrNotFound,
		},
		{
			name: "inactive service",
			service: func() models.Service {
				s := mondayService("09:00", "17:00")
				s.IsActive = false
				return s
			}(),
			now:     monday(10, 0),
			kind:    store.ErrInactive,
			message: "Service is not active",
		},
		{
			name:    "inactive business",
			service: mondayService("09:00", "17:00"),
			setup: func(t *testing.T, svc *Service, st *memory.Store) {
				st.PutBusiness(models.Business{BusinessID: businessID, OwnerID: ownerID, IsActive: false})
			},
			now:     monday(10, 0),
			kind:    store.ErrInactive,
			message: "Business is not active",
		},
		{
			name:    "no schedule entry",
			service: mondayService("09:00", "17:00"),
			now:     monday(10, 0).AddDate(0, 0, 1),
			kind:    store.ErrClosedToday,
		},
		{
			name:    "schedule entry closed",
			service: mondayService("09:00", "17:00"),
			now:     monday(10, 0).AddDate(0, 0, -1),
			kind:    store.ErrClosedToday,
		},
		{
			name:    "queue closed",
			service: mondayService("09:00", "17:00"),
			setup: func(t *testing.T, svc *Service, st *memory.Store) {
				mustJoin(t, svc, "c-0", monday(9, 0))
				if _, err := svc.UpdateQueue(ctx, owner(), serviceID, store.QueueClose, monday(9, 30)); err != nil {
					t.Fatalf("close: %v", err)
				}
			},
			now:     monday(10, 0),
			kind:    store.ErrQueueClosed,
			message: "Queue is closed",
		},
		{
			name:    "queue paused",
			service: mondayService("09:00", "17:00"),
			setup: func(t *testing.T, svc *Service, st *memory.Store) {
				mustJoin(t, svc, "c-0", monday(9, 0))
				if _, err := svc.UpdateQueue(ctx, owner(), serviceID, store.QueuePause, monday(9, 30)); err != nil {
					t.Fatalf("pause: %v", err)
				}
			},
			now:     monday(10, 0),
			kind:    store.ErrQueueClosed,
			message: "Queue is paused",
		},
		{
			name:    "past closing",
			service: mondayService("09:00", "11:00"),
			setup: func(t *testing.T, svc *Service, st *memory.Store) {
				for _, id := range []string{"c-1", "c-2", "c-3"} {
					mustJoin(t, svc, id, monday(10, 0))
				}
			},
			now:     monday(10, 0),
			kind:    store.ErrCapacityExceeded,
			message: "Estimated service time exceeds today's working hours. Please book an appointment for another day",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, st := newFixture(t, tc.service)
			if tc.setup != nil {
				tc.setup(t, svc, st)
			}
			target := serviceID
			if tc.target != "" {
				target = tc.target
			}
			_, err := svc.Join(ctx, target, "c-new", tc.now)
			if !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			if tc.message != "" && store.Message(err) != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, store.Message(err))
			}
		})
	}
}

func TestJoinRetriesConflicts(t *testing.T) {
	base, _ := newFixture(t, mondayService("09:00", "17:00"))
	flaky := &conflictingStore{Store: base.store, failures: 2}
	svc := New(flaky, Options{Logger: testLogger(), ConflictRetries: retries(3)})

	result, err := svc.Join(context.Background(), serviceID, "c-1", monday(10, 0))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if result.TokenNumber != 1 || flaky.calls != 3 {
		t.Fatalf("expected token 1 after 3 attempts, got token %d after %d", result.TokenNumber, flaky.calls)
	}
}

func TestJoinSurfacesConflictAfterRetries(t *testing.T) {
	base, _ := newFixture(t, mondayService("09:00", "17:00"))
	flaky := &conflictingStore{Store: base.store, failures: 100}
	svc := New(flaky, Options{Logger: testLogger(), ConflictRetries: retries(2)})

	_, err := svc.Join(context.Background(), serviceID, "c-1", monday(10, 0))
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if flaky.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", flaky.calls)
	}
}

func TestJoinZeroRetriesRunsOnce(t *testing.T) {
	base, _ := newFixture(t, mondayService("09:00", "17:00"))
	flaky := &conflictingStore{Store: base.store, failures: 1}
	svc := New(flaky, Options{Logger: testLogger(), ConflictRetries: retries(0)})

	if _, err := svc.Join(context.Background(), serviceID, "c-1", monday(10, 0)); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict without retries, got %v", err)
	}
	if flaky.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", flaky.calls)
	}
}

func TestJoinDefaultRetries(t *testing.T) {
	base, _ := newFixture(t, mondayService("09:00", "17:00"))
	flaky := &conflictingStore{Store: base.store, failures: 100}
	svc := New(flaky, Options{Logger: testLogger()})

	if _, err := svc.Join(context.Background(), serviceID, "c-1", monday(10, 0)); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if flaky.calls != 4 {
		t.Fatalf("expected 1 attempt plus 3 retries, got %d", flaky.calls)
	}
}
