package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"queueless/scheduling-service/internal/models"
	"queueless/scheduling-service/internal/store"
)

func TestDeactivateBusinessCascade(t *testing.T) {
	svc, st := newFixture(t, mondayService("09:00", "17:00"))
	ctx := context.Background()
	st.PutAppointment(models.Appointment{
		AppointmentID:   "a-1",
		ServiceID:       serviceID,
		BusinessID:      businessID,
		AppointmentDate: monday(0, 0),
		SlotStart:       monday(15, 0),
		SlotEnd:         monday(15, 30),
		Status:          models.AppointmentBooked,
	})
	mustJoin(t, svc, "c-1", monday(9, 0))
	mustJoin(t, svc, "c-2", monday(9, 1))
	mustJoin(t, svc, "c-3", monday(9, 2))

	if _, err := svc.DeactivateBusiness(ctx, customer("c-1"), businessID, monday(9, 5)); !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	result, err := svc.DeactivateBusiness(ctx, owner(), businessID, monday(9, 5))
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	want := store.CascadeResult{ServicesDeactivated: 1, QueuesClosed: 1, ItemsCancelled: 2, AppointmentsCancelled: 1}
	if result != want {
		t.Fatalf("expected %+v, got %+v", want, result)
	}

	queue, items := todaysItems(t, st)
	if queue.Status != models.QueueClosed {
		t.Fatalf("expected queue closed, got %s", queue.Status)
	}
	if items[0].Status != models.StatusInProgress {
		t.Fatalf("expected in-progress item untouched, got %s", items[0].Status)
	}
	for _, item := range items[1:] {
		if item.Status != models.StatusCancelled {
			t.Fatalf("expected waiting item cancelled, got %s", item.Status)
		}
	}

	_, err = svc.Join(ctx, serviceID, "c-4", monday(9, 10))
	if !errors.Is(err, store.ErrInactive) {
		t.Fatalf("expected ErrInactive after deactivation, got %v", err)
	}

	events, err := svc.Events(ctx, admin(t), time.Time{}, 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	last := events[len(events)-1]
	if last.Type != store.EventBusinessDisabled || last.AggregateID != businessID {
		t.Fatalf("expected business deactivation event last, got %+v", last)
	}
}

func TestDeactivateServiceLeavesSiblingsAlone(t *testing.T) {
	svc, st := newFixture(t, mondayService("09:00", "17:00"))
	ctx := context.Background()
	sibling := mondayService("09:00", "17:00")
	sibling.ServiceID = "s-2"
	st.PutService(sibling)

	mustJoin(t, svc, "c-1", monday(9, 0))
	if _, err := svc.Join(ctx, "s-2", "c-1", monday(9, 0)); err != nil {
		t.Fatalf("join sibling: %v", err)
	}

	result, err := svc.DeactivateService(ctx, admin(t), serviceID, monday(9, 5))
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if result.ServicesDeactivated != 0 || result.QueuesClosed != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, err := svc.Join(ctx, "s-2", "c-2", monday(9, 10)); err != nil {
		t.Fatalf("expected sibling service to keep accepting joins: %v", err)
	}
	business, err := st.GetBusiness(ctx, businessID)
	if err != nil || !business.IsActive {
		t.Fatalf("expected business to stay active, got %+v err=%v", business, err)
	}
}

func TestEventsRequiresAdmin(t *testing.T) {
	svc, _ := newFixture(t, mondayService("09:00", "17:00"))
	mustJoin(t, svc, "c-1", monday(9, 0))

	if _, err := svc.Events(context.Background(), owner(), time.Time{}, 10); !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	events, err := svc.Events(context.Background(), admin(t), time.Time{}, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || events[0].Type != store.EventItemJoined {
		t.Fatalf("expected one joined event, got %+v", events)
	}
}
