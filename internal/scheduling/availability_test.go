package scheduling

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"queueless/scheduling-service/internal/eta"
	"queueless/scheduling-service/internal/models"
)

func TestCheckAvailabilityMarksBookedSlots(t *testing.T) {
	svc, st := newFixture(t, mondayService("09:00", "10:00"))
	st.PutAppointment(models.Appointment{
		AppointmentID:   "a-1",
		ServiceID:       serviceID,
		BusinessID:      businessID,
		CustomerID:      "c-9",
		AppointmentDate: monday(0, 0),
		SlotStart:       monday(9, 0),
		SlotEnd:         monday(9, 30),
		Status:          models.AppointmentBooked,
	})
	st.PutAppointment(models.Appointment{
		AppointmentID:   "a-2",
		ServiceID:       serviceID,
		BusinessID:      businessID,
		CustomerID:      "c-8",
		AppointmentDate: monday(0, 0),
		SlotStart:       monday(9, 30),
		SlotEnd:         monday(10, 0),
		Status:          models.AppointmentCancelled,
	})

	report, err := svc.CheckAvailability(context.Background(), serviceID, monday(0, 0), "", monday(7, 0))
	if err != nil {
		t.Fatalf("check availability: %v", err)
	}
	if len(report.Slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(report.Slots))
	}
	if report.Slots[0].Available || !report.Slots[1].Available {
		t.Fatalf("expected first slot booked and second free, got %+v", report.Slots)
	}
	if !report.Slots[0].Start.Equal(monday(9, 0)) || !report.Slots[1].End.Equal(monday(10, 0)) {
		t.Fatalf("unexpected slot bounds %+v", report.Slots)
	}

	queue := report.QueueAvailability
	if !queue.Available || queue.Position != 1 {
		t.Fatalf("expected an empty queue to accept walk-ins, got %+v", queue)
	}
	if !queue.EstimatedStartTime.Equal(monday(9, 0)) {
		t.Fatalf("expected projection from opening time, got %s", queue.EstimatedStartTime)
	}
}

func TestCheckAvailabilityClosedDay(t *testing.T) {
	svc, _ := newFixture(t, mondayService("09:00", "17:00"))
	tuesday := monday(0, 0).AddDate(0, 0, 1)

	report, err := svc.CheckAvailability(context.Background(), serviceID, tuesday, "", monday(8, 0))
	if err != nil {
		t.Fatalf("check availability: %v", err)
	}
	if report.Slots == nil || len(report.Slots) != 0 {
		t.Fatalf("expected empty slot list, got %v", report.Slots)
	}
	if report.QueueAvailability.Available || report.QueueAvailability.Reason != eta.ReasonClosedDay {
		t.Fatalf("expected closed-day result, got %+v", report.QueueAvailability)
	}
}

func TestCheckAvailabilityWithLiveQueue(t *testing.T) {
	svc, _ := newFixture(t, mondayService("09:00", "17:00"))
	mustJoin(t, svc, "c-1", monday(9, 50))
	mustJoin(t, svc, "c-2", monday(9, 55))
	mustJoin(t, svc, "c-3", monday(9, 55))

	now := monday(10, 0)
	report, err := svc.CheckAvailability(context.Background(), serviceID, monday(0, 0), "c-new", now)
	if err != nil {
		t.Fatalf("check availability: %v", err)
	}
	if want := now.Add(80 * time.Minute); !report.QueueAvailability.EstimatedStartTime.Equal(want) {
		t.Fatalf("expected ETA %s, got %s", want, report.QueueAvailability.EstimatedStartTime)
	}

	report, err = svc.CheckAvailability(context.Background(), serviceID, monday(0, 0), "c-2", now)
	if err != nil {
		t.Fatalf("check availability: %v", err)
	}
	if report.QueueAvailability.Available || report.QueueAvailability.Message != "You are already in queue" {
		t.Fatalf("expected already-in-queue result, got %+v", report.QueueAvailability)
	}
}

func TestCheckAvailabilityAfterClosing(t *testing.T) {
	svc, _ := newFixture(t, mondayService("09:00", "17:00"))

	report, err := svc.CheckAvailability(context.Background(), serviceID, monday(0, 0), "", monday(17, 30))
	if err != nil {
		t.Fatalf("check availability: %v", err)
	}
	if report.QueueAvailability.Available || report.QueueAvailability.Reason != eta.ReasonPastClosing {
		t.Fatalf("expected past-closing result, got %+v", report.QueueAvailability)
	}
}

func TestCheckAvailabilityDefaultsToServiceLocalDay(t *testing.T) {
	service := mondayService("09:00", "17:00")
	service.Timezone = "Asia/Tokyo"
	svc, _ := newFixture(t, service)

	// Sunday 16:00 UTC is already Monday 01:00 in Tokyo.
	now := monday(0, 0).Add(-8 * time.Hour)
	report, err := svc.CheckAvailability(context.Background(), serviceID, time.Time{}, "", now)
	if err != nil {
		t.Fatalf("check availability: %v", err)
	}
	if report.Date != "2025-03-10" {
		t.Fatalf("expected the Tokyo calendar day 2025-03-10, got %s", report.Date)
	}
	if len(report.Slots) != 16 {
		t.Fatalf("expected Monday's 16 slots, got %d", len(report.Slots))
	}
	if !report.QueueAvailability.Available || !report.QueueAvailability.EstimatedStartTime.Equal(monday(0, 0)) {
		t.Fatalf("expected projection from 09:00 Tokyo, got %+v", report.QueueAvailability)
	}
}
