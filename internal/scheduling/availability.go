package scheduling

import (
	"context"
	"time"

	"queueless/scheduling-service/internal/eta"
	"queueless/scheduling-service/internal/models"
	"queueless/scheduling-service/internal/slots"

	"go.opentelemetry.io/otel/attribute"
)

const (
	messageClosedOnDay   = "Service is closed on this day"
	messageAlreadyInLine = "You are already in queue"
)

type AvailabilityReport struct {
	Date              string       `json:"date"`
	Slots             []slots.Slot `json:"slots"`
	QueueAvailability eta.Result   `json:"queue_availability"`
}

// CheckAvailability lists the bookable slots of date and projects where a
// walk-in joining that day would land. date is a calendar day; its clock and
// location are ignored. A zero date means today in the service timezone, the
// day a join at now would use. The projection starts at opening time when now
// is earlier than that.
func (s *Service) CheckAvailability(ctx context.Context, serviceID string, date time.Time, customerID string, now time.Time) (AvailabilityReport, error) {
	ctx, span := s.startSpan(ctx, "CheckAvailability", attribute.String("service.id", serviceID))
	report, err := s.checkAvailability(ctx, serviceID, date, customerID, now)
	endSpan(span, err)
	return report, err
}

func (s *Service) checkAvailability(ctx context.Context, serviceID string, date time.Time, customerID string, now time.Time) (AvailabilityReport, error) {
	service, _, err := activeService(ctx, s.store, serviceID)
	if err != nil {
		return AvailabilityReport{}, err
	}
	loc := service.Location()
	if date.IsZero() {
		date = models.QueueDay(now, loc)
	}
	report := AvailabilityReport{Date: date.Format("2006-01-02"), Slots: []slots.Slot{}}

	day, opening, closing, open, err := dayWindow(service, date)
	if err != nil {
		return AvailabilityReport{}, err
	}
	if !open {
		report.QueueAvailability = eta.Result{Reason: eta.ReasonClosedDay, Message: messageClosedOnDay}
		return report, nil
	}

	start := localDay(date, loc)
	appointments, err := s.store.ListActiveAppointments(ctx, serviceID, start, start.AddDate(0, 0, 1))
	if err != nil {
		return AvailabilityReport{}, err
	}
	report.Slots, err = slots.Availability(service, day, start, appointments)
	if err != nil {
		return AvailabilityReport{}, err
	}

	queueDate := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	queue, found, err := s.store.GetQueue(ctx, serviceID, queueDate)
	if err != nil {
		return AvailabilityReport{}, err
	}
	status := models.QueueActive
	var items []models.QueueItem
	if found {
		status = queue.Status
		items, err = s.store.ListItems(ctx, queue.QueueID)
		if err != nil {
			return AvailabilityReport{}, err
		}
	}

	reference := now
	if reference.Before(opening) {
		reference = opening
	}
	estimate := eta.Estimate(eta.Input{
		Items:             items,
		QueueStatus:       status,
		EffectiveDuration: service.EffectiveDuration(),
		Now:               reference,
		Closing:           closing,
	})
	if customerID != "" && estimate.Available {
		for _, item := range items {
			if item.Open() && item.CustomerID == customerID {
				estimate.Available = false
				estimate.Message = messageAlreadyInLine
				break
			}
		}
	}
	report.QueueAvailability = estimate
	return report, nil
}
