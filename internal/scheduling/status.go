package scheduling

import (
	"context"
	"time"

	"queueless/scheduling-service/internal/eta"
	"queueless/scheduling-service/internal/identity"
	"queueless/scheduling-service/internal/models"
	"queueless/scheduling-service/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

const (
	QueueNotFound       = "NOT_FOUND"
	messageNotStarted   = "Queue has not started yet."
	messageClosesBefore = "Service is likely to close before your turn"
)

type StatusReport struct {
	QueueStatus         string      `json:"queue_status"`
	Message             string      `json:"message,omitempty"`
	QueueID             string      `json:"queue_id,omitempty"`
	QueueDate           string      `json:"queue_date,omitempty"`
	CurrentToken        int         `json:"current_token"`
	LastTokenIssued     int         `json:"last_token_issued"`
	WaitingAppointments int         `json:"waiting_appointments"`
	WaitingWalkIns      int         `json:"waiting_walkins"`
	InProgress          int         `json:"in_progress"`
	Completed           int         `json:"completed"`
	NextAvailable       *eta.Result `json:"next_available,omitempty"`
	InQueue             bool        `json:"in_queue"`
	TokenNumber         int         `json:"token_number,omitempty"`
	Position            int         `json:"position,omitempty"`
	Ahead               int         `json:"ahead,omitempty"`
	ItemStatus          string      `json:"item_status,omitempty"`
	EstimatedStartTime  *time.Time  `json:"estimated_start_time,omitempty"`
	Warning             string      `json:"warning,omitempty"`
}

// Status reports today's queue for serviceID from customerID's point of
// view. It never writes. Callers may only ask about themselves unless they
// administer the service's business.
func (s *Service) Status(ctx context.Context, caller identity.User, serviceID, customerID string, now time.Time) (StatusReport, error) {
	ctx, span := s.startSpan(ctx, "Status", attribute.String("service.id", serviceID))
	report, err := s.status(ctx, caller, serviceID, customerID, now)
	endSpan(span, err)
	return report, err
}

func (s *Service) status(ctx context.Context, caller identity.User, serviceID, customerID string, now time.Time) (StatusReport, error) {
	service, _, err := activeService(ctx, s.store, serviceID)
	if err != nil {
		return StatusReport{}, err
	}
	if customerID == "" {
		customerID = caller.ID
	}
	if customerID != caller.ID && !caller.IsAdminOf(service.BusinessID) {
		return StatusReport{}, store.WithMessage(store.ErrUnauthorized, "You can only view your own queue status")
	}

	queue, found, err := s.store.GetQueue(ctx, serviceID, models.QueueDay(now, service.Location()))
	if err != nil {
		return StatusReport{}, err
	}
	if !found {
		return StatusReport{QueueStatus: QueueNotFound, Message: messageNotStarted}, nil
	}
	items, err := s.store.ListItems(ctx, queue.QueueID)
	if err != nil {
		return StatusReport{}, err
	}

	// The cutoff is the closing time of the queue's own day, whatever day
	// now falls on.
	_, _, closing, _, err := dayWindow(service, queue.QueueDate)
	if err != nil {
		return StatusReport{}, err
	}

	report := StatusReport{
		QueueStatus:     queue.Status,
		QueueID:         queue.QueueID,
		QueueDate:       queue.QueueDate.Format("2006-01-02"),
		CurrentToken:    queue.CurrentToken,
		LastTokenIssued: queue.LastTokenIssued,
	}
	var mine *models.QueueItem
	for i, item := range items {
		switch item.Status {
		case models.StatusWaiting:
			switch item.Type {
			case models.ItemAppointment:
				report.WaitingAppointments++
			case models.ItemWalkIn:
				report.WaitingWalkIns++
			}
		case models.StatusInProgress:
			report.InProgress++
		case models.StatusCompleted:
			report.Completed++
		}
		if item.Open() && item.CustomerID == customerID {
			mine = &items[i]
		}
	}

	input := eta.Input{
		Items:             items,
		QueueStatus:       queue.Status,
		EffectiveDuration: service.EffectiveDuration(),
		Now:               now,
		Closing:           closing,
	}
	next := eta.Estimate(input)
	report.NextAvailable = &next

	if mine != nil {
		input.SubjectToken = mine.TokenNumber
		own := eta.Estimate(input)
		start := own.EstimatedStartTime
		report.InQueue = true
		report.TokenNumber = mine.TokenNumber
		report.Position = own.Position
		report.Ahead = own.Ahead
		report.ItemStatus = mine.Status
		report.EstimatedStartTime = &start
		if mine.Status == models.StatusWaiting && !closing.IsZero() && !start.Before(closing) {
			report.Warning = messageClosesBefore
		}
	}
	return report, nil
}
