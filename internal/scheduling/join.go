package scheduling

import (
	"context"
	"time"

	"queueless/scheduling-service/internal/eta"
	"queueless/scheduling-service/internal/models"
	"queueless/scheduling-service/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type JoinResult struct {
	ItemID             string    `json:"item_id"`
	QueueID            string    `json:"queue_id"`
	TokenNumber        int       `json:"token_number"`
	Position           int       `json:"position"`
	Status             string    `json:"status"`
	EstimatedStartTime time.Time `json:"estimated_start_time"`
}

type joinedEvent struct {
	ItemID      string `json:"item_id"`
	ServiceID   string `json:"service_id"`
	CustomerID  string `json:"customer_id"`
	TokenNumber int    `json:"token_number"`
	Status      string `json:"status"`
}

// Join admits customerID as a walk-in to today's queue for serviceID. The
// whole admission runs in one transaction holding the queue lock, so tokens
// are issued without gaps or duplicates and exactly one caller gets token 1.
func (s *Service) Join(ctx context.Context, serviceID, customerID string, now time.Time) (JoinResult, error) {
	ctx, span := s.startSpan(ctx, "Join", attribute.String("service.id", serviceID))
	var result JoinResult
	err := s.inTx(ctx, "join", func(tx store.Tx) error {
		var err error
		result, err = s.admit(ctx, tx, serviceID, customerID, now)
		return err
	})
	endSpan(span, err)
	if err != nil {
		return JoinResult{}, err
	}
	s.logger.InfoContext(ctx, "customer joined queue",
		"service_id", serviceID, "queue_id", result.QueueID, "token", result.TokenNumber)
	return result, nil
}

func (s *Service) admit(ctx context.Context, tx store.Tx, serviceID, customerID string, now time.Time) (JoinResult, error) {
	service, business, err := activeService(ctx, tx, serviceID)
	if err != nil {
		return JoinResult{}, err
	}
	loc := service.Location()
	_, _, closing, open, err := dayWindow(service, now.In(loc))
	if err != nil {
		return JoinResult{}, err
	}
	if !open {
		return JoinResult{}, store.WithMessage(store.ErrClosedToday, "Service is closed today")
	}

	queue, _, err := tx.LockOrCreateQueue(ctx, models.ServiceQueue{
		QueueID:    uuid.NewString(),
		ServiceID:  service.ServiceID,
		BusinessID: business.BusinessID,
		QueueDate:  models.QueueDay(now, loc),
		Status:     models.QueueActive,
		CreatedAt:  now.UTC(),
	})
	if err != nil {
		return JoinResult{}, err
	}
	if queue.Status != models.QueueActive {
		return JoinResult{}, queueClosedError(queue.Status)
	}

	if _, found, err := tx.FindOpenItem(ctx, queue.QueueID, customerID); err != nil {
		return JoinResult{}, err
	} else if found {
		return JoinResult{}, store.WithMessage(store.ErrAlreadyQueued, "You are already in queue")
	}

	items, err := tx.ListOpenItems(ctx, queue.QueueID)
	if err != nil {
		return JoinResult{}, err
	}
	estimate := eta.Estimate(eta.Input{
		Items:             items,
		QueueStatus:       queue.Status,
		EffectiveDuration: service.EffectiveDuration(),
		Now:               now,
		Closing:           closing,
	})
	if !estimate.Available {
		return JoinResult{}, store.WithMessage(store.ErrCapacityExceeded, estimate.Message)
	}

	queue.LastTokenIssued++
	item := models.QueueItem{
		ItemID:             uuid.NewString(),
		QueueID:            queue.QueueID,
		ServiceID:          service.ServiceID,
		BusinessID:         business.BusinessID,
		CustomerID:         customerID,
		TokenNumber:        queue.LastTokenIssued,
		Type:               models.ItemWalkIn,
		Status:             models.StatusWaiting,
		EstimatedStartTime: estimate.EstimatedStartTime,
		CreatedAt:          now.UTC(),
	}
	if queue.LastTokenIssued == 1 {
		started := now
		queue.CurrentToken = 1
		item.Status = models.StatusInProgress
		item.ActualStartTime = &started
	}

	if err := tx.UpdateQueue(ctx, queue); err != nil {
		return JoinResult{}, err
	}
	if err := tx.InsertItem(ctx, item); err != nil {
		return JoinResult{}, err
	}
	if err := tx.AppendItemRef(ctx, queue.QueueID, item.Type, item.ItemID); err != nil {
		return JoinResult{}, err
	}
	event, err := newEvent(store.EventItemJoined, queue.QueueID, joinedEvent{
		ItemID:      item.ItemID,
		ServiceID:   service.ServiceID,
		CustomerID:  customerID,
		TokenNumber: item.TokenNumber,
		Status:      item.Status,
	}, now)
	if err != nil {
		return JoinResult{}, err
	}
	if err := tx.AppendOutbox(ctx, event); err != nil {
		return JoinResult{}, err
	}

	return JoinResult{
		ItemID:             item.ItemID,
		QueueID:            queue.QueueID,
		TokenNumber:        item.TokenNumber,
		Position:           estimate.Position,
		Status:             item.Status,
		EstimatedStartTime: estimate.EstimatedStartTime,
	}, nil
}
