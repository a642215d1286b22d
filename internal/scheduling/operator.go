package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"queueless/scheduling-service/internal/identity"
	"queueless/scheduling-service/internal/models"
	"queueless/scheduling-service/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

type itemEvent struct {
	ItemID      string `json:"item_id"`
	QueueID     string `json:"queue_id"`
	TokenNumber int    `json:"token_number"`
	Action      string `json:"action"`
	Status      string `json:"status"`
}

type queueEvent struct {
	QueueID      string `json:"queue_id"`
	ServiceID    string `json:"service_id"`
	Action       string `json:"action"`
	Status       string `json:"status"`
	CurrentToken int    `json:"current_token"`
}

// StartNext moves the lowest waiting token of today's queue into service.
// Only one item may be in progress at a time.
func (s *Service) StartNext(ctx context.Context, caller identity.User, serviceID string, now time.Time) (models.QueueItem, error) {
	ctx, span := s.startSpan(ctx, "StartNext", attribute.String("service.id", serviceID))
	item, err := s.startNext(ctx, caller, serviceID, now)
	endSpan(span, err)
	return item, err
}

func (s *Service) startNext(ctx context.Context, caller identity.User, serviceID string, now time.Time) (models.QueueItem, error) {
	queueID, err := s.todaysQueue(ctx, caller, serviceID, now)
	if err != nil {
		return models.QueueItem{}, err
	}

	var started models.QueueItem
	err = s.inTx(ctx, "start_next", func(tx store.Tx) error {
		queue, err := tx.LockQueue(ctx, queueID)
		if err != nil {
			return err
		}
		if queue.Status != models.QueueActive {
			return queueClosedError(queue.Status)
		}
		items, err := tx.ListOpenItems(ctx, queueID)
		if err != nil {
			return err
		}
		var next *models.QueueItem
		for i, item := range items {
			if item.Status == models.StatusInProgress {
				return store.WithMessage(store.ErrInvalidState, fmt.Sprintf("Token %d is still in progress", item.TokenNumber))
			}
			if next == nil && item.Status == models.StatusWaiting {
				next = &items[i]
			}
		}
		if next == nil {
			return store.WithMessage(store.ErrNotFound, "No customers are waiting")
		}

		item, err := tx.LockItem(ctx, next.ItemID)
		if err != nil {
			return err
		}
		if err := applyItemAction(&item, store.ItemStart, now); err != nil {
			return err
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		queue.CurrentToken = item.TokenNumber
		if err := tx.UpdateQueue(ctx, queue); err != nil {
			return err
		}
		if err := appendItemEvent(ctx, tx, item, store.ItemStart, now); err != nil {
			return err
		}
		started = item
		return nil
	})
	if err != nil {
		return models.QueueItem{}, err
	}
	s.logger.InfoContext(ctx, "queue item started", "service_id", serviceID, "token", started.TokenNumber)
	return started, nil
}

// UpdateItem applies complete, skip or cancel to one queue item. Operators of
// the business may apply any of them; a customer may cancel their own item.
func (s *Service) UpdateItem(ctx context.Context, caller identity.User, itemID, action string, now time.Time) (models.QueueItem, error) {
	ctx, span := s.startSpan(ctx, "UpdateItem", attribute.String("item.id", itemID), attribute.String("action", action))
	item, err := s.updateItem(ctx, caller, itemID, action, now)
	endSpan(span, err)
	return item, err
}

func (s *Service) updateItem(ctx context.Context, caller identity.User, itemID, action string, now time.Time) (models.QueueItem, error) {
	switch action {
	case store.ItemComplete, store.ItemSkip, store.ItemCancel:
	default:
		return models.QueueItem{}, store.WithMessage(store.ErrInvalidState, fmt.Sprintf("Unknown item action %q", action))
	}

	current, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return models.QueueItem{}, err
	}
	ownItem := action == store.ItemCancel && current.CustomerID == caller.ID
	if !ownItem && !caller.IsAdminOf(current.BusinessID) {
		return models.QueueItem{}, store.WithMessage(store.ErrUnauthorized, "You cannot manage this queue item")
	}

	var updated models.QueueItem
	err = s.inTx(ctx, "item_"+action, func(tx store.Tx) error {
		// Queue before item, the same order every writer of the queue uses.
		queue, err := tx.LockQueue(ctx, current.QueueID)
		if err != nil {
			return err
		}
		item, err := tx.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := applyItemAction(&item, action, now); err != nil {
			return err
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		// CurrentToken names the item being served; 0 once it is finished.
		if action == store.ItemComplete && queue.CurrentToken == item.TokenNumber {
			queue.CurrentToken = 0
			if err := tx.UpdateQueue(ctx, queue); err != nil {
				return err
			}
		}
		if err := appendItemEvent(ctx, tx, item, action, now); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return models.QueueItem{}, err
	}
	s.logger.InfoContext(ctx, "queue item updated", "item_id", itemID, "action", action, "status", updated.Status)
	return updated, nil
}

// UpdateQueue pauses, resumes or closes today's queue for serviceID.
func (s *Service) UpdateQueue(ctx context.Context, caller identity.User, serviceID, action string, now time.Time) (models.ServiceQueue, error) {
	ctx, span := s.startSpan(ctx, "UpdateQueue", attribute.String("service.id", serviceID), attribute.String("action", action))
	queue, err := s.updateQueue(ctx, caller, serviceID, action, now)
	endSpan(span, err)
	return queue, err
}

func (s *Service) updateQueue(ctx context.Context, caller identity.User, serviceID, action string, now time.Time) (models.ServiceQueue, error) {
	target, ok := store.QueueTarget(action)
	if !ok {
		return models.ServiceQueue{}, store.WithMessage(store.ErrInvalidState, fmt.Sprintf("Unknown queue action %q", action))
	}
	queueID, err := s.todaysQueue(ctx, caller, serviceID, now)
	if err != nil {
		return models.ServiceQueue{}, err
	}

	var updated models.ServiceQueue
	err = s.inTx(ctx, "queue_"+action, func(tx store.Tx) error {
		queue, err := tx.LockQueue(ctx, queueID)
		if err != nil {
			return err
		}
		if !store.ValidQueueTransition(action, queue.Status) {
			return store.WithMessage(store.ErrInvalidState,
				fmt.Sprintf("Cannot %s a queue that is %s", action, strings.ToLower(queue.Status)))
		}
		queue.Status = target
		if err := tx.UpdateQueue(ctx, queue); err != nil {
			return err
		}
		event, err := newEvent(store.EventQueueStatus, queue.QueueID, queueEvent{
			QueueID:      queue.QueueID,
			ServiceID:    queue.ServiceID,
			Action:       action,
			Status:       queue.Status,
			CurrentToken: queue.CurrentToken,
		}, now)
		if err != nil {
			return err
		}
		if err := tx.AppendOutbox(ctx, event); err != nil {
			return err
		}
		updated = queue
		return nil
	})
	if err != nil {
		return models.ServiceQueue{}, err
	}
	s.logger.InfoContext(ctx, "queue status changed", "service_id", serviceID, "status", updated.Status)
	return updated, nil
}

// todaysQueue authorizes caller as an operator of serviceID and returns the
// ID of today's queue.
func (s *Service) todaysQueue(ctx context.Context, caller identity.User, serviceID string, now time.Time) (string, error) {
	service, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return "", err
	}
	if !caller.IsAdminOf(service.BusinessID) {
		return "", store.WithMessage(store.ErrUnauthorized, "Only the business owner can manage the queue")
	}
	queue, found, err := s.store.GetQueue(ctx, serviceID, models.QueueDay(now, service.Location()))
	if err != nil {
		return "", err
	}
	if !found {
		return "", store.WithMessage(store.ErrNotFound, messageNotStarted)
	}
	return queue.QueueID, nil
}

func applyItemAction(item *models.QueueItem, action string, now time.Time) error {
	if !store.ValidItemTransition(action, item.Status) {
		return store.WithMessage(store.ErrInvalidState,
			fmt.Sprintf("Cannot %s an item that is %s", action, strings.ToLower(item.Status)))
	}
	target, _ := store.ItemTarget(action)
	item.Status = target
	at := now
	switch action {
	case store.ItemStart:
		item.ActualStartTime = &at
	case store.ItemComplete:
		item.ActualEndTime = &at
	}
	return nil
}

func appendItemEvent(ctx context.Context, tx store.Tx, item models.QueueItem, action string, now time.Time) error {
	event, err := newEvent(store.EventItemUpdated, item.QueueID, itemEvent{
		ItemID:      item.ItemID,
		QueueID:     item.QueueID,
		TokenNumber: item.TokenNumber,
		Action:      action,
		Status:      item.Status,
	}, now)
	if err != nil {
		return err
	}
	return tx.AppendOutbox(ctx, event)
}
