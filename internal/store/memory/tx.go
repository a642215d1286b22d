package memory

import (
	"context"
	"time"

	"queueless/scheduling-service/internal/models"
	"queueless/scheduling-service/internal/store"

	"github.com/google/uuid"
)

type tx struct {
	state *state
}

func (t *tx) GetService(ctx context.Context, serviceID string) (models.Service, error) {
	return t.state.service(serviceID)
}

func (t *tx) GetBusiness(ctx context.Context, businessID string) (models.Business, error) {
	return t.state.business(businessID)
}

func (t *tx) LockOrCreateQueue(ctx context.Context, seed models.ServiceQueue) (models.ServiceQueue, bool, error) {
	if queue, ok := t.state.queueFor(seed.ServiceID, seed.QueueDate); ok {
		return queue, false, nil
	}
	if seed.QueueID == "" {
		seed.QueueID = uuid.NewString()
	}
	seed = copyQueue(seed)
	t.state.queues[seed.QueueID] = seed
	return copyQueue(seed), true, nil
}

func (t *tx) LockQueue(ctx context.Context, queueID string) (models.ServiceQueue, error) {
	queue, ok := t.state.queues[queueID]
	if !ok {
		return models.ServiceQueue{}, store.ErrQueueNotFound
	}
	return copyQueue(queue), nil
}

func (t *tx) LockItem(ctx context.Context, itemID string) (models.QueueItem, error) {
	item, ok := t.state.items[itemID]
	if !ok {
		return models.QueueItem{}, store.ErrItemNotFound
	}
	return item, nil
}

func (t *tx) ListOpenItems(ctx context.Context, queueID string) ([]models.QueueItem, error) {
	return t.state.itemsOf(queueID, true), nil
}

func (t *tx) FindOpenItem(ctx context.Context, queueID, customerID string) (models.QueueItem, bool, error) {
	for _, item := range t.state.itemsOf(queueID, true) {
		if item.CustomerID == customerID {
			return item, true, nil
		}
	}
	return models.QueueItem{}, false, nil
}

func (t *tx) InsertItem(ctx context.Context, item models.QueueItem) error {
	if _, exists := t.state.items[item.ItemID]; exists {
		return store.ErrConflict
	}
	for _, other := range t.state.itemsOf(item.QueueID, false) {
		if other.TokenNumber == item.TokenNumber {
			return store.ErrConflict
		}
		if item.Open() && other.Open() && other.CustomerID == item.CustomerID {
			return store.ErrConflict
		}
	}
	t.state.items[item.ItemID] = item
	return nil
}

func (t *tx) AppendItemRef(ctx context.Context, queueID, itemType, itemID string) error {
	queue, ok := t.state.queues[queueID]
	if !ok {
		return store.ErrQueueNotFound
	}
	if itemType == models.ItemWalkIn {
		queue.WalkInItems = append(queue.WalkInItems, itemID)
	} else {
		queue.AppointmentItems = append(queue.AppointmentItems, itemID)
	}
	t.state.queues[queueID] = queue
	return nil
}

func (t *tx) UpdateQueue(ctx context.Context, queue models.ServiceQueue) error {
	current, ok := t.state.queues[queue.QueueID]
	if !ok {
		return store.ErrQueueNotFound
	}
	current.LastTokenIssued = queue.LastTokenIssued
	current.CurrentToken = queue.CurrentToken
	current.Status = queue.Status
	t.state.queues[queue.QueueID] = current
	return nil
}

func (t *tx) UpdateItem(ctx context.Context, item models.QueueItem) error {
	current, ok := t.state.items[item.ItemID]
	if !ok {
		return store.ErrItemNotFound
	}
	current.Status = item.Status
	current.ActualStartTime = item.ActualStartTime
	current.ActualEndTime = item.ActualEndTime
	t.state.items[item.ItemID] = current
	return nil
}

func (t *tx) DeactivateBusiness(ctx context.Context, businessID string) (store.CascadeResult, error) {
	business, ok := t.state.businesses[businessID]
	if !ok {
		return store.CascadeResult{}, store.ErrBusinessNotFound
	}
	var result store.CascadeResult
	for id, service := range t.state.services {
		if service.BusinessID == businessID && service.IsActive {
			service.IsActive = false
			t.state.services[id] = service
			result.ServicesDeactivated++
		}
	}
	match := func(businessOf, _ string) bool { return businessOf == businessID }
	t.cascade(match, &result)
	business.IsActive = false
	t.state.businesses[businessID] = business
	return result, nil
}

func (t *tx) DeactivateService(ctx context.Context, serviceID string) (store.CascadeResult, error) {
	service, ok := t.state.services[serviceID]
	if !ok {
		return store.CascadeResult{}, store.ErrServiceNotFound
	}
	var result store.CascadeResult
	match := func(_, serviceOf string) bool { return serviceOf == serviceID }
	t.cascade(match, &result)
	service.IsActive = false
	t.state.services[serviceID] = service
	return result, nil
}

// cascade closes queues, cancels waiting items and cancels booked
// appointments, in that order, for every row match accepts.
func (t *tx) cascade(match func(businessID, serviceID string) bool, result *store.CascadeResult) {
	for id, queue := range t.state.queues {
		if match(queue.BusinessID, queue.ServiceID) && queue.Status != models.QueueClosed {
			queue.Status = models.QueueClosed
			t.state.queues[id] = queue
			result.QueuesClosed++
		}
	}
	for id, item := range t.state.items {
		if match(item.BusinessID, item.ServiceID) && item.Status == models.StatusWaiting {
			item.Status = models.StatusCancelled
			t.state.items[id] = item
			result.ItemsCancelled++
		}
	}
	for id, appt := range t.state.appointments {
		if match(appt.BusinessID, appt.ServiceID) && appt.Status == models.AppointmentBooked {
			appt.Status = models.AppointmentCancelled
			t.state.appointments[id] = appt
			result.AppointmentsCancelled++
		}
	}
}

func (t *tx) AppendOutbox(ctx context.Context, event store.OutboxEvent) error {
	t.state.outbox = append(t.state.outbox, event)
	return nil
}

func (t *tx) FetchUnpublished(ctx context.Context, limit int) ([]store.OutboxEvent, error) {
	var events []store.OutboxEvent
	for _, event := range t.state.outbox {
		if event.PublishedAt != nil {
			continue
		}
		events = append(events, event)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

func (t *tx) MarkPublished(ctx context.Context, eventIDs []string, publishedAt time.Time) error {
	ids := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		ids[id] = true
	}
	for i := range t.state.outbox {
		if ids[t.state.outbox[i].EventID] {
			at := publishedAt
			t.state.outbox[i].PublishedAt = &at
		}
	}
	return nil
}
