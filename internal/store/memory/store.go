// Package memory is an in-process store. A transaction holds the store lock
// for its whole run and works on a private copy of the state, so concurrent
// transactions are fully serialized and a failed one leaves nothing behind.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"queueless/scheduling-service/internal/models"
	"queueless/scheduling-service/internal/store"
)

type Store struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	services     map[string]models.Service
	businesses   map[string]models.Business
	appointments map[string]models.Appointment
	queues       map[string]models.ServiceQueue
	items        map[string]models.QueueItem
	outbox       []store.OutboxEvent
}

func NewStore() *Store {
	return &Store{state: &state{
		services:     make(map[string]models.Service),
		businesses:   make(map[string]models.Business),
		appointments: make(map[string]models.Appointment),
		queues:       make(map[string]models.ServiceQueue),
		items:        make(map[string]models.QueueItem),
	}}
}

func (s *Store) PutService(service models.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.services[service.ServiceID] = service
}

func (s *Store) PutBusiness(business models.Business) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.businesses[business.BusinessID] = business
}

func (s *Store) PutAppointment(appt models.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.appointments[appt.AppointmentID] = appt
}

func (s *Store) GetService(ctx context.Context, serviceID string) (models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.service(serviceID)
}

func (s *Store) GetBusiness(ctx context.Context, businessID string) (models.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.business(businessID)
}

func (s *Store) GetQueue(ctx context.Context, serviceID string, queueDate time.Time) (models.ServiceQueue, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue, ok := s.state.queueFor(serviceID, queueDate)
	return queue, ok, nil
}

func (s *Store) ListItems(ctx context.Context, queueID string) ([]models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.itemsOf(queueID, false), nil
}

func (s *Store) GetItem(ctx context.Context, itemID string) (models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.state.items[itemID]
	if !ok {
		return models.QueueItem{}, store.ErrItemNotFound
	}
	return item, nil
}

func (s *Store) ListActiveAppointments(ctx context.Context, serviceID string, from, to time.Time) ([]models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Appointment
	for _, appt := range s.state.appointments {
		if appt.ServiceID != serviceID || appt.Status != models.AppointmentBooked {
			continue
		}
		if appt.SlotStart.Before(to) && appt.SlotEnd.After(from) {
			result = append(result, appt)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SlotStart.Before(result[j].SlotStart) })
	return result, nil
}

func (s *Store) ListAppointments(ctx context.Context, query store.AppointmentQuery) ([]models.Appointment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []models.Appointment
	for _, appt := range s.state.appointments {
		if appt.ServiceID != query.ServiceID || appt.BusinessID != query.BusinessID {
			continue
		}
		if appt.AppointmentDate.Before(query.From) || !appt.AppointmentDate.Before(query.To) {
			continue
		}
		if query.Status != "" && appt.Status != query.Status {
			continue
		}
		if query.SlotStartFrom != nil && appt.SlotStart.Before(*query.SlotStartFrom) {
			continue
		}
		if query.SlotEndTo != nil && appt.SlotEnd.After(*query.SlotEndTo) {
			continue
		}
		matched = append(matched, appt)
	}

	key := func(a models.Appointment) time.Time {
		switch query.SortBy {
		case store.SortSlotEnd:
			return a.SlotEnd
		case store.SortCreatedAt:
			return a.CreatedAt
		default:
			return a.SlotStart
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if query.SortDesc {
			return key(matched[i]).After(key(matched[j]))
		}
		return key(matched[i]).Before(key(matched[j]))
	})

	total := len(matched)
	start := (query.Page - 1) * query.Limit
	if start >= total || start < 0 {
		return []models.Appointment{}, total, nil
	}
	end := start + query.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []store.OutboxEvent
	for _, event := range s.state.outbox {
		if !event.CreatedAt.After(after) {
			continue
		}
		events = append(events, event)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	working := s.state.clone()
	if err := fn(&tx{state: working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (st *state) clone() *state {
	next := &state{
		services:     make(map[string]models.Service, len(st.services)),
		businesses:   make(map[string]models.Business, len(st.businesses)),
		appointments: make(map[string]models.Appointment, len(st.appointments)),
		queues:       make(map[string]models.ServiceQueue, len(st.queues)),
		items:        make(map[string]models.QueueItem, len(st.items)),
		outbox:       append([]store.OutboxEvent(nil), st.outbox...),
	}
	for id, v := range st.services {
		next.services[id] = v
	}
	for id, v := range st.businesses {
		next.businesses[id] = v
	}
	for id, v := range st.appointments {
		next.appointments[id] = v
	}
	for id, v := range st.queues {
		v.AppointmentItems = append([]string(nil), v.AppointmentItems...)
		v.WalkInItems = append([]string(nil), v.WalkInItems...)
		next.queues[id] = v
	}
	for id, v := range st.items {
		next.items[id] = v
	}
	return next
}

func (st *state) service(serviceID string) (models.Service, error) {
	service, ok := st.services[serviceID]
	if !ok {
		return models.Service{}, store.ErrServiceNotFound
	}
	return service, nil
}

func (st *state) business(businessID string) (models.Business, error) {
	business, ok := st.businesses[businessID]
	if !ok {
		return models.Business{}, store.ErrBusinessNotFound
	}
	return business, nil
}

func (st *state) queueFor(serviceID string, queueDate time.Time) (models.ServiceQueue, bool) {
	for _, queue := range st.queues {
		if queue.ServiceID == serviceID && queue.QueueDate.Equal(queueDate) {
			return copyQueue(queue), true
		}
	}
	return models.ServiceQueue{}, false
}

func (st *state) itemsOf(queueID string, openOnly bool) []models.QueueItem {
	var items []models.QueueItem
	for _, item := range st.items {
		if item.QueueID != queueID {
			continue
		}
		if openOnly && !item.Open() {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].TokenNumber < items[j].TokenNumber })
	return items
}

func copyQueue(queue models.ServiceQueue) models.ServiceQueue {
	queue.AppointmentItems = append([]string(nil), queue.AppointmentItems...)
	queue.WalkInItems = append([]string(nil), queue.WalkInItems...)
	return queue
}
