package store

import (
	"context"
	"encoding/json"
	"time"

	"queueless/scheduling-service/internal/models"
)

// Directory reads services and businesses owned by the profile collaborator.
type Directory interface {
	GetService(ctx context.Context, serviceID string) (models.Service, error)
	GetBusiness(ctx context.Context, businessID string) (models.Business, error)
}

// Store is the only writer of queues and queue items. Every mutation happens
// inside InTx; the read methods never lock.
type Store interface {
	Directory
	GetQueue(ctx context.Context, serviceID string, queueDate time.Time) (models.ServiceQueue, bool, error)
	ListItems(ctx context.Context, queueID string) ([]models.QueueItem, error)
	GetItem(ctx context.Context, itemID string) (models.QueueItem, error)
	ListActiveAppointments(ctx context.Context, serviceID string, from, to time.Time) ([]models.Appointment, error)
	ListAppointments(ctx context.Context, query AppointmentQuery) ([]models.Appointment, int, error)
	ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]OutboxEvent, error)
	// InTx runs fn in one transaction. A nil return commits; any error rolls
	// everything back. Write conflicts surface as ErrConflict.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

type Tx interface {
	Directory
	// LockOrCreateQueue returns the queue for (seed.ServiceID, seed.QueueDate)
	// locked for the rest of the transaction, inserting seed when absent.
	LockOrCreateQueue(ctx context.Context, seed models.ServiceQueue) (models.ServiceQueue, bool, error)
	LockQueue(ctx context.Context, queueID string) (models.ServiceQueue, error)
	LockItem(ctx context.Context, itemID string) (models.QueueItem, error)
	ListOpenItems(ctx context.Context, queueID string) ([]models.QueueItem, error)
	FindOpenItem(ctx context.Context, queueID, customerID string) (models.QueueItem, bool, error)
	InsertItem(ctx context.Context, item models.QueueItem) error
	AppendItemRef(ctx context.Context, queueID, itemType, itemID string) error
	UpdateQueue(ctx context.Context, queue models.ServiceQueue) error
	UpdateItem(ctx context.Context, item models.QueueItem) error
	DeactivateBusiness(ctx context.Context, businessID string) (CascadeResult, error)
	DeactivateService(ctx context.Context, serviceID string) (CascadeResult, error)
	AppendOutbox(ctx context.Context, event OutboxEvent) error
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkPublished(ctx context.Context, eventIDs []string, publishedAt time.Time) error
}

type AppointmentQuery struct {
	ServiceID     string
	BusinessID    string
	From          time.Time
	To            time.Time
	Status        string
	SlotStartFrom *time.Time
	SlotEndTo     *time.Time
	SortBy        string
	SortDesc      bool
	Page          int
	Limit         int
}

const (
	SortSlotStart = "slot_start"
	SortSlotEnd   = "slot_end"
	SortCreatedAt = "created_at"
)

// CascadeResult counts the rows each step of a deactivation touched.
type CascadeResult struct {
	ServicesDeactivated   int `json:"services_deactivated"`
	QueuesClosed          int `json:"queues_closed"`
	ItemsCancelled        int `json:"items_cancelled"`
	AppointmentsCancelled int `json:"appointments_cancelled"`
}

type OutboxEvent struct {
	EventID     string          `json:"event_id"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
}

const (
	EventItemJoined       = "queue.item_joined"
	EventItemUpdated      = "queue.item_updated"
	EventQueueStatus      = "queue.status_changed"
	EventBusinessDisabled = "business.deactivated"
	EventServiceDisabled  = "service.deactivated"
)
