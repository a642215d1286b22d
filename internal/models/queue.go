package models

import "time"

type ServiceQueue struct {
	QueueID          string    `json:"queue_id"`
	ServiceID        string    `json:"service_id"`
	BusinessID       string    `json:"business_id"`
	QueueDate        time.Time `json:"queue_date"`
	LastTokenIssued  int       `json:"last_token_issued"`
	CurrentToken     int       `json:"current_token"`
	Status           string    `json:"status"`
	AppointmentItems []string  `json:"appointment_items"`
	WalkInItems      []string  `json:"walkin_items"`
	CreatedAt        time.Time `json:"created_at"`
}

type QueueItem struct {
	ItemID             string     `json:"item_id"`
	QueueID            string     `json:"queue_id"`
	ServiceID          string     `json:"service_id"`
	BusinessID         string     `json:"business_id"`
	CustomerID         string     `json:"customer_id"`
	TokenNumber        int        `json:"token_number"`
	Type               string     `json:"type"`
	Status             string     `json:"status"`
	EstimatedStartTime time.Time  `json:"estimated_start_time"`
	ActualStartTime    *time.Time `json:"actual_start_time,omitempty"`
	ActualEndTime      *time.Time `json:"actual_end_time,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

const (
	QueueActive = "ACTIVE"
	QueuePaused = "PAUSED"
	QueueClosed = "CLOSED"
)

const (
	ItemAppointment   = "APPOINTMENT"
	ItemWalkIn        = "WALKIN"
	ItemInternalBlock = "INTERNAL_BLOCK"
)

const (
	StatusWaiting    = "WAITING"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusSkipped    = "SKIPPED"
	StatusCancelled  = "CANCELLED"
)

// Open reports whether the item still holds a place in its queue.
func (i QueueItem) Open() bool {
	return i.Status == StatusWaiting || i.Status == StatusInProgress
}

// QueueDay is the calendar day t falls on in loc, as midnight UTC. Queues are
// keyed by this value so it round-trips through a DATE column unchanged.
func QueueDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
