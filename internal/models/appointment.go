package models

import "time"

type Appointment struct {
	AppointmentID   string    `json:"appointment_id"`
	ServiceID       string    `json:"service_id"`
	BusinessID      string    `json:"business_id"`
	CustomerID      string    `json:"customer_id"`
	AppointmentDate time.Time `json:"appointment_date"`
	SlotStart       time.Time `json:"slot_start"`
	SlotEnd         time.Time `json:"slot_end"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

const (
	AppointmentBooked    = "BOOKED"
	AppointmentCancelled = "CANCELLED"
	AppointmentNoShow    = "NO_SHOW"
	AppointmentCompleted = "COMPLETED"
)
