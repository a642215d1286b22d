package scheduling

import (
	"context"
	"time"

	"queueless/scheduling-service/internal/identity"
	"queueless/scheduling-service/internal/models"
	"queueless/scheduling-service/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 50
)

// AppointmentFilter is an already-validated listing request. Date is a
// calendar day; the zero value means today in the service's timezone.
type AppointmentFilter struct {
	Date          time.Time
	Status        string
	SlotStartFrom *time.Time
	SlotEndTo     *time.Time
	SortBy        string
	SortDesc      bool
	Page          int
	Limit         int
}

type AppointmentPage struct {
	Appointments []models.Appointment `json:"appointments"`
	Total        int                  `json:"total"`
	Page         int                  `json:"page"`
	Limit        int                  `json:"limit"`
}

func (s *Service) ListAppointments(ctx context.Context, caller identity.User, serviceID string, filter AppointmentFilter, now time.Time) (AppointmentPage, error) {
	ctx, span := s.startSpan(ctx, "ListAppointments", attribute.String("service.id", serviceID))
	page, err := s.listAppointments(ctx, caller, serviceID, filter, now)
	endSpan(span, err)
	return page, err
}

func (s *Service) listAppointments(ctx context.Context, caller identity.User, serviceID string, filter AppointmentFilter, now time.Time) (AppointmentPage, error) {
	service, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return AppointmentPage{}, err
	}
	if !caller.IsAdminOf(service.BusinessID) {
		return AppointmentPage{}, store.WithMessage(store.ErrUnauthorized, "Only the business owner can view appointments")
	}

	loc := service.Location()
	day := filter.Date
	if day.IsZero() {
		day = now.In(loc)
	}
	from := localDay(day, loc)

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageLimit
	}
	if filter.Limit > MaxPageLimit {
		filter.Limit = MaxPageLimit
	}
	if filter.SortBy == "" {
		filter.SortBy = store.SortSlotStart
	}

	appointments, total, err := s.store.ListAppointments(ctx, store.AppointmentQuery{
		ServiceID:     service.ServiceID,
		BusinessID:    service.BusinessID,
		From:          from,
		To:            from.AddDate(0, 0, 1),
		Status:        filter.Status,
		SlotStartFrom: filter.SlotStartFrom,
		SlotEndTo:     filter.SlotEndTo,
		SortBy:        filter.SortBy,
		SortDesc:      filter.SortDesc,
		Page:          filter.Page,
		Limit:         filter.Limit,
	})
	if err != nil {
		return AppointmentPage{}, err
	}
	if appointments == nil {
		appointments = []models.Appointment{}
	}
	return AppointmentPage{Appointments: appointments, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}
