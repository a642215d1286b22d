// Package scheduling coordinates queue admission, status reporting, slot
// availability and operator actions on top of a transactional store.
package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"queueless/scheduling-service/internal/models"
	"queueless/scheduling-service/internal/slots"
	"queueless/scheduling-service/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultConflictRetries = 3

type Options struct {
	// ConflictRetries bounds how many times a transaction that lost a write
	// conflict is run again. nil uses the default of 3; 0 disables retries.
	ConflictRetries *int
	Logger          *slog.Logger
}

type Service struct {
	store   store.Store
	logger  *slog.Logger
	tracer  trace.Tracer
	retries int
}

func New(st store.Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retries := defaultConflictRetries
	if opts.ConflictRetries != nil {
		retries = max(*opts.ConflictRetries, 0)
	}
	return &Service{
		store:   st,
		logger:  logger,
		tracer:  otel.Tracer("queueless/scheduling"),
		retries: retries,
	}
}

// inTx runs fn in a store transaction, running it again from scratch when
// the store reports a write conflict. Every attempt re-reads everything, so
// eligibility checks are never answered from a stale snapshot.
func (s *Service) inTx(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		err = s.store.InTx(ctx, fn)
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
		s.logger.WarnContext(ctx, "write conflict", "op", op, "attempt", attempt+1)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "scheduling."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// activeService loads a service and its business and fails with ErrInactive
// when either one has been deactivated.
func activeService(ctx context.Context, dir store.Directory, serviceID string) (models.Service, models.Business, error) {
	service, err := dir.GetService(ctx, serviceID)
	if err != nil {
		return models.Service{}, models.Business{}, err
	}
	if !service.IsActive {
		return models.Service{}, models.Business{}, store.WithMessage(store.ErrInactive, "Service is not active")
	}
	business, err := dir.GetBusiness(ctx, service.BusinessID)
	if err != nil {
		return models.Service{}, models.Business{}, err
	}
	if !business.IsActive {
		return models.Service{}, models.Business{}, store.WithMessage(store.ErrInactive, "Business is not active")
	}
	return service, business, nil
}

// localDay maps a queue or calendar date onto midnight of the same calendar
// day in loc.
func localDay(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
}

// dayWindow resolves the opening hours of date's calendar day. ok is false
// when the service has no open schedule entry for that weekday.
func dayWindow(service models.Service, date time.Time) (day models.DaySchedule, opening, closing time.Time, ok bool, err error) {
	loc := service.Location()
	local := localDay(date, loc)
	day, found := service.ScheduleFor(local.Weekday())
	if !found || !day.IsOpen {
		return models.DaySchedule{}, time.Time{}, time.Time{}, false, nil
	}
	opening, closing, ok, err = slots.DayWindow(local, day, loc)
	return day, opening, closing, ok, err
}

func queueClosedError(status string) error {
	switch status {
	case models.QueuePaused:
		return store.WithMessage(store.ErrQueueClosed, "Queue is paused")
	default:
		return store.WithMessage(store.ErrQueueClosed, "Queue is closed")
	}
}

func newEvent(eventType, aggregateID string, payload interface{}, now time.Time) (store.OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return store.OutboxEvent{}, fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return store.OutboxEvent{
		EventID:     uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		Payload:     raw,
		CreatedAt:   now.UTC(),
	}, nil
}
