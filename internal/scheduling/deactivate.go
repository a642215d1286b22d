package scheduling

import (
	"context"
	"time"

	"queueless/scheduling-service/internal/identity"
	"queueless/scheduling-service/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

type deactivatedEvent struct {
	BusinessID string              `json:"business_id,omitempty"`
	ServiceID  string              `json:"service_id,omitempty"`
	Result     store.CascadeResult `json:"result"`
}

// DeactivateBusiness switches off a business and everything scheduled under
// it in one transaction: its services, their queues, waiting items and
// booked appointments. Items already in progress are left alone.
func (s *Service) DeactivateBusiness(ctx context.Context, caller identity.User, businessID string, now time.Time) (store.CascadeResult, error) {
	ctx, span := s.startSpan(ctx, "DeactivateBusiness", attribute.String("business.id", businessID))
	result, err := s.deactivate(ctx, caller, businessID, "", now)
	endSpan(span, err)
	return result, err
}

// DeactivateService is DeactivateBusiness scoped to a single service.
func (s *Service) DeactivateService(ctx context.Context, caller identity.User, serviceID string, now time.Time) (store.CascadeResult, error) {
	ctx, span := s.startSpan(ctx, "DeactivateService", attribute.String("service.id", serviceID))
	service, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		endSpan(span, err)
		return store.CascadeResult{}, err
	}
	result, err := s.deactivate(ctx, caller, service.BusinessID, serviceID, now)
	endSpan(span, err)
	return result, err
}

func (s *Service) deactivate(ctx context.Context, caller identity.User, businessID, serviceID string, now time.Time) (store.CascadeResult, error) {
	if _, err := s.store.GetBusiness(ctx, businessID); err != nil {
		return store.CascadeResult{}, err
	}
	if !caller.IsAdminOf(businessID) {
		return store.CascadeResult{}, store.WithMessage(store.ErrUnauthorized, "Only the business owner can deactivate it")
	}

	var result store.CascadeResult
	err := s.inTx(ctx, "deactivate", func(tx store.Tx) error {
		var err error
		eventType, aggregate := store.EventBusinessDisabled, businessID
		if serviceID == "" {
			result, err = tx.DeactivateBusiness(ctx, businessID)
		} else {
			eventType, aggregate = store.EventServiceDisabled, serviceID
			result, err = tx.DeactivateService(ctx, serviceID)
		}
		if err != nil {
			return err
		}
		event, err := newEvent(eventType, aggregate, deactivatedEvent{
			BusinessID: businessID,
			ServiceID:  serviceID,
			Result:     result,
		}, now)
		if err != nil {
			return err
		}
		return tx.AppendOutbox(ctx, event)
	})
	if err != nil {
		return store.CascadeResult{}, err
	}
	s.logger.InfoContext(ctx, "deactivated",
		"business_id", businessID, "service_id", serviceID,
		"queues_closed", result.QueuesClosed, "items_cancelled", result.ItemsCancelled,
		"appointments_cancelled", result.AppointmentsCancelled)
	return result, nil
}
