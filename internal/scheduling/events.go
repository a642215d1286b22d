package scheduling

import (
	"context"
	"time"

	"queueless/scheduling-service/internal/identity"
	"queueless/scheduling-service/internal/store"
)

const maxEventPage = 500

// Events pages through the outbox in creation order, for administrators
// replaying what the relay publishes.
func (s *Service) Events(ctx context.Context, caller identity.User, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if !caller.IsAdmin() {
		return nil, store.WithMessage(store.ErrUnauthorized, "Administrator role required")
	}
	if limit <= 0 || limit > maxEventPage {
		limit = maxEventPage
	}
	events, err := s.store.ListOutboxEvents(ctx, after, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []store.OutboxEvent{}
	}
	return events, nil
}

// Ready reports whether the backing store answers.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}
