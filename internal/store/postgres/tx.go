package postgres

import (
	"context"
	"errors"
	"time"

	"queueless/scheduling-service/internal/models"
	"queueless/scheduling-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type txStore struct {
	tx pgx.Tx
}

func (t *txStore) GetService(ctx context.Context, serviceID string) (models.Service, error) {
	return getService(ctx, t.tx, serviceID, true)
}

func (t *txStore) GetBusiness(ctx context.Context, businessID string) (models.Business, error) {
	return getBusiness(ctx, t.tx, businessID, true)
}

func (t *txStore) LockOrCreateQueue(ctx context.Context, seed models.ServiceQueue) (models.ServiceQueue, bool, error) {
	if seed.QueueID == "" {
		seed.QueueID = uuid.NewString()
	}
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO service_queues (queue_id, service_id, business_id, queue_date, last_token_issued, current_token, status)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7)
		ON CONFLICT (service_id, queue_date) DO NOTHING
	`, seed.QueueID, seed.ServiceID, seed.BusinessID, seed.QueueDate.Format(dateLayout),
		seed.LastTokenIssued, seed.CurrentToken, seed.Status)
	if err != nil {
		return models.ServiceQueue{}, false, err
	}

	row := t.tx.QueryRow(ctx, `
		SELECT `+queueColumns+`
		FROM service_queues
		WHERE service_id = $1 AND queue_date = $2::date
		FOR UPDATE
	`, seed.ServiceID, seed.QueueDate.Format(dateLayout))
	queue, err := scanQueue(row)
	if err != nil {
		return models.ServiceQueue{}, false, err
	}
	return queue, tag.RowsAffected() == 1, nil
}

func (t *txStore) LockQueue(ctx context.Context, queueID string) (models.ServiceQueue, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+queueColumns+` FROM service_queues WHERE queue_id = $1 FOR UPDATE`, queueID)
	queue, err := scanQueue(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ServiceQueue{}, store.ErrQueueNotFound
		}
		return models.ServiceQueue{}, err
	}
	return queue, nil
}

func (t *txStore) LockItem(ctx context.Context, itemID string) (models.QueueItem, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE item_id = $1 FOR UPDATE`, itemID)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueItem{}, store.ErrItemNotFound
		}
		return models.QueueItem{}, err
	}
	return item, nil
}

func (t *txStore) ListOpenItems(ctx context.Context, queueID string) ([]models.QueueItem, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+itemColumns+`
		FROM queue_items
		WHERE queue_id = $1 AND status IN ($2, $3)
		ORDER BY token_number ASC
	`, queueID, models.StatusWaiting, models.StatusInProgress)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (t *txStore) FindOpenItem(ctx context.Context, queueID, customerID string) (models.QueueItem, bool, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM queue_items
		WHERE queue_id = $1 AND customer_id = $2 AND status IN ($3, $4)
		LIMIT 1
	`, queueID, customerID, models.StatusWaiting, models.StatusInProgress)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueItem{}, false, nil
		}
		return models.QueueItem{}, false, err
	}
	return item, true, nil
}

func (t *txStore) InsertItem(ctx context.Context, item models.QueueItem) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO queue_items (
			item_id, queue_id, service_id, business_id, customer_id, token_number,
			type, status, estimated_start_time, actual_start_time, actual_end_time, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, item.ItemID, item.QueueID, item.ServiceID, item.BusinessID, item.CustomerID, item.TokenNumber,
		item.Type, item.Status, item.EstimatedStartTime, item.ActualStartTime, item.ActualEndTime, item.CreatedAt)
	return err
}

func (t *txStore) AppendItemRef(ctx context.Context, queueID, itemType, itemID string) error {
	column := "appointment_items"
	if itemType == models.ItemWalkIn {
		column = "walkin_items"
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE service_queues
		SET `+column+` = array_append(`+column+`, $2::uuid), updated_at = now()
		WHERE queue_id = $1
	`, queueID, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrQueueNotFound
	}
	return nil
}

func (t *txStore) UpdateQueue(ctx context.Context, queue models.ServiceQueue) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE service_queues
		SET last_token_issued = $2, current_token = $3, status = $4, updated_at = now()
		WHERE queue_id = $1
	`, queue.QueueID, queue.LastTokenIssued, queue.CurrentToken, queue.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrQueueNotFound
	}
	return nil
}

func (t *txStore) UpdateItem(ctx context.Context, item models.QueueItem) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE queue_items
		SET status = $2, actual_start_time = $3, actual_end_time = $4
		WHERE item_id = $1
	`, item.ItemID, item.Status, item.ActualStartTime, item.ActualEndTime)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrItemNotFound
	}
	return nil
}

func (t *txStore) DeactivateBusiness(ctx context.Context, businessID string) (store.CascadeResult, error) {
	var id string
	err := t.tx.QueryRow(ctx, `SELECT business_id FROM businesses WHERE business_id = $1 FOR UPDATE`, businessID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.CascadeResult{}, store.ErrBusinessNotFound
		}
		return store.CascadeResult{}, err
	}

	var result store.CascadeResult
	tag, err := t.tx.Exec(ctx, `UPDATE services SET is_active = false WHERE business_id = $1 AND is_active`, businessID)
	if err != nil {
		return result, err
	}
	result.ServicesDeactivated = int(tag.RowsAffected())

	if err := t.cascade(ctx, "business_id", businessID, &result); err != nil {
		return result, err
	}
	if _, err := t.tx.Exec(ctx, `UPDATE businesses SET is_active = false WHERE business_id = $1`, businessID); err != nil {
		return result, err
	}
	return result, nil
}

func (t *txStore) DeactivateService(ctx context.Context, serviceID string) (store.CascadeResult, error) {
	var id string
	err := t.tx.QueryRow(ctx, `SELECT service_id FROM services WHERE service_id = $1 FOR UPDATE`, serviceID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.CascadeResult{}, store.ErrServiceNotFound
		}
		return store.CascadeResult{}, err
	}

	var result store.CascadeResult
	if err := t.cascade(ctx, "service_id", serviceID, &result); err != nil {
		return result, err
	}
	if _, err := t.tx.Exec(ctx, `UPDATE services SET is_active = false WHERE service_id = $1`, serviceID); err != nil {
		return result, err
	}
	return result, nil
}

// cascade closes queues, cancels waiting items and cancels booked
// appointments, in that order, for every row whose column equals id.
func (t *txStore) cascade(ctx context.Context, column, id string, result *store.CascadeResult) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE service_queues SET status = $2, updated_at = now()
		WHERE `+column+` = $1 AND status <> $2
	`, id, models.QueueClosed)
	if err != nil {
		return err
	}
	result.QueuesClosed = int(tag.RowsAffected())

	tag, err = t.tx.Exec(ctx, `
		UPDATE queue_items SET status = $3
		WHERE `+column+` = $1 AND status = $2
	`, id, models.StatusWaiting, models.StatusCancelled)
	if err != nil {
		return err
	}
	result.ItemsCancelled = int(tag.RowsAffected())

	tag, err = t.tx.Exec(ctx, `
		UPDATE appointments SET status = $3
		WHERE `+column+` = $1 AND status = $2
	`, id, models.AppointmentBooked, models.AppointmentCancelled)
	if err != nil {
		return err
	}
	result.AppointmentsCancelled = int(tag.RowsAffected())
	return nil
}

func (t *txStore) AppendOutbox(ctx context.Context, event store.OutboxEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.EventID, event.Type, event.AggregateID, []byte(event.Payload), event.CreatedAt)
	return err
}

func (t *txStore) FetchUnpublished(ctx context.Context, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.tx.Query(ctx, `
		SELECT event_id, type, aggregate_id, payload, created_at, published_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	return collectOutbox(rows)
}

func (t *txStore) MarkPublished(ctx context.Context, eventIDs []string, publishedAt time.Time) error {
	if len(eventIDs) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE outbox_events SET published_at = $2
		WHERE event_id = ANY($1::uuid[])
	`, eventIDs, publishedAt)
	return err
}
