package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"queueless/scheduling-service/internal/models"
	"queueless/scheduling-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dateLayout = "2006-01-02"

const (
	serviceColumns = `service_id, business_id, name, is_active, avg_duration_minutes, buffer_minutes, timezone, COALESCE(hours_json::text, '')`
	queueColumns   = `queue_id, service_id, business_id, queue_date, last_token_issued, current_token, status, appointment_items::text[], walkin_items::text[], created_at`
	itemColumns    = `item_id, queue_id, service_id, business_id, customer_id, token_number, type, status, estimated_start_time, actual_start_time, actual_end_time, created_at`
	apptColumns    = `appointment_id, service_id, business_id, customer_id, appointment_date, slot_start, slot_end, status, created_at`
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&txStore{tx: tx}); err != nil {
		return classify(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) GetService(ctx context.Context, serviceID string) (models.Service, error) {
	return getService(ctx, s.pool, serviceID, false)
}

func (s *Store) GetBusiness(ctx context.Context, businessID string) (models.Business, error) {
	return getBusiness(ctx, s.pool, businessID, false)
}

func (s *Store) GetQueue(ctx context.Context, serviceID string, queueDate time.Time) (models.ServiceQueue, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+queueColumns+`
		FROM service_queues
		WHERE service_id = $1 AND queue_date = $2::date
	`, serviceID, queueDate.Format(dateLayout))
	queue, err := scanQueue(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ServiceQueue{}, false, nil
		}
		return models.ServiceQueue{}, false, err
	}
	return queue, true, nil
}

func (s *Store) ListItems(ctx context.Context, queueID string) ([]models.QueueItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM queue_items
		WHERE queue_id = $1
		ORDER BY token_number ASC
	`, queueID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (s *Store) GetItem(ctx context.Context, itemID string) (models.QueueItem, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE item_id = $1`, itemID)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueItem{}, store.ErrItemNotFound
		}
		return models.QueueItem{}, err
	}
	return item, nil
}

func (s *Store) ListActiveAppointments(ctx context.Context, serviceID string, from, to time.Time) ([]models.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE service_id = $1
			AND status = $2
			AND slot_start < $4
			AND slot_end > $3
		ORDER BY slot_start ASC
	`, serviceID, models.AppointmentBooked, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

var appointmentSortColumns = map[string]string{
	store.SortSlotStart: "slot_start",
	store.SortSlotEnd:   "slot_end",
	store.SortCreatedAt: "created_at",
}

func (s *Store) ListAppointments(ctx context.Context, query store.AppointmentQuery) ([]models.Appointment, int, error) {
	where := []string{"service_id = $1", "business_id = $2", "appointment_date >= $3", "appointment_date < $4"}
	args := []interface{}{query.ServiceID, query.BusinessID, query.From, query.To}
	if query.Status != "" {
		args = append(args, query.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if query.SlotStartFrom != nil {
		args = append(args, *query.SlotStartFrom)
		where = append(where, fmt.Sprintf("slot_start >= $%d", len(args)))
	}
	if query.SlotEndTo != nil {
		args = append(args, *query.SlotEndTo)
		where = append(where, fmt.Sprintf("slot_end <= $%d", len(args)))
	}
	filter := strings.Join(where, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointments WHERE `+filter, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	column, ok := appointmentSortColumns[query.SortBy]
	if !ok {
		column = "slot_start"
	}
	direction := "ASC"
	if query.SortDesc {
		direction = "DESC"
	}
	args = append(args, query.Limit, (query.Page-1)*query.Limit)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM appointments
		WHERE %s
		ORDER BY %s %s, appointment_id ASC
		LIMIT $%d OFFSET $%d
	`, apptColumns, filter, column, direction, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	appts, err := collectAppointments(rows)
	if err != nil {
		return nil, 0, err
	}
	return appts, total, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, type, aggregate_id, payload, created_at, published_at
		FROM outbox_events
		WHERE created_at > $1
		ORDER BY created_at ASC
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, err
	}
	return collectOutbox(rows)
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getService(ctx context.Context, q queryer, serviceID string, lock bool) (models.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE service_id = $1`
	if lock {
		query += ` FOR SHARE`
	}
	var service models.Service
	var hours string
	err := q.QueryRow(ctx, query, serviceID).Scan(
		&service.ServiceID, &service.BusinessID, &service.Name, &service.IsActive,
		&service.AvgDurationMinutes, &service.BufferMinutes, &service.Timezone, &hours,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.ErrServiceNotFound
		}
		return models.Service{}, err
	}
	schedule, err := models.ParseWeeklySchedule([]byte(hours))
	if err != nil {
		return models.Service{}, fmt.Errorf("service %s: %w", serviceID, err)
	}
	service.WeeklySchedule = schedule
	return service, nil
}

func getBusiness(ctx context.Context, q queryer, businessID string, lock bool) (models.Business, error) {
	query := `SELECT business_id, owner_id, name, is_active FROM businesses WHERE business_id = $1`
	if lock {
		query += ` FOR SHARE`
	}
	var business models.Business
	err := q.QueryRow(ctx, query, businessID).Scan(&business.BusinessID, &business.OwnerID, &business.Name, &business.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Business{}, store.ErrBusinessNotFound
		}
		return models.Business{}, err
	}
	return business, nil
}

func scanQueue(row pgx.Row) (models.ServiceQueue, error) {
	var queue models.ServiceQueue
	err := row.Scan(
		&queue.QueueID, &queue.ServiceID, &queue.BusinessID, &queue.QueueDate,
		&queue.LastTokenIssued, &queue.CurrentToken, &queue.Status,
		&queue.AppointmentItems, &queue.WalkInItems, &queue.CreatedAt,
	)
	return queue, err
}

func scanItem(row pgx.Row) (models.QueueItem, error) {
	var item models.QueueItem
	err := row.Scan(
		&item.ItemID, &item.QueueID, &item.ServiceID, &item.BusinessID, &item.CustomerID,
		&item.TokenNumber, &item.Type, &item.Status, &item.EstimatedStartTime,
		&item.ActualStartTime, &item.ActualEndTime, &item.CreatedAt,
	)
	return item, err
}

func collectItems(rows pgx.Rows) ([]models.QueueItem, error) {
	defer rows.Close()
	var items []models.QueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func collectAppointments(rows pgx.Rows) ([]models.Appointment, error) {
	defer rows.Close()
	appts := []models.Appointment{}
	for rows.Next() {
		var appt models.Appointment
		if err := rows.Scan(
			&appt.AppointmentID, &appt.ServiceID, &appt.BusinessID, &appt.CustomerID,
			&appt.AppointmentDate, &appt.SlotStart, &appt.SlotEnd, &appt.Status, &appt.CreatedAt,
		); err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return appts, nil
}

func collectOutbox(rows pgx.Rows) ([]store.OutboxEvent, error) {
	defer rows.Close()
	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		var payload []byte
		if err := rows.Scan(&event.EventID, &event.Type, &event.AggregateID, &payload, &event.CreatedAt, &event.PublishedAt); err != nil {
			return nil, err
		}
		event.Payload = payload
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// conflictCodes are the SQLSTATEs a retry of the whole transaction can clear:
// serialization_failure, deadlock_detected, unique_violation and
// lock_not_available.
var conflictCodes = map[string]bool{
	"40001": true,
	"40P01": true,
	"23505": true,
	"55P03": true,
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && conflictCodes[pgErr.Code] {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
	}
	return err
}
