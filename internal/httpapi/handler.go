package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"queueless/scheduling-service/internal/identity"
	"queueless/scheduling-service/internal/models"
	"queueless/scheduling-service/internal/scheduling"
	"queueless/scheduling-service/internal/store"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// Scheduler is the part of scheduling.Service the HTTP surface drives.
type Scheduler interface {
	Join(ctx context.Context, serviceID, customerID string, now time.Time) (scheduling.JoinResult, error)
	Status(ctx context.Context, caller identity.User, serviceID, customerID string, now time.Time) (scheduling.StatusReport, error)
	CheckAvailability(ctx context.Context, serviceID string, date time.Time, customerID string, now time.Time) (scheduling.AvailabilityReport, error)
	ListAppointments(ctx context.Context, caller identity.User, serviceID string, filter scheduling.AppointmentFilter, now time.Time) (scheduling.AppointmentPage, error)
	StartNext(ctx context.Context, caller identity.User, serviceID string, now time.Time) (models.QueueItem, error)
	UpdateItem(ctx context.Context, caller identity.User, itemID, action string, now time.Time) (models.QueueItem, error)
	UpdateQueue(ctx context.Context, caller identity.User, serviceID, action string, now time.Time) (models.ServiceQueue, error)
	DeactivateBusiness(ctx context.Context, caller identity.User, businessID string, now time.Time) (store.CascadeResult, error)
	DeactivateService(ctx context.Context, caller identity.User, serviceID string, now time.Time) (store.CascadeResult, error)
	Events(ctx context.Context, caller identity.User, after time.Time, limit int) ([]store.OutboxEvent, error)
	Ready(ctx context.Context) error
}

type Handler struct {
	scheduler Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Options struct {
	Logger *slog.Logger
	// Now overrides the clock; tests pin it.
	Now func() time.Time
}

func NewHandler(scheduler Scheduler, options Options) *Handler {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := options.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Handler{scheduler: scheduler, logger: logger, now: now}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/readyz", h.handleReady)
	mux.HandleFunc("/api/services/", h.handleServiceRoutes)
	mux.HandleFunc("/api/queue-items/", h.handleItemRoutes)
	mux.HandleFunc("/api/businesses/", h.handleBusinessRoutes)
	mux.HandleFunc("/api/events", h.handleEvents)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.scheduler.Ready(ctx); err != nil {
		h.logger.WarnContext(ctx, "readiness check failed", "err", err)
		writeError(w, requestIDFromRequest(r), http.StatusServiceUnavailable, "not_ready", "store unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleServiceRoutes serves everything under /api/services/{id}/.
func (h *Handler) handleServiceRoutes(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/services/")
	if len(parts) < 2 {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
		return
	}
	serviceID := parts[0]
	if !isValidUUID(serviceID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "service id must be a UUID")
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "availability":
		h.requireMethod(w, r, http.MethodGet, func() { h.handleAvailability(w, r, serviceID) })
	case len(parts) == 2 && parts[1] == "appointments":
		h.requireMethod(w, r, http.MethodGet, func() { h.handleAppointments(w, r, serviceID) })
	case len(parts) == 2 && parts[1] == "deactivate":
		h.requireMethod(w, r, http.MethodPost, func() { h.handleDeactivateService(w, r, serviceID) })
	case len(parts) == 3 && parts[1] == "queue" && parts[2] == "join":
		h.requireMethod(w, r, http.MethodPost, func() { h.handleJoin(w, r, serviceID) })
	case len(parts) == 3 && parts[1] == "queue" && parts[2] == "status":
		h.requireMethod(w, r, http.MethodGet, func() { h.handleStatus(w, r, serviceID) })
	case len(parts) == 4 && parts[1] == "queue" && parts[2] == "actions":
		h.requireMethod(w, r, http.MethodPost, func() { h.handleQueueAction(w, r, serviceID, parts[3]) })
	default:
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
	}
}

// handleItemRoutes serves POST /api/queue-items/{id}/actions/{action}.
func (h *Handler) handleItemRoutes(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/queue-items/")
	if len(parts) != 3 || parts[1] != "actions" {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
		return
	}
	if !isValidUUID(parts[0]) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "item id must be a UUID")
		return
	}
	h.requireMethod(w, r, http.MethodPost, func() {
		caller, ok := h.caller(w, r)
		if !ok {
			return
		}
		item, err := h.scheduler.UpdateItem(r.Context(), caller, parts[0], parts[2], h.now())
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	})
}

// handleBusinessRoutes serves POST /api/businesses/{id}/deactivate.
func (h *Handler) handleBusinessRoutes(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/businesses/")
	if len(parts) != 2 || parts[1] != "deactivate" {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
		return
	}
	if !isValidUUID(parts[0]) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "business id must be a UUID")
		return
	}
	h.requireMethod(w, r, http.MethodPost, func() {
		caller, ok := h.caller(w, r)
		if !ok {
			return
		}
		result, err := h.scheduler.DeactivateBusiness(r.Context(), caller, parts[0], h.now())
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request, serviceID string) {
	query := r.URL.Query()
	date, err := parseDate(query.Get("date"))
	if err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}
	now := h.now()
	// Anonymous callers may check availability; a signed-in caller also
	// learns whether they already hold a place.
	customerID := ""
	if caller, ok := identity.CurrentUser(r.Context()); ok {
		customerID = caller.ID
	}
	report, err := h.scheduler.CheckAvailability(r.Context(), serviceID, date, customerID, now)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request, serviceID string) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if !drainEmptyBody(r) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "join takes no request body")
		return
	}
	result, err := h.scheduler.Join(r.Context(), serviceID, caller.ID, h.now())
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request, serviceID string) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	customerID := strings.TrimSpace(r.URL.Query().Get("customer_id"))
	report, err := h.scheduler.Status(r.Context(), caller, serviceID, customerID, h.now())
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleQueueAction(w http.ResponseWriter, r *http.Request, serviceID, action string) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if action == "start-next" {
		item, err := h.scheduler.StartNext(r.Context(), caller, serviceID, h.now())
		if err != nil {
			h.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
		return
	}
	if _, known := store.QueueTarget(action); !known {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "unknown queue action")
		return
	}
	queue, err := h.scheduler.UpdateQueue(r.Context(), caller, serviceID, action, h.now())
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

func (h *Handler) handleDeactivateService(w http.ResponseWriter, r *http.Request, serviceID string) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	result, err := h.scheduler.DeactivateService(r.Context(), caller, serviceID, h.now())
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleAppointments(w http.ResponseWriter, r *http.Request, serviceID string) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	filter, err := parseAppointmentFilter(r.URL.Query())
	if err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	page, err := h.scheduler.ListAppointments(r.Context(), caller, serviceID, filter, h.now())
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	var after time.Time
	if raw := strings.TrimSpace(query.Get("after")); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "after must be an RFC 3339 timestamp")
			return
		}
		after = parsed
	}
	limit := 100
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}
	events, err := h.scheduler.Events(r.Context(), caller, after, limit)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (h *Handler) requireMethod(w http.ResponseWriter, r *http.Request, method string, serve func()) {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	serve()
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (identity.User, bool) {
	caller, ok := identity.CurrentUser(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
		return identity.User{}, false
	}
	return caller, true
}

func (h *Handler) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "request_id", requestIDFromRequest(r), "err", err)
	}
	writeError(w, requestIDFromRequest(r), status, code, msg)
}

var appointmentStatuses = map[string]bool{
	models.AppointmentBooked:    true,
	models.AppointmentCancelled: true,
	models.AppointmentNoShow:    true,
	models.AppointmentCompleted: true,
}

var appointmentSorts = map[string]string{
	"slot_start": store.SortSlotStart,
	"slotStart":  store.SortSlotStart,
	"slot_end":   store.SortSlotEnd,
	"slotEnd":    store.SortSlotEnd,
	"created_at": store.SortCreatedAt,
	"createdAt":  store.SortCreatedAt,
}

// parseAppointmentFilter validates every listing parameter explicitly; text
// that does not parse is rejected rather than compared loosely.
func parseAppointmentFilter(query map[string][]string) (scheduling.AppointmentFilter, error) {
	get := func(key string) string {
		if values := query[key]; len(values) > 0 {
			return strings.TrimSpace(values[0])
		}
		return ""
	}

	var filter scheduling.AppointmentFilter
	date, err := parseDate(get("date"))
	if err != nil {
		return filter, errors.New("date must be YYYY-MM-DD")
	}
	filter.Date = date

	if status := strings.ToUpper(get("status")); status != "" {
		if !appointmentStatuses[status] {
			return filter, errors.New("status must be one of BOOKED, CANCELLED, NO_SHOW, COMPLETED")
		}
		filter.Status = status
	}
	if raw := get("min_time"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("min_time must be an RFC 3339 timestamp")
		}
		filter.SlotStartFrom = &parsed
	}
	if raw := get("max_time"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("max_time must be an RFC 3339 timestamp")
		}
		filter.SlotEndTo = &parsed
	}
	if filter.SlotStartFrom != nil && filter.SlotEndTo != nil && filter.SlotEndTo.Before(*filter.SlotStartFrom) {
		return filter, errors.New("max_time must not be before min_time")
	}
	if raw := get("sort_by"); raw != "" {
		sortBy, ok := appointmentSorts[raw]
		if !ok {
			return filter, errors.New("sort_by must be slot_start, slot_end or created_at")
		}
		filter.SortBy = sortBy
	}
	switch strings.ToLower(get("sort_order")) {
	case "", "asc":
	case "desc":
		filter.SortDesc = true
	default:
		return filter, errors.New("sort_order must be asc or desc")
	}

	filter.Page = 1
	if raw := get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return filter, errors.New("page must be a positive integer")
		}
		filter.Page = page
	}
	filter.Limit = scheduling.DefaultPageLimit
	if raw := get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > scheduling.MaxPageLimit {
			return filter, errors.New("limit must be between 1 and 50")
		}
		filter.Limit = limit
	}
	return filter, nil
}

// parseDate reads a calendar day. An empty value yields the zero time.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, raw)
}

func pathParts(path, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// drainEmptyBody accepts a missing, empty or "{}" body.
func drainEmptyBody(r *http.Request) bool {
	if r.Body == nil {
		return true
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<10))
	if err != nil {
		return false
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return true
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return false
	}
	return len(payload) == 0
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	status, code, fallback := classifyError(err)
	if msg := store.Message(err); msg != "" && status < http.StatusInternalServerError {
		return status, code, msg
	}
	return status, code, fallback
}

func classifyError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, store.ErrInactive):
		return http.StatusConflict, "inactive", "service or business is not active"
	case errors.Is(err, store.ErrClosedToday):
		return http.StatusConflict, "closed_today", "service is closed today"
	case errors.Is(err, store.ErrAlreadyQueued):
		return http.StatusConflict, "already_queued", "already in queue"
	case errors.Is(err, store.ErrQueueClosed):
		return http.StatusConflict, "queue_closed", "queue is closed"
	case errors.Is(err, store.ErrCapacityExceeded):
		return http.StatusConflict, "capacity_exceeded", "queue is full for today"
	case errors.Is(err, store.ErrUnauthorized):
		return http.StatusForbidden, "access_denied", "access denied"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "state does not allow this action"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict", "concurrent update, please retry"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "request timed out"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
