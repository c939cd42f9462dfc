package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/iconidentify/wadh/internal/domain"
	"github.com/iconidentify/wadh/internal/service"
)

// EventHandler serves the activity log.
type EventHandler struct {
	eventSvc  *service.EventService
	keepalive time.Duration
	logger    *slog.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(eventSvc *service.EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		eventSvc:  eventSvc,
		keepalive: 30 * time.Second,
		logger:    logger,
	}
}

// EventListResponse contains a page of events.
type EventListResponse struct {
	Events  []domain.Event `json:"events"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	HasMore bool           `json:"has_more"`
}

// List handles GET /api/v1/events
// Query parameters:
//   - severity, category, source, batch_id: exact filters
//   - start_time, end_time: RFC3339 bounds
//   - search: substring of the message
//   - limit (default 50, max 200), offset
//   - historical: "true" reads SQLite instead of the ring buffer
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := domain.EventQuery{Limit: 50}

	if parsed, err := strconv.Atoi(q.Get("limit")); err == nil && parsed > 0 {
		query.Limit = min(parsed, 200)
	}
	if parsed, err := strconv.Atoi(q.Get("offset")); err == nil && parsed >= 0 {
		query.Offset = parsed
	}

	if sev := q.Get("severity"); sev != "" {
		severity := domain.EventSeverity(sev)
		query.Filter.Severity = &severity
	}
	if cat := q.Get("category"); cat != "" {
		category := domain.EventCategory(cat)
		query.Filter.Category = &category
	}
	query.Filter.Source = q.Get("source")
	query.Filter.BatchID = q.Get("batch_id")
	query.Filter.SearchText = q.Get("search")

	for param, dst := range map[string]**time.Time{
		"start_time": &query.Filter.StartTime,
		"end_time":   &query.Filter.EndTime,
	} {
		v := q.Get(param)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %v", param, err))
			return
		}
		*dst = &t
	}

	var (
		result *domain.EventQueryResult
		err    error
	)
	if q.Get("historical") == "true" {
		result, err = h.eventSvc.QueryHistorical(r.Context(), query)
	} else {
		result, err = h.eventSvc.Query(r.Context(), query)
	}
	if err != nil {
		h.logger.Error("failed to query events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query events")
		return
	}

	writeJSON(w, http.StatusOK, EventListResponse{
		Events:  result.Events,
		Total:   result.Total,
		Limit:   query.Limit,
		Offset:  query.Offset,
		HasMore: result.HasMore,
	})
}

// Recent handles GET /api/v1/events/recent.
func (h *EventHandler) Recent(w http.ResponseWriter, r *http.Request) {
	n := 50
	if parsed, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && parsed > 0 && parsed <= 200 {
		n = parsed
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Event{"events": h.eventSvc.GetRecent(n)})
}

// Stream handles GET /api/v1/events/stream with server-sent events.
func (h *EventHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The stream outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	batchID := r.URL.Query().Get("batch_id")
	subID, events := h.eventSvc.Subscribe()
	defer h.eventSvc.Unsubscribe(subID)

	logger := h.logger.With("subscriber_id", subID)
	logger.Info("event stream connected", "remote_addr", r.RemoteAddr)

	fmt.Fprintf(w, "event: connected\ndata: {\"subscriber_id\":%d}\n\n", subID)
	flusher.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Info("event stream disconnected")
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if batchID != "" && event.BatchID != batchID {
				continue
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Warn("failed to serialize event", "event_id", event.ID, "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Category, data)
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
