package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/iconidentify/wadh/internal/domain"
)

// EventServiceConfig configures the event service.
type EventServiceConfig struct {
	// RingBufferSize is the number of events to keep in memory.
	// Default: 1000
	RingBufferSize int

	// SQLitePath enables persistence when set. ":memory:" is accepted.
	SQLitePath string

	// RetentionDays is how long to keep events in SQLite (0 = forever).
	RetentionDays int

	// SubscriberBuffer is the channel size of each stream subscriber.
	SubscriberBuffer int
}

// DefaultEventServiceConfig returns sensible defaults.
func DefaultEventServiceConfig() EventServiceConfig {
	return EventServiceConfig{
		RingBufferSize:   1000,
		RetentionDays:    30,
		SubscriberBuffer: 100,
	}
}

// EventService keeps the activity log: an in-memory ring buffer of recent
// events, optional SQLite history and live stream subscribers.
type EventService struct {
	cfg    EventServiceConfig
	logger *slog.Logger

	mu     sync.RWMutex
	events []domain.Event
	head   int // next write position
	count  int

	db *sql.DB

	subMu       sync.RWMutex
	subscribers map[uint64]chan domain.Event
	subSeq      uint64
}

// NewEventService creates a new event service.
func NewEventService(cfg EventServiceConfig, logger *slog.Logger) (*EventService, error) {
	if cfg.RingBufferSize <= 0 {
		cfg.RingBufferSize = 1000
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 100
	}

	svc := &EventService{
		cfg:         cfg,
		logger:      logger.With("component", "events"),
		events:      make([]domain.Event, cfg.RingBufferSize),
		subscribers: make(map[uint64]chan domain.Event),
	}

	if cfg.SQLitePath != "" {
		if err := svc.initSQLite(); err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		svc.logger.Info("event persistence enabled", "path", cfg.SQLitePath)
	}

	return svc, nil
}

func (s *EventService) initSQLite() error {
	db, err := sql.Open("sqlite", s.cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			severity TEXT NOT NULL,
			category TEXT NOT NULL,
			message TEXT NOT NULL,
			source TEXT,
			batch_id TEXT,
			metadata TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_batch ON events(batch_id);
	`)
	if err != nil {
		db.Close()
		return fmt.Errorf("create table: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the event service and any open resources.
func (s *EventService) Close() error {
	s.subMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subMu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Emit records an event to the event log.
func (s *EventService) Emit(event domain.Event) {
	if event.ID == "" {
		event.ID = domain.EventID(uuid.New().String())
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.events[s.head] = event
	s.head = (s.head + 1) % s.cfg.RingBufferSize
	if s.count < s.cfg.RingBufferSize {
		s.count++
	}
	s.mu.Unlock()

	if s.db != nil {
		s.persistEvent(event)
	}

	s.notifySubscribers(event)

	level := slog.LevelDebug
	switch event.Severity {
	case domain.EventSeverityWarning:
		level = slog.LevelWarn
	case domain.EventSeverityError:
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, event.Message,
		"event_id", event.ID,
		"category", event.Category,
		"severity", event.Severity,
		"source", event.Source,
		"batch_id", event.BatchID,
	)
}

func (s *EventService) emit(severity domain.EventSeverity, category domain.EventCategory, source, message string, metadata domain.EventMetadata) {
	event := domain.Event{
		Severity: severity,
		Category: category,
		Source:   source,
		Message:  message,
		Metadata: metadata.ToJSON(),
	}
	if id, ok := metadata["batch_id"].(string); ok {
		event.BatchID = id
	}
	s.Emit(event)
}

// EmitInfo is a convenience method for info-level events.
func (s *EventService) EmitInfo(category domain.EventCategory, source, message string, metadata domain.EventMetadata) {
	s.emit(domain.EventSeverityInfo, category, source, message, metadata)
}

// EmitWarning is a convenience method for warning-level events.
func (s *EventService) EmitWarning(category domain.EventCategory, source, message string, metadata domain.EventMetadata) {
	s.emit(domain.EventSeverityWarning, category, source, message, metadata)
}

// EmitError is a convenience method for error-level events.
func (s *EventService) EmitError(category domain.EventCategory, source, message string, metadata domain.EventMetadata) {
	s.emit(domain.EventSeverityError, category, source, message, metadata)
}

// EmitSuccess is a convenience method for success-level events.
func (s *EventService) EmitSuccess(category domain.EventCategory, source, message string, metadata domain.EventMetadata) {
	s.emit(domain.EventSeveritySuccess, category, source, message, metadata)
}

func (s *EventService) persistEvent(event domain.Event) {
	var metadata sql.NullString
	if len(event.Metadata) > 0 {
		metadata = sql.NullString{String: string(event.Metadata), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO events (id, timestamp, severity, category, message, source, batch_id, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, string(event.ID), event.Timestamp.UnixNano(), string(event.Severity), string(event.Category),
		event.Message, event.Source, event.BatchID, metadata)
	if err != nil {
		s.logger.Warn("failed to persist event", "event_id", event.ID, "error", err)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

// Query returns events from the ring buffer matching the filter, newest first.
func (s *EventService) Query(ctx context.Context, query domain.EventQuery) (*domain.EventQueryResult, error) {
	query.Limit = clampLimit(query.Limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Event, 0, s.count)
	for i := 0; i < s.count; i++ {
		idx := (s.head - 1 - i + s.cfg.RingBufferSize) % s.cfg.RingBufferSize
		if event := s.events[idx]; matchesFilter(event, query.Filter) {
			matched = append(matched, event)
		}
	}

	total := len(matched)
	if query.Offset >= total {
		return &domain.EventQueryResult{Events: []domain.Event{}, Total: total}, nil
	}
	end := min(query.Offset+query.Limit, total)

	return &domain.EventQueryResult{
		Events:  matched[query.Offset:end],
		Total:   total,
		HasMore: end < total,
	}, nil
}

// QueryHistorical queries events from SQLite storage, newest first.
func (s *EventService) QueryHistorical(ctx context.Context, query domain.EventQuery) (*domain.EventQueryResult, error) {
	if s.db == nil {
		return &domain.EventQueryResult{Events: []domain.Event{}}, nil
	}
	query.Limit = clampLimit(query.Limit)

	var conditions []string
	var args []any

	f := query.Filter
	if f.Severity != nil {
		conditions = append(conditions, "severity = ?")
		args = append(args, string(*f.Severity))
	}
	if f.Category != nil {
		conditions = append(conditions, "category = ?")
		args = append(args, string(*f.Category))
	}
	if f.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, f.Source)
	}
	if f.BatchID != "" {
		conditions = append(conditions, "batch_id = ?")
		args = append(args, f.BatchID)
	}
	if f.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, f.StartTime.UnixNano())
	}
	if f.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, f.EndTime.UnixNano())
	}
	if f.SearchText != "" {
		conditions = append(conditions, "message LIKE ?")
		args = append(args, "%"+f.SearchText+"%")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, severity, category, message, source, batch_id, metadata
		FROM events `+where+`
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`, append(args, query.Limit, query.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0, query.Limit)
	for rows.Next() {
		var (
			event    domain.Event
			id       string
			nanos    int64
			severity string
			category string
			source   sql.NullString
			batchID  sql.NullString
			metadata sql.NullString
		)
		if err := rows.Scan(&id, &nanos, &severity, &category, &event.Message, &source, &batchID, &metadata); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.ID = domain.EventID(id)
		event.Timestamp = time.Unix(0, nanos)
		event.Severity = domain.EventSeverity(severity)
		event.Category = domain.EventCategory(category)
		event.Source = source.String
		event.BatchID = batchID.String
		if metadata.Valid && metadata.String != "" {
			event.Metadata = json.RawMessage(metadata.String)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return &domain.EventQueryResult{
		Events:  events,
		Total:   total,
		HasMore: query.Offset+len(events) < total,
	}, nil
}

// GetRecent returns the most recent n events, newest first.
func (s *EventService) GetRecent(n int) []domain.Event {
	if n <= 0 {
		n = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := min(n, s.count)
	result := make([]domain.Event, 0, count)
	for i := 0; i < count; i++ {
		idx := (s.head - 1 - i + s.cfg.RingBufferSize) % s.cfg.RingBufferSize
		result = append(result, s.events[idx])
	}
	return result
}

func matchesFilter(event domain.Event, filter domain.EventFilter) bool {
	if filter.Severity != nil && event.Severity != *filter.Severity {
		return false
	}
	if filter.Category != nil && event.Category != *filter.Category {
		return false
	}
	if filter.Source != "" && event.Source != filter.Source {
		return false
	}
	if filter.BatchID != "" && event.BatchID != filter.BatchID {
		return false
	}
	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && event.Timestamp.After(*filter.EndTime) {
		return false
	}
	if filter.SearchText != "" && !strings.Contains(strings.ToLower(event.Message), strings.ToLower(filter.SearchText)) {
		return false
	}
	return true
}

// Subscribe registers a stream subscriber. The caller must call Unsubscribe
// when done.
func (s *EventService) Subscribe() (uint64, <-chan domain.Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.subSeq++
	id := s.subSeq
	ch := make(chan domain.Event, s.cfg.SubscriberBuffer)
	s.subscribers[id] = ch

	s.logger.Debug("subscriber added", "subscriber_id", id, "total_subscribers", len(s.subscribers))
	return id, ch
}

// Unsubscribe removes a stream subscriber.
func (s *EventService) Unsubscribe(id uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
		s.logger.Debug("subscriber removed", "subscriber_id", id, "total_subscribers", len(s.subscribers))
	}
}

func (s *EventService) notifySubscribers(event domain.Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.logger.Warn("subscriber buffer full, dropping event", "subscriber_id", id, "event_id", event.ID)
		}
	}
}

// SubscriberCount returns the number of active stream subscribers.
func (s *EventService) SubscriberCount() int {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subscribers)
}

// EventStats describes the state of the event service.
type EventStats struct {
	BufferSize    int  `json:"buffer_size"`
	BufferUsed    int  `json:"buffer_used"`
	Subscribers   int  `json:"subscribers"`
	SQLiteEnabled bool `json:"sqlite_enabled"`
}

// Stats returns statistics about the event service.
func (s *EventService) Stats() EventStats {
	s.mu.RLock()
	used := s.count
	s.mu.RUnlock()

	return EventStats{
		BufferSize:    s.cfg.RingBufferSize,
		BufferUsed:    used,
		Subscribers:   s.SubscriberCount(),
		SQLiteEnabled: s.db != nil,
	}
}

// CleanupOldEvents removes events older than the retention period from SQLite.
func (s *EventService) CleanupOldEvents(ctx context.Context) (int64, error) {
	if s.db == nil || s.cfg.RetentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	result, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE timestamp < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		s.logger.Info("cleaned up old events", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

var _ domain.EventEmitter = (*EventService)(nil)
