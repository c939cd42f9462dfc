package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/wadh/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEventService(t *testing.T, cfg EventServiceConfig) *EventService {
	t.Helper()
	svc, err := NewEventService(cfg, testLogger())
	if err != nil {
		t.Fatalf("failed to create event service: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestEventService_Emit(t *testing.T) {
	svc := newTestEventService(t, EventServiceConfig{RingBufferSize: 10})

	svc.EmitInfo(domain.EventCategoryBatch, "batch", "batch started", domain.EventMetadata{
		"batch_id": "b1",
	})

	events := svc.GetRecent(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.ID == "" {
		t.Error("expected generated ID")
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}
	if ev.Message != "batch started" {
		t.Errorf("expected message 'batch started', got '%s'", ev.Message)
	}
	if ev.Category != domain.EventCategoryBatch {
		t.Errorf("expected category batch, got %s", ev.Category)
	}
	if ev.BatchID != "b1" {
		t.Errorf("expected batch id from metadata, got %q", ev.BatchID)
	}
}

func TestEventService_RingBuffer(t *testing.T) {
	svc := newTestEventService(t, EventServiceConfig{RingBufferSize: 5})

	for i := 0; i < 10; i++ {
		svc.EmitInfo(domain.EventCategorySystem, "test", "message "+string(rune('0'+i)), nil)
	}

	events := svc.GetRecent(10)
	if len(events) != 5 {
		t.Fatalf("expected 5 events (ring buffer size), got %d", len(events))
	}
	if events[0].Message != "message 9" {
		t.Errorf("expected first event to be 'message 9', got '%s'", events[0].Message)
	}
	if events[4].Message != "message 5" {
		t.Errorf("expected last event to be 'message 5', got '%s'", events[4].Message)
	}
}

func TestEventService_Query_Filter(t *testing.T) {
	svc := newTestEventService(t, EventServiceConfig{RingBufferSize: 100})

	svc.EmitInfo(domain.EventCategoryNavigation, "navigation", "page loaded", domain.EventMetadata{"batch_id": "b1"})
	svc.EmitError(domain.EventCategoryDownload, "download", "download interrupted", domain.EventMetadata{"batch_id": "b1"})
	svc.EmitWarning(domain.EventCategoryDisk, "storage", "low disk space", nil)
	svc.EmitSuccess(domain.EventCategoryBatch, "batch", "batch complete", domain.EventMetadata{"batch_id": "b2"})

	errorSev := domain.EventSeverityError
	diskCat := domain.EventCategoryDisk

	tests := []struct {
		name   string
		filter domain.EventFilter
		want   []string
	}{
		{"severity", domain.EventFilter{Severity: &errorSev}, []string{"download interrupted"}},
		{"category", domain.EventFilter{Category: &diskCat}, []string{"low disk space"}},
		{"source", domain.EventFilter{Source: "batch"}, []string{"batch complete"}},
		{"batch", domain.EventFilter{BatchID: "b1"}, []string{"download interrupted", "page loaded"}},
		{"search", domain.EventFilter{SearchText: "DISK"}, []string{"low disk space"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Query(context.Background(), domain.EventQuery{Filter: tt.filter, Limit: 10})
			if err != nil {
				t.Fatalf("query failed: %v", err)
			}
			if len(result.Events) != len(tt.want) {
				t.Fatalf("expected %d events, got %d", len(tt.want), len(result.Events))
			}
			for i, msg := range tt.want {
				if result.Events[i].Message != msg {
					t.Errorf("event %d: expected %q, got %q", i, msg, result.Events[i].Message)
				}
			}
		})
	}
}

func TestEventService_Subscribe(t *testing.T) {
	svc := newTestEventService(t, EventServiceConfig{RingBufferSize: 10})

	subID, ch := svc.Subscribe()
	if subID == 0 {
		t.Error("expected non-zero subscriber ID")
	}
	if svc.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", svc.SubscriberCount())
	}

	svc.EmitInfo(domain.EventCategorySystem, "test", "stream test", nil)

	select {
	case ev := <-ch:
		if ev.Message != "stream test" {
			t.Errorf("expected 'stream test', got '%s'", ev.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	svc.Unsubscribe(subID)
	if svc.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", svc.SubscriberCount())
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}

	// Unsubscribing twice is harmless.
	svc.Unsubscribe(subID)
}

func TestEventService_SubscriberOverflowDrops(t *testing.T) {
	svc := newTestEventService(t, EventServiceConfig{RingBufferSize: 10, SubscriberBuffer: 1})

	_, ch := svc.Subscribe()
	svc.EmitInfo(domain.EventCategorySystem, "test", "first", nil)
	svc.EmitInfo(domain.EventCategorySystem, "test", "second", nil)

	if ev := <-ch; ev.Message != "first" {
		t.Errorf("expected 'first', got %q", ev.Message)
	}
	select {
	case ev := <-ch:
		t.Errorf("expected dropped event, got %q", ev.Message)
	default:
	}
}

func TestEventService_ConcurrentEmit(t *testing.T) {
	svc := newTestEventService(t, EventServiceConfig{RingBufferSize: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				svc.EmitInfo(domain.EventCategorySystem, "test", "concurrent event", domain.EventMetadata{
					"goroutine": id,
					"iteration": j,
				})
			}
		}(i)
	}
	wg.Wait()

	if stats := svc.Stats(); stats.BufferUsed != 1000 {
		t.Errorf("expected buffer to be full (1000), got %d", stats.BufferUsed)
	}
}

func TestEventService_Pagination(t *testing.T) {
	svc := newTestEventService(t, EventServiceConfig{RingBufferSize: 100})

	for i := 0; i < 25; i++ {
		svc.EmitInfo(domain.EventCategorySystem, "test", "event "+string(rune('A'+i)), nil)
	}

	pages := []struct {
		offset  int
		want    int
		hasMore bool
	}{
		{0, 10, true},
		{10, 10, true},
		{20, 5, false},
		{30, 0, false},
	}
	for _, p := range pages {
		result, err := svc.Query(context.Background(), domain.EventQuery{Limit: 10, Offset: p.offset})
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(result.Events) != p.want {
			t.Errorf("offset %d: expected %d events, got %d", p.offset, p.want, len(result.Events))
		}
		if result.HasMore != p.hasMore {
			t.Errorf("offset %d: expected HasMore=%v", p.offset, p.hasMore)
		}
		if result.Total != 25 {
			t.Errorf("offset %d: expected total 25, got %d", p.offset, result.Total)
		}
	}
}

func TestEventService_SQLiteHistory(t *testing.T) {
	svc := newTestEventService(t, EventServiceConfig{
		RingBufferSize: 2,
		SQLitePath:     ":memory:",
		RetentionDays:  7,
	})

	now := time.Now()
	svc.Emit(domain.Event{
		Timestamp: now.AddDate(0, 0, -30),
		Severity:  domain.EventSeverityInfo,
		Category:  domain.EventCategoryBatch,
		Message:   "ancient",
		BatchID:   "old",
	})
	for i, msg := range []string{"one", "two", "three"} {
		svc.Emit(domain.Event{
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Severity:  domain.EventSeverityInfo,
			Category:  domain.EventCategoryDownload,
			Message:   msg,
			BatchID:   "b1",
			Metadata:  domain.EventMetadata{"n": i}.ToJSON(),
		})
	}

	if got := len(svc.GetRecent(10)); got != 2 {
		t.Errorf("ring buffer should hold 2 events, got %d", got)
	}

	result, err := svc.QueryHistorical(context.Background(), domain.EventQuery{
		Filter: domain.EventFilter{BatchID: "b1"},
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("QueryHistorical failed: %v", err)
	}
	if result.Total != 3 || len(result.Events) != 3 {
		t.Fatalf("expected 3 historical events, got total=%d len=%d", result.Total, len(result.Events))
	}
	if result.Events[0].Message != "three" || result.Events[2].Message != "one" {
		t.Errorf("unexpected order: %q ... %q", result.Events[0].Message, result.Events[2].Message)
	}
	if string(result.Events[2].Metadata) != `{"n":0}` {
		t.Errorf("metadata = %s", result.Events[2].Metadata)
	}

	deleted, err := svc.CleanupOldEvents(context.Background())
	if err != nil {
		t.Fatalf("CleanupOldEvents failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted event, got %d", deleted)
	}

	if !svc.Stats().SQLiteEnabled {
		t.Error("expected sqlite enabled")
	}
}

func TestEventService_QueryHistoricalWithoutSQLite(t *testing.T) {
	svc := newTestEventService(t, EventServiceConfig{})

	result, err := svc.QueryHistorical(context.Background(), domain.EventQuery{})
	if err != nil {
		t.Fatalf("QueryHistorical failed: %v", err)
	}
	if len(result.Events) != 0 {
		t.Errorf("expected no events, got %d", len(result.Events))
	}
	if n, err := svc.CleanupOldEvents(context.Background()); n != 0 || err != nil {
		t.Errorf("CleanupOldEvents() = %d, %v", n, err)
	}
}
