package handler

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iconidentify/wadh/internal/domain"
	"github.com/iconidentify/wadh/internal/service"
)

func newTestEventService(t *testing.T) *service.EventService {
	t.Helper()
	svc, err := service.NewEventService(service.EventServiceConfig{RingBufferSize: 50}, testLogger())
	if err != nil {
		t.Fatalf("NewEventService: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestEventHandler_List(t *testing.T) {
	events := newTestEventService(t)
	events.EmitInfo(domain.EventCategoryBatch, "batch", "batch started", domain.EventMetadata{"batch_id": "b1"})
	events.EmitError(domain.EventCategoryDownload, "download", "download interrupted", domain.EventMetadata{"batch_id": "b1"})
	events.EmitInfo(domain.EventCategoryBatch, "batch", "batch started", domain.EventMetadata{"batch_id": "b2"})

	h := NewEventHandler(events, testLogger())

	tests := []struct {
		query     string
		wantCode  int
		wantTotal int
	}{
		{"", http.StatusOK, 3},
		{"?batch_id=b1", http.StatusOK, 2},
		{"?severity=error", http.StatusOK, 1},
		{"?category=batch&batch_id=b2", http.StatusOK, 1},
		{"?search=INTERRUPTED", http.StatusOK, 1},
		{"?start_time=2000-01-01T00:00:00Z", http.StatusOK, 3},
		{"?end_time=2000-01-01T00:00:00Z", http.StatusOK, 0},
		{"?start_time=yesterday", http.StatusBadRequest, 0},
		{"?historical=true", http.StatusOK, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/events"+tt.query, nil))

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var resp EventListResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", resp.Total, tt.wantTotal)
			}
		})
	}
}

func TestEventHandler_ListPagination(t *testing.T) {
	events := newTestEventService(t)
	for i := 0; i < 5; i++ {
		events.EmitInfo(domain.EventCategorySystem, "test", "tick", nil)
	}
	h := NewEventHandler(events, testLogger())

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/events?limit=2&offset=1", nil))

	var resp EventListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Events) != 2 || resp.Limit != 2 || resp.Offset != 1 || !resp.HasMore {
		t.Errorf("resp = %+v", resp)
	}
}

func TestEventHandler_Recent(t *testing.T) {
	events := newTestEventService(t)
	events.EmitInfo(domain.EventCategorySystem, "test", "first", nil)
	events.EmitInfo(domain.EventCategorySystem, "test", "second", nil)
	h := NewEventHandler(events, testLogger())

	w := httptest.NewRecorder()
	h.Recent(w, httptest.NewRequest(http.MethodGet, "/api/v1/events/recent?limit=1", nil))

	var resp map[string][]domain.Event
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := resp["events"]; len(got) != 1 || got[0].Message != "second" {
		t.Errorf("events = %+v", got)
	}
}

func TestEventHandler_Stream(t *testing.T) {
	events := newTestEventService(t)
	h := NewEventHandler(events, testLogger())

	srv := httptest.NewServer(http.HandlerFunc(h.Stream))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?batch_id=b1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	next := func() string {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed")
			}
			return line
		case <-time.After(5 * time.Second):
			t.Fatal("timeout reading stream")
		}
		return ""
	}

	if line := next(); line != "event: connected" {
		t.Fatalf("first line = %q", line)
	}
	next() // data
	next() // blank

	events.EmitInfo(domain.EventCategoryBatch, "batch", "other batch", domain.EventMetadata{"batch_id": "b2"})
	events.EmitSuccess(domain.EventCategoryDownload, "download", "Finished file download.", domain.EventMetadata{"batch_id": "b1"})

	if line := next(); !strings.HasPrefix(line, "id: ") {
		t.Fatalf("expected id line, got %q", line)
	}
	if line := next(); line != "event: download" {
		t.Errorf("event line = %q", line)
	}
	data := strings.TrimPrefix(next(), "data: ")
	var ev domain.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	if ev.Message != "Finished file download." || ev.BatchID != "b1" {
		t.Errorf("event = %+v", ev)
	}
}
