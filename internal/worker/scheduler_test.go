package worker

import (
	"context"
	"errors"
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

// mockRunner implements BatchRunner for testing.
type mockRunner struct {
	mu     sync.Mutex
	calls  int
	urls   []string
	folder string
	err    error
	block  chan struct{}
}

func (m *mockRunner) Run(ctx context.Context, urls []string, folder string) (*domain.BatchRecord, error) {
	m.mu.Lock()
	m.calls++
	m.urls = urls
	m.folder = folder
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	record := domain.NewBatchRecord("scheduled", folder, urls)
	record.Complete(domain.BatchResult{Finished: len(urls), Total: len(urls)})
	return record, nil
}

func (m *mockRunner) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockCleaner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockCleaner) CleanupOldEvents(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return 0, m.err
}

func TestNewScheduler_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		cleaner EventCleaner
		wantErr bool
	}{
		{"empty", Config{}, nil, false},
		{"batch schedule", Config{Spec: "0 3 * * *", URLs: []string{"u"}}, nil, false},
		{"descriptor", Config{Spec: "@hourly", URLs: []string{"u"}}, &mockCleaner{}, false},
		{"invalid spec", Config{Spec: "not a spec", URLs: []string{"u"}}, nil, true},
		{"seconds field", Config{Spec: "0 0 3 * * *", URLs: []string{"u"}}, nil, true},
		{"no urls", Config{Spec: "@hourly"}, nil, true},
		{"invalid cleanup", Config{CleanupSpec: "bogus"}, &mockCleaner{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScheduler(tt.cfg, &mockRunner{}, tt.cleaner, testLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewScheduler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("error %v should wrap ErrInvalidArgument", err)
			}
			if s != nil {
				_ = s.Stop(time.Second)
			}
		})
	}
}

func TestScheduler_Entries(t *testing.T) {
	s, err := NewScheduler(Config{Spec: "@hourly", URLs: []string{"u"}}, &mockRunner{}, &mockCleaner{}, testLogger())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if n := len(s.cron.Entries()); n != 2 {
		t.Errorf("expected 2 cron entries, got %d", n)
	}

	s.Start()
	defer s.Stop(time.Second)

	next := s.Next()
	if next.IsZero() || next.After(time.Now().Add(time.Hour+time.Minute)) {
		t.Errorf("Next() = %v", next)
	}
}

func TestScheduler_RunBatch(t *testing.T) {
	runner := &mockRunner{}
	s, err := NewScheduler(Config{Spec: "@daily", URLs: []string{"a", "b"}, Folder: "/addons"}, runner, nil, testLogger())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	s.runBatch()

	if runner.Calls() != 1 {
		t.Fatalf("expected 1 run, got %d", runner.Calls())
	}
	if runner.folder != "/addons" || len(runner.urls) != 2 {
		t.Errorf("run args = %v, %s", runner.urls, runner.folder)
	}
	last := s.LastRun()
	if last == nil || last.Status != domain.BatchStatusCompleted {
		t.Errorf("LastRun() = %+v", last)
	}
}

func TestScheduler_RunBatchErrors(t *testing.T) {
	for _, runErr := range []error{domain.ErrAlreadyRunning, errors.New("boom")} {
		runner := &mockRunner{err: runErr}
		s, err := NewScheduler(Config{Spec: "@daily", URLs: []string{"a"}}, runner, nil, testLogger())
		if err != nil {
			t.Fatalf("NewScheduler() error = %v", err)
		}

		s.runBatch()

		if s.LastRun() != nil {
			t.Errorf("%v: LastRun should stay empty", runErr)
		}
	}
}

func TestScheduler_StoppedSkipsRun(t *testing.T) {
	runner := &mockRunner{}
	s, err := NewScheduler(Config{Spec: "@daily", URLs: []string{"a"}}, runner, nil, testLogger())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	s.runBatch()

	if runner.Calls() != 0 {
		t.Errorf("stopped scheduler ran a batch")
	}
}

func TestScheduler_Cleanup(t *testing.T) {
	cleaner := &mockCleaner{err: errors.New("locked")}
	s, err := NewScheduler(Config{}, &mockRunner{}, cleaner, testLogger())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	s.cleanup()

	cleaner.mu.Lock()
	defer cleaner.mu.Unlock()
	if cleaner.calls != 1 {
		t.Errorf("expected 1 cleanup, got %d", cleaner.calls)
	}
}

func TestScheduler_StopCancelsRunningBatch(t *testing.T) {
	runner := &mockRunner{block: make(chan struct{})}
	s, err := NewScheduler(Config{Spec: "@daily", URLs: []string{"a"}}, runner, nil, testLogger())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.runBatch()
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for runner.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("running batch was not cancelled")
	}
}
