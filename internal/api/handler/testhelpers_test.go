package handler

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/iconidentify/wadh/internal/domain"
	"github.com/iconidentify/wadh/internal/queue"
	"github.com/iconidentify/wadh/internal/repository"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockBatchService is a test implementation of BatchService.
type mockBatchService struct {
	mu        sync.Mutex
	batches   map[domain.BatchID]*domain.BatchRecord
	order     []domain.BatchID
	state     queue.BatchState
	startErr  error
	cancelErr error
	listErr   error
	statsErr  error

	startedURLs   []string
	startedFolder string
	cancels       int
}

func newMockBatchService() *mockBatchService {
	return &mockBatchService{batches: make(map[domain.BatchID]*domain.BatchRecord)}
}

func (m *mockBatchService) StartBatch(ctx context.Context, urls []string, folder string) (*domain.BatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.startedURLs = urls
	m.startedFolder = folder
	id := domain.BatchID("batch-1")
	record := domain.NewBatchRecord(id, folder, urls)
	m.batches[id] = record
	m.order = append(m.order, id)
	m.state = queue.BatchState{ID: id, Version: 1, Busy: true, Folder: folder, Pending: urls, Total: len(urls)}
	return record, nil
}

func (m *mockBatchService) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancels++
	if m.state.Busy {
		m.state.CancelRequested = true
		m.state.Version++
	}
	return nil
}

func (m *mockBatchService) Status() queue.BatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockBatchService) Get(ctx context.Context, id domain.BatchID) (*domain.BatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.batches[id]; ok {
		return b, nil
	}
	return nil, domain.ErrBatchNotFound
}

func (m *mockBatchService) List(ctx context.Context, limit int) ([]*domain.BatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*domain.BatchRecord, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.batches[m.order[i]])
	}
	return out, nil
}

func (m *mockBatchService) Stats(ctx context.Context) (*repository.BatchStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return &repository.BatchStats{Completed: len(m.batches)}, nil
}
