package repository

import (
	"context"
	"sync"

	"github.com/iconidentify/wadh/internal/domain"
)

// InMemoryBatchRepository implements BatchRepository using in-memory storage.
// Records are copied on the way in and out.
type InMemoryBatchRepository struct {
	mu      sync.RWMutex
	batches map[domain.BatchID]*domain.BatchRecord
	order   []domain.BatchID // insertion order
	limit   int
}

// NewInMemoryBatchRepository creates a repository keeping at most limit
// batches. A limit of zero keeps everything.
func NewInMemoryBatchRepository(limit int) *InMemoryBatchRepository {
	return &InMemoryBatchRepository{
		batches: make(map[domain.BatchID]*domain.BatchRecord),
		order:   make([]domain.BatchID, 0),
		limit:   limit,
	}
}

func clone(b *domain.BatchRecord) *domain.BatchRecord {
	c := *b
	c.URLs = append([]string(nil), b.URLs...)
	c.Files = append([]domain.DownloadedFile(nil), b.Files...)
	c.Unprocessed = append([]string(nil), b.Unprocessed...)
	if b.FinishedAt != nil {
		t := *b.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Save stores a new batch record, evicting the oldest beyond the limit.
func (r *InMemoryBatchRepository) Save(ctx context.Context, batch *domain.BatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.batches[batch.ID]; !ok {
		r.order = append(r.order, batch.ID)
	}
	r.batches[batch.ID] = clone(batch)

	for r.limit > 0 && len(r.order) > r.limit {
		delete(r.batches, r.order[0])
		r.order = r.order[1:]
	}
	return nil
}

// Update replaces an existing batch record.
func (r *InMemoryBatchRepository) Update(ctx context.Context, batch *domain.BatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.batches[batch.ID]; !ok {
		return domain.ErrBatchNotFound
	}
	r.batches[batch.ID] = clone(batch)
	return nil
}

// Get retrieves a batch by ID.
func (r *InMemoryBatchRepository) Get(ctx context.Context, id domain.BatchID) (*domain.BatchRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	batch, ok := r.batches[id]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	return clone(batch), nil
}

// List returns batches, newest first.
func (r *InMemoryBatchRepository) List(ctx context.Context, limit int) ([]*domain.BatchRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.BatchRecord, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, clone(r.batches[r.order[i]]))
	}
	return result, nil
}

// Stats returns batch statistics.
func (r *InMemoryBatchRepository) Stats(ctx context.Context) (*BatchStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &BatchStats{}
	for _, batch := range r.batches {
		switch batch.Status {
		case domain.BatchStatusRunning:
			stats.Running++
		case domain.BatchStatusCompleted:
			stats.Completed++
		case domain.BatchStatusCancelled:
			stats.Cancelled++
		case domain.BatchStatusFailed:
			stats.Failed++
		}
		stats.AddonsFinished += batch.Finished
		stats.AddonsRequested += batch.Total
	}
	return stats, nil
}
