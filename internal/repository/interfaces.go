package repository

import (
	"context"

	"github.com/iconidentify/wadh/internal/domain"
)

// BatchRepository keeps the history of download batches.
type BatchRepository interface {
	// Save stores a new batch record.
	Save(ctx context.Context, batch *domain.BatchRecord) error

	// Update replaces an existing batch record.
	Update(ctx context.Context, batch *domain.BatchRecord) error

	// Get retrieves a batch by ID.
	Get(ctx context.Context, id domain.BatchID) (*domain.BatchRecord, error)

	// List returns batches, newest first.
	List(ctx context.Context, limit int) ([]*domain.BatchRecord, error)

	// Stats returns batch statistics.
	Stats(ctx context.Context) (*BatchStats, error)
}

// BatchStats contains batch history statistics.
type BatchStats struct {
	Running         int `json:"running"`
	Completed       int `json:"completed"`
	Cancelled       int `json:"cancelled"`
	Failed          int `json:"failed"`
	AddonsFinished  int `json:"addons_finished"`
	AddonsRequested int `json:"addons_requested"`
}
