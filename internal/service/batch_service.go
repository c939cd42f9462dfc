package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iconidentify/wadh/internal/domain"
	"github.com/iconidentify/wadh/internal/progress"
	"github.com/iconidentify/wadh/internal/queue"
	"github.com/iconidentify/wadh/internal/repository"
	"github.com/iconidentify/wadh/internal/storage"
)

// BatchServiceConfig configures the batch service.
type BatchServiceConfig struct {
	// DefaultFolder is used when a batch names no folder.
	DefaultFolder string
	// CleanFolder removes old archives from the folder before a batch.
	CleanFolder bool
	// MinFreeBytes is the free space required to start a batch.
	MinFreeBytes uint64
}

// ProgressObserver receives every progress update of every batch.
type ProgressObserver func(progress.Update)

// BatchService runs download batches and records their history.
type BatchService struct {
	coordinator *queue.Coordinator
	repo        repository.BatchRepository
	events      domain.EventEmitter
	cfg         BatchServiceConfig
	logger      *slog.Logger

	mu        sync.Mutex
	startMu   sync.Mutex
	observers []ProgressObserver
	running   map[domain.BatchID]chan struct{}
	wg        sync.WaitGroup
}

// NewBatchService creates a new batch service.
func NewBatchService(
	coordinator *queue.Coordinator,
	repo repository.BatchRepository,
	events domain.EventEmitter,
	cfg BatchServiceConfig,
	logger *slog.Logger,
) *BatchService {
	return &BatchService{
		coordinator: coordinator,
		repo:        repo,
		events:      events,
		cfg:         cfg,
		logger:      logger.With("component", "batch"),
		running:     make(map[domain.BatchID]chan struct{}),
	}
}

// OnProgress registers an observer for progress updates.
func (s *BatchService) OnProgress(fn ProgressObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// StartBatch prepares the folder and starts downloading urls into it.
func (s *BatchService) StartBatch(ctx context.Context, urls []string, folder string) (*domain.BatchRecord, error) {
	if folder == "" {
		folder = s.cfg.DefaultFolder
	}

	// Serialise preparation so a running batch's folder is never cleaned.
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.coordinator.Busy() {
		return nil, domain.ErrAlreadyRunning
	}
	if folder != "" {
		if err := s.prepareFolder(folder); err != nil {
			s.events.EmitError(domain.EventCategoryDisk, "batch", "download folder not usable", domain.EventMetadata{
				"folder": folder,
				"error":  err.Error(),
			})
			return nil, err
		}
	}

	batch, err := s.coordinator.Start(urls, folder)
	if err != nil {
		return nil, err
	}

	record := domain.NewBatchRecord(batch.ID, folder, append([]string(nil), urls...))
	if err := s.repo.Save(ctx, record); err != nil {
		s.logger.Warn("failed to save batch", "batch_id", batch.ID, "error", err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.running[batch.ID] = done
	s.mu.Unlock()

	s.events.EmitInfo(domain.EventCategoryBatch, "batch", fmt.Sprintf("Batch started with %d addons.", len(urls)), domain.EventMetadata{
		"batch_id": batch.ID.String(),
		"folder":   folder,
		"addons":   len(urls),
	})

	snapshot := *record
	s.wg.Add(1)
	go s.track(batch, record, done)

	return &snapshot, nil
}

func (s *BatchService) prepareFolder(path string) error {
	folder := storage.NewFolder(path, s.logger)
	removed, err := folder.Prepare(s.cfg.CleanFolder)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.events.EmitInfo(domain.EventCategoryDisk, "batch", fmt.Sprintf("Removed %d old archives.", removed), domain.EventMetadata{
			"folder": path,
		})
	}
	return folder.EnsureFreeSpace(s.cfg.MinFreeBytes)
}

// track drains the progress of a batch into its record until the batch ends.
func (s *BatchService) track(batch *queue.Batch, record *domain.BatchRecord, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)

	ctx := context.Background()
	logger := s.logger.With("batch_id", batch.ID)

	for u := range batch.Progress {
		s.apply(record, u, logger)
		if err := s.repo.Update(ctx, record); err != nil {
			logger.Warn("failed to update batch", "error", err)
		}
		s.notify(u)
	}

	result := <-batch.Done
	record.Complete(result)
	record.Percent = progress.Percent(result.Finished, result.Total)
	if err := s.repo.Update(ctx, record); err != nil {
		logger.Warn("failed to update batch", "error", err)
	}

	s.mu.Lock()
	delete(s.running, batch.ID)
	s.mu.Unlock()

	meta := domain.EventMetadata{
		"batch_id": batch.ID.String(),
		"finished": result.Finished,
		"total":    result.Total,
	}
	if len(result.Unprocessed) > 0 {
		meta["unprocessed"] = result.Unprocessed
	}
	summary := fmt.Sprintf("Completed %d/%d addons.", result.Finished, result.Total)
	switch {
	case result.Err != nil:
		meta["error"] = result.Err.Error()
		s.events.EmitError(domain.EventCategoryBatch, "batch", "Batch failed. "+summary, meta)
	case result.Cancelled:
		s.events.EmitWarning(domain.EventCategoryBatch, "batch", "Batch cancelled. "+summary, meta)
	default:
		s.events.EmitSuccess(domain.EventCategoryBatch, "batch", summary, meta)
	}
}

func (s *BatchService) apply(record *domain.BatchRecord, u progress.Update, logger *slog.Logger) {
	ev := u.Event
	record.Percent = u.Percent
	record.Finished = u.Finished
	record.Current = ev.URL

	meta := domain.EventMetadata{
		"batch_id": u.BatchID.String(),
		"url":      ev.URL,
		"addon":    ev.Addon,
		"state":    ev.State.String(),
	}

	switch ev.State {
	case domain.ProgressAddonStarting:
		s.events.EmitInfo(domain.EventCategoryBatch, "batch", ev.Info, meta)
	case domain.ProgressEvaluationOfAddonPageJSONFinished, domain.ProgressNavigationAndRedirectsFinished:
		s.events.EmitInfo(domain.EventCategoryNavigation, "navigation", ev.Info, meta)
	case domain.ProgressDownloadStarting:
		s.events.EmitInfo(domain.EventCategoryDownload, "download", ev.Info, meta)
	case domain.ProgressDownloadFinished:
		file := domain.DownloadedFile{URL: ev.URL, Addon: ev.Addon, Path: ev.FilePath, Size: ev.ReceivedBytes}
		if ev.FilePath != "" {
			sum, size, err := storage.Checksum(ev.FilePath)
			if err != nil {
				logger.Warn("failed to checksum download", "path", ev.FilePath, "error", err)
			} else {
				file.Checksum = sum
				file.Size = size
			}
		}
		record.Files = append(record.Files, file)
		meta["path"] = file.Path
		meta["size"] = file.Size
		meta["checksum"] = file.Checksum
		s.events.EmitSuccess(domain.EventCategoryDownload, "download", ev.Info, meta)
	case domain.ProgressAddonFinished:
		s.events.EmitSuccess(domain.EventCategoryBatch, "batch", ev.Info, meta)
	}
}

func (s *BatchService) notify(u progress.Update) {
	s.mu.Lock()
	observers := append([]ProgressObserver(nil), s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(u)
	}
}

// Wait blocks until the batch has ended and returns its final record.
func (s *BatchService) Wait(ctx context.Context, id domain.BatchID) (*domain.BatchRecord, error) {
	s.mu.Lock()
	done, ok := s.running[id]
	s.mu.Unlock()

	if ok {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.repo.Get(ctx, id)
}

// Run starts a batch and waits for it to end.
func (s *BatchService) Run(ctx context.Context, urls []string, folder string) (*domain.BatchRecord, error) {
	record, err := s.StartBatch(ctx, urls, folder)
	if err != nil {
		return nil, err
	}
	return s.Wait(ctx, record.ID)
}

// Cancel requests cancellation of the running batch.
func (s *BatchService) Cancel() error {
	state := s.coordinator.Snapshot()
	if err := s.coordinator.Cancel(); err != nil {
		return err
	}
	if state.Busy {
		s.events.EmitWarning(domain.EventCategoryBatch, "batch", "Batch cancellation requested.", domain.EventMetadata{
			"batch_id": state.ID.String(),
		})
	}
	return nil
}

// Status returns the state of the coordinator.
func (s *BatchService) Status() queue.BatchState {
	return s.coordinator.Snapshot()
}

// Get returns a batch record.
func (s *BatchService) Get(ctx context.Context, id domain.BatchID) (*domain.BatchRecord, error) {
	return s.repo.Get(ctx, id)
}

// List returns recent batch records, newest first.
func (s *BatchService) List(ctx context.Context, limit int) ([]*domain.BatchRecord, error) {
	return s.repo.List(ctx, limit)
}

// Stats returns batch history statistics.
func (s *BatchService) Stats(ctx context.Context) (*repository.BatchStats, error) {
	return s.repo.Stats(ctx)
}

// Shutdown cancels the running batch and waits for its record to settle.
func (s *BatchService) Shutdown(ctx context.Context) error {
	if s.coordinator.Busy() {
		_ = s.coordinator.Cancel()
	}

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
