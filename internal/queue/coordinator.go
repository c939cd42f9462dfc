// Package queue runs batches of addon downloads one addon at a time.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/iconidentify/wadh/internal/browser"
	"github.com/iconidentify/wadh/internal/domain"
	"github.com/iconidentify/wadh/internal/navigation"
	"github.com/iconidentify/wadh/internal/progress"
)

// BatchState is a versioned snapshot of the coordinator's batch.
type BatchState struct {
	ID              domain.BatchID `json:"id,omitempty"`
	Version         uint64         `json:"version"`
	Busy            bool           `json:"busy"`
	CancelRequested bool           `json:"cancel_requested"`
	Folder          string         `json:"folder,omitempty"`
	Pending         []string       `json:"pending"`
	Current         string         `json:"current,omitempty"`
	Finished        int            `json:"finished"`
	Total           int            `json:"total"`
}

// Percent returns the completion percentage of the batch.
func (s BatchState) Percent() int {
	return progress.Percent(s.Finished, s.Total)
}

// Batch is a started batch. Done receives exactly one result; Progress is
// closed after that. Reading Progress is optional: an unread Progress never
// holds the batch back.
type Batch struct {
	ID       domain.BatchID
	Progress <-chan progress.Update
	Done     <-chan domain.BatchResult
}

// Config configures a Coordinator.
type Config struct {
	// ProgressBuffer is the room for byte progress updates a batch keeps on
	// top of its milestones. Default: 64
	ProgressBuffer int
}

// Coordinator owns the download queue. Only one batch runs at a time.
type Coordinator struct {
	host   browser.Host
	runner *navigation.Runner
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state BatchState
}

// NewCoordinator creates a Coordinator driving host.
func NewCoordinator(host browser.Host, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.ProgressBuffer <= 0 {
		cfg.ProgressBuffer = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		host:   host,
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		state:  BatchState{Pending: []string{}},
	}
	if host != nil {
		c.runner = navigation.NewRunner(host, navigation.NewController(), logger)
	}
	return c
}

// Close aborts a running batch. The batch still reports its result.
func (c *Coordinator) Close() {
	c.cancel()
}

// Start queues urls and begins downloading them into folder. It returns
// before the first addon is processed.
func (c *Coordinator) Start(urls []string, folder string) (*Batch, error) {
	if c.host == nil {
		return nil, domain.ErrNotInitialized
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: no urls given", domain.ErrInvalidArgument)
	}
	for _, u := range urls {
		if strings.TrimSpace(u) == "" {
			return nil, fmt.Errorf("%w: blank url", domain.ErrInvalidArgument)
		}
	}
	if strings.TrimSpace(folder) == "" {
		return nil, fmt.Errorf("%w: no download folder given", domain.ErrInvalidArgument)
	}

	c.mu.Lock()
	if c.state.Busy {
		c.mu.Unlock()
		return nil, domain.ErrAlreadyRunning
	}
	id := domain.BatchID(uuid.New().String())
	c.state = BatchState{
		ID:      id,
		Version: c.state.Version + 1,
		Busy:    true,
		Folder:  folder,
		Pending: append([]string(nil), urls...),
		Total:   len(urls),
	}
	c.mu.Unlock()

	events, detach := c.host.Subscribe()
	if err := c.host.SetDownloadFolder(c.ctx, folder); err != nil {
		detach()
		c.mu.Lock()
		c.state.Busy = false
		c.state.Version++
		c.mu.Unlock()
		return nil, fmt.Errorf("set download folder: %w", err)
	}

	reporter := progress.NewReporter(id, len(urls), c.cfg.ProgressBuffer)
	done := make(chan domain.BatchResult, 1)

	c.logger.Info("batch started", "batch_id", id, "addons", len(urls), "folder", folder)
	go c.run(id, events, detach, reporter, done)

	return &Batch{ID: id, Progress: reporter.Updates(), Done: done}, nil
}

// Cancel asks the running batch to stop after the current addon. The active
// download is cancelled at its next progress notification.
func (c *Coordinator) Cancel() error {
	if c.host == nil {
		return domain.ErrNotInitialized
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Busy && !c.state.CancelRequested {
		c.state.CancelRequested = true
		c.state.Version++
		c.logger.Info("batch cancellation requested", "batch_id", c.state.ID)
	}
	return nil
}

// Snapshot returns a copy of the batch state.
func (c *Coordinator) Snapshot() BatchState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Pending = append([]string{}, c.state.Pending...)
	return s
}

// Busy reports whether a batch is running.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Busy
}

func (c *Coordinator) run(id domain.BatchID, events <-chan browser.Event, detach func(), reporter *progress.Reporter, done chan<- domain.BatchResult) {
	defer reporter.Close()

	logger := c.logger.With("batch_id", id)
	hooks := navigation.Hooks{
		Progress: func(ev domain.ProgressEvent) {
			finished, total := c.counters()
			reporter.Report(ev, finished, total)
		},
		Finished:        c.markFinished,
		CancelRequested: c.cancelRequested,
	}

	var (
		err        error
		unfinished string
	)
	for {
		url, position, total, ok := c.dequeue()
		if !ok {
			break
		}

		s := c.runner.Process(c.ctx, events, url, position, total, hooks)
		if s.State != navigation.StateCompleted {
			err = s.Err
			unfinished = url
			break
		}
		if c.cancelRequested() {
			break
		}
	}

	detach()
	result := c.finish(id, err, unfinished)

	switch {
	case result.Err != nil:
		logger.Error("batch failed", "finished", result.Finished, "total", result.Total, "error", result.Err)
	case result.Cancelled:
		logger.Info("batch cancelled", "finished", result.Finished, "total", result.Total)
	default:
		logger.Info(fmt.Sprintf("Completed %d/%d addons.", result.Finished, result.Total))
	}
	if n := reporter.Dropped(); n > 0 {
		logger.Debug("progress updates dropped for a slow reader", "dropped", n)
	}
	done <- result
}

func (c *Coordinator) dequeue() (url string, position, total int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.state.Pending) == 0 {
		return "", 0, 0, false
	}
	url = c.state.Pending[0]
	c.state.Pending = c.state.Pending[1:]
	c.state.Current = url
	c.state.Version++
	return url, c.state.Total - len(c.state.Pending), c.state.Total, true
}

func (c *Coordinator) counters() (finished, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Finished, c.state.Total
}

func (c *Coordinator) markFinished() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Finished++
	c.state.Version++
}

func (c *Coordinator) cancelRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.CancelRequested
}

func (c *Coordinator) finish(id domain.BatchID, err error, unfinished string) domain.BatchResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	var unprocessed []string
	if unfinished != "" {
		unprocessed = append(unprocessed, unfinished)
	}
	unprocessed = append(unprocessed, c.state.Pending...)

	result := domain.BatchResult{
		BatchID:     id,
		Err:         err,
		Cancelled:   err == nil && c.state.CancelRequested,
		Finished:    c.state.Finished,
		Total:       c.state.Total,
		Unprocessed: unprocessed,
	}

	c.state.Busy = false
	c.state.Current = ""
	c.state.Version++
	return result
}
