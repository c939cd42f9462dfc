package domain

import "time"

// BatchID is a unique identifier for a download batch.
type BatchID string

// String returns the string representation of the BatchID.
func (id BatchID) String() string {
	return string(id)
}

// BatchResult is the terminal outcome of a batch.
type BatchResult struct {
	BatchID     BatchID  `json:"batch_id"`
	Cancelled   bool     `json:"cancelled"`
	Err         error    `json:"-"`
	Finished    int      `json:"finished"`
	Total       int      `json:"total"`
	Unprocessed []string `json:"unprocessed,omitempty"`
}

// Succeeded reports whether every resource of the batch was downloaded.
func (r BatchResult) Succeeded() bool {
	return r.Err == nil && !r.Cancelled && r.Finished == r.Total
}

// BatchStatus represents the current state of a batch.
type BatchStatus string

const (
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusCancelled BatchStatus = "cancelled"
	BatchStatusFailed    BatchStatus = "failed"
)

// DownloadedFile describes a finished download.
type DownloadedFile struct {
	URL      string `json:"url"`
	Addon    string `json:"addon"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum,omitempty"`
}

// BatchRecord is the history entry of a batch.
type BatchRecord struct {
	ID          BatchID          `json:"id"`
	Status      BatchStatus      `json:"status"`
	Folder      string           `json:"folder"`
	URLs        []string         `json:"urls"`
	Percent     int              `json:"percent"`
	Finished    int              `json:"finished"`
	Total       int              `json:"total"`
	Current     string           `json:"current,omitempty"`
	Files       []DownloadedFile `json:"files,omitempty"`
	Unprocessed []string         `json:"unprocessed,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
}

// NewBatchRecord creates a running record for a batch.
func NewBatchRecord(id BatchID, folder string, urls []string) *BatchRecord {
	now := time.Now()
	return &BatchRecord{
		ID:        id,
		Status:    BatchStatusRunning,
		Folder:    folder,
		URLs:      urls,
		Total:     len(urls),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal returns true once the batch has stopped.
func (b *BatchRecord) IsTerminal() bool {
	return b.Status != BatchStatusRunning
}

// Complete applies the terminal result to the record.
func (b *BatchRecord) Complete(result BatchResult) {
	now := time.Now()
	b.Finished = result.Finished
	b.Unprocessed = result.Unprocessed
	b.Current = ""
	b.UpdatedAt = now
	b.FinishedAt = &now

	switch {
	case result.Err != nil:
		b.Status = BatchStatusFailed
		b.LastError = result.Err.Error()
	case result.Cancelled:
		b.Status = BatchStatusCancelled
	default:
		b.Status = BatchStatusCompleted
	}
}
