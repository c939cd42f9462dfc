// Package progress turns per-addon progress events into batch progress updates.
package progress

import (
	"math"

	"github.com/iconidentify/wadh/internal/domain"
)

// Update is a progress event with the batch completion percentage.
type Update struct {
	BatchID  domain.BatchID       `json:"batch_id"`
	Percent  int                  `json:"percent"`
	Finished int                  `json:"finished"`
	Total    int                  `json:"total"`
	Event    domain.ProgressEvent `json:"event"`
}

// Percent returns round(100*finished/total) clamped to [0, 100], or 0 for an
// empty batch.
func Percent(finished, total int) int {
	if total <= 0 || finished <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(finished) / float64(total)))
	return min(p, 100)
}

// milestonesPerAddon is the most updates other than byte progress one addon
// reports: each remaining state at most once.
const milestonesPerAddon = int(domain.ProgressAddonFinished)

// Reporter publishes updates of one batch. Its channel has room for every
// milestone of the batch, so Report never blocks and a reader that falls
// behind only loses byte progress updates.
type Reporter struct {
	batchID  domain.BatchID
	sink     chan Update
	reserved int
	dropped  int
}

// NewReporter creates a Reporter for a batch of total addons with room for
// buffer byte progress updates on top of the milestones.
func NewReporter(batchID domain.BatchID, total, buffer int) *Reporter {
	reserved := max(total, 0) * milestonesPerAddon
	return &Reporter{
		batchID:  batchID,
		sink:     make(chan Update, reserved+max(buffer, 0)),
		reserved: reserved,
	}
}

// Updates returns the channel the updates are sent on.
func (r *Reporter) Updates() <-chan Update {
	return r.sink
}

// Close closes the updates channel. Report must not be called afterwards.
func (r *Reporter) Close() {
	close(r.sink)
}

// Dropped returns the number of updates that were not delivered.
func (r *Reporter) Dropped() int {
	return r.dropped
}

// Report sends event with the percentage derived from the counters and
// reports whether it was queued. Byte progress is dropped when only the room
// kept for milestones is left. Report is not safe for concurrent use.
func (r *Reporter) Report(event domain.ProgressEvent, finished, total int) (Update, bool) {
	u := Update{
		BatchID:  r.batchID,
		Percent:  Percent(finished, total),
		Finished: finished,
		Total:    total,
		Event:    event,
	}

	if event.State == domain.ProgressDownloadProgress {
		if len(r.sink)+r.reserved >= cap(r.sink) {
			r.dropped++
			return u, false
		}
	} else if r.reserved > 0 {
		r.reserved--
	}

	select {
	case r.sink <- u:
		return u, true
	default:
		r.dropped++
		return u, false
	}
}
