package ui

import (
	"fmt"
	"strings"

	"github.com/iconidentify/wadh/internal/domain"
	"github.com/iconidentify/wadh/internal/progress"
	"github.com/iconidentify/wadh/pkg/curse"
)

// addonRow is the display state of one addon.
type addonRow struct {
	URL      string
	Addon    string
	State    domain.ProgressState
	Started  bool
	Received int64
	Total    int64
	Info     string
}

// board is the display model of a batch.
type board struct {
	batchID  domain.BatchID
	rows     []addonRow
	index    map[string]int
	percent  int
	finished int
	total    int
}

func newBoard(id domain.BatchID, urls []string) *board {
	b := &board{
		batchID: id,
		rows:    make([]addonRow, 0, len(urls)),
		index:   make(map[string]int, len(urls)),
		total:   len(urls),
	}
	for i, u := range urls {
		addon := curse.SlugFromContentPageURL(u)
		if addon == "" {
			addon = u
		}
		b.rows = append(b.rows, addonRow{URL: u, Addon: addon})
		b.index[u] = i
	}
	return b
}

// apply records an update. Updates of other batches are ignored.
func (b *board) apply(u progress.Update) {
	if u.BatchID != b.batchID {
		return
	}
	b.percent = u.Percent
	b.finished = u.Finished
	if u.Total > 0 {
		b.total = u.Total
	}

	i, ok := b.index[u.Event.URL]
	if !ok {
		return
	}
	row := &b.rows[i]
	row.Started = true
	row.State = u.Event.State
	if u.Event.Addon != "" {
		row.Addon = u.Event.Addon
	}
	if u.Event.Info != "" {
		row.Info = u.Event.Info
	}
	if u.Event.TotalBytes > 0 {
		row.Total = u.Event.TotalBytes
	}
	if u.Event.ReceivedBytes > 0 {
		row.Received = u.Event.ReceivedBytes
	}
}

func (r addonRow) stateText() string {
	if !r.Started {
		return "[gray]queued"
	}
	switch r.State {
	case domain.ProgressAddonFinished, domain.ProgressDownloadFinished:
		return "[green]done"
	case domain.ProgressDownloadStarting, domain.ProgressDownloadProgress:
		return "[yellow]downloading"
	default:
		return "[aqua]" + strings.ReplaceAll(r.State.String(), "_", " ")
	}
}

func (r addonRow) bytesText() string {
	if r.Total <= 0 {
		if r.Received > 0 {
			return formatBytes(r.Received)
		}
		return "-"
	}
	return fmt.Sprintf("%s / %s", formatBytes(r.Received), formatBytes(r.Total))
}

// formatBytes renders n with a binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// progressBar renders percent as a bar of width cells.
func progressBar(percent, width int) string {
	percent = max(0, min(percent, 100))
	filled := percent * width / 100
	return "[green]" + strings.Repeat("█", filled) + "[gray]" + strings.Repeat("░", width-filled) + "[white]"
}
