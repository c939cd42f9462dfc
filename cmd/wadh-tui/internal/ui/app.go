// Package ui provides the terminal dashboard for addon batches.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/iconidentify/wadh/internal/domain"
	"github.com/iconidentify/wadh/internal/progress"
	"github.com/iconidentify/wadh/internal/service"
)

const maxLogLines = 500

// App is the dashboard application.
type App struct {
	app     *tview.Application
	batches *service.BatchService
	events  *service.EventService
	urls    []string
	folder  string
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	board *board

	header    *tview.TextView
	gauge     *tview.TextView
	table     *tview.Table
	logView   *tview.TextView
	statusBar *tview.TextView
	footer    *tview.TextView
}

// NewApp creates the dashboard for downloading urls into folder.
func NewApp(batches *service.BatchService, events *service.EventService, urls []string, folder string, logger *slog.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:     tview.NewApplication(),
		batches: batches,
		events:  events,
		urls:    urls,
		folder:  folder,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		board:   newBoard("", urls),
	}
	a.setupUI()
	return a
}

func (a *App) setupUI() {
	a.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.header.SetBackgroundColor(tcell.ColorDarkBlue)
	a.header.SetText(fmt.Sprintf("\n[white::b]wadh[white] | %d addons | Folder: [green]%s", len(a.urls), a.folder))

	a.gauge = tview.NewTextView().SetDynamicColors(true)
	a.gauge.SetBorder(true).SetTitle(" Progress ")

	a.table = tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0).
		SetSelectable(true, false)
	a.table.SetBorder(true).SetTitle(" Addons ")

	a.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetMaxLines(maxLogLines)
	a.logView.SetBorder(true).SetTitle(" Activity ")

	a.statusBar = tview.NewTextView().SetDynamicColors(true)
	a.statusBar.SetBackgroundColor(tcell.ColorDarkGreen)

	a.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[yellow]s[white]:Start [yellow]c[white]:Cancel [yellow]q[white]:Quit")
	a.footer.SetBackgroundColor(tcell.ColorDarkBlue)

	body := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.gauge, 3, 0, false).
		AddItem(a.table, 0, 2, true).
		AddItem(a.logView, 0, 1, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, 3, 0, false).
		AddItem(body, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false).
		AddItem(a.footer, 1, 0, false)

	a.app.SetInputCapture(a.handleKeys)
	a.app.SetRoot(root, true)
	a.render()
}

func (a *App) handleKeys(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() != tcell.KeyRune {
		return event
	}
	switch event.Rune() {
	case 's', 'S':
		go a.startBatch()
		return nil
	case 'c', 'C':
		go a.cancelBatch()
		return nil
	case 'q', 'Q':
		a.Stop()
		return nil
	}
	return event
}

// Run starts the first batch and blocks until the user quits.
func (a *App) Run() error {
	a.batches.OnProgress(a.onProgress)

	subID, ch := a.events.Subscribe()
	go a.streamEvents(subID, ch)

	go a.startBatch()
	return a.app.Run()
}

// Stop cancels the running batch and leaves the dashboard.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func (a *App) startBatch() {
	record, err := a.batches.StartBatch(a.ctx, a.urls, a.folder)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			a.setStatus("[yellow]A batch is already running")
			return
		}
		a.logger.Error("failed to start batch", "error", err)
		a.setStatus(fmt.Sprintf("[red]Error: %v", err))
		return
	}

	a.mu.Lock()
	a.board = newBoard(record.ID, record.URLs)
	a.mu.Unlock()
	a.setStatus("Batch " + record.ID.String() + " running")

	go func() {
		final, err := a.batches.Wait(a.ctx, record.ID)
		if err != nil {
			return
		}
		msg := fmt.Sprintf("Completed %d/%d addons.", final.Finished, final.Total)
		switch final.Status {
		case domain.BatchStatusFailed:
			a.setStatus("[red]" + msg + " " + final.LastError)
		case domain.BatchStatusCancelled:
			a.setStatus("[yellow]Cancelled. " + msg)
		default:
			a.setStatus("[green]" + msg)
		}
	}()
}

func (a *App) cancelBatch() {
	if !a.batches.Status().Busy {
		a.setStatus("No batch running")
		return
	}
	if err := a.batches.Cancel(); err != nil {
		a.setStatus(fmt.Sprintf("[red]Error: %v", err))
		return
	}
	a.setStatus("[yellow]Cancelling after the current addon...")
}

func (a *App) onProgress(u progress.Update) {
	a.mu.Lock()
	a.board.apply(u)
	a.mu.Unlock()
	a.draw(a.render)
}

// draw queues f on the UI goroutine while the dashboard is open.
func (a *App) draw(f func()) {
	if a.ctx.Err() != nil {
		return
	}
	a.app.QueueUpdateDraw(f)
}

func (a *App) streamEvents(subID uint64, ch <-chan domain.Event) {
	defer a.events.Unsubscribe(subID)
	for {
		select {
		case <-a.ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			line := fmt.Sprintf("[gray]%s %s%s[white]\n", ev.Timestamp.Format("15:04:05"), severityColor(ev.Severity), tview.Escape(ev.Message))
			a.draw(func() {
				fmt.Fprint(a.logView, line)
				a.logView.ScrollToEnd()
			})
		}
	}
}

// render redraws the gauge and the table. It runs on the UI goroutine.
func (a *App) render() {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.board

	a.gauge.SetText(fmt.Sprintf(" %s [white::b]%3d%%[white] (%d/%d)", progressBar(b.percent, 40), b.percent, b.finished, b.total))

	a.table.Clear()
	for col, title := range []string{"Addon", "State", "Bytes", "Info"} {
		a.table.SetCell(0, col, tview.NewTableCell(title).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false).
			SetExpansion(1))
	}
	for i, row := range b.rows {
		a.table.SetCell(i+1, 0, tview.NewTableCell(tview.Escape(row.Addon)))
		a.table.SetCell(i+1, 1, tview.NewTableCell(row.stateText()))
		a.table.SetCell(i+1, 2, tview.NewTableCell(row.bytesText()))
		a.table.SetCell(i+1, 3, tview.NewTableCell(tview.Escape(row.Info)).SetExpansion(2))
	}
}

func (a *App) setStatus(msg string) {
	a.draw(func() {
		a.statusBar.SetText(fmt.Sprintf(" %s | %s", msg, time.Now().Format("15:04:05")))
	})
}

func severityColor(s domain.EventSeverity) string {
	switch s {
	case domain.EventSeverityError:
		return "[red]"
	case domain.EventSeverityWarning:
		return "[yellow]"
	case domain.EventSeveritySuccess:
		return "[green]"
	default:
		return "[white]"
	}
}
