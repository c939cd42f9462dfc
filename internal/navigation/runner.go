package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/iconidentify/wadh/internal/browser"
	"github.com/iconidentify/wadh/internal/domain"
	"github.com/iconidentify/wadh/pkg/curse"
)

// Hooks connect a running session to its batch.
type Hooks struct {
	Progress        func(domain.ProgressEvent)
	Finished        func()
	CancelRequested func() bool
}

// maxRetired bounds the navigation ids a Runner remembers from ended
// sessions.
const maxRetired = 4

// Runner executes sessions against a browser host.
type Runner struct {
	host       browser.Host
	controller *Controller
	logger     *slog.Logger

	mu      sync.Mutex
	retired []browser.NavigationID
}

// NewRunner creates a Runner.
func NewRunner(host browser.Host, controller *Controller, logger *slog.Logger) *Runner {
	return &Runner{
		host:       host,
		controller: controller,
		logger:     logger,
	}
}

type process struct {
	*Runner
	hooks  Hooks
	active browser.DownloadOperation
	logger *slog.Logger
}

// Process drives url through the redirect chain, reading host events from
// events, and returns the terminal session.
func (r *Runner) Process(ctx context.Context, events <-chan browser.Event, url string, position, total int, hooks Hooks) Session {
	p := &process{
		Runner: r,
		hooks:  hooks,
		logger: r.logger.With("url", url, "position", position, "total", total),
	}

	s, effects := r.controller.Begin(url, position, total)
	s.Retired = r.retiredIDs()
	s = p.apply(ctx, s, effects)

	for !s.State.Terminal() {
		select {
		case <-ctx.Done():
			if err := r.host.Stop(context.WithoutCancel(ctx)); err != nil {
				p.logger.Warn("failed to stop navigation", "error", err)
			}
			s.State = StateFailed
			s.Err = domain.NewResourceError(s.URL, "process", ctx.Err())

		case ev, ok := <-events:
			if !ok {
				s.State = StateFailed
				s.Err = domain.NewResourceError(s.URL, "process", fmt.Errorf("%w: event stream closed", domain.ErrNotInitialized))
				break
			}
			p.logEvent(s, ev)
			next, effects := r.controller.Step(s, ev, p.cancelRequested())
			s = p.apply(ctx, next, effects)
		}
	}

	p.logResult(s)
	r.retire(s)
	return s
}

func (r *Runner) retiredIDs() []browser.NavigationID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.retired)
}

// retire remembers the navigation of an ended session that has not completed.
func (r *Runner) retire(s Session) {
	if s.NavigationID == "" || s.NavigationDone {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retired = append(r.retired, s.NavigationID)
	if n := len(r.retired); n > maxRetired {
		r.retired = slices.Clone(r.retired[n-maxRetired:])
	}
}

func (p *process) cancelRequested() bool {
	return p.hooks.CancelRequested != nil && p.hooks.CancelRequested()
}

func (p *process) apply(ctx context.Context, s Session, effects []Effect) Session {
	for _, effect := range effects {
		switch e := effect.(type) {
		case EmitProgress:
			if p.hooks.Progress != nil {
				p.hooks.Progress(e.Event)
			}

		case Navigate:
			if err := p.navigate(ctx, e.URL); err != nil {
				s.State = StateFailed
				s.Err = domain.NewResourceError(e.URL, "navigate", err)
				return s
			}

		case StopNavigation:
			if err := p.host.Stop(ctx); err != nil {
				p.logger.Warn("failed to stop navigation", "error", err)
			}

		case RunPageScripts:
			next, more := p.controller.ScriptEvaluated(s, p.runPageScripts(ctx))
			return p.apply(ctx, next, more)

		case ClaimDownload:
			e.Operation.Claim()
			p.active = e.Operation

		case CancelDownload:
			if p.active == nil || p.active.ID() != e.OperationID {
				continue
			}
			p.logger.Info("cancelling active download", "download_id", e.OperationID)
			if err := p.active.Cancel(ctx); err != nil {
				p.logger.Warn("failed to cancel download", "download_id", e.OperationID, "error", err)
			}

		case MarkFinished:
			if p.hooks.Finished != nil {
				p.hooks.Finished()
			}
		}
	}
	return s
}

// navigate reloads instead when the host already shows url.
func (p *process) navigate(ctx context.Context, url string) error {
	if p.host.CurrentURL() == url {
		p.logger.Debug("host already shows url, reloading")
		return p.host.Reload(ctx)
	}
	return p.host.Navigate(ctx, url)
}

func (p *process) runPageScripts(ctx context.Context) ScriptResult {
	if _, err := p.host.ExecuteScript(ctx, curse.AdjustPageScript); err != nil {
		p.logger.Warn("page adjust script failed", "error", err)
	}

	text, err := p.host.ExecuteScript(ctx, curse.MetadataScript)
	if err != nil {
		return ScriptResult{Err: err}
	}
	return ScriptResult{Text: text}
}

func (p *process) logEvent(s Session, ev browser.Event) {
	switch e := ev.(type) {
	case browser.NavigationStarting:
		p.logger.Debug("navigation starting", "state", s.State, "uri", e.URI,
			"navigation_id", e.NavigationID, "redirected", e.IsRedirected)
	case browser.NavigationCompleted:
		p.logger.Debug("navigation completed", "state", s.State, "uri", e.URI,
			"navigation_id", e.NavigationID, "status", e.HTTPStatusCode, "success", e.IsSuccess, "transport_error", e.TransportError)
	case browser.DownloadStarting:
		if e.Operation != nil {
			p.logger.Debug("download starting", "state", s.State, "download_id", e.Operation.ID(), "path", e.Operation.ResultPath())
		}
	case browser.DownloadStateChanged:
		if e.State == browser.DownloadInProgress {
			p.logger.Warn("download reported in-progress state change", "download_id", e.OperationID)
		}
	}
}

func (p *process) logResult(s Session) {
	var pe *domain.ProtocolError
	switch {
	case s.State == StateCompleted:
		p.logger.Info("addon finished", "addon", s.Addon, "path", s.ResultPath, "bytes", s.Received)
	case errors.As(s.Err, &pe):
		p.logger.Error("unexpected navigation, stopped",
			"state", pe.State,
			"expected", pe.Expected,
			"observed_url", pe.ObservedURL,
			"observed_kind", pe.ObservedKind,
			"redirected", pe.Redirected,
			"navigation_id", pe.NavigationID,
			"expected_navigation_id", pe.ExpectedNavID,
			"status", pe.HTTPStatusCode,
			"transport_error", pe.TransportError,
		)
	case s.Err != nil:
		p.logger.Error("addon failed", "addon", s.Addon, "error", s.Err)
	default:
		p.logger.Info("addon download interrupted after cancellation", "addon", s.Addon)
	}
}
