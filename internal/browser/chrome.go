package browser

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromeConfig configures the Chrome instance behind a ChromeHost.
type ChromeConfig struct {
	ExecPath       string
	UserDataDir    string
	UserAgent      string
	Headless       bool
	NoSandbox      bool
	StartupTimeout time.Duration
}

// ChromeHost drives a Chrome instance through the DevTools protocol.
type ChromeHost struct {
	logger *slog.Logger

	ctx           context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc

	mu          sync.Mutex
	translator  *translator
	current     string
	subscribers map[uint64]*mailbox
	nextSubID   uint64
	closed      bool
}

// NewChromeHost starts Chrome and attaches to its first tab.
func NewChromeHost(ctx context.Context, cfg ChromeConfig, logger *slog.Logger) (*ChromeHost, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	h := &ChromeHost{
		logger:        logger,
		ctx:           browserCtx,
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
		subscribers:   make(map[uint64]*mailbox),
	}
	h.translator = newTranslator(h.cancelDownload)

	timeout := cfg.StartupTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	startCtx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()

	chromedp.ListenTarget(browserCtx, h.handleEvent)

	err := chromedp.Run(startCtx,
		network.Enable(),
		page.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameID, _, _, _, err := page.Navigate("about:blank").Do(ctx)
			if err != nil {
				return err
			}
			h.mu.Lock()
			h.translator.mainFrame = frameID
			h.mu.Unlock()
			return nil
		}),
	)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	logger.Info("chrome host started", "headless", cfg.Headless, "exec_path", cfg.ExecPath)
	return h, nil
}

// Close shuts Chrome down and detaches all subscribers.
func (h *ChromeHost) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for id, m := range h.subscribers {
		m.close()
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	err := chromedp.Cancel(h.ctx)
	h.cancelBrowser()
	h.cancelAlloc()
	return err
}

// run executes actions on the tab, bounded by the caller's context.
func (h *ChromeHost) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(h.ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate starts a navigation. Failures of the navigation itself are
// reported as NavigationCompleted events.
func (h *ChromeHost) Navigate(ctx context.Context, url string) error {
	h.mu.Lock()
	h.current = url
	h.mu.Unlock()

	return h.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return fmt.Errorf("navigate %s: %w", url, err)
		}
		if errorText != "" {
			h.logger.Debug("navigation reported error text", "url", url, "error_text", errorText)
		}
		return nil
	}))
}

// Stop stops the pending navigation.
func (h *ChromeHost) Stop(ctx context.Context) error {
	return h.run(ctx, page.StopLoading())
}

// Reload reloads the current page.
func (h *ChromeHost) Reload(ctx context.Context) error {
	return h.run(ctx, page.Reload())
}

// ExecuteScript evaluates script and returns its result as JSON text.
func (h *ChromeHost) ExecuteScript(ctx context.Context, script string) (string, error) {
	var raw []byte
	if err := h.run(ctx, chromedp.Evaluate(script, &raw)); err != nil {
		return "", fmt.Errorf("execute script: %w", err)
	}
	if len(raw) == 0 {
		return "null", nil
	}
	return string(raw), nil
}

// SetDownloadFolder routes downloads into dir without prompting.
func (h *ChromeHost) SetDownloadFolder(ctx context.Context, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve download folder: %w", err)
	}

	err = h.run(ctx, browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
		WithDownloadPath(abs).
		WithEventsEnabled(true))
	if err != nil {
		return fmt.Errorf("set download behavior: %w", err)
	}

	h.mu.Lock()
	h.translator.folder = abs
	h.mu.Unlock()
	return nil
}

// CurrentURL returns the URL of the last navigation.
func (h *ChromeHost) CurrentURL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Subscribe attaches a new listener. Events are queued for it without
// limit until detach is called.
func (h *ChromeHost) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m := newMailbox()
	if h.closed {
		m.close()
		return m.out, func() {}
	}

	id := h.nextSubID
	h.nextSubID++
	h.subscribers[id] = m

	return m.out, func() {
		h.mu.Lock()
		delete(h.subscribers, id)
		h.mu.Unlock()
		m.close()
	}
}

func (h *ChromeHost) cancelDownload(ctx context.Context, guid string) error {
	return h.run(ctx, browser.CancelDownload(guid))
}

const backlogWarnEvery = 256

// handleEvent runs on the chromedp event loop and must not block.
func (h *ChromeHost) handleEvent(ev any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, e := range h.translator.translate(ev) {
		for id, m := range h.subscribers {
			m.put(e)
			if n := m.pending(); n > 0 && n%backlogWarnEvery == 0 {
				h.logger.Warn("subscriber is falling behind",
					"subscriber", id, "queued", n, "event", fmt.Sprintf("%T", e))
			}
		}
	}
}
