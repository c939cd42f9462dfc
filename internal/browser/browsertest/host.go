// Package browsertest provides a scripted browser.Host that models the addon
// site: content pages, the download API redirect chain and downloads.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/iconidentify/wadh/internal/browser"
	"github.com/iconidentify/wadh/pkg/curse"
)

// Addon describes how the fake site serves one addon.
type Addon struct {
	Slug      string
	ProjectID uint64
	FileID    uint64
	Size      int64

	// Chunks is the number of byte progress events, 2 if zero.
	Chunks int
	// PageStatus is the status of the content page, 200 if zero.
	PageStatus int
	// NullMetadata makes the metadata script return null.
	NullMetadata bool
	// TokenNavigationID overrides the navigation id of the token redirect.
	TokenNavigationID string
	// Interrupt makes the host interrupt the download.
	Interrupt bool
	// BeforeBytes runs on the host goroutine before the first byte event.
	BeforeBytes func()
	// LateCompletion delivers the aborted completion of the fetched URL
	// navigation after the download has finished.
	LateCompletion bool
}

// PageURL returns the content page URL of the addon.
func (a *Addon) PageURL() string { return curse.ContentPageURL(a.Slug) }

// FileName returns the archive name the site serves.
func (a *Addon) FileName() string { return a.Slug + "-1.0.0.zip" }

// FetchedURL returns the download API URL of the addon's main file.
func (a *Addon) FetchedURL() string { return curse.BuildFetchedResourceURL(a.ProjectID, a.FileID) }

// TokenURL returns the CDN redirect URL.
func (a *Addon) TokenURL() string {
	return fmt.Sprintf("https://edge.forgecdn.net/files/%d/%d/%s?api-key=267C6CA3", a.FileID/1000, a.FileID%1000, a.FileName())
}

// FinalURL returns the direct archive URL.
func (a *Addon) FinalURL() string {
	return fmt.Sprintf("https://mediafilez.forgecdn.net/files/%d/%d/%s", a.FileID/1000, a.FileID%1000, a.FileName())
}

// PageData returns the __NEXT_DATA__ JSON of the addon page.
func (a *Addon) PageData() string {
	return fmt.Sprintf(`{"props":{"pageProps":{"project":{"id":%d,"name":%q,"slug":%q,"mainFile":{"id":%d,"fileName":%q,"fileLength":%d}}}}}`,
		a.ProjectID, a.Slug, a.Slug, a.FileID, a.FileName(), a.Size)
}

type thunk func() (browser.Event, bool)

type subscription struct {
	ch       chan browser.Event
	detached chan struct{}
	sendMu   sync.Mutex
	once     sync.Once
}

// Host is a scripted browser.Host. Events are delivered on an unbuffered
// channel one at a time.
type Host struct {
	mu      sync.Mutex
	addons  map[string]*Addon
	fetched map[string]*Addon
	current string
	folder  string
	queue   []thunk
	sub     *subscription
	navSeq  int
	dlSeq   int

	navigations   []string
	stops         int
	reloads       int
	scripts       []string
	claimed       []string
	cancelled     []string
	subscriptions int
	detaches      int

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// NewHost creates a fake host serving addons. Call Close when done.
func NewHost(addons ...*Addon) *Host {
	h := &Host{
		addons:  make(map[string]*Addon),
		fetched: make(map[string]*Addon),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, a := range addons {
		h.addons[a.PageURL()] = a
		h.fetched[a.FetchedURL()] = a
	}
	go h.pump()
	return h
}

// Close stops event delivery.
func (h *Host) Close() {
	h.once.Do(func() { close(h.done) })
}

func (h *Host) pump() {
	for {
		h.mu.Lock()
		if len(h.queue) == 0 {
			h.mu.Unlock()
			select {
			case <-h.wake:
				continue
			case <-h.done:
				return
			}
		}
		next := h.queue[0]
		h.queue = h.queue[1:]
		sub := h.sub
		h.mu.Unlock()

		ev, ok := next()
		if !ok || sub == nil {
			continue
		}

		sub.sendMu.Lock()
		select {
		case <-sub.detached:
		default:
			select {
			case sub.ch <- ev:
			case <-sub.detached:
			case <-h.done:
				sub.sendMu.Unlock()
				return
			}
		}
		sub.sendMu.Unlock()
	}
}

func (h *Host) enqueueLocked(steps ...thunk) {
	h.queue = append(h.queue, steps...)
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func emit(ev browser.Event) thunk {
	return func() (browser.Event, bool) { return ev, true }
}

// Navigate scripts the events the site produces for url.
func (h *Host) Navigate(_ context.Context, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.navigations = append(h.navigations, url)
	h.current = url
	h.scriptNavigationLocked(url)
	return nil
}

func (h *Host) nextNavIDLocked() browser.NavigationID {
	h.navSeq++
	return browser.NavigationID(fmt.Sprintf("nav-%d", h.navSeq))
}

func (h *Host) scriptNavigationLocked(url string) {
	id := h.nextNavIDLocked()

	if a, ok := h.addons[url]; ok {
		status := a.PageStatus
		if status == 0 {
			status = 200
		}
		h.enqueueLocked(
			emit(browser.NavigationStarting{URI: url, NavigationID: id, Cancelable: true}),
			emit(browser.NavigationCompleted{NavigationID: id, URI: url, HTTPStatusCode: status, IsSuccess: status == 200}),
		)
		return
	}

	if a, ok := h.fetched[url]; ok {
		tokenID := id
		if a.TokenNavigationID != "" {
			tokenID = browser.NavigationID(a.TokenNavigationID)
		}
		aborted := emit(browser.NavigationCompleted{NavigationID: id, URI: url, TransportError: "net::ERR_ABORTED"})
		h.enqueueLocked(
			emit(browser.NavigationStarting{URI: url, NavigationID: id, Cancelable: true}),
			emit(browser.NavigationStarting{URI: a.TokenURL(), NavigationID: tokenID, IsRedirected: true, Cancelable: true}),
			emit(browser.NavigationStarting{URI: a.FinalURL(), NavigationID: id, IsRedirected: true, Cancelable: true}),
		)
		if !a.LateCompletion {
			h.enqueueLocked(aborted)
		}
		h.scriptDownloadLocked(a)
		if a.LateCompletion {
			h.enqueueLocked(aborted)
		}
		return
	}

	h.enqueueLocked(
		emit(browser.NavigationStarting{URI: url, NavigationID: id, Cancelable: true}),
		emit(browser.NavigationCompleted{NavigationID: id, URI: url, HTTPStatusCode: 404}),
	)
}

func (h *Host) scriptDownloadLocked(a *Addon) {
	h.dlSeq++
	op := &Download{
		id:   fmt.Sprintf("dl-%d", h.dlSeq),
		uri:  a.FinalURL(),
		path: filepath.Join(h.folder, a.FileName()),
		host: h,
	}

	steps := []thunk{emit(browser.DownloadStarting{Operation: op, TotalBytes: a.Size})}

	chunks := a.Chunks
	if chunks <= 0 {
		chunks = 2
	}
	for i := 1; i <= chunks; i++ {
		received := a.Size * int64(i) / int64(chunks)
		first := i == 1
		steps = append(steps, func() (browser.Event, bool) {
			if first && a.BeforeBytes != nil {
				a.BeforeBytes()
			}
			return browser.DownloadBytesReceivedChanged{OperationID: op.id, BytesReceived: received, TotalBytes: a.Size}, true
		})
	}

	steps = append(steps, func() (browser.Event, bool) {
		if op.isCancelled() || a.Interrupt {
			return browser.DownloadStateChanged{OperationID: op.id, State: browser.DownloadInterrupted, BytesReceived: a.Size / 2, TotalBytes: a.Size}, true
		}
		if h.folder != "" {
			_ = os.WriteFile(op.path, []byte(strings.Repeat("x", int(a.Size))), 0o644)
		}
		return browser.DownloadStateChanged{OperationID: op.id, State: browser.DownloadCompleted, BytesReceived: a.Size, TotalBytes: a.Size}, true
	})

	h.enqueueLocked(steps...)
}

// Stop records the call.
func (h *Host) Stop(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	return nil
}

// Reload replays the navigation of the current URL.
func (h *Host) Reload(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloads++
	h.scriptNavigationLocked(h.current)
	return nil
}

// ExecuteScript answers the metadata script for the current page and null
// for anything else.
func (h *Host) ExecuteScript(_ context.Context, script string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scripts = append(h.scripts, script)

	a, ok := h.addons[h.current]
	if script != curse.MetadataScript || !ok || a.NullMetadata {
		return "null", nil
	}
	data, err := json.Marshal(a.PageData())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetDownloadFolder records dir as the download destination.
func (h *Host) SetDownloadFolder(_ context.Context, dir string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.folder = dir
	return nil
}

// SetCurrentURL pretends the browser already shows url.
func (h *Host) SetCurrentURL(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = url
}

// CurrentURL returns the URL of the last navigation.
func (h *Host) CurrentURL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Subscribe attaches the single listener. A new subscription replaces the
// previous one.
func (h *Host) Subscribe() (<-chan browser.Event, func()) {
	sub := &subscription{
		ch:       make(chan browser.Event),
		detached: make(chan struct{}),
	}

	h.mu.Lock()
	h.sub = sub
	h.subscriptions++
	h.mu.Unlock()

	return sub.ch, func() {
		sub.once.Do(func() {
			close(sub.detached)
			sub.sendMu.Lock()
			close(sub.ch)
			sub.sendMu.Unlock()

			h.mu.Lock()
			if h.sub == sub {
				h.sub = nil
			}
			h.detaches++
			h.mu.Unlock()
		})
	}
}

// Navigations returns the URLs passed to Navigate.
func (h *Host) Navigations() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.navigations...)
}

// Stops returns the number of Stop calls.
func (h *Host) Stops() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stops
}

// Reloads returns the number of Reload calls.
func (h *Host) Reloads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reloads
}

// Scripts returns the executed scripts.
func (h *Host) Scripts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.scripts...)
}

// Folder returns the download folder.
func (h *Host) Folder() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.folder
}

// Claimed returns the ids of claimed downloads.
func (h *Host) Claimed() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.claimed...)
}

// Cancelled returns the ids of downloads Cancel was called on.
func (h *Host) Cancelled() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.cancelled...)
}

// Attached reports whether a listener is subscribed.
func (h *Host) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sub != nil
}

// Subscriptions returns how often Subscribe and detach were called.
func (h *Host) Subscriptions() (subscribed, detached int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscriptions, h.detaches
}

// Download is a scripted browser.DownloadOperation.
type Download struct {
	id        string
	uri       string
	path      string
	host      *Host
	mu        sync.Mutex
	canceling bool
}

func (d *Download) ID() string         { return d.id }
func (d *Download) URI() string        { return d.uri }
func (d *Download) ResultPath() string { return d.path }

func (d *Download) Claim() {
	d.host.mu.Lock()
	defer d.host.mu.Unlock()
	d.host.claimed = append(d.host.claimed, d.id)
}

func (d *Download) Cancel(context.Context) error {
	d.mu.Lock()
	first := !d.canceling
	d.canceling = true
	d.mu.Unlock()

	if first {
		d.host.mu.Lock()
		d.host.cancelled = append(d.host.cancelled, d.id)
		d.host.mu.Unlock()
	}
	return nil
}

func (d *Download) isCancelled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.canceling
}
