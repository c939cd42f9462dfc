package browser

import (
	"context"
	"path/filepath"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
)

type documentRequest struct {
	loaderID cdp.LoaderID
	url      string
	status   int
}

// translator turns DevTools protocol events of the main frame into Events.
// It is not safe for concurrent use.
type translator struct {
	mainFrame cdp.FrameID
	folder    string
	docs      map[network.RequestID]*documentRequest
	cancel    func(ctx context.Context, guid string) error

	// loaded is the document whose body arrived and whose page has not yet
	// fired its load event.
	loaded *documentRequest
}

func newTranslator(cancel func(ctx context.Context, guid string) error) *translator {
	return &translator{
		docs:   make(map[network.RequestID]*documentRequest),
		cancel: cancel,
	}
}

func (t *translator) isMainFrame(id cdp.FrameID) bool {
	return t.mainFrame == "" || id == t.mainFrame
}

func (t *translator) translate(ev any) []Event {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Type != network.ResourceTypeDocument || !t.isMainFrame(e.FrameID) || e.Request == nil {
			return nil
		}
		doc, ok := t.docs[e.RequestID]
		if !ok || e.RedirectResponse == nil {
			doc = &documentRequest{loaderID: e.LoaderID, url: e.Request.URL}
			t.docs[e.RequestID] = doc
			t.loaded = nil
		}
		return []Event{NavigationStarting{
			URI:          e.Request.URL,
			NavigationID: NavigationID(e.LoaderID),
			IsRedirected: e.RedirectResponse != nil,
			Cancelable:   true,
		}}

	case *network.EventResponseReceived:
		if doc, ok := t.docs[e.RequestID]; ok && e.Response != nil {
			doc.status = int(e.Response.Status)
		}
		return nil

	case *network.EventLoadingFinished:
		// The body arrived; the page completes on its load event.
		if doc, ok := t.docs[e.RequestID]; ok {
			delete(t.docs, e.RequestID)
			t.loaded = doc
		}
		return nil

	case *page.EventLoadEventFired:
		doc := t.loaded
		if doc == nil {
			return nil
		}
		t.loaded = nil
		return []Event{NavigationCompleted{
			NavigationID:   NavigationID(doc.loaderID),
			URI:            doc.url,
			HTTPStatusCode: doc.status,
			IsSuccess:      doc.status >= 200 && doc.status < 400,
		}}

	case *network.EventLoadingFailed:
		doc, ok := t.docs[e.RequestID]
		if !ok {
			return nil
		}
		delete(t.docs, e.RequestID)
		return []Event{NavigationCompleted{
			NavigationID:   NavigationID(doc.loaderID),
			URI:            doc.url,
			HTTPStatusCode: doc.status,
			IsSuccess:      false,
			TransportError: e.ErrorText,
		}}

	case *browser.EventDownloadWillBegin:
		if !t.isMainFrame(e.FrameID) {
			return nil
		}
		return []Event{DownloadStarting{
			Operation: &chromeDownload{
				guid:   e.GUID,
				uri:    e.URL,
				path:   filepath.Join(t.folder, e.SuggestedFilename),
				cancel: t.cancel,
			},
		}}

	case *browser.EventDownloadProgress:
		received, total := int64(e.ReceivedBytes), int64(e.TotalBytes)
		switch e.State {
		case browser.DownloadProgressStateCompleted:
			return []Event{DownloadStateChanged{OperationID: e.GUID, State: DownloadCompleted, BytesReceived: received, TotalBytes: total}}
		case browser.DownloadProgressStateCanceled:
			return []Event{DownloadStateChanged{OperationID: e.GUID, State: DownloadInterrupted, BytesReceived: received, TotalBytes: total}}
		default:
			return []Event{DownloadBytesReceivedChanged{OperationID: e.GUID, BytesReceived: received, TotalBytes: total}}
		}
	}
	return nil
}

type chromeDownload struct {
	guid   string
	uri    string
	path   string
	cancel func(ctx context.Context, guid string) error
}

func (d *chromeDownload) ID() string         { return d.guid }
func (d *chromeDownload) URI() string        { return d.uri }
func (d *chromeDownload) ResultPath() string { return d.path }

// Claim is a no-op: downloads are routed to the configured folder without UI.
func (d *chromeDownload) Claim() {}

func (d *chromeDownload) Cancel(ctx context.Context) error {
	if d.cancel == nil {
		return nil
	}
	return d.cancel(ctx, d.guid)
}
