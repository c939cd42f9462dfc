package navigation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/iconidentify/wadh/internal/browser"
	"github.com/iconidentify/wadh/internal/domain"
	"github.com/iconidentify/wadh/pkg/curse"
)

// Controller holds the transition rules of the redirect chain. Its methods
// are pure: they only read their arguments.
type Controller struct{}

// NewController creates a Controller.
func NewController() *Controller {
	return &Controller{}
}

// Begin starts a session for the content page url, the position-th of total.
func (c *Controller) Begin(url string, position, total int) (Session, []Effect) {
	s := Session{
		State:    StateIdle,
		URL:      strings.TrimSpace(url),
		Addon:    curse.SlugFromContentPageURL(url),
		Position: position,
		Total:    total,
	}

	if kind := curse.Classify(s.URL); kind != curse.KindContentPage {
		s.State = StateFailed
		s.Err = &domain.ProtocolError{
			State:        StateIdle.String(),
			Expected:     curse.KindContentPage.String(),
			ObservedURL:  s.URL,
			ObservedKind: kind.String(),
			Err:          domain.ErrNavigationProtocolViolation,
		}
		return s, nil
	}

	s.State = StateAwaitingPageLoad
	return s, []Effect{
		s.progress(domain.ProgressAddonStarting, fmt.Sprintf("Start processing of addon (%d/%d).", position, total)),
		Navigate{URL: s.URL},
	}
}

// Step applies a host event to s.
func (c *Controller) Step(s Session, ev browser.Event, cancelRequested bool) (Session, []Effect) {
	if s.State.Terminal() || s.State == StateIdle {
		return s, nil
	}
	if e, ok := ev.(browser.NavigationCompleted); ok && s.retired(e.NavigationID) {
		return s, nil
	}

	switch e := ev.(type) {
	case browser.NavigationStarting:
		return c.navigationStarting(s, e)
	case browser.NavigationCompleted:
		return c.navigationCompleted(s, e)
	case browser.DownloadStarting:
		return c.downloadStarting(s, e)
	case browser.DownloadBytesReceivedChanged:
		return c.bytesReceived(s, e, cancelRequested)
	case browser.DownloadStateChanged:
		return c.downloadStateChanged(s, e, cancelRequested)
	}
	return s, nil
}

func (c *Controller) navigationStarting(s Session, e browser.NavigationStarting) (Session, []Effect) {
	kind := curse.Classify(e.URI)

	switch s.State {
	case StateAwaitingPageLoad:
		if kind == curse.KindContentPage && !e.IsRedirected && sameURL(e.URI, s.URL) &&
			e.NavigationID != "" && s.NavigationID == "" {
			s.NavigationID = e.NavigationID
			return s, []Effect{s.progress(domain.ProgressNavigationToAddonPageStarting, "Starting navigation to addon page.")}
		}
		return violation(s, curse.KindContentPage, "new navigation", e.URI, kind, e.IsRedirected, e.NavigationID)

	case StateAwaitingFetchedURLRedirect:
		if kind == curse.KindFetchedResource && !e.IsRedirected && sameURL(e.URI, s.FetchedURL) &&
			e.NavigationID != "" && e.NavigationID != s.NavigationID {
			s.NavigationID = e.NavigationID
			s.State = StateAwaitingTokenRedirect
			return s, []Effect{s.progress(domain.ProgressNavigationToFetchedDownloadURLStarting, "Starting navigation to fetched download url.")}
		}
		return violation(s, curse.KindFetchedResource, "new navigation", e.URI, kind, e.IsRedirected, e.NavigationID)

	case StateAwaitingTokenRedirect:
		if kind == curse.KindTokenRedirect && e.IsRedirected && e.NavigationID == s.NavigationID {
			s.State = StateAwaitingFinalRedirect
			return s, []Effect{s.progress(domain.ProgressRedirectWithAPIKeyStarting, "Redirecting with api key.")}
		}
		return violation(s, curse.KindTokenRedirect, "redirect", e.URI, kind, e.IsRedirected, e.NavigationID)

	case StateAwaitingFinalRedirect:
		if kind == curse.KindFinalResource && e.IsRedirected && e.NavigationID == s.NavigationID {
			s.State = StateDownloadStarting
			if name := curse.ResourceName(e.URI); name != "" && s.Addon == "" {
				s.Addon = name
			}
			return s, []Effect{s.progress(domain.ProgressRedirectToRealDownloadURLStarting, "Redirecting to real download url.")}
		}
		return violation(s, curse.KindFinalResource, "redirect", e.URI, kind, e.IsRedirected, e.NavigationID)
	}

	return violation(s, curse.KindUnrecognized, "no navigation", e.URI, kind, e.IsRedirected, e.NavigationID)
}

func (c *Controller) navigationCompleted(s Session, e browser.NavigationCompleted) (Session, []Effect) {
	switch s.State {
	case StateAwaitingPageLoad:
		if e.NavigationID == s.NavigationID && s.NavigationID != "" && e.IsSuccess && e.HTTPStatusCode == 200 &&
			curse.Classify(e.URI) == curse.KindContentPage {
			s.State = StatePageLoaded
			return s, []Effect{
				s.progress(domain.ProgressNavigationToAddonPageFinished, "Finished navigation to addon page."),
				s.progress(domain.ProgressEvaluationOfAddonPageJSONStarting, "Evaluating addon page metadata."),
				RunPageScripts{},
			}
		}

	case StateDownloadStarting, StateDownloadActive:
		// The download aborts the navigation of the fetched URL.
		if e.NavigationID == s.NavigationID && !e.IsSuccess && !s.NavigationDone {
			s.NavigationDone = true
			return s, []Effect{
				s.progress(domain.ProgressNavigationToFetchedDownloadURLFinished, "Finished navigation to fetched download url."),
				s.progress(domain.ProgressNavigationAndRedirectsFinished, "Finished navigation and redirects."),
			}
		}
	}

	next, effects := violation(s, curse.KindContentPage, "completion", e.URI, curse.Classify(e.URI), false, e.NavigationID)
	if pe, ok := next.Err.(*domain.ProtocolError); ok {
		pe.Expected = "completion of navigation " + string(s.NavigationID)
		pe.HTTPStatusCode = e.HTTPStatusCode
		pe.TransportError = e.TransportError
	}
	return next, effects
}

func (c *Controller) downloadStarting(s Session, e browser.DownloadStarting) (Session, []Effect) {
	if s.State != StateDownloadStarting || e.Operation == nil {
		return s, nil
	}

	s.State = StateDownloadActive
	s.DownloadID = e.Operation.ID()
	s.ResultPath = e.Operation.ResultPath()
	s.TotalBytes = e.TotalBytes

	ev := s.event(domain.ProgressDownloadStarting, "Starting file download.")
	ev.TotalBytes = e.TotalBytes
	return s, []Effect{ClaimDownload{Operation: e.Operation}, EmitProgress{Event: ev}}
}

func (c *Controller) bytesReceived(s Session, e browser.DownloadBytesReceivedChanged, cancelRequested bool) (Session, []Effect) {
	if s.State != StateDownloadActive || e.OperationID != s.DownloadID {
		return s, nil
	}

	s.Received = e.BytesReceived
	if e.TotalBytes > 0 {
		s.TotalBytes = e.TotalBytes
	}

	var effects []Effect
	if s.Received < s.TotalBytes {
		ev := s.event(domain.ProgressDownloadProgress, "Downloading file...")
		ev.ReceivedBytes = s.Received
		ev.TotalBytes = s.TotalBytes
		effects = append(effects, EmitProgress{Event: ev})
	}
	if cancelRequested {
		effects = append(effects, CancelDownload{OperationID: s.DownloadID})
	}
	return s, effects
}

func (c *Controller) downloadStateChanged(s Session, e browser.DownloadStateChanged, cancelRequested bool) (Session, []Effect) {
	if s.State != StateDownloadActive || e.OperationID != s.DownloadID {
		return s, nil
	}

	switch e.State {
	case browser.DownloadCompleted:
		s.State = StateCompleted
		s.Received = e.BytesReceived
		if e.TotalBytes > 0 {
			s.TotalBytes = e.TotalBytes
		}
		finished := s.event(domain.ProgressDownloadFinished, "Finished file download.")
		finished.ReceivedBytes = s.Received
		finished.TotalBytes = s.TotalBytes
		return s, []Effect{
			EmitProgress{Event: finished},
			MarkFinished{},
			s.progress(domain.ProgressAddonFinished, fmt.Sprintf("Finished processing of addon (%d/%d).", s.Position, s.Total)),
		}

	case browser.DownloadInterrupted:
		s.State = StateFailed
		if !cancelRequested {
			s.Err = domain.NewResourceError(s.URL, "download", domain.ErrDownloadInterrupted)
		}
		return s, nil
	}

	// In-progress notifications carry nothing the byte events do not.
	return s, nil
}

// ScriptEvaluated applies the metadata script result to a session in
// StatePageLoaded.
func (c *Controller) ScriptEvaluated(s Session, r ScriptResult) (Session, []Effect) {
	if s.State != StatePageLoaded {
		return s, nil
	}

	fail := func(reason string) (Session, []Effect) {
		s.State = StateFailed
		s.Err = domain.NewResourceError(s.URL, "evaluate page metadata",
			fmt.Errorf("%w: %s", domain.ErrMetadataExtractionFailure, reason))
		return s, nil
	}

	if r.Err != nil {
		return fail(r.Err.Error())
	}
	text, ok := curse.DecodeScriptResult(r.Text)
	if !ok {
		return fail("script returned null")
	}
	meta := curse.ParseMetadata(text)
	if !meta.Valid {
		return fail("page data is not valid")
	}
	fetched := meta.DownloadURL()
	if curse.Classify(fetched) != curse.KindFetchedResource {
		return fail("download url is not valid: " + fetched)
	}

	s.State = StateAwaitingFetchedURLRedirect
	s.FetchedURL = fetched
	s.Metadata = MetadataSummary{
		ProjectID: meta.ProjectID,
		FileID:    meta.FileID,
		FileName:  meta.FileName,
		FileSize:  meta.FileSize,
	}
	switch {
	case meta.ProjectName != "":
		s.Addon = meta.ProjectName
	case meta.ProjectSlug != "":
		s.Addon = meta.ProjectSlug
	}

	return s, []Effect{
		s.progress(domain.ProgressEvaluationOfAddonPageJSONFinished, "Fetched download url from page metadata."),
		Navigate{URL: fetched},
	}
}

func (s Session) event(state domain.ProgressState, info string) domain.ProgressEvent {
	return domain.ProgressEvent{
		State:    state,
		URL:      s.URL,
		Addon:    s.Addon,
		Info:     info,
		FilePath: s.ResultPath,
	}
}

func (s Session) progress(state domain.ProgressState, info string) EmitProgress {
	return EmitProgress{Event: s.event(state, info)}
}

func violation(s Session, expected curse.Kind, what, uri string, observed curse.Kind, redirected bool, id browser.NavigationID) (Session, []Effect) {
	state := s.State
	want := expected.String() + " " + what
	if expected == curse.KindUnrecognized {
		want = what
	}
	s.State = StateFailed
	s.Err = &domain.ProtocolError{
		State:         state.String(),
		Expected:      want,
		ObservedURL:   uri,
		ObservedKind:  observed.String(),
		Redirected:    redirected,
		NavigationID:  string(id),
		ExpectedNavID: string(s.NavigationID),
		Err:           domain.ErrNavigationProtocolViolation,
	}
	return s, []Effect{StopNavigation{}}
}

func (s Session) retired(id browser.NavigationID) bool {
	return id != s.NavigationID && slices.Contains(s.Retired, id)
}

func sameURL(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
