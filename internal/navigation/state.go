// Package navigation drives one addon through the site's redirect chain until
// its archive is downloaded.
package navigation

import (
	"github.com/iconidentify/wadh/internal/browser"
	"github.com/iconidentify/wadh/internal/domain"
)

// State is the position of a session in the redirect chain.
type State int

const (
	StateIdle State = iota
	StateAwaitingPageLoad
	StatePageLoaded
	StateAwaitingFetchedURLRedirect
	StateAwaitingTokenRedirect
	StateAwaitingFinalRedirect
	StateDownloadStarting
	StateDownloadActive
	StateCompleted
	StateFailed
)

var stateNames = [...]string{
	"idle",
	"awaiting_page_load",
	"page_loaded",
	"awaiting_fetched_url_redirect",
	"awaiting_token_redirect",
	"awaiting_final_redirect",
	"download_starting",
	"download_active",
	"completed",
	"failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further event is processed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Session is the per-addon state. It is a value: Step returns a new one.
type Session struct {
	State    State
	URL      string
	Addon    string
	Position int
	Total    int

	// NavigationID of the content page navigation, later of the fetched URL
	// navigation whose redirects must carry the same id.
	NavigationID   browser.NavigationID
	FetchedURL     string
	Metadata       MetadataSummary
	NavigationDone bool
	DownloadID     string
	ResultPath     string
	Received       int64
	TotalBytes     int64

	// Retired holds navigation ids of earlier sessions whose completions may
	// still arrive; they are ignored.
	Retired []browser.NavigationID

	// Err is set when State is StateFailed. A nil Err in StateFailed means
	// the download was interrupted after cancellation was requested.
	Err error
}

// MetadataSummary is the part of the page metadata the session keeps.
type MetadataSummary struct {
	ProjectID uint64
	FileID    uint64
	FileName  string
	FileSize  uint64
}

// ScriptResult is the outcome of the metadata script.
type ScriptResult struct {
	Text string
	Err  error
}

// Effect is an action Step asks the runner to perform.
type Effect interface {
	effect()
}

// EmitProgress publishes a progress event.
type EmitProgress struct {
	Event domain.ProgressEvent
}

// Navigate navigates the host to URL.
type Navigate struct {
	URL string
}

// StopNavigation stops the host's pending navigation.
type StopNavigation struct{}

// RunPageScripts runs the page cleanup and metadata scripts and hands the
// ScriptResult to Controller.ScriptEvaluated.
type RunPageScripts struct{}

// ClaimDownload marks the host download as handled.
type ClaimDownload struct {
	Operation browser.DownloadOperation
}

// CancelDownload asks the host to cancel the active download.
type CancelDownload struct {
	OperationID string
}

// MarkFinished counts the addon as finished.
type MarkFinished struct{}

func (EmitProgress) effect()   {}
func (Navigate) effect()       {}
func (StopNavigation) effect() {}
func (RunPageScripts) effect() {}
func (ClaimDownload) effect()  {}
func (CancelDownload) effect() {}
func (MarkFinished) effect()   {}
