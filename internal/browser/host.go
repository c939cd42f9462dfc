// Package browser defines the embedded browser the downloader drives and a
// Chrome DevTools implementation of it.
package browser

import "context"

// Host is an embedded browser. Navigation and download notifications are
// delivered to subscribers as Events in the order the browser raised them.
type Host interface {
	Navigate(ctx context.Context, url string) error
	Stop(ctx context.Context) error
	Reload(ctx context.Context) error
	// ExecuteScript returns the JSON text of the script's result value.
	ExecuteScript(ctx context.Context, script string) (string, error)
	SetDownloadFolder(ctx context.Context, dir string) error
	CurrentURL() string
	// Subscribe attaches a listener. The returned func detaches it and closes
	// the channel.
	Subscribe() (<-chan Event, func())
}

// NavigationID identifies one navigation including all its redirects.
type NavigationID string

// DownloadState is the lifecycle state of a download operation.
type DownloadState int

const (
	DownloadInProgress DownloadState = iota
	DownloadCompleted
	DownloadInterrupted
)

func (s DownloadState) String() string {
	switch s {
	case DownloadInProgress:
		return "in_progress"
	case DownloadCompleted:
		return "completed"
	case DownloadInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// DownloadOperation is a download the browser started.
type DownloadOperation interface {
	ID() string
	URI() string
	ResultPath() string
	// Claim marks the download as handled so the browser shows no UI for it.
	Claim()
	Cancel(ctx context.Context) error
}

// Event is a notification raised by a Host.
type Event interface {
	event()
}

// NavigationStarting is raised for every navigation and every redirect of it.
type NavigationStarting struct {
	URI          string
	NavigationID NavigationID
	IsRedirected bool
	Cancelable   bool
}

// NavigationCompleted is raised once a navigation finished or failed. URI is
// the URL the navigation was started with.
type NavigationCompleted struct {
	NavigationID   NavigationID
	URI            string
	HTTPStatusCode int
	IsSuccess      bool
	TransportError string
}

// DownloadStarting is raised when a navigation turned into a download.
type DownloadStarting struct {
	Operation  DownloadOperation
	TotalBytes int64
}

// DownloadBytesReceivedChanged reports the byte counters of a download.
type DownloadBytesReceivedChanged struct {
	OperationID   string
	BytesReceived int64
	TotalBytes    int64
}

// DownloadStateChanged reports a state change of a download.
type DownloadStateChanged struct {
	OperationID   string
	State         DownloadState
	BytesReceived int64
	TotalBytes    int64
}

func (NavigationStarting) event()           {}
func (NavigationCompleted) event()          {}
func (DownloadStarting) event()             {}
func (DownloadBytesReceivedChanged) event() {}
func (DownloadStateChanged) event()         {}
