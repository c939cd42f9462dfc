package domain

import (
	"errors"
	"fmt"
)

// Domain errors.
var (
	// ErrInvalidArgument is returned when a batch is started without URLs or folder.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyRunning is returned when a batch is started while another one is active.
	ErrAlreadyRunning = errors.New("download batch already running")

	// ErrNotInitialized is returned when no browser host is attached.
	ErrNotInitialized = errors.New("browser host not initialized")

	// ErrNavigationProtocolViolation is returned when the host reports a navigation
	// event the redirect chain does not allow.
	ErrNavigationProtocolViolation = errors.New("navigation protocol violation")

	// ErrMetadataExtractionFailure is returned when the page metadata is missing or malformed.
	ErrMetadataExtractionFailure = errors.New("page metadata extraction failed")

	// ErrDownloadInterrupted is returned when the host interrupts a download.
	ErrDownloadInterrupted = errors.New("download interrupted")

	// ErrBatchNotFound is returned when a batch record cannot be found.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrInsufficientSpace is returned when the download folder is short on free space.
	ErrInsufficientSpace = errors.New("insufficient storage space")
)

// ProtocolError describes a rejected host event with everything that was
// expected and observed at the time.
type ProtocolError struct {
	State          string
	Expected       string
	ObservedURL    string
	ObservedKind   string
	Redirected     bool
	NavigationID   string
	ExpectedNavID  string
	HTTPStatusCode int
	TransportError string
	Err            error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%s: expected %s in state %s, observed %s url %q (redirected=%t, navigation=%q",
		e.Err, e.Expected, e.State, e.ObservedKind, e.ObservedURL, e.Redirected, e.NavigationID)
	if e.ExpectedNavID != "" {
		msg += fmt.Sprintf(", expected navigation=%q", e.ExpectedNavID)
	}
	if e.HTTPStatusCode != 0 {
		msg += fmt.Sprintf(", status=%d", e.HTTPStatusCode)
	}
	if e.TransportError != "" {
		msg += fmt.Sprintf(", transport=%s", e.TransportError)
	}
	return msg + ")"
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ResourceError wraps an error with the resource URL it occurred on.
type ResourceError struct {
	URL string
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	if e.URL != "" {
		return e.Op + " [" + e.URL + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NewResourceError creates a new ResourceError.
func NewResourceError(url, op string, err error) *ResourceError {
	return &ResourceError{
		URL: url,
		Op:  op,
		Err: err,
	}
}
