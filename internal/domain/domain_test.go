package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestProgressState_String(t *testing.T) {
	tests := []struct {
		state ProgressState
		want  string
	}{
		{ProgressAddonStarting, "addon_starting"},
		{ProgressRedirectWithAPIKeyStarting, "redirect_with_api_key_starting"},
		{ProgressAddonFinished, "addon_finished"},
		{ProgressState(-1), "unknown"},
		{ProgressState(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProgressEvent_JSON(t *testing.T) {
	ev := ProgressEvent{State: ProgressDownloadProgress, URL: "u", Addon: "deadlybossmods", ReceivedBytes: 10, TotalBytes: 20}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"state":"download_progress"`) {
		t.Errorf("Marshal() = %s, want state by name", data)
	}
}

func TestProtocolError_Unwrap(t *testing.T) {
	err := &ProtocolError{
		State:         "awaiting_token_redirect",
		Expected:      "token_redirect",
		ObservedURL:   "https://edge.forgecdn.net/files/1/2/a.zip?api-key=x",
		ObservedKind:  "token_redirect",
		Redirected:    true,
		NavigationID:  "B",
		ExpectedNavID: "A",
		Err:           ErrNavigationProtocolViolation,
	}

	if !errors.Is(err, ErrNavigationProtocolViolation) {
		t.Error("errors.Is() = false, want true")
	}
	wrapped := fmt.Errorf("process: %w", err)
	var pe *ProtocolError
	if !errors.As(wrapped, &pe) {
		t.Fatal("errors.As() = false, want true")
	}
	for _, part := range []string{`navigation="B"`, `expected navigation="A"`, "redirected=true"} {
		if !strings.Contains(err.Error(), part) {
			t.Errorf("Error() = %q, missing %q", err.Error(), part)
		}
	}
}

func TestResourceError(t *testing.T) {
	err := NewResourceError("https://x", "extract", ErrMetadataExtractionFailure)
	if !errors.Is(err, ErrMetadataExtractionFailure) {
		t.Error("errors.Is() = false, want true")
	}
	if got := err.Error(); got != "extract [https://x]: page metadata extraction failed" {
		t.Errorf("Error() = %q", got)
	}
	if got := NewResourceError("", "extract", ErrMetadataExtractionFailure).Error(); got != "extract: page metadata extraction failed" {
		t.Errorf("Error() = %q", got)
	}
}

func TestBatchRecord_Complete(t *testing.T) {
	tests := []struct {
		name   string
		result BatchResult
		want   BatchStatus
	}{
		{"all done", BatchResult{Finished: 2, Total: 2}, BatchStatusCompleted},
		{"cancelled", BatchResult{Cancelled: true, Finished: 1, Total: 2, Unprocessed: []string{"b"}}, BatchStatusCancelled},
		{"failed", BatchResult{Err: ErrDownloadInterrupted, Finished: 0, Total: 2}, BatchStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewBatchRecord("b1", "/tmp", []string{"a", "b"})
			if rec.IsTerminal() {
				t.Fatal("new record is terminal")
			}
			rec.Complete(tt.result)
			if rec.Status != tt.want {
				t.Errorf("Status = %s, want %s", rec.Status, tt.want)
			}
			if !rec.IsTerminal() || rec.FinishedAt == nil {
				t.Error("record not terminal after Complete")
			}
			if rec.Finished != tt.result.Finished {
				t.Errorf("Finished = %d, want %d", rec.Finished, tt.result.Finished)
			}
		})
	}
}

func TestBatchResult_Succeeded(t *testing.T) {
	if !(BatchResult{Finished: 3, Total: 3}).Succeeded() {
		t.Error("Succeeded() = false for full batch")
	}
	if (BatchResult{Finished: 1, Total: 3, Cancelled: true}).Succeeded() {
		t.Error("Succeeded() = true for cancelled batch")
	}
	if (BatchResult{Err: ErrNotInitialized}).Succeeded() {
		t.Error("Succeeded() = true for failed batch")
	}
}

func TestEventMetadata_ToJSON(t *testing.T) {
	if EventMetadata(nil).ToJSON() != nil {
		t.Error("ToJSON() of nil metadata should be nil")
	}
	raw := EventMetadata{"finished": 1}.ToJSON()
	if string(raw) != `{"finished":1}` {
		t.Errorf("ToJSON() = %s", raw)
	}
}
