package domain

// ProgressState identifies a step of processing a single addon.
type ProgressState int

const (
	ProgressAddonStarting ProgressState = iota
	ProgressNavigationToAddonPageStarting
	ProgressNavigationToAddonPageFinished
	ProgressEvaluationOfAddonPageJSONStarting
	ProgressEvaluationOfAddonPageJSONFinished
	ProgressNavigationToFetchedDownloadURLStarting
	ProgressRedirectWithAPIKeyStarting
	ProgressRedirectToRealDownloadURLStarting
	ProgressNavigationToFetchedDownloadURLFinished
	ProgressNavigationAndRedirectsFinished
	ProgressDownloadStarting
	ProgressDownloadProgress
	ProgressDownloadFinished
	ProgressAddonFinished
)

var progressStateNames = [...]string{
	"addon_starting",
	"navigation_to_addon_page_starting",
	"navigation_to_addon_page_finished",
	"evaluation_of_addon_page_json_starting",
	"evaluation_of_addon_page_json_finished",
	"navigation_to_fetched_download_url_starting",
	"redirect_with_api_key_starting",
	"redirect_to_real_download_url_starting",
	"navigation_to_fetched_download_url_finished",
	"navigation_and_redirects_finished",
	"download_starting",
	"download_progress",
	"download_finished",
	"addon_finished",
}

func (s ProgressState) String() string {
	if s < 0 || int(s) >= len(progressStateNames) {
		return "unknown"
	}
	return progressStateNames[s]
}

// MarshalText encodes the state by name.
func (s ProgressState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ProgressEvent reports a step of processing one addon.
type ProgressEvent struct {
	State         ProgressState `json:"state"`
	URL           string        `json:"url"`
	Addon         string        `json:"addon"`
	Info          string        `json:"info,omitempty"`
	ReceivedBytes int64         `json:"received_bytes,omitempty"`
	TotalBytes    int64         `json:"total_bytes,omitempty"`
	FilePath      string        `json:"file_path,omitempty"`
}
