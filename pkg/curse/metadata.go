package curse

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Metadata is the project and file information embedded in an addon page.
type Metadata struct {
	Valid       bool   `json:"valid"`
	ProjectID   uint64 `json:"project_id"`
	ProjectName string `json:"project_name"`
	ProjectSlug string `json:"project_slug"`
	FileID      uint64 `json:"file_id"`
	FileName    string `json:"file_name"`
	FileSize    uint64 `json:"file_size"`
}

// DownloadURL returns the fetched resource URL of the page's main file.
func (m Metadata) DownloadURL() string {
	return BuildFetchedResourceURL(m.ProjectID, m.FileID)
}

type nextData struct {
	Props struct {
		PageProps struct {
			Project *struct {
				ID       uint64 `json:"id"`
				Name     string `json:"name"`
				Slug     string `json:"slug"`
				MainFile *struct {
					ID         uint64 `json:"id"`
					FileName   string `json:"fileName"`
					FileLength uint64 `json:"fileLength"`
				} `json:"mainFile"`
			} `json:"project"`
		} `json:"pageProps"`
	} `json:"props"`
}

// ParseMetadata reads the page's __NEXT_DATA__ JSON. Malformed input or
// missing ids yield a Metadata with Valid set to false.
func ParseMetadata(jsonText string) Metadata {
	var data nextData
	if err := json.Unmarshal([]byte(jsonText), &data); err != nil {
		return Metadata{}
	}

	project := data.Props.PageProps.Project
	if project == nil || project.MainFile == nil {
		return Metadata{}
	}
	if project.ID == 0 || project.MainFile.ID == 0 {
		return Metadata{}
	}

	return Metadata{
		Valid:       true,
		ProjectID:   project.ID,
		ProjectName: project.Name,
		ProjectSlug: strings.ToLower(project.Slug),
		FileID:      project.MainFile.ID,
		FileName:    project.MainFile.FileName,
		FileSize:    project.MainFile.FileLength,
	}
}

// DecodeScriptResult unwraps the JSON text a host returns for a script result.
// It returns false for the null sentinel and for empty results.
func DecodeScriptResult(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" || raw == "undefined" {
		return "", false
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		if s == "" || s == "null" {
			return "", false
		}
		return s, true
	}
	return raw, true
}

// ParseMetadataHTML extracts the metadata from a saved addon page.
func ParseMetadataHTML(r io.Reader) (Metadata, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Metadata{}, fmt.Errorf("parse page: %w", err)
	}

	script := doc.Find("script#__NEXT_DATA__").First()
	if script.Length() == 0 {
		return Metadata{}, fmt.Errorf("page has no __NEXT_DATA__ script")
	}

	meta := ParseMetadata(script.Text())
	if !meta.Valid {
		return meta, fmt.Errorf("page metadata incomplete")
	}
	return meta, nil
}
