package curse

import (
	"strings"
	"testing"
)

const samplePageData = `{"props":{"pageProps":{"project":{"id":3358,"name":"Coordinates","slug":"Coordinates",` +
	`"mainFile":{"id":4364314,"fileName":"Coordinates-2.4.1.zip","fileLength":12345}}}}}`

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Metadata
	}{
		{
			name:  "valid",
			input: samplePageData,
			want: Metadata{
				Valid:       true,
				ProjectID:   3358,
				ProjectName: "Coordinates",
				ProjectSlug: "coordinates",
				FileID:      4364314,
				FileName:    "Coordinates-2.4.1.zip",
				FileSize:    12345,
			},
		},
		{"malformed", `{"props":`, Metadata{}},
		{"no project", `{"props":{"pageProps":{}}}`, Metadata{}},
		{"no main file", `{"props":{"pageProps":{"project":{"id":1}}}}`, Metadata{}},
		{"zero file id", `{"props":{"pageProps":{"project":{"id":1,"mainFile":{"id":0}}}}}`, Metadata{}},
		{"empty", "", Metadata{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseMetadata(tt.input); got != tt.want {
				t.Errorf("ParseMetadata() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMetadata_DownloadURL(t *testing.T) {
	m := ParseMetadata(samplePageData)
	want := "https://www.curseforge.com/api/v1/mods/3358/files/4364314/download"
	if got := m.DownloadURL(); got != want {
		t.Errorf("DownloadURL() = %q, want %q", got, want)
	}
}

func TestDecodeScriptResult(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"null sentinel", "null", "", false},
		{"null with spaces", "  null\n", "", false},
		{"empty", "", "", false},
		{"quoted null", `"null"`, "", false},
		{"quoted padded null", `" null "`, "", false},
		{"quoted empty", `""`, "", false},
		{"json string", `"{\"a\":1}"`, `{"a":1}`, true},
		{"escaped unicode", `"café"`, "café", true},
		{"raw object", `{"a":1}`, `{"a":1}`, true},
		{"broken string", `"abc`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeScriptResult(tt.raw)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("DecodeScriptResult(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseMetadataHTML(t *testing.T) {
	page := `<html><head><title>x</title></head><body>
<div id="__next"></div>
<script id="__NEXT_DATA__" type="application/json">` + samplePageData + `</script>
</body></html>`

	meta, err := ParseMetadataHTML(strings.NewReader(page))
	if err != nil {
		t.Fatalf("ParseMetadataHTML() error = %v", err)
	}
	if meta.ProjectID != 3358 || meta.FileID != 4364314 {
		t.Errorf("ParseMetadataHTML() = %+v", meta)
	}
}

func TestParseMetadataHTML_Missing(t *testing.T) {
	if _, err := ParseMetadataHTML(strings.NewReader("<html><body></body></html>")); err == nil {
		t.Error("ParseMetadataHTML() error = nil, want error")
	}
	page := `<script id="__NEXT_DATA__">{"props":{}}</script>`
	if _, err := ParseMetadataHTML(strings.NewReader(page)); err == nil {
		t.Error("ParseMetadataHTML() error = nil for incomplete data")
	}
}
