package curse

import (
	"math"
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want Kind
	}{
		{"content page", "https://www.curseforge.com/wow/addons/coordinates/download", KindContentPage},
		{"content page with spaces", "  https://www.curseforge.com/wow/addons/deadly-boss-mods/download \n", KindContentPage},
		{"content page without slug", "https://www.curseforge.com/wow/addons//download", KindUnrecognized},
		{"content page nested", "https://www.curseforge.com/wow/addons/a/b/download", KindUnrecognized},
		{"old file redirect", "https://www.curseforge.com/wow/addons/coordinates/download/4364314/file", KindUnrecognized},
		{"fetched resource", "https://www.curseforge.com/api/v1/mods/3358/files/4364314/download", KindFetchedResource},
		{"fetched resource bad id", "https://www.curseforge.com/api/v1/mods/abc/files/4364314/download", KindUnrecognized},
		{"token redirect", "https://edge.forgecdn.net/files/4364/314/Coordinates-2.4.1.zip?api-key=267C6CA3", KindTokenRedirect},
		{"edge without token", "https://edge.forgecdn.net/files/4364/314/Coordinates-2.4.1.zip", KindUnrecognized},
		{"final resource", "https://mediafilez.forgecdn.net/files/4364/314/Coordinates-2.4.1.zip", KindFinalResource},
		{"final resource not zip", "https://mediafilez.forgecdn.net/files/4364/314/Coordinates-2.4.1.rar", KindUnrecognized},
		{"plain http", "http://www.curseforge.com/wow/addons/coordinates/download", KindUnrecognized},
		{"other host", "https://example.com/wow/addons/coordinates/download", KindUnrecognized},
		{"empty", "", KindUnrecognized},
		{"garbage", "::not a url", KindUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.url); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.url, got, tt.want)
			}
		})
	}
}

func TestClassify_Predicates(t *testing.T) {
	if !IsContentPageURL("https://www.curseforge.com/wow/addons/coordinates/download") {
		t.Error("IsContentPageURL() = false")
	}
	if !IsFetchedResourceURL("https://www.curseforge.com/api/v1/mods/1/files/2/download") {
		t.Error("IsFetchedResourceURL() = false")
	}
	if !IsTokenRedirectURL("https://edge.forgecdn.net/files/1/2/a-1.zip?api-key=x") {
		t.Error("IsTokenRedirectURL() = false")
	}
	if !IsFinalResourceURL("https://mediafilez.forgecdn.net/files/1/2/a-1.zip") {
		t.Error("IsFinalResourceURL() = false")
	}
}

func TestBuildFetchedResourceURL_Classifies(t *testing.T) {
	ids := []uint64{0, 1, 42, 3358, 4364314, math.MaxUint32, math.MaxUint64}
	for _, p := range ids {
		for _, f := range ids {
			u := BuildFetchedResourceURL(p, f)
			if got := Classify(u); got != KindFetchedResource {
				t.Errorf("Classify(BuildFetchedResourceURL(%d, %d)) = %s", p, f, got)
			}
		}
	}
}

func TestKind_String(t *testing.T) {
	if KindTokenRedirect.String() != "token_redirect" {
		t.Errorf("String() = %q", KindTokenRedirect.String())
	}
	if Kind(99).String() != "unrecognized" {
		t.Errorf("String() = %q", Kind(99).String())
	}
}

func TestNames(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		slug     string
		file     string
		resource string
	}{
		{"content page", "https://www.curseforge.com/wow/addons/Coordinates/download", "coordinates", "", "coordinates"},
		{"token redirect", "https://edge.forgecdn.net/files/4364/314/Coordinates-2.4.1.zip?api-key=1", "", "Coordinates-2.4.1.zip", "coordinates"},
		{"final", "https://mediafilez.forgecdn.net/files/4364/314/DBM%20Core-1.zip", "", "DBM Core-1.zip", "dbm core"},
		{"unrecognized", "https://example.com", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SlugFromContentPageURL(tt.url); got != tt.slug {
				t.Errorf("SlugFromContentPageURL() = %q, want %q", got, tt.slug)
			}
			if got := FileNameFromURL(tt.url); got != tt.file {
				t.Errorf("FileNameFromURL() = %q, want %q", got, tt.file)
			}
			if got := ResourceName(tt.url); got != tt.resource {
				t.Errorf("ResourceName() = %q, want %q", got, tt.resource)
			}
		})
	}
}

func TestAddonNameFromFileName(t *testing.T) {
	if got := AddonNameFromFileName("Coordinates-2.4.1.zip"); got != "coordinates" {
		t.Errorf("AddonNameFromFileName() = %q", got)
	}
	if got := AddonNameFromFileName("nodash.zip"); got != "" {
		t.Errorf("AddonNameFromFileName() = %q, want empty", got)
	}
}

func TestContentPageURL(t *testing.T) {
	u := ContentPageURL(" Details ")
	if u != "https://www.curseforge.com/wow/addons/details/download" {
		t.Errorf("ContentPageURL() = %q", u)
	}
	if !IsContentPageURL(u) {
		t.Error("ContentPageURL() does not classify as content page")
	}
}

func TestNormalizeURLs(t *testing.T) {
	in := []string{
		" https://www.curseforge.com/wow/addons/Details/download ",
		"https://www.curseforge.com/wow/addons/details/download",
		"https://example.com/nope",
		"",
		"https://www.curseforge.com/wow/addons/coordinates/download",
	}
	want := []string{
		"https://www.curseforge.com/wow/addons/details/download",
		"https://www.curseforge.com/wow/addons/coordinates/download",
	}
	if got := NormalizeURLs(in); !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeURLs() = %v, want %v", got, want)
	}
	if got := NormalizeURLs(nil); len(got) != 0 {
		t.Errorf("NormalizeURLs(nil) = %v, want empty", got)
	}
}
