// Package curse knows the URL topology and page layout of the addon site.
package curse

import (
	"net/url"
	"strconv"
	"strings"
)

// Kind classifies a URL of the download redirect chain.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindContentPage
	KindFetchedResource
	KindTokenRedirect
	KindFinalResource
)

func (k Kind) String() string {
	switch k {
	case KindContentPage:
		return "content_page"
	case KindFetchedResource:
		return "fetched_resource"
	case KindTokenRedirect:
		return "token_redirect"
	case KindFinalResource:
		return "final_resource"
	default:
		return "unrecognized"
	}
}

const (
	siteHost    = "www.curseforge.com"
	edgeHost    = "edge.forgecdn.net"
	mediaHost   = "mediafilez.forgecdn.net"
	addonsPath  = "/wow/addons/"
	modsAPIPath = "/api/v1/mods/"
	apiKeyParam = "api-key"
)

// Classify returns the kind of u. Surrounding whitespace is ignored.
func Classify(u string) Kind {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil || parsed.Scheme != "https" {
		return KindUnrecognized
	}

	switch strings.ToLower(parsed.Host) {
	case siteHost:
		if isContentPagePath(parsed.Path) && parsed.RawQuery == "" {
			return KindContentPage
		}
		if isFetchedResourcePath(parsed.Path) {
			return KindFetchedResource
		}
	case edgeHost:
		if isFilesPath(parsed.Path) && parsed.Query().Get(apiKeyParam) != "" {
			return KindTokenRedirect
		}
	case mediaHost:
		if isFilesPath(parsed.Path) && strings.HasSuffix(strings.ToLower(parsed.Path), ".zip") {
			return KindFinalResource
		}
	}
	return KindUnrecognized
}

// IsContentPageURL reports whether u is an addon download page.
func IsContentPageURL(u string) bool { return Classify(u) == KindContentPage }

// IsFetchedResourceURL reports whether u is a download API URL built from page metadata.
func IsFetchedResourceURL(u string) bool { return Classify(u) == KindFetchedResource }

// IsTokenRedirectURL reports whether u is the CDN redirect carrying an access token.
func IsTokenRedirectURL(u string) bool { return Classify(u) == KindTokenRedirect }

// IsFinalResourceURL reports whether u is the direct URL of the archive.
func IsFinalResourceURL(u string) bool { return Classify(u) == KindFinalResource }

// /wow/addons/{slug}/download
func isContentPagePath(p string) bool {
	rest, ok := strings.CutPrefix(p, addonsPath)
	if !ok {
		return false
	}
	slug, ok := strings.CutSuffix(rest, "/download")
	return ok && slug != "" && !strings.Contains(slug, "/")
}

// /api/v1/mods/{projectId}/files/{fileId}/download
func isFetchedResourcePath(p string) bool {
	rest, ok := strings.CutPrefix(p, modsAPIPath)
	if !ok {
		return false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[1] != "files" || parts[3] != "download" {
		return false
	}
	return isID(parts[0]) && isID(parts[2])
}

// /files/{a}/{b}/{file}
func isFilesPath(p string) bool {
	rest, ok := strings.CutPrefix(p, "/files/")
	if !ok {
		return false
	}
	parts := strings.Split(rest, "/")
	return len(parts) == 3 && parts[0] != "" && parts[1] != "" && parts[2] != ""
}

func isID(s string) bool {
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

// BuildFetchedResourceURL returns the download API URL of a project file.
func BuildFetchedResourceURL(projectID, fileID uint64) string {
	return "https://" + siteHost + modsAPIPath +
		strconv.FormatUint(projectID, 10) + "/files/" + strconv.FormatUint(fileID, 10) + "/download"
}

// ContentPageURL returns the download page URL of an addon slug.
func ContentPageURL(slug string) string {
	return "https://" + siteHost + addonsPath + strings.ToLower(strings.TrimSpace(slug)) + "/download"
}

// SlugFromContentPageURL returns the lower-cased addon slug, or "" if u is not a content page.
func SlugFromContentPageURL(u string) string {
	if !IsContentPageURL(u) {
		return ""
	}
	parsed, _ := url.Parse(strings.TrimSpace(u))
	rest := strings.TrimPrefix(parsed.Path, addonsPath)
	return strings.ToLower(strings.TrimSuffix(rest, "/download"))
}

// FileNameFromURL returns the archive name of a token redirect or final URL.
func FileNameFromURL(u string) string {
	switch Classify(u) {
	case KindTokenRedirect, KindFinalResource:
	default:
		return ""
	}
	parsed, _ := url.Parse(strings.TrimSpace(u))
	name := parsed.Path[strings.LastIndex(parsed.Path, "/")+1:]
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}

// AddonNameFromFileName returns the lower-cased text before the first "-" of an
// archive name like "Coordinates-2.4.1.zip".
func AddonNameFromFileName(file string) string {
	name, _, ok := strings.Cut(file, "-")
	if !ok {
		return ""
	}
	return strings.ToLower(name)
}

// ResourceName returns a display name for any URL of the chain.
func ResourceName(u string) string {
	switch Classify(u) {
	case KindContentPage:
		return SlugFromContentPageURL(u)
	case KindTokenRedirect, KindFinalResource:
		return AddonNameFromFileName(FileNameFromURL(u))
	default:
		return ""
	}
}

// NormalizeURLs trims and lower-cases urls and keeps the first occurrence of
// every content page URL. Anything else is dropped.
func NormalizeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.ToLower(strings.TrimSpace(u))
		if !IsContentPageURL(u) {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
