package parse

import (
	"net"
	"net/url"
	"path"
	"strings"

	"ir-scraper/pkg/models"
)

// NormalizeURL standardizes a URL for deduplication and storage.
// It lowercases the scheme and host, removes default ports (80 for http,
// 443 for https), removes trailing slashes from paths (unless root "/"),
// ensures empty path becomes "/", and removes fragments and query strings.
// Does not modify the input *url.URL.
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	// Work on a copy
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil { // Host included a port
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = normalized.Path[:len(normalized.Path)-1]
	}

	normalized.Fragment = ""
	normalized.RawQuery = ""

	return normalized.String()
}

// ParseAndNormalize parses a URL string using the stricter url.ParseRequestURI
// (requiring a scheme) and then normalizes it.
// Returns the normalized string, the parsed URL object, and any parse error.
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(urlStr)
	if err != nil {
		return "", nil, err
	}
	return NormalizeURL(parsed), parsed, nil
}

// FileFormat returns the presentation format implied by the URL's path
// extension and whether the URL points at a presentation file at all.
// Query strings and fragments are ignored.
func FileFormat(rawURL string) (models.FileFormat, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".pdf":
		return models.FormatPDF, true
	case ".ppt":
		return models.FormatPPT, true
	case ".pptx":
		return models.FormatPPTX, true
	}
	return "", false
}

// FilenameStem returns the last path segment of the URL with its extension
// stripped and URL escapes decoded, used as a last-resort document title.
func FilenameStem(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return ""
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	stem := strings.TrimSuffix(base, path.Ext(base))
	return strings.TrimSpace(strings.NewReplacer("-", " ", "_", " ").Replace(stem))
}
