package scrape

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL so duplicate candidates collapse to one key.
// It lowercases the scheme and host, removes default ports and fragments,
// sorts query parameters, and trims a trailing slash from non-root paths.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q missing scheme or host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}

// NormalizeDomain reduces a URL or bare host to the cache key used by the
// structure cache: lowercase host with the scheme, port, and a leading
// "www." stripped.
func NormalizeDomain(rawURL string) string {
	value := strings.TrimSpace(strings.ToLower(rawURL))
	if value == "" {
		return ""
	}
	if !strings.Contains(value, "://") {
		value = "https://" + value
	}
	u, err := url.Parse(value)
	if err != nil || u.Hostname() == "" {
		// Fall back to manual stripping for values url.Parse rejects.
		value = strings.TrimPrefix(value, "https://")
		value = strings.TrimPrefix(value, "http://")
		if idx := strings.IndexAny(value, "/:?#"); idx >= 0 {
			value = value[:idx]
		}
		return strings.TrimPrefix(value, "www.")
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// HostOf extracts the lowercase hostname, returning "unknown" for unparsable
// input. Used for metrics and rate-limit keys.
func HostOf(rawURL string) string {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ResolveRef resolves a possibly-relative href against a base page URL.
func ResolveRef(baseURL, href string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
