// Package extract turns fetched HTML into candidate links and structured
// articles, and applies the content-quality gate ahead of enrichment. All of
// it is pure: dedup against already-stored articles happens in the
// orchestrator so these functions stay unit-testable with fixture HTML.
package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/signalharvest/harvester/internal/scrape"
)

// LinkPolicy is the app-specific filter applied to listing-page anchors.
type LinkPolicy struct {
	// IncludePatterns: when non-empty, a link's path must contain one.
	IncludePatterns []string
	// ExcludePatterns always reject, even when an include also matches.
	ExcludePatterns []string
	// DeniedDomains rejects tracking/ad/social hosts; "*.x.com" matches
	// subdomains.
	DeniedDomains []string
}

// DefaultLinkPolicy matches the article-path conventions of typical news
// sites and blocks the usual tracking and social hosts.
func DefaultLinkPolicy() LinkPolicy {
	return LinkPolicy{
		IncludePatterns: []string{
			"/article/", "/articles/", "/news/", "/story/", "/stories/",
			"/post/", "/posts/", "/blog/", "/press-release/", "/20",
		},
		ExcludePatterns: []string{
			"/tag/", "/tags/", "/category/", "/categories/", "/author/",
			"/login/", "/signin/", "/register/", "/subscribe/", "/account/",
			"/search/", "/about/", "/contact/", "/privacy/", "/terms/",
		},
		DeniedDomains: []string{
			"facebook.com", "twitter.com", "x.com", "linkedin.com",
			"instagram.com", "youtube.com", "pinterest.com", "reddit.com",
			"*.doubleclick.net", "*.googlesyndication.com",
			"*.google-analytics.com", "*.outbrain.com", "*.taboola.com",
		},
	}
}

// ExtractLinks parses a listing page and returns policy-filtered candidate
// links, deduplicated by normalized URL within the batch.
func ExtractLinks(html, baseURL string, policy LinkPolicy) ([]scrape.CandidateLink, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	blocklist := newDomainBlocklist(policy.DeniedDomains)
	baseHost := scrape.HostOf(baseURL)

	seen := make(map[string]struct{})
	var links []scrape.CandidateLink

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}

		absolute, err := scrape.ResolveRef(baseURL, href)
		if err != nil {
			return
		}
		normalized, err := scrape.NormalizeURL(absolute)
		if err != nil {
			return
		}
		parsed, err := url.Parse(normalized)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return
		}
		if !allowedByPolicy(parsed, baseHost, policy, blocklist) {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}

		links = append(links, scrape.CandidateLink{
			URL:  normalized,
			Text: strings.TrimSpace(sel.Text()),
		})
	})

	return links, nil
}

func allowedByPolicy(u *url.URL, baseHost string, policy LinkPolicy, blocklist *domainBlocklist) bool {
	host := strings.ToLower(u.Hostname())
	if blocklist.IsBlocked(host) {
		return false
	}

	path := strings.ToLower(u.Path)
	if path == "" {
		path = "/"
	}
	for _, pattern := range policy.ExcludePatterns {
		if pattern != "" && strings.Contains(path, strings.ToLower(pattern)) {
			return false
		}
	}

	// Off-site links only pass on an include match; same-site links with no
	// include list configured pass by default.
	if len(policy.IncludePatterns) == 0 {
		return host == baseHost || strings.HasSuffix(host, "."+baseHost)
	}
	for _, pattern := range policy.IncludePatterns {
		if pattern != "" && strings.Contains(path, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
