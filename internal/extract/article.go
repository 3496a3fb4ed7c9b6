package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/signalharvest/harvester/internal/scrape"
)

// Extraction methods recorded on articles for operational visibility.
const (
	MethodSelectors = "selectors"
	MethodFallback  = "fallback"
)

// genericTitleSelectors are tried in order when the configured selector (and
// its alternates) yield nothing.
var genericTitleSelectors = []string{"h1", "header h1", "title", "[property='og:title']"}

// genericContentSelectors mirror the render worker's fallback list.
var genericContentSelectors = []string{
	"article", "main", "[itemprop='articleBody']",
	".article-body", ".post-content", ".entry-content", "#content",
}

// ExtractArticle applies the resolved extraction config to an article page,
// falling back to the generic selector lists field by field. Fields that
// still come up empty stay empty; content-quality rejection happens in
// Validate, not here.
func ExtractArticle(html, pageURL string, cfg scrape.ExtractionConfig) (scrape.ExtractedArticle, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return scrape.ExtractedArticle{}, fmt.Errorf("parse article html: %w", err)
	}

	method := MethodSelectors

	titleSelectors := append([]string{cfg.TitleSelector}, cfg.AltTitleSelectors...)
	title, usedFallbackTitle := firstText(doc, titleSelectors, genericTitleSelectors)

	contentSelectors := append([]string{cfg.ContentSelector}, cfg.AltContentSelectors...)
	content, usedFallbackContent := firstText(doc, contentSelectors, genericContentSelectors)

	if usedFallbackTitle || usedFallbackContent {
		method = MethodFallback
	}

	author, _ := firstText(doc, []string{cfg.AuthorSelector}, []string{".author", "[rel='author']", ".byline"})
	published := extractDate(doc, cfg.DateSelector)

	return scrape.ExtractedArticle{
		URL:        pageURL,
		Title:      title,
		Content:    content,
		Author:     author,
		Published:  published,
		Method:     method,
		Confidence: cfg.Confidence,
	}, nil
}

// firstText returns the first non-empty text match across the configured
// selectors, then the generic list; the bool reports whether a generic
// selector had to be used.
func firstText(doc *goquery.Document, configured, generic []string) (string, bool) {
	for _, sel := range configured {
		if text := selectText(doc, sel); text != "" {
			return text, false
		}
	}
	for _, sel := range generic {
		if text := selectText(doc, sel); text != "" {
			return text, true
		}
	}
	return "", true
}

func selectText(doc *goquery.Document, sel string) string {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return ""
	}
	selection := doc.Find(sel).First()
	if selection.Length() == 0 {
		return ""
	}
	if content, ok := selection.Attr("content"); ok && strings.TrimSpace(content) != "" {
		return strings.TrimSpace(content)
	}
	return collapseSpace(selection.Text())
}

// extractDate prefers a machine-readable datetime attribute over element
// text.
func extractDate(doc *goquery.Document, configured string) string {
	selectors := []string{configured, "time[datetime]", "time", "[property='article:published_time']"}
	for _, sel := range selectors {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		selection := doc.Find(sel).First()
		if selection.Length() == 0 {
			continue
		}
		if dt, ok := selection.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
			return strings.TrimSpace(dt)
		}
		if content, ok := selection.Attr("content"); ok && strings.TrimSpace(content) != "" {
			return strings.TrimSpace(content)
		}
		if text := collapseSpace(selection.Text()); text != "" {
			return text
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
