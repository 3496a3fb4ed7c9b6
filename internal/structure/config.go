// Package structure owns the per-domain extraction-selector cache: validating
// construction of selector sets, AI-backed detection on miss, and sanitization
// of everything the classifier returns.
package structure

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/signalharvest/harvester/internal/scrape"
)

// FallbackConfidence marks configs built from the hard-coded generic
// selectors rather than detection.
const FallbackConfidence = 0.2

// Generic selectors used when detection fails or a cached entry is corrupt.
const (
	fallbackTitleSelector   = "h1"
	fallbackContentSelector = "article"
	fallbackAuthorSelector  = ".author"
	fallbackDateSelector    = "time"
)

var (
	// textContentPatterns match strings that are page text masquerading as
	// selectors, e.g. a byline or a formatted date the model echoed back.
	textContentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^by\s+\p{L}`),
		regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}`),
		regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`),
		regexp.MustCompile(`(?i)^(posted|published|updated)\b`),
	}

	// unsupportedPseudo strips pseudo-selectors cascadia cannot evaluate.
	unsupportedPseudo = regexp.MustCompile(`:{1,2}(contains|hover|before|after|visited|first-letter|selection)(\([^)]*\))?`)

	placeholderValues = map[string]struct{}{
		"selector": {}, "css": {}, "unknown": {}, "n/a": {}, "none": {}, "null": {},
	}

	whitespaceRun = regexp.MustCompile(`\s+`)
)

// FallbackConfig returns the generic selector set at low confidence.
func FallbackConfig(domain string, now time.Time) scrape.ExtractionConfig {
	return scrape.ExtractionConfig{
		Domain:          domain,
		TitleSelector:   fallbackTitleSelector,
		ContentSelector: fallbackContentSelector,
		AuthorSelector:  fallbackAuthorSelector,
		DateSelector:    fallbackDateSelector,
		Confidence:      FallbackConfidence,
		DetectedAt:      now,
	}
}

// NewConfig is the validating factory for extraction configs. Malformed
// selector sets are rejected here so no read site needs to re-check them.
func NewConfig(domain string, sug scrape.SelectorSuggestion, now time.Time) (scrape.ExtractionConfig, error) {
	if domain == "" {
		return scrape.ExtractionConfig{}, fmt.Errorf("config requires a domain")
	}

	title := SanitizeSelector(sug.Title)
	content := SanitizeSelector(sug.Content)
	if title == "" || content == "" {
		return scrape.ExtractionConfig{}, fmt.Errorf("domain %s: title and content selectors are required", domain)
	}

	cfg := scrape.ExtractionConfig{
		Domain:          domain,
		TitleSelector:   title,
		ContentSelector: content,
		AuthorSelector:  SanitizeSelector(sug.Author),
		DateSelector:    SanitizeSelector(sug.Date),
		Confidence:      clampConfidence(sug.Confidence),
		DetectedAt:      now,
	}
	if err := ValidateConfig(cfg); err != nil {
		return scrape.ExtractionConfig{}, err
	}
	return cfg, nil
}

// ValidateConfig performs the structural-validity check applied to cached
// entries before reuse: non-empty, non-placeholder, and not literal page text
// posing as a selector.
func ValidateConfig(cfg scrape.ExtractionConfig) error {
	if cfg.Domain == "" {
		return fmt.Errorf("config missing domain")
	}
	for field, sel := range map[string]string{
		"title":   cfg.TitleSelector,
		"content": cfg.ContentSelector,
	} {
		if sel == "" {
			return fmt.Errorf("domain %s: %s selector is empty", cfg.Domain, field)
		}
		if err := checkSelector(cfg.Domain, field, sel); err != nil {
			return err
		}
	}
	for field, sel := range map[string]string{
		"author": cfg.AuthorSelector,
		"date":   cfg.DateSelector,
	} {
		if sel == "" {
			continue
		}
		if err := checkSelector(cfg.Domain, field, sel); err != nil {
			return err
		}
	}
	return nil
}

func checkSelector(domain, field, sel string) error {
	if _, placeholder := placeholderValues[strings.ToLower(sel)]; placeholder {
		return fmt.Errorf("domain %s: %s selector %q is a placeholder", domain, field, sel)
	}
	for _, pattern := range textContentPatterns {
		if pattern.MatchString(sel) {
			return fmt.Errorf("domain %s: %s selector %q looks like page text", domain, field, sel)
		}
	}
	// A selector with many plain words and no CSS syntax is echoed text.
	if !strings.ContainsAny(sel, ".#[>:*") && len(strings.Fields(sel)) > 3 {
		return fmt.Errorf("domain %s: %s selector %q is not CSS-like", domain, field, sel)
	}
	return nil
}

// SanitizeSelector normalizes one selector string from the classifier:
// unsupported pseudo-selectors stripped, whitespace collapsed, wrapping
// quotes and backticks dropped.
func SanitizeSelector(sel string) string {
	sel = strings.TrimSpace(sel)
	sel = strings.Trim(sel, "`'\"")
	sel = unsupportedPseudo.ReplaceAllString(sel, "")
	sel = whitespaceRun.ReplaceAllString(sel, " ")
	return strings.TrimSpace(sel)
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
