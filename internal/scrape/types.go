// Package scrape defines the core types and interfaces for the tiered
// adaptive scraping pipeline: sources, extraction configs, candidate links,
// extracted articles, and the escalation ladder primitives.
package scrape

import (
	"time"
)

// PageKind distinguishes listing pages (link hubs) from article pages.
type PageKind string

// Supported page kinds.
const (
	KindListing PageKind = "listing"
	KindArticle PageKind = "article"
)

// Source is one external site scraped each cycle. Sources are created by an
// administrative process and never deleted by the pipeline; a failing source
// is soft-deactivated by flipping Active off.
type Source struct {
	ID                  int64             `json:"id"`
	Name                string            `json:"name"`
	URL                 string            `json:"url"`
	Category            string            `json:"category"`
	Priority            int               `json:"priority"`
	Active              bool              `json:"active"`
	LastScrapedAt       *time.Time        `json:"last_scraped_at,omitempty"`
	LastSuccessAt       *time.Time        `json:"last_success_at,omitempty"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	Extraction          *ExtractionConfig `json:"extraction,omitempty"`
}

// ExtractionConfig is the per-domain selector set used to pull structured
// fields out of an article page. Instances are built through
// structure.NewConfig so malformed selector sets are rejected at construction
// rather than at every read site.
type ExtractionConfig struct {
	Domain              string    `json:"domain"`
	TitleSelector       string    `json:"title_selector"`
	ContentSelector     string    `json:"content_selector"`
	AuthorSelector      string    `json:"author_selector"`
	DateSelector        string    `json:"date_selector"`
	AltTitleSelectors   []string  `json:"alt_title_selectors,omitempty"`
	AltContentSelectors []string  `json:"alt_content_selectors,omitempty"`
	Confidence          float64   `json:"confidence"`
	DetectedAt          time.Time `json:"detected_at"`
}

// CandidateLink is a URL harvested from a listing page together with its
// anchor text. Candidates are transient; they are deduplicated within a
// single listing scrape and checked against already-stored article URLs
// before extraction.
type CandidateLink struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// ExtractedArticle holds the raw fields pulled from an article page before
// validation and enrichment.
type ExtractedArticle struct {
	URL        string  `json:"url"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Author     string  `json:"author"`
	Published  string  `json:"published"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
}

// EntityPayload carries named entities extracted by the classification
// collaborator.
type EntityPayload struct {
	Organizations []string `json:"organizations,omitempty"`
	People        []string `json:"people,omitempty"`
	Locations     []string `json:"locations,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
}

// Empty reports whether no entities were extracted.
func (p EntityPayload) Empty() bool {
	return len(p.Organizations) == 0 && len(p.People) == 0 &&
		len(p.Locations) == 0 && len(p.Keywords) == 0
}

// SeverityNone marks articles that were never scored, either because they
// are irrelevant or because classification failed.
const SeverityNone = "none"

// Severity is the score attached to a relevant article by the scorer.
type Severity struct {
	Score    float64           `json:"score"`
	Level    string            `json:"level"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Article is the persisted record. The URL is unique; once stored the record
// is immutable except for enrichment fields added later.
type Article struct {
	ID               int64         `json:"id"`
	SourceID         int64         `json:"source_id"`
	URL              string        `json:"url"`
	Title            string        `json:"title"`
	Content          string        `json:"content"`
	Author           string        `json:"author,omitempty"`
	Published        string        `json:"published,omitempty"`
	ExtractionMethod string        `json:"extraction_method"`
	Confidence       float64       `json:"confidence"`
	Relevant         bool          `json:"relevant"`
	Severity         Severity      `json:"severity"`
	Entities         EntityPayload `json:"entities"`
	ScrapedAt        time.Time     `json:"scraped_at"`
}

// SourceResult summarizes one source's outcome within a run.
type SourceResult struct {
	SourceID        int64         `json:"source_id"`
	SourceName      string        `json:"source_name"`
	URL             string        `json:"url"`
	Tier            int           `json:"tier"`
	LinksFound      int           `json:"links_found"`
	ArticlesAdded   int           `json:"articles_added"`
	ArticlesSkipped int           `json:"articles_skipped"`
	Errors          []string      `json:"errors,omitempty"`
	Protected       bool          `json:"protected"`
	Failed          bool          `json:"failed"`
	Duration        time.Duration `json:"duration"`
}

// RunStats aggregates counters across a whole run.
type RunStats struct {
	SourcesTotal     int `json:"sources_total"`
	SourcesProcessed int `json:"sources_processed"`
	SourcesFailed    int `json:"sources_failed"`
	ArticlesAdded    int `json:"articles_added"`
	ArticlesSkipped  int `json:"articles_skipped"`
}

// SelectorSuggestion is the raw structure-detection response from the
// classification collaborator, prior to sanitization.
type SelectorSuggestion struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Author     string  `json:"author"`
	Date       string  `json:"date"`
	Confidence float64 `json:"confidence"`
}
