package scrape

import (
	"context"
	"time"
)

// Store is the persistence collaborator. The pipeline never issues raw
// queries itself; everything goes through this interface.
type Store interface {
	ListActiveSources(ctx context.Context) ([]Source, error)
	UpsertExtractionConfig(ctx context.Context, sourceID int64, cfg ExtractionConfig) error
	ArticleExistsByURL(ctx context.Context, url string) (bool, error)
	InsertArticle(ctx context.Context, article Article) (int64, error)
	UpdateSourceLastScraped(ctx context.Context, sourceID int64, at time.Time, success bool) error
	LinkEntities(ctx context.Context, articleID int64, entities EntityPayload) error
}

// Classifier is the external classification/entity-extraction collaborator.
// All calls are request/response and must be treated as fallible and slow
// (seconds-scale latency).
type Classifier interface {
	DetectStructure(ctx context.Context, html, url string) (SelectorSuggestion, error)
	ClassifyRelevance(ctx context.Context, title, content string) (bool, error)
	ExtractEntities(ctx context.Context, title, content, url string) (EntityPayload, error)
}

// SeverityScorer computes a severity score for a relevant article.
type SeverityScorer interface {
	Score(article ExtractedArticle, entities EntityPayload) Severity
}

// FetchRequest describes a single lightweight (non-rendering) fetch.
type FetchRequest struct {
	URL     string
	Profile ClientProfile
	Timeout time.Duration
}

// FetchResult is the outcome of a lightweight fetch.
type FetchResult struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Fetcher performs the lightweight HTTP tiers of the escalation ladder.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)
}

// RenderedPage is the output of an isolated render-worker invocation.
type RenderedPage struct {
	HTML         string
	PeakRSSBytes int64
}

// Renderer drives the out-of-process browser worker for tiers that require
// full rendering.
type Renderer interface {
	Render(ctx context.Context, url string, kind PageKind, cfg *ExtractionConfig, stealth int) (RenderedPage, error)
}

// DomainLimiter throttles fetches per domain.
type DomainLimiter interface {
	Wait(ctx context.Context, url string) error
}

// Clock returns the current time (swap out in tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
