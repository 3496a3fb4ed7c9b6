package structure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalharvest/harvester/internal/scrape"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type stubClassifier struct {
	suggestion scrape.SelectorSuggestion
	err        error
	calls      int
	lastHTML   string
}

func (s *stubClassifier) DetectStructure(_ context.Context, html, _ string) (scrape.SelectorSuggestion, error) {
	s.calls++
	s.lastHTML = html
	return s.suggestion, s.err
}

func (s *stubClassifier) ClassifyRelevance(context.Context, string, string) (bool, error) {
	return false, nil
}

func (s *stubClassifier) ExtractEntities(context.Context, string, string, string) (scrape.EntityPayload, error) {
	return scrape.EntityPayload{}, nil
}

var testTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestCache(classifier scrape.Classifier) *Cache {
	return NewCache(classifier, fixedClock{testTime}, nil)
}

func TestCacheDetectsOnMissAndCaches(t *testing.T) {
	classifier := &stubClassifier{suggestion: scrape.SelectorSuggestion{
		Title:      "h1.headline",
		Content:    ".story-body",
		Author:     ".byline",
		Date:       "time",
		Confidence: 0.85,
	}}
	cache := newTestCache(classifier)

	cfg := cache.Detect(context.Background(), "https://www.news.example.com/article/1", "<html></html>")
	assert.Equal(t, "news.example.com", cfg.Domain)
	assert.Equal(t, "h1.headline", cfg.TitleSelector)
	assert.Equal(t, ".story-body", cfg.ContentSelector)
	assert.InDelta(t, 0.85, cfg.Confidence, 1e-9)
	assert.Equal(t, testTime, cfg.DetectedAt)
	assert.Equal(t, 1, classifier.calls)

	// Second lookup for the same domain hits the cache.
	again := cache.Detect(context.Background(), "https://news.example.com/article/2", "<html></html>")
	assert.Equal(t, cfg, again)
	assert.Equal(t, 1, classifier.calls)
	assert.Equal(t, 1, cache.Len())
}

func TestCacheDetectionFailureFallsBack(t *testing.T) {
	classifier := &stubClassifier{err: errors.New("model timeout")}
	cache := newTestCache(classifier)

	cfg := cache.Detect(context.Background(), "https://news.example.com/a", "<html></html>")
	assert.Equal(t, "h1", cfg.TitleSelector)
	assert.Equal(t, "article", cfg.ContentSelector)
	assert.InDelta(t, FallbackConfidence, cfg.Confidence, 1e-9)

	// Fallbacks are not cached; detection is retried next time.
	assert.Zero(t, cache.Len())
	cache.Detect(context.Background(), "https://news.example.com/b", "<html></html>")
	assert.Equal(t, 2, classifier.calls)
}

func TestCacheRejectsEchoedPageText(t *testing.T) {
	classifier := &stubClassifier{suggestion: scrape.SelectorSuggestion{
		Title:   "By Dana Reyes",
		Content: ".story-body",
	}}
	cache := newTestCache(classifier)

	cfg := cache.Detect(context.Background(), "https://news.example.com/a", "<html></html>")
	assert.InDelta(t, FallbackConfidence, cfg.Confidence, 1e-9)
	assert.Zero(t, cache.Len())
}

func TestCacheSeedDropsCorruptConfigs(t *testing.T) {
	cache := newTestCache(&stubClassifier{})

	cache.Seed(scrape.ExtractionConfig{
		Domain:          "good.example.com",
		TitleSelector:   "h1",
		ContentSelector: "article",
	})
	cache.Seed(scrape.ExtractionConfig{
		Domain:          "bad.example.com",
		TitleSelector:   "",
		ContentSelector: "article",
	})

	_, ok := cache.Get("good.example.com")
	assert.True(t, ok)
	_, ok = cache.Get("bad.example.com")
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())
}

func TestCacheInvalidate(t *testing.T) {
	cache := newTestCache(&stubClassifier{})
	cache.Seed(scrape.ExtractionConfig{Domain: "a.com", TitleSelector: "h1", ContentSelector: "article"})
	cache.Seed(scrape.ExtractionConfig{Domain: "b.com", TitleSelector: "h1", ContentSelector: "article"})

	cache.Invalidate("a.com")
	_, ok := cache.Get("a.com")
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())

	cache.Invalidate()
	assert.Zero(t, cache.Len())
}

func TestCacheDetectSendsBoundedExcerpt(t *testing.T) {
	classifier := &stubClassifier{suggestion: scrape.SelectorSuggestion{Title: "h1", Content: "article"}}
	cache := newTestCache(classifier)

	big := "<html><script>var x = 1;</script><body><p>" + longText(20000) + "</p></body></html>"
	cache.Detect(context.Background(), "https://news.example.com/a", big)

	assert.LessOrEqual(t, len(classifier.lastHTML), maxExcerptBytes)
	assert.NotContains(t, classifier.lastHTML, "<script>")
}

func longText(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}

func TestSanitizeSelector(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{" h1.headline ", "h1.headline"},
		{"`h1`", "h1"},
		{"'div.content'", "div.content"},
		{"p:contains('By')", "p"},
		{"div::before", "div"},
		{"div   p", "div p"},
		{"", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, SanitizeSelector(tc.in), tc.in)
	}
}

func TestValidateConfigRejections(t *testing.T) {
	base := scrape.ExtractionConfig{
		Domain:          "x.com",
		TitleSelector:   "h1",
		ContentSelector: "article",
	}

	tests := []struct {
		name   string
		mutate func(*scrape.ExtractionConfig)
	}{
		{"missing domain", func(c *scrape.ExtractionConfig) { c.Domain = "" }},
		{"empty title", func(c *scrape.ExtractionConfig) { c.TitleSelector = "" }},
		{"placeholder content", func(c *scrape.ExtractionConfig) { c.ContentSelector = "selector" }},
		{"date-looking title", func(c *scrape.ExtractionConfig) { c.TitleSelector = "August 12, 2026" }},
		{"prose title", func(c *scrape.ExtractionConfig) { c.TitleSelector = "the top headline of the page" }},
		{"byline author", func(c *scrape.ExtractionConfig) { c.AuthorSelector = "By Dana Reyes" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			assert.Error(t, ValidateConfig(cfg))
		})
	}

	assert.NoError(t, ValidateConfig(base))
}

func TestNewConfigClampsConfidence(t *testing.T) {
	cfg, err := NewConfig("x.com", scrape.SelectorSuggestion{
		Title: "h1", Content: "article", Confidence: 3.5,
	}, testTime)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cfg.Confidence, 1e-9)

	cfg, err = NewConfig("x.com", scrape.SelectorSuggestion{
		Title: "h1", Content: "article", Confidence: -0.5,
	}, testTime)
	require.NoError(t, err)
	assert.Zero(t, cfg.Confidence)
}
