package structure

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/signalharvest/harvester/internal/scrape"
)

// maxExcerptBytes bounds the HTML excerpt shipped to the classifier.
const maxExcerptBytes = 8192

// Cache maps normalized domains to validated extraction configs, re-detecting
// through the classification collaborator on miss or corruption. Detection
// failures downgrade to the generic fallback; they are never fatal to the
// calling scrape.
type Cache struct {
	classifier scrape.Classifier
	clock      scrape.Clock
	logger     *zap.Logger

	mu      sync.RWMutex
	configs map[string]scrape.ExtractionConfig
}

// NewCache builds an empty Cache.
func NewCache(classifier scrape.Classifier, clock scrape.Clock, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		classifier: classifier,
		clock:      clock,
		logger:     logger,
		configs:    make(map[string]scrape.ExtractionConfig),
	}
}

// Seed loads a config persisted from a previous run, dropping entries that
// fail the structural-validity check so corrupt rows never reach extraction.
func (c *Cache) Seed(cfg scrape.ExtractionConfig) {
	if err := ValidateConfig(cfg); err != nil {
		c.logger.Warn("discarding corrupt persisted extraction config",
			zap.String("domain", cfg.Domain),
			zap.Error(err),
		)
		return
	}
	c.mu.Lock()
	c.configs[cfg.Domain] = cfg
	c.mu.Unlock()
}

// Get returns the cached config for a domain, if valid.
func (c *Cache) Get(domain string) (scrape.ExtractionConfig, bool) {
	c.mu.RLock()
	cfg, ok := c.configs[domain]
	c.mu.RUnlock()
	if !ok {
		return scrape.ExtractionConfig{}, false
	}
	if err := ValidateConfig(cfg); err != nil {
		c.logger.Warn("evicting corrupt cached extraction config",
			zap.String("domain", domain),
			zap.Error(err),
		)
		c.Invalidate(domain)
		return scrape.ExtractionConfig{}, false
	}
	return cfg, true
}

// Detect resolves the extraction config for a URL: cached entry when valid,
// fresh AI detection otherwise, generic fallback when detection fails.
func (c *Cache) Detect(ctx context.Context, url, html string) scrape.ExtractionConfig {
	domain := scrape.NormalizeDomain(url)

	if cfg, ok := c.Get(domain); ok {
		return cfg
	}

	excerpt := Excerpt(html, maxExcerptBytes)
	sug, err := c.classifier.DetectStructure(ctx, excerpt, url)
	if err != nil {
		c.logger.Warn("structure detection failed, using fallback selectors",
			zap.String("domain", domain),
			zap.Error(err),
		)
		return FallbackConfig(domain, c.clock.Now())
	}

	cfg, err := NewConfig(domain, sug, c.clock.Now())
	if err != nil {
		c.logger.Warn("detected selectors rejected, using fallback",
			zap.String("domain", domain),
			zap.Error(err),
		)
		return FallbackConfig(domain, c.clock.Now())
	}

	c.mu.Lock()
	c.configs[domain] = cfg
	c.mu.Unlock()

	c.logger.Info("extraction config detected",
		zap.String("domain", domain),
		zap.String("title_selector", cfg.TitleSelector),
		zap.String("content_selector", cfg.ContentSelector),
		zap.Float64("confidence", cfg.Confidence),
	)
	return cfg
}

// Invalidate drops one domain's entry; with no arguments it clears the cache.
func (c *Cache) Invalidate(domains ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(domains) == 0 {
		c.configs = make(map[string]scrape.ExtractionConfig)
		return
	}
	for _, d := range domains {
		delete(c.configs, d)
	}
}

// Len reports the number of cached domains.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.configs)
}

var (
	scriptBlocks  = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	styleBlocks   = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	htmlComments  = regexp.MustCompile(`(?s)<!--.*?-->`)
	excerptSpaces = regexp.MustCompile(`\s+`)
)

// Excerpt strips script, style, and comment blocks, collapses whitespace, and
// bounds the result so classifier calls stay cheap and deterministic in size.
func Excerpt(html string, limit int) string {
	html = scriptBlocks.ReplaceAllString(html, "")
	html = styleBlocks.ReplaceAllString(html, "")
	html = htmlComments.ReplaceAllString(html, "")
	html = excerptSpaces.ReplaceAllString(html, " ")
	html = strings.TrimSpace(html)
	if limit > 0 && len(html) > limit {
		html = html[:limit]
	}
	return html
}
