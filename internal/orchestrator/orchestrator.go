// Package orchestrator drives scrape runs: one run process-wide, one
// in-flight scrape per source, cooperative stop at source and link
// boundaries, and per-source failure isolation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/signalharvest/harvester/internal/archive"
	"github.com/signalharvest/harvester/internal/enrich"
	"github.com/signalharvest/harvester/internal/extract"
	"github.com/signalharvest/harvester/internal/metrics"
	"github.com/signalharvest/harvester/internal/progress"
	"github.com/signalharvest/harvester/internal/publisher"
	"github.com/signalharvest/harvester/internal/scrape"
	"github.com/signalharvest/harvester/internal/structure"
)

// Config tunes a run.
type Config struct {
	JobType  string
	Audience string
	// SummaryTopic is the broker topic run summaries are published to.
	// Empty disables publishing.
	SummaryTopic string
	// MaxArticlesPerSource caps new articles per source per run.
	// Zero means no cap.
	MaxArticlesPerSource int
	LinkPolicy           extract.LinkPolicy
}

func (c *Config) withDefaults() {
	if c.JobType == "" {
		c.JobType = "scrape"
	}
	if c.Audience == "" {
		c.Audience = "public"
	}
	if len(c.LinkPolicy.IncludePatterns) == 0 && len(c.LinkPolicy.ExcludePatterns) == 0 {
		c.LinkPolicy = extract.DefaultLinkPolicy()
	}
}

// RunSummary is the payload published to the summary topic after each run.
type RunSummary struct {
	JobID      string                `json:"jobId"`
	StartedAt  time.Time             `json:"startedAt"`
	FinishedAt time.Time             `json:"finishedAt"`
	Status     string                `json:"status"`
	Stats      scrape.RunStats       `json:"stats"`
	Sources    []scrape.SourceResult `json:"sources"`
}

// Orchestrator owns run lifecycle state. All mutable state is guarded by mu;
// the run itself executes on a single goroutine.
type Orchestrator struct {
	store       scrape.Store
	ladder      *scrape.Ladder
	cache       *structure.Cache
	enricher    *enrich.Enricher
	archiver    *archive.Archiver
	publisher   publisher.Publisher
	broadcaster *progress.Broadcaster
	clock       scrape.Clock
	ids         scrape.IDGenerator
	logger      *zap.Logger
	cfg         Config

	mu        sync.Mutex
	running   bool
	stopping  bool
	jobID     string
	active    map[int64]struct{}
	results   []scrape.SourceResult
	stats     scrape.RunStats
	done      chan struct{}
	startedAt time.Time
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Store       scrape.Store
	Ladder      *scrape.Ladder
	Cache       *structure.Cache
	Enricher    *enrich.Enricher
	Archiver    *archive.Archiver
	Publisher   publisher.Publisher
	Broadcaster *progress.Broadcaster
	Clock       scrape.Clock
	IDs         scrape.IDGenerator
	Logger      *zap.Logger
}

// New constructs an Orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pub := deps.Publisher
	if pub == nil {
		pub = publisher.Noop{}
	}
	archiver := deps.Archiver
	if archiver == nil {
		archiver = archive.NewArchiver(nil, deps.Clock, logger)
	}
	return &Orchestrator{
		store:       deps.Store,
		ladder:      deps.Ladder,
		cache:       deps.Cache,
		enricher:    deps.Enricher,
		archiver:    archiver,
		publisher:   pub,
		broadcaster: deps.Broadcaster,
		clock:       deps.Clock,
		ids:         deps.IDs,
		logger:      logger.Named("orchestrator"),
		cfg:         cfg,
		active:      make(map[int64]struct{}),
	}
}

// StartRun launches a run on its own goroutine. At most one run is active
// process-wide; a second start returns scrape.ErrAlreadyRunning.
func (o *Orchestrator) StartRun() (string, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return "", scrape.ErrAlreadyRunning
	}
	jobID, err := o.ids.NewID()
	if err != nil {
		o.mu.Unlock()
		return "", fmt.Errorf("generate job id: %w", err)
	}
	o.running = true
	o.stopping = false
	o.jobID = jobID
	o.results = nil
	o.stats = scrape.RunStats{}
	o.done = make(chan struct{})
	o.startedAt = o.clock.Now()
	done := o.done
	o.mu.Unlock()

	go func() {
		defer close(done)
		o.run(context.Background(), jobID)
	}()
	return jobID, nil
}

// StopRun requests a cooperative stop. The run exits at its next source or
// link boundary; in-flight network calls are not interrupted.
func (o *Orchestrator) StopRun() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return scrape.ErrNotRunning
	}
	o.stopping = true
	return nil
}

// Status reports whether a run is active and the per-source results so far.
func (o *Orchestrator) Status() (bool, []scrape.SourceResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	results := make([]scrape.SourceResult, len(o.results))
	copy(results, o.results)
	return o.running, results
}

// Done returns a channel closed when the current run finishes. Nil when no
// run was ever started.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

func (o *Orchestrator) stopRequested() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopping
}

func (o *Orchestrator) run(ctx context.Context, jobID string) {
	start := o.clock.Now()
	status := "completed"

	defer func() {
		o.mu.Lock()
		o.running = false
		o.stopping = false
		o.active = make(map[int64]struct{})
		o.ladder.OnEscalate = nil
		o.mu.Unlock()
		metrics.ObserveRun(status, o.clock.Now().Sub(start))
	}()

	defer func() {
		if rec := recover(); rec != nil {
			status = "failed"
			o.logger.Error("run panicked",
				zap.String("jobId", jobID), zap.Any("panic", rec))
			o.emit(jobID, progress.StageError, map[string]any{
				"error": fmt.Sprintf("panic: %v", rec),
			})
		}
	}()

	o.ladder.OnEscalate = func(url string, next scrape.Tier) {
		o.emit(jobID, progress.StageBotBypass, map[string]any{
			"url":    url,
			"tier":   next.Ordinal,
			"method": string(next.Method),
		})
	}

	sources, err := o.store.ListActiveSources(ctx)
	if err != nil {
		status = "failed"
		o.logger.Error("list active sources", zap.String("jobId", jobID), zap.Error(err))
		o.emit(jobID, progress.StageError, map[string]any{"error": err.Error()})
		return
	}

	for _, src := range sources {
		if src.Extraction != nil {
			o.cache.Seed(*src.Extraction)
		}
	}

	o.mu.Lock()
	o.stats.SourcesTotal = len(sources)
	o.mu.Unlock()

	o.emit(jobID, progress.StageJobStarted, map[string]any{
		"sources": len(sources),
	})

	for _, src := range sources {
		if o.stopRequested() {
			status = "stopped"
			break
		}
		if !o.claimSource(src.ID) {
			o.logger.Warn("source already in flight, skipping",
				zap.Int64("sourceId", src.ID))
			continue
		}

		result := o.processSource(ctx, jobID, src)
		o.releaseSource(src.ID)
		o.recordResult(result)

		success := !result.Failed
		if err := o.store.UpdateSourceLastScraped(ctx, src.ID, o.clock.Now(), success); err != nil {
			o.logger.Error("update source timestamps",
				zap.Int64("sourceId", src.ID), zap.Error(err))
		}
		o.persistDetectedConfig(ctx, src)

		o.emit(jobID, progress.StageSourceCompleted, map[string]any{
			"source":          src.Name,
			"tier":            result.Tier,
			"articlesAdded":   result.ArticlesAdded,
			"articlesSkipped": result.ArticlesSkipped,
			"failed":          result.Failed,
			"protected":       result.Protected,
		})
	}

	o.mu.Lock()
	stats := o.stats
	results := make([]scrape.SourceResult, len(o.results))
	copy(results, o.results)
	o.mu.Unlock()

	o.emit(jobID, progress.StageJobCompleted, map[string]any{
		"status":          status,
		"sourcesTotal":    stats.SourcesTotal,
		"sourcesFailed":   stats.SourcesFailed,
		"articlesAdded":   stats.ArticlesAdded,
		"articlesSkipped": stats.ArticlesSkipped,
	})

	o.publishSummary(ctx, RunSummary{
		JobID:      jobID,
		StartedAt:  start,
		FinishedAt: o.clock.Now(),
		Status:     status,
		Stats:      stats,
		Sources:    results,
	})

	o.logger.Info("run finished",
		zap.String("jobId", jobID),
		zap.String("status", status),
		zap.Int("articlesAdded", stats.ArticlesAdded),
		zap.Int("sourcesFailed", stats.SourcesFailed))
}

// processSource scrapes one source end to end. Every failure is captured in
// the result; nothing propagates out to abort the run, panics included.
func (o *Orchestrator) processSource(ctx context.Context, jobID string, src scrape.Source) (result scrape.SourceResult) {
	start := o.clock.Now()
	result = scrape.SourceResult{
		SourceID:   src.ID,
		SourceName: src.Name,
		URL:        src.URL,
	}
	defer func() {
		if rec := recover(); rec != nil {
			result.Failed = true
			result.Errors = append(result.Errors, fmt.Sprintf("panic: %v", rec))
			o.logger.Error("source processing panicked",
				zap.String("source", src.Name), zap.Any("panic", rec))
		}
		result.Duration = o.clock.Now().Sub(start)
	}()

	o.emit(jobID, progress.StageSourceStarted, map[string]any{
		"source": src.Name,
		"url":    src.URL,
	})

	listing, err := o.ladder.Fetch(ctx, src.URL, scrape.KindListing, src.Extraction)
	if err != nil {
		result.Failed = true
		result.Protected = errors.Is(err, scrape.ErrSourceProtected)
		result.Errors = append(result.Errors, err.Error())
		o.logger.Warn("listing fetch failed",
			zap.String("source", src.Name), zap.Error(err))
		return result
	}
	result.Tier = listing.Tier
	o.archiver.SavePage(ctx, src.URL, []byte(listing.HTML))

	links, err := extract.ExtractLinks(listing.HTML, src.URL, o.cfg.LinkPolicy)
	if err != nil {
		result.Failed = true
		result.Errors = append(result.Errors, fmt.Sprintf("extract links: %v", err))
		return result
	}
	result.LinksFound = len(links)
	if len(links) == 0 {
		result.Failed = true
		result.Errors = append(result.Errors, "no candidate links found")
		return result
	}

	for _, link := range links {
		if o.stopRequested() {
			break
		}
		if o.cfg.MaxArticlesPerSource > 0 && result.ArticlesAdded >= o.cfg.MaxArticlesPerSource {
			break
		}
		added, err := o.processLink(ctx, jobID, src, link)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", link.URL, err))
			o.skipArticle(jobID, src, link.URL, err.Error())
			result.ArticlesSkipped++
		case added:
			result.ArticlesAdded++
		default:
			result.ArticlesSkipped++
		}
	}

	o.mu.Lock()
	o.stats.ArticlesAdded += result.ArticlesAdded
	o.stats.ArticlesSkipped += result.ArticlesSkipped
	o.mu.Unlock()

	return result
}

// processLink fetches, extracts, validates, enriches, and persists one
// candidate article. Returns (false, nil) for benign skips such as
// already-stored URLs.
func (o *Orchestrator) processLink(ctx context.Context, jobID string, src scrape.Source, link scrape.CandidateLink) (bool, error) {
	exists, err := o.store.ArticleExistsByURL(ctx, link.URL)
	if err != nil {
		return false, fmt.Errorf("existence check: %w", err)
	}
	if exists {
		o.skipArticle(jobID, src, link.URL, "already stored")
		metrics.ObserveArticle("duplicate")
		return false, nil
	}

	o.emit(jobID, progress.StageArticleProcessing, map[string]any{
		"source": src.Name,
		"url":    link.URL,
	})

	domain := scrape.NormalizeDomain(link.URL)
	cached, hadConfig := o.cache.Get(domain)
	var cfgHint *scrape.ExtractionConfig
	if hadConfig {
		cfgHint = &cached
	}

	page, err := o.ladder.Fetch(ctx, link.URL, scrape.KindArticle, cfgHint)
	if err != nil {
		return false, fmt.Errorf("fetch article: %w", err)
	}
	o.archiver.SavePage(ctx, link.URL, []byte(page.HTML))

	cfg := o.cache.Detect(ctx, link.URL, page.HTML)
	if !hadConfig {
		o.emit(jobID, progress.StageStructureDetection, map[string]any{
			"domain":     cfg.Domain,
			"confidence": cfg.Confidence,
		})
	}

	article, err := extract.ExtractArticle(page.HTML, link.URL, cfg)
	if err != nil {
		return false, fmt.Errorf("extract article: %w", err)
	}
	article, err = extract.ValidateArticle(article)
	if err != nil {
		metrics.ObserveArticle("rejected")
		return false, fmt.Errorf("validate article: %w", err)
	}

	enrichment := o.enricher.Enrich(ctx, article)

	record := scrape.Article{
		SourceID:         src.ID,
		URL:              article.URL,
		Title:            article.Title,
		Content:          article.Content,
		Author:           article.Author,
		Published:        article.Published,
		ExtractionMethod: article.Method,
		Confidence:       article.Confidence,
		Relevant:         enrichment.Relevant,
		Severity:         enrichment.Severity,
		Entities:         enrichment.Entities,
		ScrapedAt:        o.clock.Now(),
	}
	id, err := o.store.InsertArticle(ctx, record)
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}
	if !enrichment.Entities.Empty() {
		if err := o.store.LinkEntities(ctx, id, enrichment.Entities); err != nil {
			o.logger.Warn("link entities",
				zap.Int64("articleId", id), zap.Error(err))
		}
	}

	metrics.ObserveArticle("added")
	o.emit(jobID, progress.StageArticleAdded, map[string]any{
		"source":   src.Name,
		"url":      article.URL,
		"title":    article.Title,
		"relevant": enrichment.Relevant,
		"severity": enrichment.Severity.Level,
	})
	return true, nil
}

// persistDetectedConfig writes a freshly detected selector set back to the
// source when this run produced one the store does not have yet.
func (o *Orchestrator) persistDetectedConfig(ctx context.Context, src scrape.Source) {
	domain := scrape.NormalizeDomain(src.URL)
	cfg, ok := o.cache.Get(domain)
	if !ok {
		return
	}
	if src.Extraction != nil && src.Extraction.DetectedAt.Equal(cfg.DetectedAt) {
		return
	}
	if err := o.store.UpsertExtractionConfig(ctx, src.ID, cfg); err != nil {
		o.logger.Warn("persist extraction config",
			zap.Int64("sourceId", src.ID),
			zap.String("domain", domain),
			zap.Error(err))
	}
}

func (o *Orchestrator) claimSource(id int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.active[id]; ok {
		return false
	}
	o.active[id] = struct{}{}
	return true
}

func (o *Orchestrator) releaseSource(id int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, id)
}

func (o *Orchestrator) recordResult(result scrape.SourceResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
	o.stats.SourcesProcessed++
	if result.Failed {
		o.stats.SourcesFailed++
	}
}

func (o *Orchestrator) skipArticle(jobID string, src scrape.Source, url, reason string) {
	o.emit(jobID, progress.StageArticleSkipped, map[string]any{
		"source": src.Name,
		"url":    url,
		"reason": reason,
	})
}

func (o *Orchestrator) emit(jobID string, stage progress.Stage, data map[string]any) {
	if o.broadcaster == nil {
		return
	}
	key := progress.Key{JobType: o.cfg.JobType, Audience: o.cfg.Audience}
	ev := progress.Event{
		JobID: jobID,
		Type:  o.cfg.JobType,
		Event: stage,
		Data:  data,
		TS:    o.clock.Now(),
	}
	if err := o.broadcaster.Publish(key, ev); err != nil {
		o.logger.Warn("publish progress event",
			zap.String("stage", string(stage)), zap.Error(err))
	}
}

func (o *Orchestrator) publishSummary(ctx context.Context, summary RunSummary) {
	if o.cfg.SummaryTopic == "" {
		return
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.SummaryTopic, summary); err != nil {
		o.logger.Warn("publish run summary",
			zap.String("jobId", summary.JobID), zap.Error(err))
	}
}
