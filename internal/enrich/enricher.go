// Package enrich annotates validated articles with relevance, named
// entities, and a severity score. Enrichment never discards an article:
// classification failures degrade to an unannotated record.
package enrich

import (
	"context"

	"go.uber.org/zap"

	"github.com/signalharvest/harvester/internal/scrape"
)

// Result carries the enrichment metadata attached to a persisted article.
type Result struct {
	Relevant bool
	Entities scrape.EntityPayload
	Severity scrape.Severity
}

// Enricher runs the relevance -> entities -> severity sequence against the
// classification collaborator and the local scorer.
type Enricher struct {
	classifier scrape.Classifier
	scorer     scrape.SeverityScorer
	logger     *zap.Logger
}

// NewEnricher builds an Enricher. The logger may be nil.
func NewEnricher(classifier scrape.Classifier, scorer scrape.SeverityScorer, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		classifier: classifier,
		scorer:     scorer,
		logger:     logger.Named("enrich"),
	}
}

// Enrich classifies the article and, when relevant, extracts entities and
// scores severity. Every failure path returns a usable Result so the caller
// can persist the article regardless.
func (e *Enricher) Enrich(ctx context.Context, art scrape.ExtractedArticle) Result {
	unscored := Result{Severity: scrape.Severity{Level: scrape.SeverityNone}}

	relevant, err := e.classifier.ClassifyRelevance(ctx, art.Title, art.Content)
	if err != nil {
		e.logger.Warn("relevance classification failed, storing unannotated",
			zap.String("url", art.URL),
			zap.Error(err))
		return unscored
	}
	if !relevant {
		return unscored
	}

	res := Result{Relevant: true}

	entities, err := e.classifier.ExtractEntities(ctx, art.Title, art.Content, art.URL)
	if err != nil {
		e.logger.Warn("entity extraction failed",
			zap.String("url", art.URL),
			zap.Error(err))
	} else {
		res.Entities = entities
	}

	res.Severity = e.scorer.Score(art, res.Entities)
	return res
}
