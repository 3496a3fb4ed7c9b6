package classify

import (
	"context"
	"errors"

	"github.com/signalharvest/harvester/internal/scrape"
)

// ErrUnavailable is returned by Unavailable for every call.
var ErrUnavailable = errors.New("classifier not configured")

// Unavailable stands in when no classifier endpoint is configured. Callers
// already treat classifier errors as soft failures, so structure detection
// falls back to heuristic selectors and enrichment is skipped.
type Unavailable struct{}

var _ scrape.Classifier = Unavailable{}

func (Unavailable) DetectStructure(context.Context, string, string) (scrape.SelectorSuggestion, error) {
	return scrape.SelectorSuggestion{}, ErrUnavailable
}

func (Unavailable) ClassifyRelevance(context.Context, string, string) (bool, error) {
	return false, ErrUnavailable
}

func (Unavailable) ExtractEntities(context.Context, string, string, string) (scrape.EntityPayload, error) {
	return scrape.EntityPayload{}, ErrUnavailable
}
