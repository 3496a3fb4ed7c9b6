package classify

import (
	"sort"
	"strings"

	"github.com/signalharvest/harvester/internal/scrape"
)

// Severity levels in ascending order.
const (
	LevelLow      = "low"
	LevelMedium   = "medium"
	LevelHigh     = "high"
	LevelCritical = "critical"
)

// severityKeywords weight the incident vocabulary found in title or body.
// Title hits count double.
var severityKeywords = map[string]float64{
	"breach":        3,
	"ransomware":    3,
	"zero-day":      3,
	"exploited":     2.5,
	"exploit":       2,
	"attack":        2,
	"vulnerability": 2,
	"leak":          2,
	"compromised":   2,
	"outage":        1.5,
	"malware":       1.5,
	"phishing":      1.5,
	"incident":      1,
	"patch":         0.5,
	"advisory":      0.5,
}

// Scorer computes severity deterministically from the article text and its
// extracted entities, so scoring stays cheap, reproducible, and testable
// without a model call.
type Scorer struct{}

var _ scrape.SeverityScorer = Scorer{}

// NewScorer returns the default Scorer.
func NewScorer() Scorer {
	return Scorer{}
}

// Score blends keyword weight with entity density. The scale is 0-10.
func (Scorer) Score(article scrape.ExtractedArticle, entities scrape.EntityPayload) scrape.Severity {
	title := strings.ToLower(article.Title)
	content := strings.ToLower(article.Content)

	var score float64
	var matched []string
	for keyword, weight := range severityKeywords {
		hit := false
		if strings.Contains(title, keyword) {
			score += weight * 2
			hit = true
		}
		if strings.Contains(content, keyword) {
			score += weight
			hit = true
		}
		if hit {
			matched = append(matched, keyword)
		}
	}

	// Named organizations raise the stakes; generic keyword lists do not.
	score += 0.5 * float64(len(entities.Organizations))
	score += 0.25 * float64(len(entities.People)+len(entities.Locations))

	if score > 10 {
		score = 10
	}

	severity := scrape.Severity{
		Score: score,
		Level: levelFor(score),
	}
	if len(matched) > 0 {
		sort.Strings(matched)
		severity.Metadata = map[string]string{
			"matched_keywords": strings.Join(matched, ","),
		}
	}
	return severity
}

func levelFor(score float64) string {
	switch {
	case score >= 8:
		return LevelCritical
	case score >= 5:
		return LevelHigh
	case score >= 2:
		return LevelMedium
	default:
		return LevelLow
	}
}
