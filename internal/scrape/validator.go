package scrape

import (
	"regexp"
	"strings"
)

// MinListingLinks is the minimum anchor count for a listing page to be
// considered a real link hub rather than an error or challenge page.
const MinListingLinks = 10

// Validation is the verdict of ValidateContent over one fetched page.
type Validation struct {
	IsValid         bool     `json:"is_valid"`
	IsErrorPage     bool     `json:"is_error_page"`
	LinkCount       int      `json:"link_count"`
	ErrorIndicators []string `json:"error_indicators,omitempty"`
	Confidence      float64  `json:"confidence"`
}

// errorMarkers are checked case-insensitively against the whole body.
// The set covers generic error pages plus the challenge interstitials of the
// common bot-defense vendors.
var errorMarkers = []string{
	"access denied",
	"403 forbidden",
	"404 not found",
	"page not found",
	"captcha",
	"verify you are human",
	"verifying you are human",
	"checking your browser",
	"detected unusual activity",
	"unusual traffic",
	"attention required",
	"just a moment...",
	"ddos protection by",
	"please enable javascript and cookies",
	"request blocked",
	"rate limit exceeded",
	"pardon our interruption",
}

var anchorPattern = regexp.MustCompile(`(?i)<a[\s>]`)

// ValidateContent inspects fetched HTML and decides whether it is usable,
// an error/challenge page, or too thin to trust. It performs no I/O.
func ValidateContent(html string, kind PageKind) Validation {
	lower := strings.ToLower(html)

	v := Validation{
		LinkCount: len(anchorPattern.FindAllStringIndex(html, -1)),
	}
	for _, marker := range errorMarkers {
		if strings.Contains(lower, marker) {
			v.ErrorIndicators = append(v.ErrorIndicators, marker)
		}
	}
	v.IsErrorPage = len(v.ErrorIndicators) > 0

	switch {
	case strings.TrimSpace(html) == "":
		v.IsValid = false
	case v.IsErrorPage:
		v.IsValid = false
	case kind == KindListing && v.LinkCount < MinListingLinks:
		v.IsValid = false
	default:
		v.IsValid = true
	}

	v.Confidence = confidence(v, kind, len(html))
	return v
}

// confidence blends link density with the absence of error markers. It is a
// heuristic in [0,1]; callers only compare it, never interpret it.
func confidence(v Validation, kind PageKind, bodyLen int) float64 {
	if bodyLen == 0 {
		return 0
	}
	score := 1.0
	score -= 0.3 * float64(len(v.ErrorIndicators))
	if kind == KindListing {
		density := float64(v.LinkCount) / float64(MinListingLinks)
		if density > 1 {
			density = 1
		}
		score -= 0.4 * (1 - density)
	} else if v.LinkCount == 0 && bodyLen < 512 {
		score -= 0.4
	}
	if score < 0 {
		return 0
	}
	return score
}
