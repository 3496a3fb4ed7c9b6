package extract

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode"

	"github.com/signalharvest/harvester/internal/scrape"
)

// MinContentLength is the shortest body accepted as a real article.
const MinContentLength = 200

// Rejection reasons surfaced to the orchestrator's skip accounting.
var (
	ErrContentTooShort = errors.New("content below minimum length")
	ErrCaptchaContent  = errors.New("captcha or challenge text in article")
	ErrInvalidTitle    = errors.New("no usable title")
)

// captchaPhrases reject an article outright, regardless of title or length.
var captchaPhrases = []string{
	"detected unusual activity",
	"unusual activity from your",
	"verify you are human",
	"are you a robot",
	"complete the captcha",
	"enable javascript and cookies to continue",
	"access to this page has been denied",
}

// defaultTitles are boilerplate values extraction sometimes lands on.
var defaultTitles = []string{
	"untitled", "home", "404", "not found", "page not found",
	"access denied", "just a moment", "attention required", "error",
}

// ValidateArticle gates extracted content before enrichment. When the title
// is unusable it synthesizes one from the URL's final path segment; an
// article that still has no title is rejected rather than stored blank.
// The returned article has the (possibly synthesized) title applied.
func ValidateArticle(article scrape.ExtractedArticle) (scrape.ExtractedArticle, error) {
	lowerContent := strings.ToLower(article.Content)
	lowerTitle := strings.ToLower(article.Title)
	for _, phrase := range captchaPhrases {
		if strings.Contains(lowerContent, phrase) || strings.Contains(lowerTitle, phrase) {
			return article, fmt.Errorf("%q: %w", phrase, ErrCaptchaContent)
		}
	}

	if len(strings.TrimSpace(article.Content)) < MinContentLength {
		return article, fmt.Errorf("%d chars: %w", len(article.Content), ErrContentTooShort)
	}

	if !usableTitle(article.Title) {
		synthesized := TitleFromURL(article.URL)
		if !usableTitle(synthesized) {
			return article, ErrInvalidTitle
		}
		article.Title = synthesized
	}

	return article, nil
}

func usableTitle(title string) bool {
	trimmed := strings.TrimSpace(title)
	if len(trimmed) < 3 {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, def := range defaultTitles {
		if lower == def {
			return false
		}
	}
	return true
}

// TitleFromURL derives a human-readable title from the final path segment:
// extension stripped, hyphens and underscores converted to spaces.
func TitleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segment := path.Base(strings.TrimSuffix(u.Path, "/"))
	if segment == "." || segment == "/" {
		return ""
	}
	if ext := path.Ext(segment); ext != "" && len(ext) <= 6 {
		segment = strings.TrimSuffix(segment, ext)
	}
	segment = strings.NewReplacer("-", " ", "_", " ").Replace(segment)
	words := strings.Fields(segment)
	if len(words) == 0 {
		return ""
	}
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	title := strings.Join(words, " ")
	if isNumericOnly(title) {
		return ""
	}
	return title
}

func isNumericOnly(s string) bool {
	for _, r := range s {
		if r != ' ' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
