package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalharvest/harvester/internal/scrape"
)

func validArticle() scrape.ExtractedArticle {
	return scrape.ExtractedArticle{
		URL:     "https://news.example.com/news/breach-disclosed",
		Title:   "Breach Disclosed",
		Content: strings.Repeat("substantive reporting ", 20),
	}
}

func TestValidateArticleAccepts(t *testing.T) {
	article, err := ValidateArticle(validArticle())
	require.NoError(t, err)
	assert.Equal(t, "Breach Disclosed", article.Title)
}

func TestValidateArticleRejectsShortContent(t *testing.T) {
	a := validArticle()
	a.Content = "too short"
	_, err := ValidateArticle(a)
	assert.ErrorIs(t, err, ErrContentTooShort)
}

func TestValidateArticleRejectsCaptchaText(t *testing.T) {
	a := validArticle()
	a.Content += " Please verify you are human to continue."
	_, err := ValidateArticle(a)
	assert.ErrorIs(t, err, ErrCaptchaContent)

	b := validArticle()
	b.Title = "Are you a robot?"
	_, err = ValidateArticle(b)
	assert.ErrorIs(t, err, ErrCaptchaContent)
}

func TestValidateArticleSynthesizesTitleFromURL(t *testing.T) {
	a := validArticle()
	a.Title = "Page Not Found"
	a.URL = "https://news.example.com/news/grid-operator-reports-outage.html"

	article, err := ValidateArticle(a)
	require.NoError(t, err)
	assert.Equal(t, "Grid Operator Reports Outage", article.Title)
}

func TestValidateArticleRejectsWhenNoTitleRecoverable(t *testing.T) {
	a := validArticle()
	a.Title = ""
	a.URL = "https://news.example.com/2026/08/29/"

	_, err := ValidateArticle(a)
	assert.ErrorIs(t, err, ErrInvalidTitle)
}

func TestTitleFromURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://x.com/news/fed-raises-rates", "Fed Raises Rates"},
		{"https://x.com/posts/big_merger_announced/", "Big Merger Announced"},
		{"https://x.com/a/quarterly-results.html", "Quarterly Results"},
		{"https://x.com/p/12345", ""},
		{"https://x.com/", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, TitleFromURL(tc.in), tc.in)
	}
}
