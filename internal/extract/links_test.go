package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalharvest/harvester/internal/scrape"
)

const listingFixture = `<html><body>
<a href="/news/market-dip">Market dips</a>
<a href="/news/market-dip#comments">Market dips (comments)</a>
<a href="https://news.example.com/news/rate-decision/">Rate decision</a>
<a href="/story/outage-report">Outage report</a>
<a href="/tag/economy">economy tag</a>
<a href="/category/finance/news/weird">categorized</a>
<a href="https://twitter.com/news/share-this">tweet</a>
<a href="https://ads.doubleclick.net/news/click">ad</a>
<a href="mailto:tips@example.com">tips</a>
<a href="javascript:void(0)">noop</a>
<a href="#top">top</a>
<a href="/about/team">about</a>
<a href="https://partner.example.org/news/syndicated">partner piece</a>
</body></html>`

func candidateURLs(links []scrape.CandidateLink) []string {
	urls := make([]string, len(links))
	for i, l := range links {
		urls[i] = l.URL
	}
	return urls
}

func TestExtractLinksAppliesPolicy(t *testing.T) {
	links, err := ExtractLinks(listingFixture, "https://news.example.com/", DefaultLinkPolicy())
	require.NoError(t, err)

	urls := candidateURLs(links)
	assert.Contains(t, urls, "https://news.example.com/news/market-dip")
	assert.Contains(t, urls, "https://news.example.com/news/rate-decision")
	assert.Contains(t, urls, "https://news.example.com/story/outage-report")

	// Off-site article paths pass when they hit an include pattern.
	assert.Contains(t, urls, "https://partner.example.org/news/syndicated")

	assert.NotContains(t, urls, "https://news.example.com/tag/economy")
	assert.NotContains(t, urls, "https://news.example.com/category/finance/news/weird")
	assert.NotContains(t, urls, "https://news.example.com/about/team")
	for _, u := range urls {
		assert.NotContains(t, u, "twitter.com")
		assert.NotContains(t, u, "doubleclick.net")
	}
}

func TestExtractLinksDeduplicatesByNormalizedURL(t *testing.T) {
	links, err := ExtractLinks(listingFixture, "https://news.example.com/", DefaultLinkPolicy())
	require.NoError(t, err)

	seen := map[string]int{}
	for _, l := range links {
		seen[l.URL]++
	}
	// The fragment variant collapses onto the plain URL.
	assert.Equal(t, 1, seen["https://news.example.com/news/market-dip"])
}

func TestExtractLinksEmptyIncludeListStaysOnSite(t *testing.T) {
	policy := LinkPolicy{}
	links, err := ExtractLinks(listingFixture, "https://news.example.com/", policy)
	require.NoError(t, err)

	for _, l := range links {
		assert.Equal(t, "news.example.com", scrape.HostOf(l.URL), l.URL)
	}
	assert.Contains(t, candidateURLs(links), "https://news.example.com/tag/economy")
}

func TestExtractLinksCapturesAnchorText(t *testing.T) {
	links, err := ExtractLinks(listingFixture, "https://news.example.com/", DefaultLinkPolicy())
	require.NoError(t, err)

	byURL := map[string]string{}
	for _, l := range links {
		byURL[l.URL] = l.Text
	}
	assert.Equal(t, "Market dips", byURL["https://news.example.com/news/market-dip"])
}

func TestDomainBlocklist(t *testing.T) {
	b := newDomainBlocklist([]string{"facebook.com", "*.doubleclick.net", ".taboola.com", "  ", ""})
	require.NotNil(t, b)

	assert.True(t, b.IsBlocked("facebook.com"))
	assert.False(t, b.IsBlocked("notfacebook.com"))
	assert.True(t, b.IsBlocked("ads.doubleclick.net"))
	assert.True(t, b.IsBlocked("doubleclick.net"))
	assert.True(t, b.IsBlocked("cdn.taboola.com"))
	assert.False(t, b.IsBlocked("example.com"))

	assert.Nil(t, newDomainBlocklist(nil))
	assert.False(t, newDomainBlocklist(nil).IsBlocked("facebook.com"))
}
