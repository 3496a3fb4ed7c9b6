package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalharvest/harvester/internal/scrape"
)

func TestListActiveSourcesOrdersByPriority(t *testing.T) {
	s := NewStore()
	s.AddSource(scrape.Source{Name: "low", URL: "https://low.example.com", Priority: 1, Active: true})
	s.AddSource(scrape.Source{Name: "high", URL: "https://high.example.com", Priority: 10, Active: true})
	s.AddSource(scrape.Source{Name: "off", URL: "https://off.example.com", Priority: 99, Active: false})

	sources, err := s.ListActiveSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "high", sources[0].Name)
	assert.Equal(t, "low", sources[1].Name)
}

func TestInsertArticleEnforcesUniqueURL(t *testing.T) {
	s := NewStore()
	art := scrape.Article{URL: "https://example.com/a", Title: "A"}

	id, err := s.InsertArticle(context.Background(), art)
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = s.InsertArticle(context.Background(), art)
	assert.Error(t, err)

	exists, err := s.ArticleExistsByURL(context.Background(), art.URL)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUpdateSourceLastScraped(t *testing.T) {
	s := NewStore()
	id := s.AddSource(scrape.Source{Name: "n", URL: "https://example.com", Active: true})
	at := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.UpdateSourceLastScraped(context.Background(), id, at, false))
	require.NoError(t, s.UpdateSourceLastScraped(context.Background(), id, at.Add(time.Hour), false))

	src, ok := s.Source(id)
	require.True(t, ok)
	assert.Equal(t, 2, src.ConsecutiveFailures)
	assert.Nil(t, src.LastSuccessAt)

	require.NoError(t, s.UpdateSourceLastScraped(context.Background(), id, at.Add(2*time.Hour), true))
	src, _ = s.Source(id)
	assert.Equal(t, 0, src.ConsecutiveFailures)
	require.NotNil(t, src.LastSuccessAt)
	assert.Equal(t, at.Add(2*time.Hour), *src.LastSuccessAt)
}

func TestUpsertExtractionConfig(t *testing.T) {
	s := NewStore()
	id := s.AddSource(scrape.Source{Name: "n", URL: "https://example.com", Active: true})

	cfg := scrape.ExtractionConfig{Domain: "example.com", TitleSelector: "h1"}
	require.NoError(t, s.UpsertExtractionConfig(context.Background(), id, cfg))

	src, _ := s.Source(id)
	require.NotNil(t, src.Extraction)
	assert.Equal(t, "h1", src.Extraction.TitleSelector)

	assert.Error(t, s.UpsertExtractionConfig(context.Background(), 999, cfg))
}

func TestLinkEntities(t *testing.T) {
	s := NewStore()
	id, err := s.InsertArticle(context.Background(), scrape.Article{URL: "https://example.com/a"})
	require.NoError(t, err)

	payload := scrape.EntityPayload{Organizations: []string{"Example Corp"}}
	require.NoError(t, s.LinkEntities(context.Background(), id, payload))
	assert.Equal(t, payload, s.Entities(id))

	assert.Error(t, s.LinkEntities(context.Background(), 999, payload))
}
