// Package memory provides an in-memory scrape.Store for tests and local
// development runs without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalharvest/harvester/internal/scrape"
)

// Store keeps sources and articles in process memory. Safe for concurrent
// use.
type Store struct {
	mu         sync.RWMutex
	sources    map[int64]*scrape.Source
	articles   map[int64]scrape.Article
	byURL      map[string]int64
	entities   map[int64]scrape.EntityPayload
	nextID     int64
	nextSource int64
}

var _ scrape.Store = (*Store)(nil)

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		sources:  make(map[int64]*scrape.Source),
		articles: make(map[int64]scrape.Article),
		byURL:    make(map[string]int64),
		entities: make(map[int64]scrape.EntityPayload),
	}
}

// AddSource registers a source and returns its assigned id.
func (s *Store) AddSource(src scrape.Source) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSource++
	src.ID = s.nextSource
	s.sources[src.ID] = &src
	return src.ID
}

// ListActiveSources returns active sources ordered by priority, highest
// first.
func (s *Store) ListActiveSources(_ context.Context) ([]scrape.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []scrape.Source
	for _, src := range s.sources {
		if src.Active {
			out = append(out, *src)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpsertExtractionConfig stores a detected selector set on its source.
func (s *Store) UpsertExtractionConfig(_ context.Context, sourceID int64, cfg scrape.ExtractionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[sourceID]
	if !ok {
		return fmt.Errorf("source %d not found", sourceID)
	}
	src.Extraction = &cfg
	return nil
}

// ArticleExistsByURL reports whether an article with the URL is stored.
func (s *Store) ArticleExistsByURL(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byURL[url]
	return ok, nil
}

// InsertArticle stores a new article, enforcing URL uniqueness.
func (s *Store) InsertArticle(_ context.Context, article scrape.Article) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byURL[article.URL]; ok {
		return 0, fmt.Errorf("article url %q already stored", article.URL)
	}
	s.nextID++
	article.ID = s.nextID
	s.articles[article.ID] = article
	s.byURL[article.URL] = article.ID
	return article.ID, nil
}

// UpdateSourceLastScraped records a scrape attempt's outcome on the source.
func (s *Store) UpdateSourceLastScraped(_ context.Context, sourceID int64, at time.Time, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[sourceID]
	if !ok {
		return fmt.Errorf("source %d not found", sourceID)
	}
	t := at
	src.LastScrapedAt = &t
	if success {
		src.LastSuccessAt = &t
		src.ConsecutiveFailures = 0
	} else {
		src.ConsecutiveFailures++
	}
	return nil
}

// LinkEntities attaches entities to a stored article.
func (s *Store) LinkEntities(_ context.Context, articleID int64, entities scrape.EntityPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[articleID]; !ok {
		return fmt.Errorf("article %d not found", articleID)
	}
	s.entities[articleID] = entities
	return nil
}

// Article returns a stored article by id.
func (s *Store) Article(id int64) (scrape.Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[id]
	return a, ok
}

// Source returns a stored source by id.
func (s *Store) Source(id int64) (scrape.Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	if !ok {
		return scrape.Source{}, false
	}
	return *src, true
}

// Entities returns the entities linked to an article.
func (s *Store) Entities(articleID int64) scrape.EntityPayload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entities[articleID]
}

// ArticleCount reports the number of stored articles.
func (s *Store) ArticleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.articles)
}
