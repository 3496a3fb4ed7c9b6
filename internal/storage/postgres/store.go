// Package postgres provides the Postgres-backed persistence implementation.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/signalharvest/harvester/internal/scrape"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of pgxpool.Pool the store uses; pgxmock satisfies
// it so every query path is testable without a live database.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements scrape.Store against Postgres.
type Store struct {
	pool querier
}

var _ scrape.Store = (*Store)(nil)

// NewStore connects a pool using the provided config.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for
// testing).
func NewStoreWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// ListActiveSources returns every active source in priority order, highest
// first, with its cached extraction config when one is persisted.
func (s *Store) ListActiveSources(ctx context.Context) ([]scrape.Source, error) {
	query := `
SELECT id, name, url, category, priority, active,
	last_scraped_at, last_success_at, consecutive_failures, extraction_config
FROM sources
WHERE active
ORDER BY priority DESC, id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}
	defer rows.Close()

	var sources []scrape.Source
	for rows.Next() {
		var (
			src       scrape.Source
			configRaw []byte
		)
		if err := rows.Scan(
			&src.ID, &src.Name, &src.URL, &src.Category, &src.Priority,
			&src.Active, &src.LastScrapedAt, &src.LastSuccessAt,
			&src.ConsecutiveFailures, &configRaw,
		); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if len(configRaw) > 0 {
			var cfg scrape.ExtractionConfig
			if err := json.Unmarshal(configRaw, &cfg); err != nil {
				return nil, fmt.Errorf("unmarshal extraction config for source %d: %w", src.ID, err)
			}
			src.Extraction = &cfg
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return sources, nil
}

// UpsertExtractionConfig persists a detected selector set on its source.
func (s *Store) UpsertExtractionConfig(ctx context.Context, sourceID int64, cfg scrape.ExtractionConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal extraction config: %w", err)
	}
	query := `UPDATE sources SET extraction_config = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, sourceID, raw)
	if err != nil {
		return fmt.Errorf("upsert extraction config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %d not found", sourceID)
	}
	return nil
}

// ArticleExistsByURL reports whether an article with the URL is stored.
func (s *Store) ArticleExistsByURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM articles WHERE url = $1)`
	if err := s.pool.QueryRow(ctx, query, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("check article existence: %w", err)
	}
	return exists, nil
}

// InsertArticle stores a new article row and returns its id.
func (s *Store) InsertArticle(ctx context.Context, article scrape.Article) (int64, error) {
	severityRaw, err := json.Marshal(article.Severity)
	if err != nil {
		return 0, fmt.Errorf("marshal severity: %w", err)
	}
	query := `
INSERT INTO articles (
	source_id, url, title, content, author, published,
	extraction_method, confidence, relevant, severity, scraped_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id`

	var id int64
	err = s.pool.QueryRow(ctx, query,
		article.SourceID,
		article.URL,
		article.Title,
		article.Content,
		article.Author,
		article.Published,
		article.ExtractionMethod,
		article.Confidence,
		article.Relevant,
		severityRaw,
		article.ScrapedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert article: %w", err)
	}
	return id, nil
}

// UpdateSourceLastScraped records the outcome of a scrape attempt. Success
// resets the consecutive-failure counter; failure increments it.
func (s *Store) UpdateSourceLastScraped(ctx context.Context, sourceID int64, at time.Time, success bool) error {
	var query string
	if success {
		query = `
UPDATE sources
SET last_scraped_at = $2, last_success_at = $2, consecutive_failures = 0
WHERE id = $1`
	} else {
		query = `
UPDATE sources
SET last_scraped_at = $2, consecutive_failures = consecutive_failures + 1
WHERE id = $1`
	}
	tag, err := s.pool.Exec(ctx, query, sourceID, at)
	if err != nil {
		return fmt.Errorf("update source last scraped: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %d not found", sourceID)
	}
	return nil
}

// LinkEntities attaches extracted entities to a stored article. Rows are
// written to the article_entities join table as (kind, value) pairs.
func (s *Store) LinkEntities(ctx context.Context, articleID int64, entities scrape.EntityPayload) error {
	if entities.Empty() {
		return nil
	}
	kinds, values := flattenEntities(entities)
	query := `
INSERT INTO article_entities (article_id, kind, value)
SELECT $1, kind, value
FROM unnest($2::text[], $3::text[]) AS t(kind, value)
ON CONFLICT DO NOTHING`
	if _, err := s.pool.Exec(ctx, query, articleID, kinds, values); err != nil {
		return fmt.Errorf("link entities: %w", err)
	}
	return nil
}

func flattenEntities(entities scrape.EntityPayload) (kinds, values []string) {
	add := func(kind string, items []string) {
		for _, item := range items {
			kinds = append(kinds, kind)
			values = append(values, item)
		}
	}
	add("organization", entities.Organizations)
	add("person", entities.People)
	add("location", entities.Locations)
	add("keyword", entities.Keywords)
	return kinds, values
}
