// Package archive persists raw fetched HTML to a blob store so extraction
// bugs can be replayed against the original page content.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/signalharvest/harvester/internal/hash/sha256"
	"github.com/signalharvest/harvester/internal/scrape"
)

// BlobStore writes an object and returns its URI. Implementations exist for
// GCS, the local filesystem, and process memory.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Noop discards everything. Used when archival is disabled.
type Noop struct{}

// PutObject discards the data and returns an empty URI.
func (Noop) PutObject(_ context.Context, _ string, _ string, _ io.Reader) (string, error) {
	return "", nil
}

// Archiver snapshots raw pages under domain/date/hash paths.
type Archiver struct {
	store  BlobStore
	hasher *sha256.Hasher
	clock  scrape.Clock
	logger *zap.Logger
}

// NewArchiver builds an Archiver. A nil store disables archival.
func NewArchiver(store BlobStore, clock scrape.Clock, logger *zap.Logger) *Archiver {
	if store == nil {
		store = Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		store:  store,
		hasher: sha256.New(),
		clock:  clock,
		logger: logger.Named("archive"),
	}
}

// SavePage stores the raw HTML of a fetched page and returns the blob URI.
// Archival failures are logged and swallowed so a storage outage never
// blocks the scrape pipeline.
func (a *Archiver) SavePage(ctx context.Context, rawURL string, html []byte) string {
	if len(html) == 0 {
		return ""
	}
	digest, err := a.hasher.Hash(html)
	if err != nil {
		a.logger.Warn("hash page content", zap.String("url", rawURL), zap.Error(err))
		return ""
	}

	domain := scrape.NormalizeDomain(rawURL)
	if domain == "" {
		domain = "unknown"
	}
	path := fmt.Sprintf("%s/%s/%s.html",
		domain,
		a.clock.Now().UTC().Format("2006/01/02"),
		digest[:16])

	uri, err := a.store.PutObject(ctx, path, "text/html; charset=utf-8", bytes.NewReader(html))
	if err != nil {
		a.logger.Warn("archive page",
			zap.String("url", rawURL),
			zap.String("path", path),
			zap.Error(err))
		return ""
	}
	return uri
}
