package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestSavePageBuildsDomainDatePath(t *testing.T) {
	store := NewMemoryStore()
	clock := fixedClock{t: time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC)}
	a := NewArchiver(store, clock, nil)

	uri := a.SavePage(context.Background(), "https://www.example.com/news/story", []byte("<html>body</html>"))

	require.NotEmpty(t, uri)
	assert.True(t, strings.HasPrefix(uri, "memory://example.com/2026/08/14/"), uri)
	assert.True(t, strings.HasSuffix(uri, ".html"))
	assert.Equal(t, 1, store.Len())
}

func TestSavePageIdenticalContentCollapses(t *testing.T) {
	store := NewMemoryStore()
	a := NewArchiver(store, fixedClock{t: time.Unix(1700000000, 0)}, nil)

	html := []byte("<html>same</html>")
	uri1 := a.SavePage(context.Background(), "https://example.com/a", html)
	uri2 := a.SavePage(context.Background(), "https://example.com/b", html)

	assert.Equal(t, uri1, uri2)
	assert.Equal(t, 1, store.Len())
}

func TestSavePageEmptyContentSkipped(t *testing.T) {
	store := NewMemoryStore()
	a := NewArchiver(store, fixedClock{t: time.Now()}, nil)

	assert.Empty(t, a.SavePage(context.Background(), "https://example.com/a", nil))
	assert.Equal(t, 0, store.Len())
}

func TestNoopStoreDisablesArchival(t *testing.T) {
	a := NewArchiver(nil, fixedClock{t: time.Now()}, nil)
	assert.Empty(t, a.SavePage(context.Background(), "https://example.com/a", []byte("x")))
}

func TestLocalStoreWritesFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(LocalConfig{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "example.com/2026/08/14/abc.html", "text/html", strings.NewReader("<html/>"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"))

	content, err := os.ReadFile(filepath.Join(dir, "example.com/2026/08/14/abc.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html/>", string(content))
}

func TestLocalStoreRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(LocalConfig{BaseDir: dir})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../outside.html", "text/html", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestNewLocalStoreRequiresBaseDir(t *testing.T) {
	_, err := NewLocalStore(LocalConfig{})
	assert.Error(t, err)
}
