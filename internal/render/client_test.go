package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalharvest/harvester/internal/scrape"
)

// fakeWorker writes a shell script that stands in for the worker binary.
func fakeWorker(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "renderworker")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestNewClientRequiresBinPath(t *testing.T) {
	_, err := NewClient(ClientConfig{}, nil)
	assert.Error(t, err)
}

func TestRenderSuccess(t *testing.T) {
	bin := fakeWorker(t, `echo '{"type":"article","html":"<html><body>rendered</body></html>","peakRssBytes":2048}'`)
	client, err := NewClient(ClientConfig{BinPath: bin}, nil)
	require.NoError(t, err)

	page, err := client.Render(context.Background(), "https://x.com/a", scrape.KindArticle, nil, 1)
	require.NoError(t, err)
	assert.Contains(t, page.HTML, "rendered")
	assert.Equal(t, int64(2048), page.PeakRSSBytes)
}

func TestRenderPassesEncodedRequest(t *testing.T) {
	out := filepath.Join(t.TempDir(), "payload")
	bin := fakeWorker(t, fmt.Sprintf(`printf %%s "$1" > %s
echo '{"type":"links","html":"<html></html>"}'`, out))
	client, err := NewClient(ClientConfig{BinPath: bin}, nil)
	require.NoError(t, err)

	_, err = client.Render(context.Background(), "https://x.com/list", scrape.KindListing, nil, 2)
	require.NoError(t, err)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	req, err := DecodeRequest(string(raw))
	require.NoError(t, err)
	assert.Equal(t, "https://x.com/list", req.URL)
	assert.False(t, req.IsArticlePage)
	assert.Equal(t, 2, req.Stealth)
}

func TestRenderWorkerErrorResult(t *testing.T) {
	bin := fakeWorker(t, `echo '{"error":"navigation","message":"challenge page persisted"}'`)
	client, err := NewClient(ClientConfig{BinPath: bin}, nil)
	require.NoError(t, err)

	_, err = client.Render(context.Background(), "https://x.com/a", scrape.KindArticle, nil, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "challenge page persisted")
}

func TestRenderIgnoresNoiseBeforeResult(t *testing.T) {
	bin := fakeWorker(t, `echo "DevTools listening on ws://127.0.0.1:9222"
echo '{"type":"article","html":"<html>ok</html>"}'`)
	client, err := NewClient(ClientConfig{BinPath: bin}, nil)
	require.NoError(t, err)

	page, err := client.Render(context.Background(), "https://x.com/a", scrape.KindArticle, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", page.HTML)
}

func TestRenderMalformedOutput(t *testing.T) {
	bin := fakeWorker(t, `echo "not json at all"`)
	client, err := NewClient(ClientConfig{BinPath: bin}, nil)
	require.NoError(t, err)

	_, err = client.Render(context.Background(), "https://x.com/a", scrape.KindArticle, nil, 1)
	assert.Error(t, err)
}

func TestRenderWorkerCrash(t *testing.T) {
	bin := fakeWorker(t, `echo "fatal: browser failed to start" >&2
exit 3`)
	client, err := NewClient(ClientConfig{BinPath: bin}, nil)
	require.NoError(t, err)

	_, err = client.Render(context.Background(), "https://x.com/a", scrape.KindArticle, nil, 1)
	assert.Error(t, err)
}

func TestRenderTimeout(t *testing.T) {
	bin := fakeWorker(t, `sleep 5
echo '{"type":"article","html":"late"}'`)
	client, err := NewClient(ClientConfig{BinPath: bin, Timeout: 100 * time.Millisecond}, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Render(context.Background(), "https://x.com/a", scrape.KindArticle, nil, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 3*time.Second)
}
