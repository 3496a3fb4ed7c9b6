package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalharvest/harvester/internal/scrape"
)

func TestRequestRoundTrip(t *testing.T) {
	req := Request{
		URL:           "https://news.example.com/a",
		IsArticlePage: true,
		Config: &scrape.ExtractionConfig{
			Domain:          "news.example.com",
			TitleSelector:   "h1",
			ContentSelector: "article",
		},
		Stealth: 2,
	}

	payload, err := EncodeRequest(req)
	require.NoError(t, err)

	decoded, err := DecodeRequest(payload)
	require.NoError(t, err)
	assert.Equal(t, req.URL, decoded.URL)
	assert.True(t, decoded.IsArticlePage)
	assert.Equal(t, 2, decoded.Stealth)
	require.NotNil(t, decoded.Config)
	assert.Equal(t, "h1", decoded.Config.TitleSelector)
}

func TestDecodeRequestRejections(t *testing.T) {
	_, err := DecodeRequest("not base64!!!")
	assert.Error(t, err)

	// Valid base64, valid JSON, but no URL.
	payload, err := EncodeRequest(Request{})
	require.NoError(t, err)
	_, err = DecodeRequest(payload)
	assert.Error(t, err)
}

func TestDecodeResult(t *testing.T) {
	res, err := DecodeResult(`{"type":"article","html":"<html></html>","peakRssBytes":1024}`)
	require.NoError(t, err)
	assert.Equal(t, TypeArticle, res.Type)
	assert.False(t, res.Failed())
	assert.Equal(t, int64(1024), res.PeakRSSBytes)

	res, err = DecodeResult(`{"error":"navigation","message":"net::ERR_TIMED_OUT"}`)
	require.NoError(t, err)
	assert.True(t, res.Failed())

	_, err = DecodeResult("")
	assert.Error(t, err)
	_, err = DecodeResult("{}")
	assert.Error(t, err)
	_, err = DecodeResult("browser noise not json")
	assert.Error(t, err)
}
