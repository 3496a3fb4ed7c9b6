// Package render defines the typed request/response boundary between the
// pipeline and the isolated render worker process, plus the chromedp engine
// the worker binary runs. The worker receives a base64-encoded JSON payload
// and answers with exactly one JSON line on stdout; stderr carries
// diagnostics only.
package render

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/signalharvest/harvester/internal/scrape"
)

// ResultType tags a successful worker result.
type ResultType string

// Result types emitted by the worker.
const (
	TypeLinks   ResultType = "links"
	TypeArticle ResultType = "article"
)

// Request is the worker input.
type Request struct {
	URL           string                   `json:"url"`
	IsArticlePage bool                     `json:"isArticlePage"`
	Config        *scrape.ExtractionConfig `json:"scrapingConfig,omitempty"`
	Stealth       int                      `json:"stealth"`
}

// Result is the single line the worker writes to stdout. Error is set
// instead of Type/HTML when rendering failed.
type Result struct {
	Type         ResultType `json:"type,omitempty"`
	HTML         string     `json:"html,omitempty"`
	Error        string     `json:"error,omitempty"`
	Message      string     `json:"message,omitempty"`
	PeakRSSBytes int64      `json:"peakRssBytes,omitempty"`
}

// Failed reports whether the worker produced an error result.
func (r Result) Failed() bool {
	return r.Error != ""
}

// EncodeRequest serializes a Request for the worker command line.
func EncodeRequest(req Request) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal render request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeRequest parses the worker's command-line payload.
func DecodeRequest(payload string) (Request, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return Request{}, fmt.Errorf("decode render payload: %w", err)
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, fmt.Errorf("unmarshal render request: %w", err)
	}
	if req.URL == "" {
		return Request{}, fmt.Errorf("render request missing url")
	}
	return req, nil
}

// DecodeResult parses the worker's stdout. The caller must treat a missing
// or malformed line as a worker failure.
func DecodeResult(line string) (Result, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Result{}, fmt.Errorf("empty render worker output")
	}
	var res Result
	if err := json.Unmarshal([]byte(line), &res); err != nil {
		return Result{}, fmt.Errorf("unmarshal render result: %w", err)
	}
	if res.Error == "" && res.Type == "" {
		return Result{}, fmt.Errorf("render result missing type")
	}
	return res, nil
}

// ErrorResult wraps an engine failure as a serializable Result.
func ErrorResult(stage string, err error) Result {
	return Result{Error: stage, Message: err.Error()}
}
