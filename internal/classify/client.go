// Package classify implements the external classification collaborator: an
// OpenAI-compatible chat-completions client used for structure detection,
// relevance classification, and entity extraction, plus the local severity
// scorer applied to extracted entities.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/signalharvest/harvester/internal/metrics"
	"github.com/signalharvest/harvester/internal/scrape"
)

// Config holds the completion API settings.
type Config struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// Client talks to an OpenAI-compatible completion endpoint. Every call is
// fallible and seconds-slow; callers must downgrade failures, never abort.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

var _ scrape.Classifier = (*Client)(nil)

// NewClient builds a Client from configuration.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" || cfg.Model == "" {
		return nil, fmt.Errorf("classifier endpoint and model are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

const structurePrompt = `You analyze article pages and return CSS selectors.
Respond with a single JSON object:
{"title": "...", "content": "...", "author": "...", "date": "...", "confidence": 0.0}
Every value must be a CSS element selector (tag, class, id, or attribute form),
never the literal text content of the page. Do not use :contains() or other
non-standard pseudo-selectors. Use "" for fields you cannot determine.`

// DetectStructure asks the model for the selector set of an article page.
func (c *Client) DetectStructure(ctx context.Context, html, url string) (scrape.SelectorSuggestion, error) {
	user := fmt.Sprintf("Page URL: %s\n\nHTML excerpt:\n%s", url, html)
	raw, err := c.complete(ctx, "detect_structure", structurePrompt, user)
	if err != nil {
		return scrape.SelectorSuggestion{}, err
	}
	var sug scrape.SelectorSuggestion
	if err := json.Unmarshal([]byte(raw), &sug); err != nil {
		return scrape.SelectorSuggestion{}, fmt.Errorf("parse structure response: %w", err)
	}
	return sug, nil
}

const relevancePrompt = `You decide whether a news article is relevant to the
monitored topics. Respond with a single JSON object: {"relevant": true|false}.`

// ClassifyRelevance asks the model whether the article is on-topic.
func (c *Client) ClassifyRelevance(ctx context.Context, title, content string) (bool, error) {
	user := fmt.Sprintf("Title: %s\n\nContent:\n%s", title, truncate(content, 4000))
	raw, err := c.complete(ctx, "classify_relevance", relevancePrompt, user)
	if err != nil {
		return false, err
	}
	var verdict struct {
		Relevant bool `json:"relevant"`
	}
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return false, fmt.Errorf("parse relevance response: %w", err)
	}
	return verdict.Relevant, nil
}

const entitiesPrompt = `You extract named entities from a news article.
Respond with a single JSON object:
{"organizations": [], "people": [], "locations": [], "keywords": []}
Each field is an array of strings. Omit duplicates.`

// ExtractEntities asks the model for the article's named entities.
func (c *Client) ExtractEntities(ctx context.Context, title, content, url string) (scrape.EntityPayload, error) {
	user := fmt.Sprintf("URL: %s\nTitle: %s\n\nContent:\n%s", url, title, truncate(content, 4000))
	raw, err := c.complete(ctx, "extract_entities", entitiesPrompt, user)
	if err != nil {
		return scrape.EntityPayload{}, err
	}
	var payload scrape.EntityPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return scrape.EntityPayload{}, fmt.Errorf("parse entities response: %w", err)
	}
	return payload, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// complete runs one chat completion and returns the model's message content
// with any markdown code fencing stripped.
func (c *Client) complete(ctx context.Context, op, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new completion request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveClassifierCall(op, "error")
		return "", fmt.Errorf("%s request: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		metrics.ObserveClassifierCall(op, "error")
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%s: %s: %s", op, resp.Status, strings.TrimSpace(string(snippet)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.ObserveClassifierCall(op, "error")
		return "", fmt.Errorf("decode %s response: %w", op, err)
	}
	if len(parsed.Choices) == 0 {
		metrics.ObserveClassifierCall(op, "error")
		return "", fmt.Errorf("%s: empty completion response", op)
	}

	metrics.ObserveClassifierCall(op, "ok")
	return stripFences(parsed.Choices[0].Message.Content), nil
}

// stripFences removes a ```json ... ``` wrapper models add despite the
// prompt.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
