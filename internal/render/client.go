package render

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/signalharvest/harvester/internal/metrics"
	"github.com/signalharvest/harvester/internal/scrape"
)

// ClientConfig controls worker invocation.
type ClientConfig struct {
	// BinPath is the render worker executable.
	BinPath string
	// Timeout bounds one invocation end to end, including browser startup.
	Timeout time.Duration
}

// Client launches one worker process per render so browser memory is always
// reclaimed by OS process exit. It implements scrape.Renderer.
type Client struct {
	cfg    ClientConfig
	logger *zap.Logger
}

// NewClient builds a Client.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg.BinPath == "" {
		return nil, errors.New("render worker binary path is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, logger: logger}, nil
}

// Render serializes the request, runs the worker, and deserializes its single
// stdout line. Missing or malformed output is a worker failure the ladder
// treats like any other failed tier.
func (c *Client) Render(ctx context.Context, url string, kind scrape.PageKind, cfg *scrape.ExtractionConfig, stealth int) (scrape.RenderedPage, error) {
	payload, err := EncodeRequest(Request{
		URL:           url,
		IsArticlePage: kind == scrape.KindArticle,
		Config:        cfg,
		Stealth:       stealth,
	})
	if err != nil {
		return scrape.RenderedPage{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, c.cfg.BinPath, payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	c.drainDiagnostics(url, &stderr)

	if runCtx.Err() != nil {
		metrics.ObserveRenderWorker("timeout", 0)
		return scrape.RenderedPage{}, fmt.Errorf("render worker timed out for %s: %w", url, runCtx.Err())
	}

	result, decodeErr := c.lastResultLine(&stdout)
	if decodeErr != nil {
		metrics.ObserveRenderWorker("malformed", 0)
		if runErr != nil {
			return scrape.RenderedPage{}, fmt.Errorf("render worker failed for %s: %w", url, runErr)
		}
		return scrape.RenderedPage{}, fmt.Errorf("render worker output for %s: %w", url, decodeErr)
	}
	if result.Failed() {
		metrics.ObserveRenderWorker("error", result.PeakRSSBytes)
		return scrape.RenderedPage{}, fmt.Errorf("render worker %s for %s: %s", result.Error, url, result.Message)
	}

	metrics.ObserveRenderWorker("ok", result.PeakRSSBytes)
	return scrape.RenderedPage{
		HTML:         result.HTML,
		PeakRSSBytes: result.PeakRSSBytes,
	}, nil
}

// lastResultLine scans stdout for the final non-empty line. The worker only
// ever prints one, but a misbehaving browser flag can leak noise ahead of it.
func (c *Client) lastResultLine(stdout *bytes.Buffer) (Result, error) {
	var last string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 64<<20)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("scan worker output: %w", err)
	}
	return DecodeResult(last)
}

func (c *Client) drainDiagnostics(url string, stderr *bytes.Buffer) {
	if stderr.Len() == 0 {
		return
	}
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			c.logger.Debug("render worker", zap.String("url", url), zap.String("line", line))
		}
	}
}
