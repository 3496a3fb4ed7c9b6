// Package collyfetcher implements the lightweight escalation tiers using the
// Colly collector, one HTTP transport per browser profile so each tier
// presents a stable TLS fingerprint and header set.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/signalharvest/harvester/internal/scrape"
)

// Config controls collector behavior shared by every profile.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int
}

const defaultMaxBodyBytes = 10 << 20

// Fetcher implements scrape.Fetcher using Colly.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector

	mu         sync.Mutex
	transports map[string]http.RoundTripper
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.MaxBodySize = cfg.MaxBodyBytes
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		transports:    make(map[string]http.RoundTripper),
	}
}

// Fetch executes a single GET with the tier's browser profile applied.
func (f *Fetcher) Fetch(ctx context.Context, request scrape.FetchRequest) (scrape.FetchResult, error) {
	var (
		result   scrape.FetchResult
		fetchErr error
	)
	start := time.Now()

	collector := f.baseCollector.Clone()
	collector.UserAgent = request.Profile.UserAgent
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transportFor(request.Profile))

	collector.OnRequest(func(r *colly.Request) {
		for key, value := range request.Profile.Headers {
			r.Headers.Set(key, value)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		result = scrape.FetchResult{
			URL:        request.URL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			result.StatusCode = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(request.URL)
	}()

	select {
	case <-ctx.Done():
		return scrape.FetchResult{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return scrape.FetchResult{}, fmt.Errorf("visit %s: %w", request.URL, err)
		}
		if fetchErr != nil {
			return scrape.FetchResult{}, fmt.Errorf("fetch %s: %w", request.URL, fetchErr)
		}
		return result, nil
	}
}

// transportFor returns the pooled transport for one profile, creating it on
// first use so connection reuse never crosses fingerprints.
func (f *Fetcher) transportFor(profile scrape.ClientProfile) http.RoundTripper {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.transports[profile.Name]; ok {
		return t
	}
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       profile.TLS.Config(),
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
	}
	f.transports[profile.Name] = t
	return t
}
