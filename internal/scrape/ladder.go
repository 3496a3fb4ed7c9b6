package scrape

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/signalharvest/harvester/internal/metrics"
)

// LadderResult is a page that survived content validation, together with the
// tier that produced it.
type LadderResult struct {
	HTML       string
	Tier       int
	Rendered   bool
	Validation Validation
}

// Ladder walks the protection-bypass escalation table for one URL at a time.
// It is stateless across calls except for a per-domain record of the last
// tier that succeeded, used to bias where the next attempt starts.
type Ladder struct {
	fetcher  Fetcher
	renderer Renderer
	limiter  DomainLimiter
	logger   *zap.Logger

	// OnEscalate fires when a tier fails validation and the ladder moves up.
	// The orchestrator wires this to progress events; it must not block.
	OnEscalate func(url string, next Tier)

	mu       sync.Mutex
	lastTier map[string]int
}

// NewLadder builds a Ladder. The limiter may be nil (no per-domain throttle).
func NewLadder(fetcher Fetcher, renderer Renderer, limiter DomainLimiter, logger *zap.Logger) *Ladder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ladder{
		fetcher:  fetcher,
		renderer: renderer,
		limiter:  limiter,
		logger:   logger,
		lastTier: make(map[string]int),
	}
}

// Fetch escalates through the tier table until a fetch passes content
// validation or the terminal tier is reached. Escalation is monotone: a tier
// that fails is followed by the next ordinal, never a lower one. A timed-out
// tier counts as a failed validation, not a fatal error.
func (l *Ladder) Fetch(ctx context.Context, url string, kind PageKind, cfg *ExtractionConfig) (LadderResult, error) {
	domain := NormalizeDomain(url)
	start := l.startTier(domain)

	var lastVal Validation
	for ordinal := start; ordinal < TerminalTier; ordinal++ {
		if err := ctx.Err(); err != nil {
			return LadderResult{}, fmt.Errorf("ladder canceled: %w", err)
		}
		tier := TierAt(ordinal)

		html, rendered, err := l.attempt(ctx, tier, url, kind, cfg)
		if err != nil {
			l.logger.Debug("tier attempt failed",
				zap.String("url", url),
				zap.Int("tier", tier.Ordinal),
				zap.Error(err),
			)
			metrics.ObserveTierFetch(tier.Ordinal, "error")
			l.escalate(url, ordinal)
			continue
		}

		lastVal = ValidateContent(html, kind)
		if lastVal.IsValid {
			metrics.ObserveTierFetch(tier.Ordinal, "ok")
			l.recordSuccess(domain, ordinal)
			return LadderResult{
				HTML:       html,
				Tier:       tier.Ordinal,
				Rendered:   rendered,
				Validation: lastVal,
			}, nil
		}

		l.logger.Debug("tier failed validation",
			zap.String("url", url),
			zap.Int("tier", tier.Ordinal),
			zap.Int("links", lastVal.LinkCount),
			zap.Strings("indicators", lastVal.ErrorIndicators),
		)
		metrics.ObserveTierFetch(tier.Ordinal, "invalid")
		l.escalate(url, ordinal)
	}

	// The next run starts the domain from the bottom again.
	l.clearBias(domain)
	metrics.ObserveSourceProtected()
	return LadderResult{Tier: TerminalTier, Validation: lastVal},
		fmt.Errorf("%s: %w", url, ErrSourceProtected)
}

func (l *Ladder) attempt(ctx context.Context, tier Tier, url string, kind PageKind, cfg *ExtractionConfig) (string, bool, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx, url); err != nil {
			return "", false, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, tier.Timeout)
	defer cancel()

	switch tier.Method {
	case MethodClient:
		res, err := l.fetcher.Fetch(attemptCtx, FetchRequest{
			URL:     url,
			Profile: tier.Profile,
			Timeout: tier.Timeout,
		})
		if err != nil {
			return "", false, err
		}
		if res.StatusCode >= 400 {
			return "", false, fmt.Errorf("status %d", res.StatusCode)
		}
		return string(res.Body), false, nil
	case MethodRender:
		if l.renderer == nil {
			return "", false, fmt.Errorf("render tier %d requested but no renderer configured", tier.Ordinal)
		}
		page, err := l.renderer.Render(attemptCtx, url, kind, cfg, tier.Stealth)
		if err != nil {
			return "", false, err
		}
		return page.HTML, true, nil
	default:
		return "", false, fmt.Errorf("tier %d has no fetch method", tier.Ordinal)
	}
}

func (l *Ladder) escalate(url string, failed int) {
	next := TierAt(failed + 1)
	metrics.ObserveEscalation(failed)
	if l.OnEscalate != nil && next.Ordinal < TerminalTier {
		l.OnEscalate(url, next)
	}
}

func (l *Ladder) startTier(domain string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastTier[domain]
}

func (l *Ladder) recordSuccess(domain string, ordinal int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastTier[domain] = ordinal
}

func (l *Ladder) clearBias(domain string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.lastTier, domain)
}

// LastTier reports the recorded bias for a domain, for status introspection.
func (l *Ladder) LastTier(domain string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastTier[domain]
}
