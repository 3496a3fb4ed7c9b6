package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/signalharvest/harvester/internal/scrape"
)

// EngineConfig controls the in-worker browser session.
type EngineConfig struct {
	UserAgent      string
	ViewportWidth  int64
	ViewportHeight int64
	NavTimeout     time.Duration
	SettleWait     time.Duration
	Headless       bool
}

// DefaultEngineConfig returns the settings the worker binary uses unless
// overridden by flags.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		NavTimeout:     30 * time.Second,
		SettleWait:     2 * time.Second,
		Headless:       true,
	}
}

// Engine renders one page inside the worker process using chromedp.
type Engine struct {
	cfg    EngineConfig
	logger *zap.Logger
}

// NewEngine builds an Engine.
func NewEngine(cfg EngineConfig, logger *zap.Logger) *Engine {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.SettleWait <= 0 {
		cfg.SettleWait = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// stealthScript masks the most common automation tells before any page
// script runs.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
window.chrome = window.chrome || { runtime: {} };
`

// fallbackContentSelectors are tried when the supplied selectors match
// nothing or only empty text.
var fallbackContentSelectors = []string{
	"article",
	"main",
	"[itemprop='articleBody']",
	".article-body",
	".post-content",
	".entry-content",
	"#content",
}

const minListingAnchors = 20

// Run renders the requested page and returns a Result ready to serialize.
// The browser allocator and tab are torn down in a guaranteed cleanup path;
// the worker process exiting reclaims anything that survives.
func (e *Engine) Run(ctx context.Context, req Request) Result {
	stealth := req.Stealth
	if stealth < 1 {
		stealth = 1
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", e.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(int(e.cfg.ViewportWidth), int(e.cfg.ViewportHeight)),
		chromedp.UserAgent(e.cfg.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	navCtx, navCancel := context.WithTimeout(tabCtx, e.cfg.NavTimeout)
	defer navCancel()

	html, err := e.renderPage(navCtx, req, stealth)
	peak := peakChildRSS()
	if err != nil {
		res := ErrorResult("render", err)
		res.PeakRSSBytes = peak
		return res
	}

	resType := TypeLinks
	if req.IsArticlePage {
		resType = TypeArticle
	}
	return Result{Type: resType, HTML: html, PeakRSSBytes: peak}
}

func (e *Engine) renderPage(ctx context.Context, req Request, stealth int) (string, error) {
	settle := e.cfg.SettleWait * time.Duration(stealth)

	if err := chromedp.Run(ctx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
	); err != nil {
		return "", fmt.Errorf("navigate %s: %w", req.URL, err)
	}

	html, err := e.outerHTML(ctx)
	if err != nil {
		return "", err
	}

	// One bypass attempt when the rendered DOM still carries a challenge.
	if hasChallengeMarkers(html) {
		e.logger.Info("challenge markers in rendered DOM, attempting bypass",
			zap.String("url", req.URL))
		if err := e.humanizeAndReload(ctx, stealth, settle); err != nil {
			return "", fmt.Errorf("challenge bypass: %w", err)
		}
		if html, err = e.outerHTML(ctx); err != nil {
			return "", err
		}
	}

	if req.IsArticlePage {
		if err := e.loadArticleContent(ctx, req.Config); err != nil {
			return "", err
		}
	} else {
		if err := e.loadListingLinks(ctx, settle); err != nil {
			return "", err
		}
	}

	return e.outerHTML(ctx)
}

func (e *Engine) outerHTML(ctx context.Context) (string, error) {
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("capture dom: %w", err)
	}
	return html, nil
}

// humanizeAndReload performs a small set of pointer movements and scrolls a
// challenge page expects from a human, then reloads once.
func (e *Engine) humanizeAndReload(ctx context.Context, stealth int, settle time.Duration) error {
	moves := 3 * stealth
	actions := []chromedp.Action{}
	for i := 1; i <= moves; i++ {
		x := float64(200 + i*140%int(e.cfg.ViewportWidth-200))
		y := float64(150 + i*90%int(e.cfg.ViewportHeight-150))
		actions = append(actions,
			input.DispatchMouseEvent(input.MouseMoved, x, y),
			chromedp.Sleep(120*time.Millisecond),
		)
	}
	actions = append(actions,
		chromedp.Evaluate(`window.scrollBy(0, 240)`, nil),
		chromedp.Sleep(400*time.Millisecond),
		chromedp.Evaluate(`window.scrollTo(0, 0)`, nil),
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return fmt.Errorf("pointer interaction: %w", err)
	}
	return nil
}

// loadArticleContent scrolls to the bottom in three steps to trigger
// lazy-loaded fragments, then confirms the supplied selectors (or the
// fallback list) yield non-empty text.
func (e *Engine) loadArticleContent(ctx context.Context, cfg *scrape.ExtractionConfig) error {
	for _, fraction := range []string{"0.34", "0.67", "1.0"} {
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight * `+fraction+`)`, nil),
			chromedp.Sleep(600*time.Millisecond),
		); err != nil {
			return fmt.Errorf("article scroll: %w", err)
		}
	}

	selectors := fallbackContentSelectors
	if cfg != nil && cfg.ContentSelector != "" {
		selectors = append([]string{cfg.ContentSelector}, cfg.AltContentSelectors...)
		selectors = append(selectors, fallbackContentSelectors...)
	}
	matched, err := e.anySelectorHasText(ctx, selectors)
	if err != nil {
		return err
	}
	if !matched {
		e.logger.Warn("no content selector matched; returning full DOM")
	}
	return nil
}

// loadListingLinks waits for deferred link fragments. Pages using on-load
// triggered fragments (htmx-style hx-trigger attributes) get an extra settle
// pass; thin listings get one more scroll-and-wait cycle before we return
// whatever was found.
func (e *Engine) loadListingLinks(ctx context.Context, settle time.Duration) error {
	var usesLazyFragments bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(
		`document.querySelector('[hx-trigger*="load"], [hx-get], [data-infinite-scroll], [data-load-more]') !== null`,
		&usesLazyFragments,
	)); err != nil {
		return fmt.Errorf("probe lazy fragments: %w", err)
	}
	if usesLazyFragments {
		if err := chromedp.Run(ctx, chromedp.Sleep(settle)); err != nil {
			return fmt.Errorf("lazy fragment wait: %w", err)
		}
	}

	count, err := e.anchorCount(ctx)
	if err != nil {
		return err
	}
	if count < minListingAnchors {
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(settle),
		); err != nil {
			return fmt.Errorf("listing scroll retry: %w", err)
		}
	}
	return nil
}

func (e *Engine) anchorCount(ctx context.Context) (int, error) {
	var count int
	if err := chromedp.Run(ctx, chromedp.Evaluate(
		`document.querySelectorAll('a[href]').length`, &count,
	)); err != nil {
		return 0, fmt.Errorf("count anchors: %w", err)
	}
	return count, nil
}

func (e *Engine) anySelectorHasText(ctx context.Context, selectors []string) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const sels = %s;
		for (const s of sels) {
			try {
				const el = document.querySelector(s);
				if (el && el.textContent.trim().length > 0) return true;
			} catch (_) {}
		}
		return false;
	})()`, jsStringArray(selectors))

	var matched bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &matched)); err != nil {
		return false, fmt.Errorf("probe selectors: %w", err)
	}
	return matched, nil
}

func jsStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ReplaceAll(v, `\`, `\\`)
		v = strings.ReplaceAll(v, `'`, `\'`)
		quoted = append(quoted, "'"+v+"'")
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// hasChallengeMarkers reuses the validator's challenge detection over the
// rendered DOM.
func hasChallengeMarkers(html string) bool {
	v := scrape.ValidateContent(html, scrape.KindArticle)
	return v.IsErrorPage
}
