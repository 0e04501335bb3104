package browser

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/use-agent/archivist/config"
	"github.com/use-agent/archivist/models"
)

// RodBrowser launches and owns a headless Chromium instance plus a
// reusable page pool, adapted from the teacher's scraper.NewScraper.
type RodBrowser struct {
	browser     *rod.Browser
	pagePool    rod.Pool[rod.Page]
	maxPages    int
	activePages atomic.Int32
}

// NewRod launches headless Chromium per cfg and returns a Browser backed
// by it. Stealth flags mirror the teacher's launcher configuration so
// captured pages see a normal-looking browser rather than an automated one.
func NewRod(cfg config.BrowserConfig) (*RodBrowser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeNavigation, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, models.NewCaptureError(models.ErrCodeNavigation, "failed to connect to browser", err)
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 10
	}

	return &RodBrowser{
		browser:  b,
		pagePool: rod.NewPagePool(maxPages),
		maxPages: maxPages,
	}, nil
}

func (rb *RodBrowser) Stats() PoolStats {
	return PoolStats{MaxPages: rb.maxPages, ActivePages: int(rb.activePages.Load())}
}

func (rb *RodBrowser) Close() {
	slog.Info("browser shutting down: draining page pool")
	rb.pagePool.Cleanup(func(p *rod.Page) { _ = p.Close() })
	slog.Info("browser shutting down: closing browser process")
	rb.browser.MustClose()
}

func (rb *RodBrowser) NewPage(ctx context.Context) (Page, error) {
	rb.activePages.Add(1)
	page, err := rb.pagePool.Get(func() (*rod.Page, error) {
		return rb.browser.Page(proto.TargetCreateTarget{})
	})
	if err != nil {
		rb.activePages.Add(-1)
		return nil, models.NewCaptureError(models.ErrCodeNavigation, "failed to acquire page from pool", err)
	}

	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
	}

	return &rodPage{owner: rb, page: page}, nil
}

var configToProto = map[string][]proto.NetworkResourceType{
	"discoveryOnly": {
		proto.NetworkResourceTypeDocument,
		proto.NetworkResourceTypeScript,
	},
}

type rodPage struct {
	owner  *RodBrowser
	page   *rod.Page
	router *rod.HijackRouter
}

// setupIntercept installs a hijack router that aborts every resource type
// except document/script, per spec.md §4.6's discovery-mode interception.
// Adapted from the teacher's scraper/hijack.go setupHijack.
func (rp *rodPage) setupIntercept(mode InterceptMode) {
	if mode != InterceptDocumentAndScriptOnly {
		return
	}
	allowed := make(map[proto.NetworkResourceType]struct{})
	for _, rt := range configToProto["discoveryOnly"] {
		allowed[rt] = struct{}{}
	}

	router := rp.page.HijackRequests()
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, allow := allowed[ctx.Request.Type()]; !allow {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	rp.router = router
}

func (rp *rodPage) Navigate(ctx context.Context, url string, opts NavigateOptions) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rp.setupIntercept(opts.Intercept)

	p := rp.page.Context(ctx)

	if opts.UserAgent != "" {
		_ = p.SetExtraHeaders([]string{"User-Agent", opts.UserAgent})
	}

	if err := p.Navigate(url); err != nil {
		return models.NewCaptureError(models.ErrCodeNavigation, "navigation failed", err)
	}

	switch opts.Wait {
	case WaitNetworkIdle:
		waitIdle := p.WaitRequestIdle(300*time.Millisecond, nil, nil, nil)
		waitIdle()
	default:
		if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
			slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
		}
	}
	return nil
}

func (rp *rodPage) HTML() (string, error) {
	html, err := rp.page.HTML()
	if err != nil {
		return "", models.NewCaptureError(models.ErrCodeExtraction, "failed to read page HTML", err)
	}
	return html, nil
}

func (rp *rodPage) Title() string {
	return rp.EvalString(`() => document.title`)
}

func (rp *rodPage) EvalString(js string) string {
	res, err := rp.page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (rp *rodPage) EvalJSON(js string) (string, error) {
	res, err := rp.page.Eval(js)
	if err != nil {
		return "", models.NewCaptureError(models.ErrCodeExtraction, "eval failed", err)
	}
	return res.Value.JSON(), nil
}

func (rp *rodPage) Scroll(dy int) error {
	_, err := rp.page.Eval(`(dy) => window.scrollBy(0, dy)`, dy)
	return err
}

func (rp *rodPage) Close() error {
	if rp.router != nil {
		_ = rp.router.Stop()
	}
	_ = rp.page.Navigate("about:blank")
	rp.owner.pagePool.Put(rp.page)
	rp.owner.activePages.Add(-1)
	return nil
}
