package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/surpriset/market-parser/internal/parser"
)

// Browser owns a single Chromium process and hands out one isolated
// browser context per parse session.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	SettleDelay    time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		SettleDelay:    3 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "ru-RU,ru;q=0.9,en;q=0.8",
		TimezoneID:     "Europe/Moscow",
		Locale:         "ru-RU",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Encoding": "gzip, deflate, br",
			"DNT":             "1",
		},
	}
}

// stealthScript hides the most common automation fingerprints before any
// page script runs. Marketplaces check these on first paint.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['ru-RU', 'ru'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = window.chrome || { runtime: {} };
`

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--window-size=1920,1080",
			"--user-agent=" + opts.UserAgent,
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		opts:    opts,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

// Acquire opens a fresh browser context, navigates to url and waits for
// the page to settle. Each session is isolated: no cookies or storage
// leak between parses.
func (b *Browser) Acquire(ctx context.Context, url string) (parser.Page, error) {
	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &b.opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &b.opts.Locale,
		TimezoneId:        &b.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
		ExtraHttpHeaders: b.opts.ExtraHeaders,
	}

	bctx, err := b.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to add init script: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	session := &Session{
		page:    page,
		context: bctx,
		settle:  b.opts.SettleDelay,
		timeout: b.opts.Timeout,
		logger:  b.logger,
	}

	if err := session.navigate(ctx, url); err != nil {
		session.Close()
		return nil, err
	}
	return session, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}

// Session wraps one playwright page plus its dedicated browser context.
type Session struct {
	page    playwright.Page
	context playwright.BrowserContext
	settle  time.Duration
	timeout time.Duration
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (s *Session) navigate(ctx context.Context, url string) error {
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.timeout.Milliseconds())),
	})
	if err != nil {
		if isTimeoutErr(err) {
			return fmt.Errorf("%w: navigating to %s: %v", parser.ErrPageLoadTimeout, url, err)
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	// State objects arrive after first paint; network idle is best-effort
	// because marketplaces keep long-polling connections open.
	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(s.settle.Milliseconds())),
	}); err != nil {
		s.logger.Debug("network idle not reached, continuing", "url", url)
	}
	s.pause(ctx, s.settle)
	return nil
}

func (s *Session) Evaluate(ctx context.Context, script string, args ...any) (any, error) {
	var result any
	var err error
	if len(args) > 0 {
		result, err = s.page.Evaluate(script, args[0])
	} else {
		result, err = s.page.Evaluate(script)
	}
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return result, nil
}

func (s *Session) Content(ctx context.Context) (string, error) {
	content, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return content, nil
}

func (s *Session) Reload(ctx context.Context) error {
	_, err := s.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.timeout.Milliseconds())),
	})
	if err != nil {
		if isTimeoutErr(err) {
			return fmt.Errorf("%w: reloading: %v", parser.ErrPageLoadTimeout, err)
		}
		return fmt.Errorf("failed to reload page: %w", err)
	}
	s.pause(ctx, s.settle)
	return nil
}

func (s *Session) URL() string {
	return s.page.URL()
}

func (s *Session) Title(ctx context.Context) (string, error) {
	title, err := s.page.Title()
	if err != nil {
		return "", fmt.Errorf("failed to get page title: %w", err)
	}
	return title, nil
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close page: %w", err))
		}
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
		if len(errs) > 0 {
			s.closeErr = fmt.Errorf("errors during close: %v", errs)
		}
	})
	return s.closeErr
}

func (s *Session) pause(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func isTimeoutErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "timeout")
}
