// Package browser owns the single rendered-page session. It wraps chromedp
// so the rest of the code sees a small capability surface: navigate, read
// the scripted DOM, scroll, wait, screenshot.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/brogergvhs/mangawatch/internal/util"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

type Options struct {
	Headless        bool
	UserAgent       string
	PageLoadTimeout time.Duration
	Logger          *slog.Logger
}

// Session is an exclusively-owned browser tab. It is not safe for
// concurrent use; the orchestrator drives it strictly sequentially.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	loadTimeout time.Duration
	log         *slog.Logger
}

func New(parent context.Context, opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PageLoadTimeout <= 0 {
		opts.PageLoadTimeout = 120 * time.Second
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	flags := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("allow-running-insecure-content", true),
		chromedp.Flag("blink-settings", "imagesEnabled=true"),
		chromedp.Flag("accept-lang", "en-US,en;q=0.9,ko-KR;q=0.8,ko;q=0.7"),
		chromedp.UserAgent(ua),
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, flags...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		loadTimeout: opts.PageLoadTimeout,
		log:         opts.Logger,
	}

	// Start the browser eagerly so a broken Chrome install fails at boot,
	// not in the middle of the first cycle.
	if err := chromedp.Run(tabCtx, emulation.SetUserAgentOverride(ua)); err != nil {
		s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	s.log.Debug("browser session started", "headless", opts.Headless)
	return s, nil
}

func (s *Session) Close() {
	s.cancel()
	s.allocCancel()
}

func (s *Session) run(timeout time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.run(s.loadTimeout, chromedp.Navigate(url))
}

func (s *Session) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.run(s.loadTimeout, chromedp.Reload())
}

// HTML returns the current serialized DOM, scripts already executed.
func (s *Session) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var html string
	if err := s.run(30*time.Second, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// WaitVisible blocks until the selector matches a visible element or the
// timeout elapses.
func (s *Session) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.run(timeout, chromedp.WaitVisible(sel, chromedp.ByQuery))
}

// ScrollToBottom repeatedly scrolls the page until the document height
// stops growing, nudging upward every few passes to wake lazy loaders.
func (s *Session) ScrollToBottom(ctx context.Context, pause time.Duration, maxChecks, maxScrolls int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var lastHeight int64
	if err := s.run(10*time.Second, chromedp.Evaluate(`document.body.scrollHeight`, &lastHeight)); err != nil {
		return err
	}

	noChange := 0
	for attempt := 0; attempt < maxScrolls; attempt++ {
		if err := s.run(10*time.Second, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil)); err != nil {
			return err
		}
		if err := util.Sleep(ctx, pause); err != nil {
			return err
		}

		if attempt > 0 && attempt%4 == 0 {
			_ = s.run(10*time.Second, chromedp.Evaluate(`window.scrollBy(0, -Math.floor(window.innerHeight/4))`, nil))
			if err := util.Sleep(ctx, 700*time.Millisecond); err != nil {
				return err
			}
			_ = s.run(10*time.Second, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
			if err := util.Sleep(ctx, 700*time.Millisecond); err != nil {
				return err
			}
		}

		var height int64
		if err := s.run(10*time.Second, chromedp.Evaluate(`document.body.scrollHeight`, &height)); err != nil {
			return err
		}

		if height == lastHeight {
			noChange++
			if noChange >= maxChecks {
				return nil
			}
		} else {
			noChange = 0
		}
		lastHeight = height
	}

	s.log.Debug("scroll budget exhausted", "height", lastHeight)
	return nil
}

// Overlay close buttons seen in the wild. Consent dialogs, cookie banners,
// popup blocks.
var overlaySelectors = []string{
	"button[id*='consent']",
	"button[class*='consent']",
	"div[class*='cookie-banner'] button",
	"div[class*='cookie-notice'] button",
	"button[aria-label*='Accept']",
	"button[aria-label*='Dismiss']",
	"button[aria-label*='Close']",
	"span[aria-label*='Close']",
	"i[class*='close']",
	"div[id*='poperblock'] button.close",
	"div.fc-dialog button.fc-cta-consent",
	"div#gdpr-consent-tool-wrapper button[data-gdpr-action='accept']",
	"button#ez-accept-all",
	"div[aria-modal='true'] button[aria-label='Close']",
}

// DismissOverlays clicks the first visible overlay control, if any. It is a
// best-effort probe: it never fails, it only reports whether it clicked.
func (s *Session) DismissOverlays(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	script := `(function(sels){
		for (const sel of sels) {
			for (const el of document.querySelectorAll(sel)) {
				const style = window.getComputedStyle(el);
				if (style.display === 'none' || style.visibility === 'hidden') continue;
				try { el.click(); return true; } catch (e) {}
			}
		}
		return false;
	})(` + jsStringArray(overlaySelectors) + `)`

	var clicked bool
	if err := s.run(15*time.Second, chromedp.Evaluate(script, &clicked)); err != nil {
		s.log.Debug("overlay probe failed", "error", err)
		return false
	}

	if clicked {
		s.log.Debug("dismissed an overlay")
		_ = util.Sleep(ctx, 2500*time.Millisecond)
	}
	return clicked
}

// Screenshot captures the viewport into path. Used for diagnostics when a
// page comes back with an unexpected shape.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf []byte
	if err := s.run(30*time.Second, chromedp.CaptureScreenshot(&buf)); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0644)
}

func jsStringArray(items []string) string {
	out := "["
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", it)
	}
	return out + "]"
}
