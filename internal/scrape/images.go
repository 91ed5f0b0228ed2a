package scrape

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Reading area containers, most specific first.
var readerSelectors = []string{
	"div.reading-content",
	"#readerarea",
	".entry-content .text-left",
	".viewer_img_container",
	".comic-reader__container",
}

var imageSelectors = []string{
	"div.page-break > img.wp-manga-chapter-img",
	"img.wp-manga-chapter-img",
	"img",
}

// Lazy-load attribute conventions in priority order. The standard source
// attribute first; it often holds a placeholder data URI, which the
// validity checks below reject so the next convention gets a chance.
var sourceAttrs = []string{
	"src",
	"data-src",
	"data-lazy-src",
	"data-lazyload",
	"data-original",
	"data-pagespeed-lazy-src",
}

const minSourceLen = 11

// Locator finds the ordered page image URLs inside one chapter page.
type Locator struct {
	pager   Pager
	shotDir string
	wait    time.Duration
	log     *slog.Logger
}

func NewLocator(pager Pager, screenshotDir string, elementWait time.Duration, log *slog.Logger) *Locator {
	if log == nil {
		log = slog.Default()
	}
	return &Locator{
		pager:   pager,
		shotDir: screenshotDir,
		wait:    elementWait,
		log:     log,
	}
}

// Images loads the chapter page and returns absolute page image URLs in
// document order. Failure modes return an empty list.
func (l *Locator) Images(ctx context.Context, title, chapterURL string) []string {
	safe := SanitizeTitle(title)
	l.log.Info("locating page images", "chapter", title, "url", chapterURL)

	if err := l.pager.Navigate(ctx, chapterURL); err != nil {
		l.log.Error("chapter page load failed", "url", chapterURL, "error", err)
		l.snapshot(ctx, "err_load_chap_pg_"+safe)
		return nil
	}

	l.pager.DismissOverlays(ctx)
	l.pager.DismissOverlays(ctx)

	// A missing reading container at this point is only a warning: some
	// themes attach it after lazy scripts run, and the fallbacks below may
	// still find it in the final DOM.
	if err := l.pager.WaitVisible(ctx, readerSelectors[0], l.wait); err != nil {
		l.log.Warn("timeout waiting for reading container", "url", chapterURL)
		l.snapshot(ctx, "warn_noimgcontainer_"+safe)
	}

	if err := l.pager.ScrollToBottom(ctx, 2*time.Second, 4, 35); err != nil {
		l.log.Warn("chapter scroll interrupted", "error", err)
	}

	html, err := l.pager.HTML(ctx)
	if err != nil {
		l.log.Error("reading chapter DOM failed", "error", err)
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		l.log.Error("parsing chapter DOM failed", "error", err)
		return nil
	}

	urls := extractImageURLs(doc, chapterURL, l.log)
	if len(urls) == 0 {
		l.log.Error("no usable page images found", "chapter", title)
		l.snapshot(ctx, "err_noimages_"+safe)
		return nil
	}

	l.log.Info("page images located", "chapter", title, "count", len(urls))
	return urls
}

// extractImageURLs walks the reading container strategies and recovers the
// real source URL of every page image element.
func extractImageURLs(doc *goquery.Document, chapterURL string, log *slog.Logger) []string {
	var reader *goquery.Selection
	for _, sel := range readerSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			log.Debug("reading container matched", "selector", sel)
			reader = s
			break
		}
	}
	if reader == nil {
		log.Error("no reading container after all fallbacks")
		return nil
	}

	var imgs *goquery.Selection
	for _, sel := range imageSelectors {
		if s := reader.Find(sel); s.Length() > 0 {
			imgs = s
			break
		}
	}
	if imgs == nil {
		log.Error("no image elements inside reading container")
		return nil
	}

	var out []string
	imgs.Each(func(idx int, img *goquery.Selection) {
		raw := pickImageSource(img)
		if !validImageSource(raw) {
			log.Debug("skipping placeholder image source", "page", idx+1, "value", truncate(raw, 60))
			return
		}
		resolved := resolveURL(chapterURL, raw)
		if resolved == "" {
			log.Debug("skipping malformed image source", "page", idx+1, "value", truncate(raw, 60))
			return
		}
		out = append(out, resolved)
	})

	return out
}

// pickImageSource checks the lazy-load attribute conventions in priority
// order and falls back to the first srcset token.
func pickImageSource(img *goquery.Selection) string {
	for _, attr := range sourceAttrs {
		v, ok := img.Attr(attr)
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" || len(v) < minSourceLen {
			continue
		}
		if strings.HasPrefix(strings.ToLower(v), "data:image") {
			continue
		}
		return v
	}

	if ss, ok := img.Attr("srcset"); ok {
		for part := range strings.SplitSeq(ss, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			fields := strings.Fields(part)
			if len(fields) > 0 {
				return fields[0]
			}
		}
	}

	return ""
}

func validImageSource(raw string) bool {
	if raw == "" || len(raw) < 10 {
		return false
	}
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "data:image") || strings.Contains(lower, "base64,") {
		return false
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (l *Locator) snapshot(ctx context.Context, name string) {
	if l.shotDir == "" {
		return
	}

	path := filepath.Join(l.shotDir, name+".png")
	if err := l.pager.Screenshot(ctx, path); err != nil {
		l.log.Debug("screenshot failed", "path", path, "error", err)
		return
	}
	l.log.Info("diagnostic screenshot saved", "path", path)
}
