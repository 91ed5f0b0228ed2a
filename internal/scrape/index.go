package scrape

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Chapter list containers, most specific first. Madara-style themes, then
// the common WP manga theme variants.
var chapterContainerSelectors = []string{
	"div.page-content-listing.single-page ul.main.version-chap ul.sub-chap-list",
	"div.page-content-listing.single-page ul.main.version-chap",
	"ul.main.version-chap",
	"div.eplister ul",
	"div.clstyle ul",
	"div#chapterlist ul",
	".postbody .entry-content ul",
}

var chapterLinkSelectors = []string{
	"li.wp-manga-chapter > a[href]",
	"li > a[href]",
}

const maxTitleLen = 150

// Resolver finds the ordered chapter list on the series index page.
type Resolver struct {
	pager    Pager
	indexURL string
	shotDir  string
	wait     time.Duration
	log      *slog.Logger
}

func NewResolver(pager Pager, indexURL, screenshotDir string, elementWait time.Duration, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		pager:    pager,
		indexURL: indexURL,
		shotDir:  screenshotDir,
		wait:     elementWait,
		log:      log,
	}
}

// Chapters loads the index page and returns its chapter entries, oldest
// first. Every failure mode returns an empty list, not an error: an
// unreadable index page means "no new chapters this cycle".
func (r *Resolver) Chapters(ctx context.Context) []Chapter {
	r.log.Info("fetching chapter index", "url", r.indexURL)

	if err := r.pager.Navigate(ctx, r.indexURL); err != nil {
		r.log.Error("index page load failed", "url", r.indexURL, "error", err)
		r.snapshot(ctx, "err_pgload")
		return nil
	}

	r.pager.DismissOverlays(ctx)
	r.pager.DismissOverlays(ctx)

	if err := r.pager.WaitVisible(ctx, "body", r.wait); err != nil {
		r.log.Error("timeout waiting for index body", "url", r.indexURL, "error", err)
		r.snapshot(ctx, "err_timeout_body")
		return nil
	}

	if err := r.pager.ScrollToBottom(ctx, 1500*time.Millisecond, 2, 10); err != nil {
		r.log.Warn("index scroll interrupted", "error", err)
	}
	r.pager.DismissOverlays(ctx)

	html, err := r.pager.HTML(ctx)
	if err != nil {
		r.log.Error("reading index DOM failed", "error", err)
		r.snapshot(ctx, "err_read_dom")
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		r.log.Error("parsing index DOM failed", "error", err)
		return nil
	}

	chapters := parseChapterIndex(doc, r.indexURL, r.log)
	if len(chapters) == 0 {
		r.log.Warn("no chapter entries extracted from index page")
		r.snapshot(ctx, "err_no_chapters")
		return nil
	}

	r.log.Info("chapter index resolved", "count", len(chapters))
	return chapters
}

// parseChapterIndex applies the container and link strategies and returns
// the deduplicated entries in chronological (oldest-first) order.
func parseChapterIndex(doc *goquery.Document, indexURL string, log *slog.Logger) []Chapter {
	var container *goquery.Selection
	for _, sel := range chapterContainerSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			log.Debug("chapter container matched", "selector", sel)
			container = s
			break
		}
	}
	if container == nil {
		log.Error("no known chapter list container on index page")
		return nil
	}

	var links *goquery.Selection
	for _, sel := range chapterLinkSelectors {
		if s := container.Find(sel); s.Length() > 0 {
			links = s
			break
		}
	}
	if links == nil {
		log.Error("no chapter links inside container")
		return nil
	}

	var out []Chapter
	seen := map[string]bool{}

	links.Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		title := strings.TrimSpace(a.Text())

		if href == "" || utf8.RuneCountInString(title) <= 1 || utf8.RuneCountInString(title) >= maxTitleLen {
			return
		}

		full := resolveURL(indexURL, href)
		if !strings.HasPrefix(full, indexURL) {
			return
		}
		if seen[full] {
			return
		}

		if !looksLikeChapterTitle(title) {
			log.Debug("skipping link, title not chapter-like", "title", title, "url", full)
			return
		}

		seen[full] = true
		out = append(out, Chapter{Title: title, URL: full})
	})

	// The site lists newest first; downstream wants chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out
}

func looksLikeChapterTitle(title string) bool {
	lower := strings.ToLower(title)
	if strings.Contains(lower, "chapter") || strings.Contains(lower, "ch.") {
		return true
	}
	for _, r := range title {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func (r *Resolver) snapshot(ctx context.Context, prefix string) {
	if r.shotDir == "" {
		return
	}

	name := prefix + "_" + SanitizeTitle(r.indexURL) + ".png"
	path := filepath.Join(r.shotDir, name)
	if err := r.pager.Screenshot(ctx, path); err != nil {
		r.log.Debug("screenshot failed", "path", path, "error", err)
		return
	}
	r.log.Info("diagnostic screenshot saved", "path", path)
}
