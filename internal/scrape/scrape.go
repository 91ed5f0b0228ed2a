// Package scrape extracts chapter entries and page image URLs from the
// rendered DOM of a manga reading site. The markup is not contractually
// stable, so every structural lookup is an ordered list of selector
// strategies tried until one matches.
package scrape

import (
	"context"
	"net/url"
	"time"
)

// Chapter is one discovered chapter entry. Title is the identity used by
// the ledger: two entries with the same title are the same chapter even if
// their URLs differ.
type Chapter struct {
	Title string
	URL   string
}

// Pager is the rendered-page capability the scrapers drive. Satisfied by
// *browser.Session; faked in tests.
type Pager interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error
	ScrollToBottom(ctx context.Context, pause time.Duration, maxChecks, maxScrolls int) error
	DismissOverlays(ctx context.Context) bool
	Screenshot(ctx context.Context, path string) error
}

// resolveURL makes href absolute against base. Unparseable values return
// "" so one malformed element never takes down the rest of the extraction.
func resolveURL(base, href string) string {
	if href == "" {
		return base
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		return u.String()
	}

	b, err := url.Parse(base)
	if err != nil {
		return href
	}

	return b.ResolveReference(u).String()
}
