package scrape

import (
	"testing"
)

const chapterURL = "https://example.com/manga/solo-hero/chapter-1/"

func TestExtractImageURLsLazyAttrBeatsPlaceholder(t *testing.T) {
	html := `<html><body><div class="reading-content">
	<div class="page-break"><img class="wp-manga-chapter-img"
		src="data:image/gif;base64,R0lGODlhAQABAAAAACw="
		data-src="https://cdn.example.com/p/001.jpg"></div>
	<div class="page-break"><img class="wp-manga-chapter-img"
		src="https://cdn.example.com/p/002.jpg"></div>
	</div></body></html>`

	got := extractImageURLs(docFromHTML(t, html), chapterURL, discard())
	want := []string{
		"https://cdn.example.com/p/001.jpg",
		"https://cdn.example.com/p/002.jpg",
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d urls, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("url %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestExtractImageURLsSrcsetFallback(t *testing.T) {
	html := `<html><body><div id="readerarea">
	<img srcset="https://cdn.example.com/p/001-800.jpg 800w, https://cdn.example.com/p/001-400.jpg 400w">
	</div></body></html>`

	got := extractImageURLs(docFromHTML(t, html), chapterURL, discard())
	if len(got) != 1 {
		t.Fatalf("expected 1 url, got %d: %v", len(got), got)
	}
	if got[0] != "https://cdn.example.com/p/001-800.jpg" {
		t.Errorf("expected first srcset candidate, got %q", got[0])
	}
}

func TestExtractImageURLsResolvesRelative(t *testing.T) {
	html := `<html><body><div class="reading-content">
	<img src="/uploads/p/001.jpg">
	</div></body></html>`

	got := extractImageURLs(docFromHTML(t, html), chapterURL, discard())
	if len(got) != 1 {
		t.Fatalf("expected 1 url, got %d", len(got))
	}
	if got[0] != "https://example.com/uploads/p/001.jpg" {
		t.Errorf("relative url not resolved, got %q", got[0])
	}
}

func TestExtractImageURLsSkipsPlaceholdersEntirely(t *testing.T) {
	html := `<html><body><div class="reading-content">
	<img src="data:image/png;base64,iVBORw0KGgo=">
	<img src="x.png">
	</div></body></html>`

	if got := extractImageURLs(docFromHTML(t, html), chapterURL, discard()); got != nil {
		t.Fatalf("expected no urls, got %v", got)
	}
}

func TestExtractImageURLsSkipsMalformedEscape(t *testing.T) {
	// An invalid percent-escape must drop that element, not the siblings.
	html := `<html><body><div class="reading-content">
	<img src="/uploads/%zz/0001.jpg">
	<img src="https://cdn.example.com/p/0002.jpg">
	</div></body></html>`

	got := extractImageURLs(docFromHTML(t, html), chapterURL, discard())
	if len(got) != 1 {
		t.Fatalf("expected 1 url, got %d: %v", len(got), got)
	}
	if got[0] != "https://cdn.example.com/p/0002.jpg" {
		t.Errorf("expected surviving sibling, got %q", got[0])
	}
}

func TestValidImageSource(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{"https://cdn.example.com/p/001.jpg", true},
		{"", false},
		{"x.png", false},
		{"data:image/gif;base64,R0lGODlh", false},
		{"https://cdn.example.com/base64,stuff", false},
	}

	for _, tc := range cases {
		if got := validImageSource(tc.raw); got != tc.want {
			t.Errorf("validImageSource(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
