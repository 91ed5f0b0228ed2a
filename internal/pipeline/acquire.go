// Package pipeline drives download and normalization for all pages of one
// chapter, producing the ordered file set handed to the PDF assembler.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	_ "image/jpeg"
	_ "image/png"

	"github.com/brogergvhs/mangawatch/internal/scrape"
	"github.com/brogergvhs/mangawatch/internal/ui"
)

// reuseMinSize is the size above which an existing normalized page file is
// trusted and its download skipped.
const reuseMinSize = 1024

type ImageLocator interface {
	Images(ctx context.Context, title, chapterURL string) []string
}

type Downloader interface {
	Download(ctx context.Context, url, destBase string) (string, error)
}

type Normalizer interface {
	Normalize(path string) (string, error)
}

type Pipeline struct {
	locator    ImageLocator
	fetcher    Downloader
	normalizer Normalizer
	root       string
	progress   *ui.ProgressManager
	log        *slog.Logger
}

func New(locator ImageLocator, fetcher Downloader, normalizer Normalizer, root string, progress *ui.ProgressManager, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		locator:    locator,
		fetcher:    fetcher,
		normalizer: normalizer,
		root:       root,
		progress:   progress,
		log:        log,
	}
}

// ChapterDir is the chapter-scoped image directory for a title.
func ChapterDir(root, title string) string {
	return filepath.Join(root, scrape.SanitizeTitle(title))
}

// ArtifactPath is where the chapter's PDF is written.
func ArtifactPath(root, title string) string {
	return filepath.Join(root, scrape.SanitizeTitle(title)+".pdf")
}

// Acquire downloads and normalizes every page image of the chapter,
// sequentially and in document order. Page filenames are zero-padded so
// lexical sort equals page order. Individual page failures leave a gap;
// they never abort the chapter. An empty result with nil error means the
// chapter yielded nothing usable this attempt.
func (p *Pipeline) Acquire(ctx context.Context, title, chapterURL string) ([]string, error) {
	urls := p.locator.Images(ctx, title, chapterURL)
	if len(urls) == 0 {
		return nil, nil
	}

	dir := ChapterDir(p.root, title)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create chapter directory: %w", err)
	}

	var handle *ui.ProgressHandle
	if p.progress != nil {
		handle = p.progress.Register(title)
		handle.SetTotal(len(urls))
		defer handle.MarkDone()
	}

	var files []string
	var bytes int64
	for idx, u := range urls {
		if err := ctx.Err(); err != nil {
			return files, err
		}

		base := filepath.Join(dir, fmt.Sprintf("page_%04d", idx+1))

		if existing := reusablePage(base); existing != "" {
			p.log.Debug("reusing existing page file", "path", existing)
			files = append(files, existing)
			bytes += fileSize(existing)
			bump(handle, idx+1, len(urls), bytes)
			continue
		}

		downloaded, err := p.fetcher.Download(ctx, u, base)
		if err != nil {
			if ctx.Err() != nil {
				return files, ctx.Err()
			}
			p.log.Error("page abandoned", "chapter", title, "page", idx+1, "url", u, "error", err)
			bump(handle, idx+1, len(urls), bytes)
			continue
		}

		normalized, err := p.normalizer.Normalize(downloaded)
		if err != nil {
			p.log.Error("page dropped by normalizer", "chapter", title, "page", idx+1, "error", err)
			bump(handle, idx+1, len(urls), bytes)
			continue
		}

		files = append(files, normalized)
		bytes += fileSize(normalized)
		bump(handle, idx+1, len(urls), bytes)
	}

	p.log.Info("chapter acquisition finished",
		"chapter", title, "pages", len(files), "of", len(urls))
	return files, nil
}

// reusablePage returns an already-normalized file for this ordinal, if one
// exists above the reuse threshold and still decodes. Makes re-running a
// chapter idempotent; a corrupt leftover from a failed normalization is
// refetched instead of reused.
func reusablePage(base string) string {
	for _, ext := range []string{".jpg", ".png"} {
		path := base + ext
		info, err := os.Stat(path)
		if err != nil || info.Size() <= reuseMinSize {
			continue
		}
		if !decodable(path) {
			continue
		}
		return path
	}
	return ""
}

func decodable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() {
		_ = f.Close()
	}()

	cfg, _, err := image.DecodeConfig(f)
	return err == nil && cfg.Width > 0 && cfg.Height > 0
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func bump(h *ui.ProgressHandle, done, total int, bytes int64) {
	if h != nil {
		h.Update(done, total, bytes)
	}
}
