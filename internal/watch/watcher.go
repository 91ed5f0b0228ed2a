// Package watch runs the polling loop: resolve the chapter index, process
// every chapter not yet in the ledger, sleep, repeat. One chapter at a
// time, one stage at a time; a panic or error in a cycle never kills the
// daemon.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/brogergvhs/mangawatch/internal/ledger"
	"github.com/brogergvhs/mangawatch/internal/pdf"
	"github.com/brogergvhs/mangawatch/internal/pipeline"
	"github.com/brogergvhs/mangawatch/internal/scrape"
	"github.com/brogergvhs/mangawatch/internal/util"
)

type resolver interface {
	Chapters(ctx context.Context) []scrape.Chapter
}

type acquirer interface {
	Acquire(ctx context.Context, title, chapterURL string) ([]string, error)
}

type publisher interface {
	PublishDocument(ctx context.Context, path, caption string) error
}

type pager interface {
	Refresh(ctx context.Context) error
}

// Options carries the loop timings. The stage waits exist so tests can
// shrink them; zero values take the defaults.
type Options struct {
	Interval        time.Duration
	ChapterAttempts int
	CleanupImages   bool
	StorageRoot     string

	AcquireRetryWait  time.Duration
	AssembleRetryWait time.Duration
	DeliverRetryWait  time.Duration
	ChapterPause      time.Duration
}

func (o *Options) applyDefaults() {
	if o.Interval <= 0 {
		o.Interval = time.Hour
	}
	if o.ChapterAttempts < 1 {
		o.ChapterAttempts = 1
	}
	if o.AcquireRetryWait == 0 {
		o.AcquireRetryWait = 30 * time.Second
	}
	if o.AssembleRetryWait == 0 {
		o.AssembleRetryWait = 10 * time.Second
	}
	if o.DeliverRetryWait == 0 {
		o.DeliverRetryWait = 60 * time.Second
	}
	if o.ChapterPause == 0 {
		o.ChapterPause = 20 * time.Second
	}
}

type Watcher struct {
	resolver  resolver
	pipeline  acquirer
	publisher publisher
	pager     pager
	ledger    *ledger.Ledger
	assemble  func(imagePaths []string, outputPath string, log *slog.Logger) (int, error)
	opts      Options
	log       *slog.Logger
}

func New(res resolver, pipe acquirer, pub publisher, pg pager, led *ledger.Ledger, opts Options, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	opts.applyDefaults()
	return &Watcher{
		resolver:  res,
		pipeline:  pipe,
		publisher: pub,
		pager:     pg,
		ledger:    led,
		assemble:  pdf.Assemble,
		opts:      opts,
		log:       log,
	}
}

// Run polls until the context is cancelled. A failed cycle shortens the
// next sleep to half the interval so a transient outage recovers sooner.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("watch loop started",
		"interval", w.opts.Interval, "known_chapters", w.ledger.Len())

	for {
		err := w.safeCycle(ctx)
		if ctx.Err() != nil {
			w.log.Info("watch loop stopping", "reason", context.Cause(ctx))
			return nil
		}

		sleep := w.opts.Interval
		if err != nil {
			w.log.Error("cycle failed, retrying sooner", "error", err)
			sleep = w.opts.Interval / 2
		}

		w.log.Info("sleeping until next cycle", "duration", sleep)
		if err := util.Sleep(ctx, sleep); err != nil {
			w.log.Info("watch loop stopping", "reason", err)
			return nil
		}
	}
}

// safeCycle shields the loop from panics inside a cycle.
func (w *Watcher) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("cycle panicked", "panic", r)
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return w.RunCycle(ctx)
}

// RunCycle performs one full pass: fetch the index and process every
// chapter the ledger does not know yet, oldest first.
func (w *Watcher) RunCycle(ctx context.Context) error {
	chapters := w.resolver.Chapters(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(chapters) == 0 {
		w.log.Warn("no chapters found this cycle")
		return nil
	}

	var processed, failed int
	for _, ch := range chapters {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.ledger.Has(ch.Title) {
			continue
		}

		w.log.Info("new chapter detected", "title", ch.Title, "url", ch.URL)
		if err := w.processChapter(ctx, ch); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("chapter processing failed", "title", ch.Title, "error", err)
			failed++
			continue
		}
		processed++

		// Let the site breathe between chapters.
		if err := util.Sleep(ctx, w.opts.ChapterPause); err != nil {
			return err
		}
	}

	w.log.Info("cycle finished",
		"chapters", len(chapters), "delivered", processed, "failed", failed,
		"known", w.ledger.Len())

	if failed > 0 {
		return fmt.Errorf("%d of %d new chapters failed", failed, processed+failed)
	}
	return nil
}

// processChapter runs acquire, assemble and deliver for one chapter, with
// a bounded number of full attempts. Only a delivered chapter reaches the
// ledger; a chapter whose PDF was built but not delivered keeps the PDF on
// disk for the next cycle.
func (w *Watcher) processChapter(ctx context.Context, ch scrape.Chapter) error {
	var lastErr error

	for attempt := 1; attempt <= w.opts.ChapterAttempts; attempt++ {
		if attempt > 1 {
			w.log.Info("retrying chapter", "title", ch.Title, "attempt", attempt)
		}

		err := w.attemptChapter(ctx, ch, attempt == w.opts.ChapterAttempts)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}

	return fmt.Errorf("gave up after %d attempts: %w", w.opts.ChapterAttempts, lastErr)
}

var errNoPages = errors.New("no page images acquired")

// The stage waits only make sense when another attempt follows; the final
// attempt fails fast.
func (w *Watcher) attemptChapter(ctx context.Context, ch scrape.Chapter, final bool) error {
	files, err := w.pipeline.Acquire(ctx, ch.Title, ch.URL)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		w.log.Warn("acquisition yielded no pages", "title", ch.Title)
		if final {
			return errNoPages
		}
		// The page may simply not have rendered; reload before the next
		// attempt gets its turn.
		if err := util.Sleep(ctx, w.opts.AcquireRetryWait); err != nil {
			return err
		}
		if w.pager != nil {
			if err := w.pager.Refresh(ctx); err != nil {
				w.log.Warn("page refresh failed", "error", err)
			}
		}
		return errNoPages
	}

	pdfPath := pipeline.ArtifactPath(w.opts.StorageRoot, ch.Title)
	pages, err := w.assemble(files, pdfPath, w.log)
	if err != nil {
		if !final {
			if serr := util.Sleep(ctx, w.opts.AssembleRetryWait); serr != nil {
				return serr
			}
		}
		return fmt.Errorf("assemble %q: %w", ch.Title, err)
	}
	w.log.Info("chapter assembled", "title", ch.Title, "pages", pages)

	if err := w.publisher.PublishDocument(ctx, pdfPath, ch.Title); err != nil {
		if !final {
			if serr := util.Sleep(ctx, w.opts.DeliverRetryWait); serr != nil {
				return serr
			}
		}
		return fmt.Errorf("deliver %q: %w", ch.Title, err)
	}

	// Delivered. Record first so a cleanup failure cannot cause a repost.
	if err := w.ledger.Record(ch.Title); err != nil {
		w.log.Error("recording delivered chapter failed", "title", ch.Title, "error", err)
	}

	if err := os.Remove(pdfPath); err != nil {
		w.log.Warn("removing delivered pdf failed", "path", pdfPath, "error", err)
	}
	if w.opts.CleanupImages {
		util.CleanupFolder(pipeline.ChapterDir(w.opts.StorageRoot, ch.Title))
	}

	return nil
}
