package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/brogergvhs/mangawatch/internal/browser"
	"github.com/brogergvhs/mangawatch/internal/config"
	"github.com/brogergvhs/mangawatch/internal/fetch"
	"github.com/brogergvhs/mangawatch/internal/imaging"
	"github.com/brogergvhs/mangawatch/internal/ledger"
	"github.com/brogergvhs/mangawatch/internal/logging"
	"github.com/brogergvhs/mangawatch/internal/pipeline"
	"github.com/brogergvhs/mangawatch/internal/scrape"
	"github.com/brogergvhs/mangawatch/internal/telegram"
	"github.com/brogergvhs/mangawatch/internal/ui"
	"github.com/brogergvhs/mangawatch/internal/watch"

	"github.com/spf13/cobra"
)

var (
	flagURL     string
	flagStorage string
	flagServer  bool
)

func init() {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the polling daemon: check the index every interval and deliver new chapters",
		RunE:  runWatch,
	}
	addWatchFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

func addWatchFlags(c *cobra.Command) {
	c.Flags().StringVar(&flagURL, "url", "", "manga series index page URL")
	c.Flags().StringVar(&flagStorage, "storage", "", "storage root for images, PDFs, ledger and logs")
	c.Flags().BoolVar(&flagServer, "server", false, "server profile: headless browser, no progress bars")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, shutdown, err := buildRuntime(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	return rt.watcher.Run(ctx)
}

// runtime is the fully wired daemon: every component built, the browser
// started, the ledger loaded.
type runtime struct {
	cfg     *config.Config
	log     *slog.Logger
	watcher *watch.Watcher
}

func buildRuntime(ctx context.Context) (*runtime, func(), error) {
	cfg, usedPath, err := config.LoadMerged(config.Options{
		IgnoreConfig: flagIgnoreConfig,
		Debug:        flagDebug,
		IndexURL:     flagURL,
		StorageRoot:  flagStorage,
		Server:       flagServer,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, err
	}
	if err := config.EnsureDirs(cfg); err != nil {
		return nil, nil, err
	}

	logPath := ""
	if cfg.LogFile {
		logPath = cfg.LogPath()
	}
	log, closeLog, err := logging.New(logging.Options{Level: cfg.LogLevel, FilePath: logPath})
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(log)

	if usedPath != "" {
		log.Info("config loaded", "path", usedPath)
	}
	fmt.Println("Full config:")
	cfg.Print()
	fmt.Println()

	session, err := browser.New(ctx, browser.Options{
		Headless:        cfg.Server,
		UserAgent:       cfg.UserAgent,
		PageLoadTimeout: cfg.PageLoadTimeout(),
		Logger:          log,
	})
	if err != nil {
		closeLog()
		return nil, nil, err
	}

	bot, err := telegram.New(cfg.TelegramToken, cfg.TelegramChannel, log)
	if err != nil {
		session.Close()
		closeLog()
		return nil, nil, err
	}

	httpClient := fetch.NewClient(fetch.ClientOptions{
		Timeout:   cfg.DownloadTimeout(),
		UserAgent: cfg.UserAgent,
		Referer:   cfg.IndexURL,
	})
	fetcher := fetch.New(httpClient, cfg.DownloadRetries, cfg.DownloadTimeout(), log)

	resolver := scrape.NewResolver(session, cfg.IndexURL, cfg.ScreenshotDir(), cfg.ElementWait(), log)
	locator := scrape.NewLocator(session, cfg.ScreenshotDir(), cfg.ElementWait(), log)
	normalizer := imaging.New(cfg.QuarantineDir(), cfg.JPEGQuality, log)

	var progress *ui.ProgressManager
	if !cfg.Server {
		progress = ui.NewProgressManager()
	}

	pipe := pipeline.New(locator, fetcher, normalizer, cfg.StorageRoot, progress, log)

	led, err := ledger.Load(cfg.LedgerPath())
	if err != nil {
		session.Close()
		closeLog()
		return nil, nil, err
	}
	log.Info("ledger loaded", "path", cfg.LedgerPath(), "entries", led.Len())

	watcher := watch.New(resolver, pipe, bot, session, led, watch.Options{
		Interval:        cfg.PollInterval(),
		ChapterAttempts: cfg.ChapterAttempts,
		CleanupImages:   cfg.CleanupImages,
		StorageRoot:     cfg.StorageRoot,
	}, log)

	shutdown := func() {
		if progress != nil {
			progress.Close()
		}
		session.Close()
		closeLog()
	}

	return &runtime{cfg: cfg, log: log, watcher: watcher}, shutdown, nil
}
