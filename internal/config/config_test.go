package config

import (
	"os"
	"path/filepath"
	"testing"
)

func isolateConfigRoot(t *testing.T) {
	t.Helper()
	t.Setenv("APPDATA", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	// Keep real environment out of merge results.
	for _, key := range []string{
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHANNEL_ID",
		"MANGA_MAIN_URL", "MANGAWATCH_STORAGE_ROOT", "MANGAWATCH_SERVER",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfigTimings(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.PollIntervalSec != 3600 {
		t.Errorf("poll interval: expected 3600, got %d", cfg.PollIntervalSec)
	}
	if cfg.PageLoadTimeoutSec != 120 {
		t.Errorf("page load timeout: expected 120, got %d", cfg.PageLoadTimeoutSec)
	}
	if cfg.ElementWaitSec != 60 {
		t.Errorf("element wait: expected 60, got %d", cfg.ElementWaitSec)
	}
	if cfg.DownloadTimeoutSec != 75 {
		t.Errorf("download timeout: expected 75, got %d", cfg.DownloadTimeoutSec)
	}
	if cfg.DownloadRetries != 3 {
		t.Errorf("download retries: expected 3, got %d", cfg.DownloadRetries)
	}
	if cfg.JPEGQuality != 85 {
		t.Errorf("jpeg quality: expected 85, got %d", cfg.JPEGQuality)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.IndexURL = "https://example.com/manga/solo-hero/"
		cfg.TelegramToken = "123456:real-token"
		cfg.TelegramChannel = "@realchannel"
		return cfg
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(*Config) {}, false},
		{"missing url", func(c *Config) { c.IndexURL = " " }, true},
		{"missing token", func(c *Config) { c.TelegramToken = "" }, true},
		{"missing channel", func(c *Config) { c.TelegramChannel = "" }, true},
		{"server with sample token", func(c *Config) {
			c.Server = true
			c.TelegramToken = SampleToken
		}, true},
		{"interactive with sample token", func(c *Config) {
			c.TelegramToken = SampleToken
		}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := Validate(cfg)
			if tc.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoadMergedEnvWinsOverOptions(t *testing.T) {
	isolateConfigRoot(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("MANGA_MAIN_URL", "https://env.example.com/manga/")

	cfg, _, err := LoadMerged(Options{
		IgnoreConfig: true,
		IndexURL:     "https://flag.example.com/manga/",
	})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.TelegramToken != "env-token" {
		t.Errorf("expected env token, got %q", cfg.TelegramToken)
	}
	if cfg.IndexURL != "https://env.example.com/manga/" {
		t.Errorf("environment must win over flags, got %q", cfg.IndexURL)
	}
}

func TestLoadMergedFlagsOverrideDefaults(t *testing.T) {
	isolateConfigRoot(t)

	cfg, _, err := LoadMerged(Options{
		IgnoreConfig: true,
		IndexURL:     "https://flag.example.com/manga/",
		StorageRoot:  "/tmp/elsewhere",
		Server:       true,
		Debug:        true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.IndexURL != "https://flag.example.com/manga/" {
		t.Errorf("unexpected index url %q", cfg.IndexURL)
	}
	if cfg.StorageRoot != "/tmp/elsewhere" {
		t.Errorf("unexpected storage root %q", cfg.StorageRoot)
	}
	if !cfg.Server {
		t.Error("server flag must be applied")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("debug flag must raise log level, got %q", cfg.LogLevel)
	}
}

func TestLoadMergedReadsActiveProfile(t *testing.T) {
	isolateConfigRoot(t)

	saved := DefaultConfig()
	saved.IndexURL = "https://profile.example.com/manga/"
	saved.PollIntervalSec = 900

	if err := os.MkdirAll(ConfigsDir(), 0755); err != nil {
		t.Fatal(err)
	}
	if err := SaveYAML(saved, filepath.Join(ConfigsDir(), "Default.yaml")); err != nil {
		t.Fatal(err)
	}
	if err := SwitchConfig("Default"); err != nil {
		t.Fatal(err)
	}

	cfg, usedPath, err := LoadMerged(Options{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.IndexURL != "https://profile.example.com/manga/" {
		t.Errorf("profile values not loaded, got %q", cfg.IndexURL)
	}
	if cfg.PollIntervalSec != 900 {
		t.Errorf("expected profile poll interval 900, got %d", cfg.PollIntervalSec)
	}
	if usedPath != filepath.Join(ConfigsDir(), "Default.yaml") {
		t.Errorf("unexpected config path %q", usedPath)
	}
}

func TestStorageLayoutPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageRoot = "/data/manga"

	if got := cfg.LedgerPath(); got != filepath.Join("/data/manga", "downloaded_chapters.txt") {
		t.Errorf("unexpected ledger path %q", got)
	}
	if got := cfg.ScreenshotDir(); got != filepath.Join("/data/manga", "screenshots") {
		t.Errorf("unexpected screenshot dir %q", got)
	}
	if got := cfg.QuarantineDir(); got != filepath.Join("/data/manga", "problem_images") {
		t.Errorf("unexpected quarantine dir %q", got)
	}
	if got := cfg.LogPath(); got != filepath.Join("/data/manga", "mangawatch.log") {
		t.Errorf("unexpected log path %q", got)
	}
}

func TestEnsureDirs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageRoot = filepath.Join(t.TempDir(), "store")

	if err := EnsureDirs(cfg); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}

	for _, dir := range []string{cfg.StorageRoot, cfg.ScreenshotDir(), cfg.QuarantineDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("missing directory %s: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}
