package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Sample credentials shipped with the default profile. Running the server
// profile without overriding them is a startup error.
const (
	SampleToken   = "000000000:REPLACE_WITH_REAL_BOT_TOKEN"
	SampleChannel = "@replace_with_real_channel"
)

type Config struct {
	StorageRoot string `yaml:"storage_root"`
	IndexURL    string `yaml:"index_url"`

	TelegramToken   string `yaml:"telegram_token"`
	TelegramChannel string `yaml:"telegram_channel"`

	// Server selects the headless browser profile. Interactive runs keep
	// the browser visible and enable progress bars.
	Server bool `yaml:"server"`

	PollIntervalSec    int `yaml:"poll_interval_sec"`
	PageLoadTimeoutSec int `yaml:"page_load_timeout_sec"`
	ElementWaitSec     int `yaml:"element_wait_sec"`
	DownloadTimeoutSec int `yaml:"download_timeout_sec"`

	DownloadRetries int `yaml:"download_retries"`
	ChapterAttempts int `yaml:"chapter_attempts"`
	JPEGQuality     int `yaml:"jpeg_quality"`

	CleanupImages bool   `yaml:"cleanup_images"`
	UserAgent     string `yaml:"user_agent"`

	LogLevel string `yaml:"log_level"`
	LogFile  bool   `yaml:"log_file"`
}

type Options struct {
	IgnoreConfig bool
	Debug        bool

	IndexURL    string
	StorageRoot string
	Server      bool
}

func DefaultConfig() *Config {
	return &Config{
		StorageRoot:        "downloads",
		IndexURL:           "",
		TelegramToken:      SampleToken,
		TelegramChannel:    SampleChannel,
		Server:             false,
		PollIntervalSec:    3600,
		PageLoadTimeoutSec: 120,
		ElementWaitSec:     60,
		DownloadTimeoutSec: 75,
		DownloadRetries:    3,
		ChapterAttempts:    1,
		JPEGQuality:        85,
		CleanupImages:      true,
		UserAgent:          "",
		LogLevel:           "info",
		LogFile:            true,
	}
}

func SaveYAML(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func loadYAML(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	return &c, nil
}

// LoadMerged resolves the effective config: active profile file (unless
// ignored), then CLI options, then environment variables. Environment
// always wins for credentials so hosted deployments never depend on what
// is inside a checked-in profile.
func LoadMerged(opts Options) (*Config, string, error) {
	if opts.IgnoreConfig {
		cfg := DefaultConfig()
		mergeConfig(cfg, opts)
		mergeEnv(cfg)
		normalizeDefaults(cfg)
		return cfg, "(ignored config)", nil
	}

	activePath, err := ActiveConfigPath()
	if err == ErrNoConfig || activePath == "" {
		cfg := DefaultConfig()
		mergeConfig(cfg, opts)
		mergeEnv(cfg)
		normalizeDefaults(cfg)
		return cfg, "(default config in memory)\nRun `mangawatch config init` to create an actual config\n", nil
	}
	if err != nil {
		return nil, "", err
	}

	cfg, err := loadYAML(activePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config %s: %w", activePath, err)
	}

	mergeConfig(cfg, opts)
	mergeEnv(cfg)
	normalizeDefaults(cfg)

	return cfg, activePath, nil
}

func mergeConfig(c *Config, o Options) {
	if o.IndexURL != "" {
		c.IndexURL = o.IndexURL
	}
	if o.StorageRoot != "" {
		c.StorageRoot = o.StorageRoot
	}
	if o.Server {
		c.Server = true
	}
	if o.Debug {
		c.LogLevel = "debug"
	}
}

// mergeEnv applies environment overrides. A .env file next to the process
// is honored when present; real environment variables still win.
func mergeEnv(c *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.TelegramToken = v
	}
	if v := os.Getenv("TELEGRAM_CHANNEL_ID"); v != "" {
		c.TelegramChannel = v
	}
	if v := os.Getenv("MANGA_MAIN_URL"); v != "" {
		c.IndexURL = v
	}
	if v := os.Getenv("MANGAWATCH_STORAGE_ROOT"); v != "" {
		c.StorageRoot = v
	}
	if v := os.Getenv("MANGAWATCH_SERVER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Server = b
		}
	}
}

func normalizeDefaults(c *Config) {
	if c.StorageRoot == "" {
		c.StorageRoot = "downloads"
	}
	if c.PollIntervalSec <= 0 {
		c.PollIntervalSec = 3600
	}
	if c.PageLoadTimeoutSec <= 0 {
		c.PageLoadTimeoutSec = 120
	}
	if c.ElementWaitSec <= 0 {
		c.ElementWaitSec = 60
	}
	if c.DownloadTimeoutSec <= 0 {
		c.DownloadTimeoutSec = 75
	}
	if c.DownloadRetries <= 0 {
		c.DownloadRetries = 3
	}
	if c.ChapterAttempts <= 0 {
		c.ChapterAttempts = 1
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = 85
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports fatal configuration problems. Callers exit nonzero on a
// non-nil result.
func Validate(c *Config) error {
	if strings.TrimSpace(c.IndexURL) == "" {
		return errors.New("index_url is not set (flag --url, config, or MANGA_MAIN_URL)")
	}
	if strings.TrimSpace(c.TelegramToken) == "" {
		return errors.New("telegram_token is not set")
	}
	if strings.TrimSpace(c.TelegramChannel) == "" {
		return errors.New("telegram_channel is not set")
	}
	if c.Server && (c.TelegramToken == SampleToken || c.TelegramChannel == SampleChannel) {
		return errors.New("server profile is running with sample Telegram credentials; set TELEGRAM_BOT_TOKEN and TELEGRAM_CHANNEL_ID")
	}

	return nil
}

// EnsureDirs creates the on-disk layout under the storage root. Failure to
// create the root itself is fatal for the process.
func EnsureDirs(c *Config) error {
	for _, dir := range []string{
		c.StorageRoot,
		c.ScreenshotDir(),
		c.QuarantineDir(),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

func (c *Config) ScreenshotDir() string {
	return filepath.Join(c.StorageRoot, "screenshots")
}

func (c *Config) QuarantineDir() string {
	return filepath.Join(c.StorageRoot, "problem_images")
}

func (c *Config) LedgerPath() string {
	return filepath.Join(c.StorageRoot, "downloaded_chapters.txt")
}

func (c *Config) LogPath() string {
	return filepath.Join(c.StorageRoot, "mangawatch.log")
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

func (c *Config) PageLoadTimeout() time.Duration {
	return time.Duration(c.PageLoadTimeoutSec) * time.Second
}

func (c *Config) ElementWait() time.Duration {
	return time.Duration(c.ElementWaitSec) * time.Second
}

func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSec) * time.Second
}

func (c *Config) Print() {
	fmt.Printf(" -storage_root: %s\n", c.StorageRoot)
	if c.IndexURL != "" {
		fmt.Printf(" -index_url: %s\n", c.IndexURL)
	}
	fmt.Printf(" -telegram_channel: %s\n", c.TelegramChannel)
	fmt.Printf(" -server: %t\n", c.Server)
	fmt.Printf(" -poll_interval_sec: %d\n", c.PollIntervalSec)
	fmt.Printf(" -page_load_timeout_sec: %d\n", c.PageLoadTimeoutSec)
	fmt.Printf(" -element_wait_sec: %d\n", c.ElementWaitSec)
	fmt.Printf(" -download_timeout_sec: %d\n", c.DownloadTimeoutSec)
	fmt.Printf(" -download_retries: %d\n", c.DownloadRetries)
	fmt.Printf(" -chapter_attempts: %d\n", c.ChapterAttempts)
	fmt.Printf(" -jpeg_quality: %d\n", c.JPEGQuality)
	fmt.Printf(" -cleanup_images: %t\n", c.CleanupImages)
	if c.UserAgent != "" {
		fmt.Printf(" -user_agent: %s\n", c.UserAgent)
	}
	fmt.Printf(" -log_level: %s\n", c.LogLevel)
	fmt.Printf(" -log_file: %t\n", c.LogFile)
}
