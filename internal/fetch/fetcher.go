// Package fetch downloads single page images over plain HTTP with retry
// and content-type validation.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"

	"github.com/brogergvhs/mangawatch/internal/util"
)

// Known image content types and the file extension each one gets on disk.
// Anything outside this table is not an image and is abandoned without
// retry.
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

var (
	// ErrNotImage marks a response whose content type is not in the image
	// table. Retrying cannot help.
	ErrNotImage = errors.New("response is not an image")

	// ErrDenied marks a 401/403/404. Retrying cannot help either.
	ErrDenied = errors.New("image request denied")
)

// ExtensionByType maps a Content-Type header to a file extension, or ""
// when the type is not a known image type.
func ExtensionByType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.Split(header, ";")[0]))
	}
	return imageExtensions[mt]
}

type ClientOptions struct {
	Timeout   time.Duration
	UserAgent string
	Referer   string
}

// NewClient builds the shared image-download client: cookie jar, browser
// fingerprint headers, and the cloudflare bypass transport.
func NewClient(opts ClientOptions) *http.Client {
	jar, _ := cookiejar.New(nil)

	base := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxConnsPerHost:     100,
		MaxIdleConnsPerHost: 100,
		ForceAttemptHTTP2:   true,
	}

	return &http.Client{
		Timeout: opts.Timeout,
		Jar:     jar,
		Transport: roundTripper{
			base:    cloudflarebp.AddCloudFlareByPass(base),
			ua:      opts.UserAgent,
			referer: opts.Referer,
		},
	}
}

type roundTripper struct {
	base    http.RoundTripper
	ua      string
	referer string
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.ua != "" {
		req.Header.Set("User-Agent", rt.ua)
	}
	if rt.referer != "" && req.Header.Get("Referer") == "" {
		req.Header.Set("Referer", rt.referer)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	return rt.base.RoundTrip(req)
}

// Fetcher downloads one image at a time with bounded retry and linear
// backoff.
type Fetcher struct {
	client  *http.Client
	retries int
	timeout time.Duration
	backoff time.Duration
	minSize int64
	log     *slog.Logger
}

func New(client *http.Client, retries int, timeout time.Duration, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	if retries < 1 {
		retries = 1
	}
	return &Fetcher{
		client:  client,
		retries: retries,
		timeout: timeout,
		backoff: 3 * time.Second,
		minSize: 100,
		log:     log,
	}
}

// Download streams the image at url to destBase plus the extension chosen
// from the response content type, and returns the written path. Permanent
// failures (denied status, non-image content) abandon immediately;
// transient ones retry with linearly increasing delay.
func (f *Fetcher) Download(ctx context.Context, url, destBase string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= f.retries; attempt++ {
		path, err := f.attempt(ctx, url, destBase)
		if err == nil {
			return path, nil
		}
		if errors.Is(err, ErrDenied) || errors.Is(err, ErrNotImage) || ctx.Err() != nil {
			return "", err
		}

		lastErr = err
		f.log.Warn("image download attempt failed", "url", url, "attempt", attempt, "error", err)

		if attempt < f.retries {
			if err := util.Sleep(ctx, f.backoff*time.Duration(attempt)); err != nil {
				return "", err
			}
		}
	}

	return "", fmt.Errorf("download failed after %d attempts: %w", f.retries, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, url, destBase string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return "", fmt.Errorf("HTTP %d: %w", resp.StatusCode, ErrDenied)
	default:
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	ext := ExtensionByType(resp.Header.Get("Content-Type"))
	if ext == "" {
		return "", fmt.Errorf("content type %q: %w", resp.Header.Get("Content-Type"), ErrNotImage)
	}

	path := destBase + ext
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}

	written, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()

	if copyErr != nil || closeErr != nil || written < f.minSize {
		_ = os.Remove(path)
		if copyErr != nil {
			return "", copyErr
		}
		if closeErr != nil {
			return "", closeErr
		}
		return "", fmt.Errorf("downloaded file too small (%d bytes)", written)
	}

	return path, nil
}
