package fetch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testFetcher(t *testing.T, retries int) *Fetcher {
	t.Helper()
	f := New(&http.Client{}, retries, 5*time.Second, discard())
	f.backoff = time.Millisecond
	return f
}

func imageBody() []byte {
	return bytes.Repeat([]byte{0xFF}, 4096)
}

func TestDownloadWritesFileWithContentTypeExtension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png; charset=binary")
		_, _ = w.Write(imageBody())
	}))
	defer srv.Close()

	base := filepath.Join(t.TempDir(), "page_0001")
	path, err := testFetcher(t, 3).Download(context.Background(), srv.URL, base)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if path != base+".png" {
		t.Errorf("expected .png extension, got %q", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat downloaded file: %v", err)
	}
	if info.Size() != 4096 {
		t.Errorf("expected 4096 bytes, got %d", info.Size())
	}
}

func TestDownloadDeniedNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testFetcher(t, 3).Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "p"))
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("denied response must not be retried, got %d calls", calls.Load())
	}
}

func TestDownloadNotImageNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>slow down</html>"))
	}))
	defer srv.Close()

	_, err := testFetcher(t, 3).Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "p"))
	if !errors.Is(err, ErrNotImage) {
		t.Fatalf("expected ErrNotImage, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("non-image response must not be retried, got %d calls", calls.Load())
	}
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(imageBody())
	}))
	defer srv.Close()

	path, err := testFetcher(t, 3).Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "p"))
	if err != nil {
		t.Fatalf("expected third attempt to succeed, got %v", err)
	}
	if !strings.HasSuffix(path, ".jpg") {
		t.Errorf("expected .jpg, got %q", path)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestDownloadRejectsUndersizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("tiny"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := testFetcher(t, 2).Download(context.Background(), srv.URL, filepath.Join(dir, "p"))
	if err == nil {
		t.Fatal("expected error for undersized body")
	}

	if _, statErr := os.Stat(filepath.Join(dir, "p.jpg")); !os.IsNotExist(statErr) {
		t.Error("undersized file must be deleted")
	}
}

func TestDownloadExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testFetcher(t, 3).Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "p"))
	if err == nil {
		t.Fatal("expected failure after retry budget")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestExtensionByType(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"image/jpeg", ".jpg"},
		{"image/png; charset=binary", ".png"},
		{"IMAGE/WEBP", ".webp"},
		{"text/html", ""},
		{"", ""},
	}

	for _, tc := range cases {
		if got := ExtensionByType(tc.header); got != tc.want {
			t.Errorf("ExtensionByType(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
