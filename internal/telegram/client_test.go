package telegram

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestTruncateCaption(t *testing.T) {
	short := "Chapter 12"
	if got := truncateCaption(short); got != short {
		t.Errorf("short caption must pass through, got %q", got)
	}

	long := strings.Repeat("글", 1500)
	got := truncateCaption(long)
	runes := []rune(got)
	if len(runes) != maxCaptionRunes+3 {
		t.Errorf("expected %d runes, got %d", maxCaptionRunes+3, len(runes))
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncated caption must end with ellipsis")
	}
}

func TestPublishDocumentObservesCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "getMe") {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"t","username":"testbot"}}`))
			return
		}
		// Hold the upload until the test lets go.
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()
	defer close(release)

	bot, err := tgbotapi.NewBotAPIWithClient("123:token", srv.URL+"/bot%s/%s", &http.Client{})
	if err != nil {
		t.Fatalf("init bot: %v", err)
	}
	c := &Client{bot: bot, channel: "@test", log: discard()}

	doc := filepath.Join(t.TempDir(), "chapter.pdf")
	if err := os.WriteFile(doc, []byte("%PDF-stub"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err = c.PublishDocument(ctx, doc, "Chapter 1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation took %v to observe", elapsed)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"bad request", &tgbotapi.Error{Code: http.StatusBadRequest, Message: "chat not found"}, ErrBadRequest},
		{"api error", &tgbotapi.Error{Code: http.StatusTooManyRequests, Message: "flood"}, ErrAPI},
		{"url error", &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: errors.New("refused")}, ErrNetwork},
		{"other", errors.New("boom"), ErrAPI},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.err)
			if tc.want == nil {
				if got != nil {
					t.Errorf("expected nil, got %v", got)
				}
				return
			}
			if !errors.Is(got, tc.want) {
				t.Errorf("expected %v class, got %v", tc.want, got)
			}
		})
	}
}
