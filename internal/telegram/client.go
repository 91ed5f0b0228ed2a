// Package telegram publishes finished chapter PDFs to a channel. Only the
// publish contract and its failure taxonomy matter to the rest of the
// system.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	// Telegram rejects captions above 1024 characters; truncate a little
	// earlier and mark the cut.
	maxCaptionRunes = 1020

)

// Bot API document ceiling is 50MB. Oversize uploads are attempted
// anyway and only warned about, matching the service's own behavior
// of rejecting at its side.
var sizeWarnBytes = int64(math.Floor(49.8 * (1 << 20)))

// Delivery failure classes, coarse enough for the orchestrator's retry
// policy.
var (
	ErrNetwork    = errors.New("telegram network error")
	ErrBadRequest = errors.New("telegram bad request")
	ErrTimedOut   = errors.New("telegram request timed out")
	ErrAPI        = errors.New("telegram api error")
)

type Client struct {
	bot     *tgbotapi.BotAPI
	channel string
	chatID  int64
	log     *slog.Logger
}

func New(token, channel string, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	httpClient := &http.Client{Timeout: 4 * time.Minute}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", classify(err))
	}

	c := &Client{bot: bot, channel: channel, log: log}
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		// Numeric chat id rather than an @username.
		c.chatID = id
		c.channel = ""
	}

	log.Info("telegram bot initialized", "bot", bot.Self.UserName, "channel", channel)
	return c, nil
}

// PublishDocument uploads the file to the configured channel with the
// given caption. The caption is truncated to the service limit before
// sending.
func (c *Client) PublishDocument(ctx context.Context, path, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("document not found: %w", err)
	}
	if info.Size() > sizeWarnBytes {
		c.log.Warn("document may exceed the delivery size ceiling",
			"path", path, "size_mb", fmt.Sprintf("%.2f", float64(info.Size())/(1<<20)))
	}

	doc := tgbotapi.DocumentConfig{
		BaseFile: tgbotapi.BaseFile{
			BaseChat: tgbotapi.BaseChat{
				ChatID:          c.chatID,
				ChannelUsername: c.channel,
			},
			File: tgbotapi.FilePath(path),
		},
	}
	doc.Caption = truncateCaption(caption)

	c.log.Info("uploading document", "file", filepath.Base(path), "channel", c.channel)

	// The bot API has no context plumbing; run the upload aside so
	// cancellation is observable immediately. An abandoned upload keeps
	// running in the background until the client timeout.
	done := make(chan error, 1)
	go func() {
		_, err := c.bot.Send(doc)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return classify(err)
		}
	}

	c.log.Info("document published", "file", filepath.Base(path))
	return nil
}

func truncateCaption(caption string) string {
	runes := []rune(caption)
	if len(runes) <= maxCaptionRunes {
		return caption
	}
	return string(runes[:maxCaptionRunes]) + "..."
}

// classify maps transport and API errors onto the delivery failure
// taxonomy while preserving the underlying message.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusBadRequest {
			return fmt.Errorf("%w: %s", ErrBadRequest, apiErr.Message)
		}
		return fmt.Errorf("%w: %d %s", ErrAPI, apiErr.Code, apiErr.Message)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimedOut, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	return fmt.Errorf("%w: %v", ErrAPI, err)
}
