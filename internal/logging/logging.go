// Package logging builds the process-wide slog logger: a tinted console
// handler on stdout plus an optional JSON sink inside the storage root.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

type Options struct {
	Level    string
	FilePath string // empty disables the file sink
}

func New(opts Options) (*slog.Logger, func(), error) {
	level := parseLevel(opts.Level)

	console := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
	})

	if opts.FilePath == "" {
		return slog.New(console), func() {}, nil
	}

	f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}

	file := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	closeFn := func() { _ = f.Close() }

	return slog.New(teeHandler{console, file}), closeFn, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// teeHandler fans every record out to both sinks.
type teeHandler struct {
	console slog.Handler
	file    slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.console.Enabled(ctx, level) || t.file.Enabled(ctx, level)
}

func (t teeHandler) Handle(ctx context.Context, rec slog.Record) error {
	var first error
	if t.console.Enabled(ctx, rec.Level) {
		first = t.console.Handle(ctx, rec.Clone())
	}
	if t.file.Enabled(ctx, rec.Level) {
		if err := t.file.Handle(ctx, rec.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{t.console.WithAttrs(attrs), t.file.WithAttrs(attrs)}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{t.console.WithGroup(name), t.file.WithGroup(name)}
}
