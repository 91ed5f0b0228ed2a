// Package ledger keeps the durable record of chapter titles that were
// delivered at least once. It is the sole source of truth for "already
// processed": newline-delimited UTF-8 titles, append-only, loaded once at
// startup and kept in sync in memory afterwards.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

type Ledger struct {
	path string

	mu     sync.Mutex
	titles map[string]struct{}
}

// Load reads the ledger file at path. A missing file is an empty ledger.
func Load(path string) (*Ledger, error) {
	l := &Ledger{
		path:   path,
		titles: make(map[string]struct{}),
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		title := strings.TrimSpace(sc.Text())
		if title == "" {
			continue
		}
		l.titles[title] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	return l, nil
}

// Has reports whether the chapter title was already delivered.
func (l *Ledger) Has(title string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.titles[title]
	return ok
}

// Record appends the title to the ledger file and the in-memory set. The
// append happens first: a crash between delivery and Record means the
// chapter is redelivered on restart (at-least-once, never lost).
func (l *Ledger) Record(title string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.titles[title]; ok {
		return nil
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open ledger for append: %w", err)
	}

	if _, err := f.WriteString(title + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("append ledger entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}

	l.titles[title] = struct{}{}
	return nil
}

// Len is the number of recorded titles.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.titles)
}
