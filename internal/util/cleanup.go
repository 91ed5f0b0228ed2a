package util

import (
	"context"
	"os"
	"time"
)

// Sleep waits for d or until ctx is cancelled, whichever comes first. All
// orchestration waits go through this so shutdown unwinds promptly.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CleanupFolder removes a chapter image directory after successful
// delivery.
func CleanupFolder(folder string) {
	_ = os.RemoveAll(folder)
}

// RemoveIfEmpty deletes dir when nothing is left inside it.
func RemoveIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	if len(entries) == 0 {
		_ = os.Remove(dir)
	}
}
