package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Janitor removes orphaned scratch directories left behind by crashed
// or killed processes. In-flight requests are protected by the age
// threshold, which must exceed the download timeout.
type Janitor struct {
	scratchRoot string
	maxAge      time.Duration
	logger      *slog.Logger
}

// NewJanitor creates a janitor for the given scratch root
func NewJanitor(scratchRoot string, maxAge time.Duration) *Janitor {
	return &Janitor{
		scratchRoot: scratchRoot,
		maxAge:      maxAge,
		logger:      slog.Default(),
	}
}

// Sweep removes request scratch directories older than the age
// threshold and returns how many were removed
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.scratchRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read scratch root: %w", err)
	}

	cutoff := time.Now().Add(-j.maxAge)
	removed := 0

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "req-") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		dir := filepath.Join(j.scratchRoot, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			j.logger.Warn("Failed to remove orphaned scratch directory", "dir", dir, "error", err)
			continue
		}

		j.logger.Info("Removed orphaned scratch directory", "dir", dir)
		removed++
	}

	return removed, nil
}

// Run sweeps on an interval until the context is cancelled
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("Scratch janitor shutting down")
			return
		case <-ticker.C:
			if _, err := j.Sweep(); err != nil {
				j.logger.Error("Scratch sweep failed", "error", err)
			}
		}
	}
}
