// Package ytdlp wraps the yt-dlp binary as the media extraction engine
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"media-fetch-bot/pkg/models"
)

// probeInfo is the subset of yt-dlp's -J output the prober consumes
type probeInfo struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Uploader       string  `json:"uploader"`
	Duration       float64 `json:"duration"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
}

// DownloadOptions describes one engine download invocation
type DownloadOptions struct {
	URL          string
	FormatSpec   string
	ExtractAudio bool
	OutputDir    string
	OnProgress   func(Progress)
}

// Client runs the yt-dlp binary
type Client struct {
	binPath      string
	probeTimeout time.Duration
	logger       *slog.Logger
}

// New creates a new engine client around the given yt-dlp binary
func New(binPath string, probeTimeout time.Duration) *Client {
	return &Client{
		binPath:      binPath,
		probeTimeout: probeTimeout,
		logger:       slog.Default(),
	}
}

// Version reports the engine binary version, used as a startup check
func (c *Client) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, c.binPath, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to run %s: %w", c.binPath, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Probe queries title/duration/size for a URL without downloading.
// The call is bounded by the configured probe timeout.
func (c *Client) Probe(ctx context.Context, url string) (*models.VideoMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binPath,
		"-J",
		"--no-playlist",
		"--skip-download",
		"--no-warnings",
		url,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("probe timed out after %s", c.probeTimeout)
		}
		return nil, fmt.Errorf("probe failed: %s", firstLine(stderr.String(), err))
	}

	var info probeInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("failed to parse probe output: %w", err)
	}

	size := info.Filesize
	if size == 0 {
		size = info.FilesizeApprox
	}

	return &models.VideoMetadata{
		Title:         info.Title,
		Duration:      int64(info.Duration),
		EstimatedSize: size,
		SourceID:      info.ID,
		Uploader:      info.Uploader,
	}, nil
}

// Download fetches media into opts.OutputDir, forwarding raw progress
// samples parsed from the engine's line output. It returns once the
// engine exits; cancellation is the caller's context.
func (c *Client) Download(ctx context.Context, opts DownloadOptions) error {
	args := []string{
		"--newline",
		"--no-playlist",
		"--no-warnings",
		"-o", filepath.Join(opts.OutputDir, "%(title)s.%(ext)s"),
	}

	if opts.FormatSpec != "" {
		args = append(args, "-f", opts.FormatSpec)
	}
	if opts.ExtractAudio {
		args = append(args, "-x", "--audio-format", "mp3")
	}

	args = append(args, opts.URL)

	cmd := exec.CommandContext(ctx, c.binPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to attach to engine output: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if progress, ok := parseProgressLine(line); ok && opts.OnProgress != nil {
			opts.OnProgress(progress)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("engine exited with error: %s", firstLine(stderr.String(), err))
	}

	return nil
}

// firstLine trims engine stderr down to a single diagnostic line
func firstLine(stderr string, fallback error) string {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return fallback.Error()
}
