// Package downloader implements the download orchestration for a single request
package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"media-fetch-bot/internal/ytdlp"
	"media-fetch-bot/pkg/models"
)

// Failure taxonomy for a download attempt. None of these are retried
// automatically; the user may resubmit.
var (
	ErrTooLong          = errors.New("media exceeds the duration ceiling")
	ErrExtractionFailed = errors.New("extraction engine failed")
	ErrArtifactNotFound = errors.New("no unambiguous artifact produced")
	ErrTimeout          = errors.New("download timed out")
)

// partialSuffixes mark in-progress engine output that must never be
// picked up as the artifact
var partialSuffixes = []string{".part", ".ytdl", ".tmp", ".temp"}

var audioExtensions = map[string]bool{
	".mp3": true, ".m4a": true, ".aac": true, ".opus": true,
	".ogg": true, ".oga": true, ".flac": true, ".wav": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".webm": true, ".mov": true,
	".avi": true, ".m4v": true, ".ts": true,
}

// Config holds the orchestrator's tunables
type Config struct {
	ScratchRoot      string
	MaxDuration      time.Duration
	DownloadTimeout  time.Duration
	ProgressInterval time.Duration
}

// Orchestrator selects a format profile, supervises the engine and
// locates the produced artifact
type Orchestrator struct {
	engine Engine
	cfg    Config
	logger *slog.Logger
}

// NewOrchestrator creates a new orchestrator around an engine
func NewOrchestrator(engine Engine, cfg Config) *Orchestrator {
	return &Orchestrator{
		engine: engine,
		cfg:    cfg,
		logger: slog.Default(),
	}
}

// Download executes the engine for one request. The scratch directory
// is request-unique; on success the caller owns it through the result's
// Cleanup, on every failure path it is removed here before returning.
func (o *Orchestrator) Download(ctx context.Context, req *models.DownloadRequest, meta *models.VideoMetadata, onProgress func(models.ProgressEvent)) (*models.DownloadResult, error) {
	// Fail fast before touching the engine or the filesystem
	if meta.Duration > 0 && time.Duration(meta.Duration)*time.Second > o.cfg.MaxDuration {
		return nil, fmt.Errorf("%w: %ds (ceiling %s)", ErrTooLong, meta.Duration, o.cfg.MaxDuration)
	}

	spec, extractAudio := formatSpecFor(req.Profile)

	scratchDir := filepath.Join(o.cfg.ScratchRoot, "req-"+req.ID)
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	downloadCtx, cancel := context.WithTimeout(ctx, o.cfg.DownloadTimeout)
	defer cancel()

	throttle := newProgressThrottle(o.cfg.ProgressInterval, onProgress)

	o.logger.Info("Starting download",
		"request_id", req.ID,
		"url", req.URL,
		"profile", req.Profile,
		"scratch_dir", scratchDir)

	err := o.engine.Download(downloadCtx, ytdlp.DownloadOptions{
		URL:          req.URL,
		FormatSpec:   spec,
		ExtractAudio: extractAudio,
		OutputDir:    scratchDir,
		OnProgress:   throttle.observe,
	})
	if err != nil {
		o.removeScratch(scratchDir, req.ID)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, o.cfg.DownloadTimeout)
		}
		return nil, fmt.Errorf("%w: %s", ErrExtractionFailed, err)
	}

	artifact, err := findArtifact(scratchDir)
	if err != nil {
		o.removeScratch(scratchDir, req.ID)
		return nil, err
	}

	info, err := os.Stat(artifact)
	if err != nil {
		o.removeScratch(scratchDir, req.ID)
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, err)
	}

	throttle.finish()

	result := &models.DownloadResult{
		Path:       artifact,
		Size:       info.Size(),
		Kind:       mediaKindFor(artifact),
		ScratchDir: scratchDir,
	}

	o.logger.Info("Download completed",
		"request_id", req.ID,
		"artifact", filepath.Base(artifact),
		"size", result.Size,
		"kind", result.Kind)

	return result, nil
}

func (o *Orchestrator) removeScratch(dir, requestID string) {
	if err := os.RemoveAll(dir); err != nil {
		o.logger.Warn("Failed to remove scratch directory", "request_id", requestID, "dir", dir, "error", err)
	}
}

// formatSpecFor maps a profile onto an engine format spec. The auto
// profile resolves to bounded 720p video.
func formatSpecFor(profile models.FormatProfile) (spec string, extractAudio bool) {
	switch profile {
	case models.ProfileVideo1080:
		return "bestvideo[height<=1080]+bestaudio/best[height<=1080]", false
	case models.ProfileAudio:
		return "bestaudio/best", true
	default:
		// auto and video-720
		return "bestvideo[height<=720]+bestaudio/best[height<=720]", false
	}
}

// findArtifact locates exactly one completed file in the scratch
// directory, skipping partial-file markers
func findArtifact(scratchDir string) (string, error) {
	entries, err := os.ReadDir(scratchDir)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrArtifactNotFound, err)
	}

	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() || isPartialFile(entry.Name()) {
			continue
		}
		candidates = append(candidates, filepath.Join(scratchDir, entry.Name()))
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return "", fmt.Errorf("%w: scratch directory is empty", ErrArtifactNotFound)
	default:
		return "", fmt.Errorf("%w: %d ambiguous candidates", ErrArtifactNotFound, len(candidates))
	}
}

func isPartialFile(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	// Fragment files like video.mp4.part-Frag3
	return strings.Contains(lower, ".part-")
}

// mediaKindFor classifies the artifact by extension
func mediaKindFor(path string) models.MediaKind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case audioExtensions[ext]:
		return models.KindAudio
	case videoExtensions[ext]:
		return models.KindVideo
	default:
		return models.KindDocument
	}
}

// progressThrottle turns raw engine samples into throttled, monotonic
// ProgressEvents. Samples arrive on the engine's goroutine; emission
// order is preserved because observe is called sequentially.
type progressThrottle struct {
	interval   time.Duration
	emit       func(models.ProgressEvent)
	lastEmit   time.Time
	maxPercent float64
	postproc   bool
}

func newProgressThrottle(interval time.Duration, emit func(models.ProgressEvent)) *progressThrottle {
	return &progressThrottle{interval: interval, emit: emit}
}

func (p *progressThrottle) observe(raw ytdlp.Progress) {
	if p.emit == nil {
		return
	}

	// Percent estimates never go backwards for a single request
	if raw.Percent > p.maxPercent {
		p.maxPercent = raw.Percent
	}

	phaseChanged := raw.Postprocessing && !p.postproc
	if raw.Postprocessing {
		p.postproc = true
	}

	now := time.Now()
	if !phaseChanged && !p.lastEmit.IsZero() && now.Sub(p.lastEmit) < p.interval {
		return
	}
	p.lastEmit = now

	phase := models.PhaseDownloading
	if p.postproc {
		phase = models.PhasePostprocessing
	}

	p.emit(models.ProgressEvent{
		Percent:  p.maxPercent,
		SpeedBPS: raw.SpeedBPS,
		ETA:      raw.ETA,
		Phase:    phase,
	})
}

// finish emits the terminal event regardless of throttling
func (p *progressThrottle) finish() {
	if p.emit == nil {
		return
	}
	p.emit(models.ProgressEvent{Percent: 100, Phase: models.PhaseFinished})
}
