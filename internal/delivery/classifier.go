// Package delivery decides the outbound channel and caption for a downloaded artifact
package delivery

import (
	"fmt"
	"path/filepath"
	"strings"

	"media-fetch-bot/pkg/models"
)

const (
	// VideoSizeLimit is the upper bound (exclusive) for the video channel
	VideoSizeLimit = 50 * 1024 * 1024
	// OversizeLimit marks uploads the platform is likely to reject
	OversizeLimit = 2 * 1024 * 1024 * 1024
	// MaxTitleLength bounds the caption title in runes
	MaxTitleLength = 100
)

// Classify derives the delivery decision purely from the result's
// size/kind and static thresholds. Any non-audio result under the
// video limit goes out on the video channel regardless of its kind;
// boundaries are inclusive on the document side, so an exactly 50 MiB
// result goes out as a document.
func Classify(result *models.DownloadResult, meta *models.VideoMetadata) models.DeliveryDecision {
	decision := models.DeliveryDecision{
		Caption: Caption(meta, result),
	}

	switch {
	case result.Kind == models.KindAudio:
		decision.Channel = models.ChannelAudio
	case result.Size < VideoSizeLimit:
		decision.Channel = models.ChannelVideo
	default:
		decision.Channel = models.ChannelDocument
		decision.Oversized = result.Size > OversizeLimit
	}

	return decision
}

// Caption builds "<title> (<size>)" with the title truncated to a
// bounded length. An empty title falls back to the artifact filename.
func Caption(meta *models.VideoMetadata, result *models.DownloadResult) string {
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(result.Path), filepath.Ext(result.Path))
	}

	runes := []rune(title)
	if len(runes) > MaxTitleLength {
		title = string(runes[:MaxTitleLength-1]) + "…"
	}

	return fmt.Sprintf("%s (%s)", title, FormatSize(result.Size))
}

// FormatSize renders a byte count the way download tools report it:
// binary magnitudes with one decimal place.
func FormatSize(size int64) string {
	const (
		kib = 1024
		mib = 1024 * kib
		gib = 1024 * mib
	)

	switch {
	case size >= gib:
		return fmt.Sprintf("%.1f GB", float64(size)/gib)
	case size >= mib:
		return fmt.Sprintf("%.1f MB", float64(size)/mib)
	case size >= kib:
		return fmt.Sprintf("%.1f KB", float64(size)/kib)
	default:
		return fmt.Sprintf("%d B", size)
	}
}
