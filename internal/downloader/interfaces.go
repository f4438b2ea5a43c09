package downloader

import (
	"context"

	"media-fetch-bot/internal/ytdlp"
	"media-fetch-bot/pkg/models"
)

// Engine defines the extraction-engine operations used by the pipeline
//
//go:generate mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks
type Engine interface {
	// Probe queries remote metadata without downloading
	Probe(ctx context.Context, url string) (*models.VideoMetadata, error)

	// Download fetches media into the options' output directory
	Download(ctx context.Context, opts ytdlp.DownloadOptions) error
}
