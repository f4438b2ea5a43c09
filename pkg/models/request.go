// Package models defines the data structures used throughout the application
package models

import (
	"os"
	"time"
)

// FormatProfile selects the quality profile requested by the user
type FormatProfile string

const (
	ProfileAuto      FormatProfile = "auto"
	ProfileVideo720  FormatProfile = "video-720"
	ProfileVideo1080 FormatProfile = "video-1080"
	ProfileAudio     FormatProfile = "audio"
)

// RequestStatus represents where a request is in the pipeline
type RequestStatus string

const (
	StatusReceived       RequestStatus = "received"
	StatusClassified     RequestStatus = "classified"
	StatusRejected       RequestStatus = "rejected"
	StatusRateLimited    RequestStatus = "rate_limited"
	StatusProbing        RequestStatus = "probing"
	StatusProbeFailed    RequestStatus = "probe_failed"
	StatusDownloading    RequestStatus = "downloading"
	StatusDownloadFailed RequestStatus = "download_failed"
	StatusTooLong        RequestStatus = "too_long"
	StatusDelivering     RequestStatus = "delivering"
	StatusDelivered      RequestStatus = "delivered"
	StatusDeliveryFailed RequestStatus = "delivery_failed"
	StatusFailed         RequestStatus = "failed"
)

// Terminal reports whether the status ends the request's state machine
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusRateLimited, StatusProbeFailed,
		StatusDownloadFailed, StatusTooLong, StatusDelivered,
		StatusDeliveryFailed, StatusFailed:
		return true
	}
	return false
}

// DownloadRequest is created once a classified URL passes rate limiting.
// It is immutable after creation.
type DownloadRequest struct {
	ID        string
	ChatID    int64
	UserID    int64
	MessageID int
	RawText   string
	URL       string
	Profile   FormatProfile
	CreatedAt time.Time
}

// VideoMetadata holds the probe result. Duration and EstimatedSize are
// best effort: zero means unknown, not empty.
type VideoMetadata struct {
	Title         string
	Duration      int64
	EstimatedSize int64
	SourceID      string
	Uploader      string
}

// ProgressPhase labels a ProgressEvent
type ProgressPhase string

const (
	PhaseDownloading    ProgressPhase = "downloading"
	PhasePostprocessing ProgressPhase = "postprocessing"
	PhaseFinished       ProgressPhase = "finished"
)

// ProgressEvent is an ephemeral, throttled status update for one request.
// Percent never decreases for a single request until PhaseFinished.
type ProgressEvent struct {
	Percent  float64
	SpeedBPS float64
	ETA      time.Duration
	Phase    ProgressPhase
}

// MediaKind classifies the downloaded artifact
type MediaKind string

const (
	KindVideo    MediaKind = "video"
	KindAudio    MediaKind = "audio"
	KindDocument MediaKind = "document"
)

// DownloadResult references the artifact produced for a single request.
// The scratch directory is exclusive to the request that produced it and
// must be released via Cleanup on every exit path.
type DownloadResult struct {
	Path       string
	Size       int64
	Kind       MediaKind
	ScratchDir string
}

// Cleanup removes the result's scratch directory and everything in it
func (r *DownloadResult) Cleanup() error {
	if r.ScratchDir == "" {
		return nil
	}
	return os.RemoveAll(r.ScratchDir)
}

// DeliveryChannel is the outbound message category for the artifact
type DeliveryChannel string

const (
	ChannelVideo    DeliveryChannel = "video"
	ChannelDocument DeliveryChannel = "document"
	ChannelAudio    DeliveryChannel = "audio"
)

// DeliveryDecision is derived purely from DownloadResult size/kind and
// static thresholds
type DeliveryDecision struct {
	Channel   DeliveryChannel
	Caption   string
	Oversized bool
}

// RequestRecord is the persisted history row for a request
type RequestRecord struct {
	ID           string        `json:"id" db:"id"`
	ChatID       int64         `json:"chat_id" db:"chat_id"`
	UserID       int64         `json:"user_id" db:"user_id"`
	URL          string        `json:"url" db:"url"`
	Profile      FormatProfile `json:"profile" db:"profile"`
	Status       RequestStatus `json:"status" db:"status"`
	ErrorMessage string        `json:"error_message" db:"error_message"`
	FileSize     int64         `json:"file_size" db:"file_size"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
	CompletedAt  *time.Time    `json:"completed_at" db:"completed_at"`
}
