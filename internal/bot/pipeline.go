package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"media-fetch-bot/internal/delivery"
	"media-fetch-bot/internal/downloader"
	"media-fetch-bot/internal/telegram"
	"media-fetch-bot/internal/urlparse"
	"media-fetch-bot/pkg/models"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const (
	welcomeText = "Send me a media URL and I'll fetch it for you.\n\n" +
		"Optionally add a profile after the URL: auto, video-720, video-1080 or audio.\n" +
		"Example: https://youtu.be/abc12345678 audio"
	usageHintText = "That doesn't look like a supported media URL. " +
		"Send a YouTube link, e.g. https://youtu.be/abc12345678"
	probeFailedText    = "Couldn't fetch media info. The source may be private, age-restricted or unavailable."
	downloadFailedText = "Download failed. The source may be unavailable, feel free to try again later."
	oversizeWarnText   = "Heads up: the file is larger than 2 GB, the upload may be rejected by the platform."
	uploadFailedText   = "The download succeeded but the upload was rejected by the platform."
)

// maxDiagnosticLength bounds the internal-error detail shown to users
const maxDiagnosticLength = 120

var validProfiles = map[models.FormatProfile]bool{
	models.ProfileAuto:      true,
	models.ProfileVideo720:  true,
	models.ProfileVideo1080: true,
	models.ProfileAudio:     true,
}

// handleUpdate drives one inbound update through the pipeline. Every
// path ends in exactly one terminal status, and scratch resources are
// released before returning.
func (w *Worker) handleUpdate(ctx context.Context, update *telegram.Update) {
	if update == nil || update.Message == nil || update.Message.Text == "" {
		return
	}

	msg := update.Message
	chatID := msg.Chat.ID
	userID := chatID
	if msg.From != nil {
		userID = msg.From.ID
	}

	text := strings.TrimSpace(msg.Text)

	if strings.HasPrefix(text, "/start") || strings.HasPrefix(text, "/help") {
		if _, err := w.sendMessage(ctx, chatID, welcomeText); err != nil {
			w.logger.Warn("Failed to send welcome message", "chat_id", chatID, "error", err)
		}
		return
	}

	rawURL, profile := splitInput(text)

	canonical, ok := urlparse.Classify(rawURL)
	if !ok {
		// Input errors are user feedback, not system failures
		if _, err := w.sendMessage(ctx, chatID, usageHintText); err != nil {
			w.logger.Warn("Failed to send usage hint", "chat_id", chatID, "error", err)
		}
		w.recordOutcome(chatID, userID, truncate(text, 200), models.StatusRejected, "unsupported input")
		return
	}

	if allowed, retryAfter := w.limiter.Allow(userID); !allowed {
		hint := fmt.Sprintf("Too many requests. Try again in %d seconds.",
			int(retryAfter.Seconds())+1)
		if _, err := w.sendMessage(ctx, chatID, hint); err != nil {
			w.logger.Warn("Failed to send rate-limit hint", "chat_id", chatID, "error", err)
		}
		w.recordOutcome(chatID, userID, canonical, models.StatusRateLimited,
			fmt.Sprintf("quota exhausted, retry after %s", retryAfter.Round(time.Second)))
		return
	}

	req := &models.DownloadRequest{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		UserID:    userID,
		MessageID: msg.MessageID,
		RawText:   text,
		URL:       canonical,
		Profile:   profile,
		CreatedAt: time.Now(),
	}

	w.logger.Info("Request accepted",
		"request_id", req.ID, "user_id", userID, "url", canonical, "profile", profile)

	record := w.createRecord(req)
	w.recordStatus(record, models.StatusClassified, "", 0)
	w.process(ctx, req, record)
}

// process runs the probe → download → deliver stages for an accepted request
func (w *Worker) process(ctx context.Context, req *models.DownloadRequest, record *models.RequestRecord) {
	status, err := w.sendMessage(ctx, req.ChatID, "Fetching media info…")
	if err != nil {
		// Messaging broke before the probe; this is neither a probe nor
		// a delivery failure
		w.logger.Error("Failed to send status message", "request_id", req.ID, "error", err)
		w.recordStatus(record, models.StatusFailed, err.Error(), 0)
		return
	}
	statusID := status.MessageID

	w.recordStatus(record, models.StatusProbing, "", 0)

	meta, err := w.engine.Probe(ctx, req.URL)
	if err != nil {
		w.logger.Error("Probe failed", "request_id", req.ID, "url", req.URL, "error", err)
		w.recordStatus(record, models.StatusProbeFailed, err.Error(), 0)
		w.editMessage(ctx, req.ChatID, statusID, probeFailedText)
		return
	}

	w.recordStatus(record, models.StatusDownloading, "", 0)
	w.editMessage(ctx, req.ChatID, statusID, "Downloading "+meta.Title+"…")

	result, err := w.orchestrator.Download(ctx, req, meta, func(event models.ProgressEvent) {
		w.editMessage(ctx, req.ChatID, statusID, progressText(meta.Title, event))
	})
	if err != nil {
		w.failDownload(ctx, req, record, statusID, err)
		return
	}
	defer func() {
		if cleanupErr := result.Cleanup(); cleanupErr != nil {
			w.logger.Warn("Failed to remove scratch directory",
				"request_id", req.ID, "dir", result.ScratchDir, "error", cleanupErr)
		}
	}()

	decision := delivery.Classify(result, meta)

	w.recordStatus(record, models.StatusDelivering, "", result.Size)

	w.editMessage(ctx, req.ChatID, statusID, uploadingText(decision))

	if err := w.sendMedia(ctx, req.ChatID, decision.Channel, result.Path, decision.Caption); err != nil {
		// Delivery errors are reported distinctly from download errors
		w.logger.Error("Upload failed",
			"request_id", req.ID, "channel", decision.Channel, "size", result.Size, "error", err)
		w.recordStatus(record, models.StatusDeliveryFailed, err.Error(), result.Size)
		w.editMessage(ctx, req.ChatID, statusID, uploadFailedText)
		return
	}

	w.recordStatus(record, models.StatusDelivered, "", result.Size)
	w.deleteMessage(ctx, req.ChatID, statusID)

	w.logger.Info("Request delivered",
		"request_id", req.ID, "channel", decision.Channel, "size", result.Size)
}

// failDownload maps orchestrator failures onto terminal states and user text
func (w *Worker) failDownload(ctx context.Context, req *models.DownloadRequest, record *models.RequestRecord, statusID int, err error) {
	switch {
	case errors.Is(err, downloader.ErrTooLong):
		w.logger.Info("Request rejected as too long", "request_id", req.ID, "error", err)
		w.recordStatus(record, models.StatusTooLong, err.Error(), 0)
		w.editMessage(ctx, req.ChatID, statusID,
			fmt.Sprintf("The media is too long, the limit is %d minutes.", int(w.cfg.MaxDuration.Minutes())))

	case errors.Is(err, downloader.ErrTimeout), errors.Is(err, downloader.ErrExtractionFailed):
		w.logger.Error("Download failed", "request_id", req.ID, "url", req.URL, "error", err)
		w.recordStatus(record, models.StatusDownloadFailed, err.Error(), 0)
		w.editMessage(ctx, req.ChatID, statusID, downloadFailedText)

	default:
		// Internal inconsistency: generic failure with a truncated diagnostic
		w.logger.Error("Internal download error", "request_id", req.ID, "error", err)
		w.recordStatus(record, models.StatusDownloadFailed, err.Error(), 0)
		w.editMessage(ctx, req.ChatID, statusID,
			"Something went wrong: "+truncate(err.Error(), maxDiagnosticLength))
	}
}

// createRecord persists the initial history row. History is
// observability only: failures are logged, never fatal.
func (w *Worker) createRecord(req *models.DownloadRequest) *models.RequestRecord {
	record := &models.RequestRecord{
		ID:        req.ID,
		ChatID:    req.ChatID,
		UserID:    req.UserID,
		URL:       req.URL,
		Profile:   req.Profile,
		Status:    models.StatusReceived,
		CreatedAt: req.CreatedAt,
		UpdatedAt: req.CreatedAt,
	}

	if w.db == nil {
		return record
	}
	if err := w.db.CreateRequest(record); err != nil {
		w.logger.Warn("Failed to persist request record", "request_id", req.ID, "error", err)
	}
	return record
}

// recordOutcome persists a terminal history row for an update that was
// turned away before it became a download request
func (w *Worker) recordOutcome(chatID, userID int64, url string, status models.RequestStatus, errMsg string) {
	if w.db == nil {
		return
	}

	now := time.Now()
	record := &models.RequestRecord{
		ID:           uuid.NewString(),
		ChatID:       chatID,
		UserID:       userID,
		URL:          url,
		Profile:      models.ProfileAuto,
		Status:       status,
		ErrorMessage: errMsg,
		CreatedAt:    now,
		UpdatedAt:    now,
		CompletedAt:  &now,
	}

	if err := w.db.CreateRequest(record); err != nil {
		w.logger.Warn("Failed to persist request outcome", "status", status, "error", err)
	}
}

// recordStatus moves the history row to a new status
func (w *Worker) recordStatus(record *models.RequestRecord, status models.RequestStatus, errMsg string, size int64) {
	record.Status = status
	record.ErrorMessage = errMsg
	if size > 0 {
		record.FileSize = size
	}
	record.UpdatedAt = time.Now()
	if status.Terminal() {
		now := time.Now()
		record.CompletedAt = &now
	}

	if w.db == nil {
		return
	}
	if err := w.db.UpdateRequest(record); err != nil {
		w.logger.Warn("Failed to update request record",
			"request_id", record.ID, "status", status, "error", err)
	}
}

// splitInput separates the URL from an optional trailing profile token
func splitInput(text string) (string, models.FormatProfile) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", models.ProfileAuto
	}

	profile := models.ProfileAuto
	if len(fields) > 1 {
		if candidate := models.FormatProfile(strings.ToLower(fields[1])); validProfiles[candidate] {
			profile = candidate
		}
	}

	return fields[0], profile
}

// uploadingText renders the upload stage for the status message. The
// oversize warning rides along in the same edit so the next edit never
// swallows it.
func uploadingText(decision models.DeliveryDecision) string {
	text := "Uploading " + decision.Caption + "…"
	if decision.Oversized {
		text = oversizeWarnText + "\n" + text
	}
	return text
}

// progressText renders a throttled progress event for the status message
func progressText(title string, event models.ProgressEvent) string {
	switch event.Phase {
	case models.PhasePostprocessing:
		return "Processing " + title + "…"
	case models.PhaseFinished:
		return "Download finished, preparing upload…"
	}

	text := fmt.Sprintf("Downloading %s… %.1f%%", title, event.Percent)
	if event.SpeedBPS > 0 {
		text += fmt.Sprintf(" at %s/s", humanize.IBytes(uint64(event.SpeedBPS)))
	}
	if event.ETA > 0 {
		text += fmt.Sprintf(", ETA %s", event.ETA.Round(time.Second))
	}
	return text
}

// truncate bounds a diagnostic string shown to users
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
