package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"media-fetch-bot/internal/bot"
	"media-fetch-bot/internal/config"
	"media-fetch-bot/internal/database"
	"media-fetch-bot/internal/telegram"
	"media-fetch-bot/pkg/models"
)

// UpdateSink accepts inbound updates for asynchronous processing
type UpdateSink interface {
	Running() bool
	Submit(ctx context.Context, update *telegram.Update) error
}

// Handlers contains the HTTP request handlers
type Handlers struct {
	db     *database.DB
	worker UpdateSink
	cfg    *config.Config
	logger *slog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(db *database.DB, worker UpdateSink, cfg *config.Config) *Handlers {
	return &Handlers{
		db:     db,
		worker: worker,
		cfg:    cfg,
		logger: slog.Default(),
	}
}

// Root is a plain liveness endpoint
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("media-fetch-bot is running\n"))
}

// healthResponse is the JSON body of the health endpoint
type healthResponse struct {
	Status   string                       `json:"status"`
	Worker   bool                         `json:"worker_running"`
	Requests map[models.RequestStatus]int `json:"requests,omitempty"`
}

// Health reports process health and request counts by status
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Worker: h.worker.Running(),
	}

	if counts, err := h.db.CountByStatus(); err != nil {
		h.logger.Warn("Failed to count requests for health check", "error", err)
	} else {
		resp.Requests = counts
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("Failed to encode health response", "error", err)
	}
}

// Webhook receives platform updates and hands them to the worker. The
// response acknowledges acceptance, not completion: 200 means the
// update is queued, the pipeline runs asynchronously.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.logger.Warn("Rejected malformed webhook payload", "error", err)
		http.Error(w, "malformed update payload", http.StatusBadRequest)
		return
	}

	if !h.worker.Running() {
		http.Error(w, "worker unavailable", http.StatusServiceUnavailable)
		return
	}

	// Bound the acknowledgment wait so a saturated queue fails fast and
	// the platform retries delivery later
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.SubmitTimeout)
	defer cancel()

	if err := h.worker.Submit(ctx, &update); err != nil {
		switch {
		case errors.Is(err, bot.ErrNotRunning), errors.Is(err, context.DeadlineExceeded):
			h.logger.Warn("Update not accepted", "update_id", update.UpdateID, "error", err)
			http.Error(w, "worker unavailable", http.StatusServiceUnavailable)
		default:
			h.logger.Error("Failed to submit update", "update_id", update.UpdateID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}
