// Package bot implements the long-lived worker context that owns all
// chat-platform interaction and runs the request pipeline
package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"media-fetch-bot/internal/config"
	"media-fetch-bot/internal/database"
	"media-fetch-bot/internal/downloader"
	"media-fetch-bot/internal/ratelimit"
	"media-fetch-bot/internal/telegram"
	"media-fetch-bot/pkg/models"
)

var (
	// ErrNotRunning is returned when the worker context is not started
	ErrNotRunning = errors.New("worker is not running")
	// ErrQueueFull is returned when the update queue cannot accept more work
	ErrQueueFull = errors.New("update queue is full")
)

// Worker is the single persistent asynchronous context of the process.
// Inbound updates are handed to it by the Request Bridge; each accepted
// update runs its pipeline on its own goroutine, but every platform
// call is funneled through one sender goroutine so message sends and
// edits are never reordered.
type Worker struct {
	client       telegram.BotClient
	engine       downloader.Engine
	orchestrator *downloader.Orchestrator
	limiter      *ratelimit.Limiter
	db           *database.DB
	cfg          *config.Config
	logger       *slog.Logger

	updates chan *telegram.Update
	calls   chan func(context.Context)
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewWorker creates a new worker
func NewWorker(client telegram.BotClient, engine downloader.Engine, orch *downloader.Orchestrator, limiter *ratelimit.Limiter, db *database.DB, cfg *config.Config) *Worker {
	return &Worker{
		client:       client,
		engine:       engine,
		orchestrator: orch,
		limiter:      limiter,
		db:           db,
		cfg:          cfg,
		logger:       slog.Default(),
		updates:      make(chan *telegram.Update, 100),
		calls:        make(chan func(context.Context), 256),
	}
}

// Running reports whether the worker context is accepting updates
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Submit hands an update to the worker and returns once it is accepted
// for processing (acknowledgment, not completion). The caller bounds
// the wait through ctx.
func (w *Worker) Submit(ctx context.Context, update *telegram.Update) error {
	if !w.running.Load() {
		return ErrNotRunning
	}

	select {
	case w.updates <- update:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs the worker until the context is cancelled
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting bot worker")
	w.running.Store(true)
	defer w.running.Store(false)

	w.wg.Add(1)
	go w.runSender(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Bot worker shutting down")
			w.wg.Wait()
			return
		case update := <-w.updates:
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.handleUpdate(ctx, update)
			}()
		}
	}
}

// runSender is the exclusive writer to the chat platform. Calls are
// executed strictly in submission order, which keeps status-message
// edits for a request in issuance order.
func (w *Worker) runSender(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case call := <-w.calls:
			call(ctx)
		}
	}
}

// enqueueCall places a platform call on the sender queue without
// waiting for its outcome
func (w *Worker) enqueueCall(ctx context.Context, call func(context.Context)) error {
	select {
	case w.calls <- call:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendMessage sends a text message through the sender and waits for the result
func (w *Worker) sendMessage(ctx context.Context, chatID int64, text string) (*telegram.Message, error) {
	type result struct {
		msg *telegram.Message
		err error
	}

	done := make(chan result, 1)
	err := w.enqueueCall(ctx, func(cctx context.Context) {
		msg, err := w.client.SendMessage(cctx, chatID, text)
		done <- result{msg, err}
	})
	if err != nil {
		return nil, err
	}

	select {
	case r := <-done:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// editMessage queues a status-message edit. Edits are fire-and-forget:
// ordering comes from the sender queue, failures are only logged.
func (w *Worker) editMessage(ctx context.Context, chatID int64, messageID int, text string) {
	err := w.enqueueCall(ctx, func(cctx context.Context) {
		if err := w.client.EditMessageText(cctx, chatID, messageID, text); err != nil {
			w.logger.Warn("Failed to edit status message",
				"chat_id", chatID, "message_id", messageID, "error", err)
		}
	})
	if err != nil {
		w.logger.Warn("Dropped status edit", "chat_id", chatID, "error", err)
	}
}

// deleteMessage queues a message deletion
func (w *Worker) deleteMessage(ctx context.Context, chatID int64, messageID int) {
	_ = w.enqueueCall(ctx, func(cctx context.Context) {
		if err := w.client.DeleteMessage(cctx, chatID, messageID); err != nil {
			w.logger.Warn("Failed to delete status message",
				"chat_id", chatID, "message_id", messageID, "error", err)
		}
	})
}

// sendMedia uploads the artifact on the decided channel and waits for
// the platform's verdict
func (w *Worker) sendMedia(ctx context.Context, chatID int64, channel models.DeliveryChannel, filePath, caption string) error {
	done := make(chan error, 1)
	err := w.enqueueCall(ctx, func(cctx context.Context) {
		switch channel {
		case models.ChannelVideo:
			done <- w.client.SendVideo(cctx, chatID, filePath, caption)
		case models.ChannelAudio:
			done <- w.client.SendAudio(cctx, chatID, filePath, caption)
		default:
			done <- w.client.SendDocument(cctx, chatID, filePath, caption)
		}
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
