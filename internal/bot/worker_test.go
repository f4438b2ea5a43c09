package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"media-fetch-bot/internal/config"
	"media-fetch-bot/internal/database"
	"media-fetch-bot/internal/downloader"
	"media-fetch-bot/internal/ratelimit"
	"media-fetch-bot/internal/telegram"

	"github.com/stretchr/testify/require"
)

type sentFile struct {
	chatID  int64
	path    string
	caption string
}

// fakeClient records every platform call so tests can assert on the
// outbound traffic
type fakeClient struct {
	mu        sync.Mutex
	messages  []string
	edits     []string
	deleted   []int
	videos    []sentFile
	audios    []sentFile
	documents []sentFile
	sendErr   error
	mediaErr  error
	nextID    int
}

func (f *fakeClient) GetMe(ctx context.Context) (*telegram.BotInfo, error) {
	return &telegram.BotInfo{ID: 1, IsBot: true, Username: "testbot"}, nil
}

func (f *fakeClient) SetWebhook(ctx context.Context, webhookURL string) error {
	return nil
}

func (f *fakeClient) SendMessage(ctx context.Context, chatID int64, text string) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	f.messages = append(f.messages, text)
	return &telegram.Message{MessageID: f.nextID, Chat: telegram.Chat{ID: chatID}, Text: text}, nil
}

func (f *fakeClient) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeClient) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeClient) SendVideo(ctx context.Context, chatID int64, filePath, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mediaErr != nil {
		return f.mediaErr
	}
	f.videos = append(f.videos, sentFile{chatID, filePath, caption})
	return nil
}

func (f *fakeClient) SendAudio(ctx context.Context, chatID int64, filePath, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mediaErr != nil {
		return f.mediaErr
	}
	f.audios = append(f.audios, sentFile{chatID, filePath, caption})
	return nil
}

func (f *fakeClient) SendDocument(ctx context.Context, chatID int64, filePath, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mediaErr != nil {
		return f.mediaErr
	}
	f.documents = append(f.documents, sentFile{chatID, filePath, caption})
	return nil
}

func (f *fakeClient) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func (f *fakeClient) sentEdits() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.edits...)
}

func (f *fakeClient) deletedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

func (f *fakeClient) sentVideos() []sentFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentFile(nil), f.videos...)
}

func (f *fakeClient) sentAudios() []sentFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentFile(nil), f.audios...)
}

func newTestWorker(t *testing.T, client telegram.BotClient, engine downloader.Engine) *Worker {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		BotToken:         "test-token",
		ScratchPath:      t.TempDir(),
		RateLimitQuota:   3,
		RateLimitWindow:  time.Minute,
		MaxDuration:      time.Hour,
		ProgressInterval: time.Millisecond,
		DownloadTimeout:  time.Minute,
		SubmitTimeout:    time.Second,
	}

	orch := downloader.NewOrchestrator(engine, downloader.Config{
		ScratchRoot:      cfg.ScratchPath,
		MaxDuration:      cfg.MaxDuration,
		DownloadTimeout:  cfg.DownloadTimeout,
		ProgressInterval: cfg.ProgressInterval,
	})

	limiter := ratelimit.New(cfg.RateLimitQuota, cfg.RateLimitWindow)

	return NewWorker(client, engine, orch, limiter, db, cfg)
}

// startWorker runs the worker loop for the duration of the test
func startWorker(t *testing.T, w *Worker) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, w.Running, time.Second, 5*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not shut down")
		}
	})
}

func textUpdate(chatID int64, text string) *telegram.Update {
	return &telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 10,
			From:      &telegram.User{ID: chatID},
			Chat:      telegram.Chat{ID: chatID},
			Text:      text,
		},
	}
}

func TestSubmitNotRunning(t *testing.T) {
	w := newTestWorker(t, &fakeClient{}, nil)

	err := w.Submit(context.Background(), textUpdate(1, "/start"))
	require.ErrorIs(t, err, ErrNotRunning)
}

func TestSubmitContextCancelled(t *testing.T) {
	w := newTestWorker(t, &fakeClient{}, nil)
	w.running.Store(true)

	// Fill the queue so Submit has to wait
	for i := 0; i < cap(w.updates); i++ {
		w.updates <- textUpdate(1, "x")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Submit(ctx, textUpdate(1, "/start"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestWorkerStartStop(t *testing.T) {
	w := newTestWorker(t, &fakeClient{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, w.Running, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	require.False(t, w.Running())
}

func TestSenderPreservesCallOrder(t *testing.T) {
	client := &fakeClient{}
	w := newTestWorker(t, client, nil)
	startWorker(t, w)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		w.editMessage(ctx, 1, 1, string(rune('a'+i)))
	}

	require.Eventually(t, func() bool {
		return len(client.sentEdits()) == 5
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, []string{"a", "b", "c", "d", "e"}, client.sentEdits())
}
