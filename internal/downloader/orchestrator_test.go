package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-fetch-bot/internal/downloader/mocks"
	"media-fetch-bot/internal/ytdlp"
	"media-fetch-bot/pkg/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		ScratchRoot:      t.TempDir(),
		MaxDuration:      time.Hour,
		DownloadTimeout:  30 * time.Second,
		ProgressInterval: time.Nanosecond,
	}
}

func testRequest() *models.DownloadRequest {
	return &models.DownloadRequest{
		ID:        "0f8fad5b-d9cb-469f-a165-70867728950e",
		ChatID:    42,
		UserID:    42,
		RawText:   "https://youtu.be/abc12345678",
		URL:       "https://www.youtube.com/watch?v=abc12345678",
		Profile:   models.ProfileAuto,
		CreatedAt: time.Now(),
	}
}

func TestDownloadTooLongSkipsEngine(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)
	// No Download expectation: calling the engine would fail the test

	cfg := testConfig(t)
	orch := NewOrchestrator(engine, cfg)

	meta := &models.VideoMetadata{Title: "Marathon", Duration: 4000}
	_, err := orch.Download(context.Background(), testRequest(), meta, nil)
	require.ErrorIs(t, err, ErrTooLong)

	// No scratch directory may be created on the fast-fail path
	entries, readErr := os.ReadDir(cfg.ScratchRoot)
	require.NoError(t, readErr)
	require.Empty(t, entries)
}

func TestDownloadUnknownDurationIsNotTooLong(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)

	engine.EXPECT().Download(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, opts ytdlp.DownloadOptions) error {
			return os.WriteFile(filepath.Join(opts.OutputDir, "Live.mp4"), []byte("data"), 0o644)
		})

	orch := NewOrchestrator(engine, testConfig(t))

	// Zero duration means unknown, not zero-length
	meta := &models.VideoMetadata{Title: "Live"}
	result, err := orch.Download(context.Background(), testRequest(), meta, nil)
	require.NoError(t, err)
	require.NoError(t, result.Cleanup())
}

func TestDownloadSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)

	var gotOpts ytdlp.DownloadOptions
	engine.EXPECT().Download(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, opts ytdlp.DownloadOptions) error {
			gotOpts = opts
			opts.OnProgress(ytdlp.Progress{Percent: 40, SpeedBPS: 1024})
			opts.OnProgress(ytdlp.Progress{Percent: 100})
			return os.WriteFile(filepath.Join(opts.OutputDir, "Demo.mp4"), []byte("0123456789"), 0o644)
		})

	cfg := testConfig(t)
	orch := NewOrchestrator(engine, cfg)

	var events []models.ProgressEvent
	req := testRequest()
	meta := &models.VideoMetadata{Title: "Demo", Duration: 120}

	result, err := orch.Download(context.Background(), req, meta, func(e models.ProgressEvent) {
		events = append(events, e)
	})
	require.NoError(t, err)

	require.Equal(t, int64(10), result.Size)
	require.Equal(t, models.KindVideo, result.Kind)
	require.Equal(t, filepath.Join(cfg.ScratchRoot, "req-"+req.ID), result.ScratchDir)
	require.Equal(t, "Demo.mp4", filepath.Base(result.Path))

	// Scratch directory is request-unique and still owned by the caller
	require.DirExists(t, result.ScratchDir)
	require.NoError(t, result.Cleanup())
	require.NoDirExists(t, result.ScratchDir)

	// auto resolves to bounded 720p video
	require.Equal(t, "bestvideo[height<=720]+bestaudio/best[height<=720]", gotOpts.FormatSpec)
	require.False(t, gotOpts.ExtractAudio)

	// Final event is always the finished phase at 100%
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, models.PhaseFinished, last.Phase)
	require.Equal(t, float64(100), last.Percent)
}

func TestDownloadAudioProfile(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)

	engine.EXPECT().Download(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, opts ytdlp.DownloadOptions) error {
			require.True(t, opts.ExtractAudio)
			require.Equal(t, "bestaudio/best", opts.FormatSpec)
			return os.WriteFile(filepath.Join(opts.OutputDir, "Demo.mp3"), []byte("audio"), 0o644)
		})

	orch := NewOrchestrator(engine, testConfig(t))

	req := testRequest()
	req.Profile = models.ProfileAudio

	result, err := orch.Download(context.Background(), req, &models.VideoMetadata{Duration: 120}, nil)
	require.NoError(t, err)
	defer result.Cleanup()

	require.Equal(t, models.KindAudio, result.Kind)
}

func TestDownloadIgnoresPartialFiles(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)

	engine.EXPECT().Download(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, opts ytdlp.DownloadOptions) error {
			require.NoError(t, os.WriteFile(filepath.Join(opts.OutputDir, "Demo.mp4.part"), []byte("partial"), 0o644))
			require.NoError(t, os.WriteFile(filepath.Join(opts.OutputDir, "Demo.mp4.part-Frag3"), []byte("frag"), 0o644))
			require.NoError(t, os.WriteFile(filepath.Join(opts.OutputDir, "Demo.mp4.ytdl"), []byte("state"), 0o644))
			return os.WriteFile(filepath.Join(opts.OutputDir, "Demo.mp4"), []byte("final"), 0o644)
		})

	orch := NewOrchestrator(engine, testConfig(t))

	result, err := orch.Download(context.Background(), testRequest(), &models.VideoMetadata{Duration: 120}, nil)
	require.NoError(t, err)
	defer result.Cleanup()

	require.Equal(t, "Demo.mp4", filepath.Base(result.Path))
}

func TestDownloadNoArtifact(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)

	engine.EXPECT().Download(gomock.Any(), gomock.Any()).Return(nil)

	cfg := testConfig(t)
	orch := NewOrchestrator(engine, cfg)

	req := testRequest()
	_, err := orch.Download(context.Background(), req, &models.VideoMetadata{Duration: 120}, nil)
	require.ErrorIs(t, err, ErrArtifactNotFound)

	// Scratch is released on the failure path
	require.NoDirExists(t, filepath.Join(cfg.ScratchRoot, "req-"+req.ID))
}

func TestDownloadAmbiguousArtifacts(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)

	engine.EXPECT().Download(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, opts ytdlp.DownloadOptions) error {
			require.NoError(t, os.WriteFile(filepath.Join(opts.OutputDir, "a.mp4"), []byte("a"), 0o644))
			return os.WriteFile(filepath.Join(opts.OutputDir, "b.mp4"), []byte("b"), 0o644)
		})

	cfg := testConfig(t)
	orch := NewOrchestrator(engine, cfg)

	req := testRequest()
	_, err := orch.Download(context.Background(), req, &models.VideoMetadata{Duration: 120}, nil)
	require.ErrorIs(t, err, ErrArtifactNotFound)
	require.NoDirExists(t, filepath.Join(cfg.ScratchRoot, "req-"+req.ID))
}

func TestDownloadEngineFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)

	engine.EXPECT().Download(gomock.Any(), gomock.Any()).Return(errors.New("network unreachable"))

	cfg := testConfig(t)
	orch := NewOrchestrator(engine, cfg)

	req := testRequest()
	_, err := orch.Download(context.Background(), req, &models.VideoMetadata{Duration: 120}, nil)
	require.ErrorIs(t, err, ErrExtractionFailed)
	require.Contains(t, err.Error(), "network unreachable")
	require.NoDirExists(t, filepath.Join(cfg.ScratchRoot, "req-"+req.ID))
}

func TestDownloadTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockEngine(ctrl)

	engine.EXPECT().Download(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, opts ytdlp.DownloadOptions) error {
			<-ctx.Done()
			return ctx.Err()
		})

	cfg := testConfig(t)
	cfg.DownloadTimeout = 50 * time.Millisecond
	orch := NewOrchestrator(engine, cfg)

	req := testRequest()
	_, err := orch.Download(context.Background(), req, &models.VideoMetadata{Duration: 120}, nil)
	require.ErrorIs(t, err, ErrTimeout)
	require.NoDirExists(t, filepath.Join(cfg.ScratchRoot, "req-"+req.ID))
}

func TestFormatSpecFor(t *testing.T) {
	tests := []struct {
		profile      models.FormatProfile
		wantSpec     string
		extractAudio bool
	}{
		{models.ProfileAuto, "bestvideo[height<=720]+bestaudio/best[height<=720]", false},
		{models.ProfileVideo720, "bestvideo[height<=720]+bestaudio/best[height<=720]", false},
		{models.ProfileVideo1080, "bestvideo[height<=1080]+bestaudio/best[height<=1080]", false},
		{models.ProfileAudio, "bestaudio/best", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.profile), func(t *testing.T) {
			spec, extractAudio := formatSpecFor(tt.profile)
			require.Equal(t, tt.wantSpec, spec)
			require.Equal(t, tt.extractAudio, extractAudio)
		})
	}
}

func TestMediaKindFor(t *testing.T) {
	tests := []struct {
		path string
		want models.MediaKind
	}{
		{"/tmp/a/video.mp4", models.KindVideo},
		{"/tmp/a/video.MKV", models.KindVideo},
		{"/tmp/a/track.mp3", models.KindAudio},
		{"/tmp/a/track.opus", models.KindAudio},
		{"/tmp/a/notes.txt", models.KindDocument},
		{"/tmp/a/noextension", models.KindDocument},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			require.Equal(t, tt.want, mediaKindFor(tt.path))
		})
	}
}

func TestProgressThrottleLimitsCadence(t *testing.T) {
	var events []models.ProgressEvent
	throttle := newProgressThrottle(time.Hour, func(e models.ProgressEvent) {
		events = append(events, e)
	})

	throttle.observe(ytdlp.Progress{Percent: 10})
	throttle.observe(ytdlp.Progress{Percent: 20})
	throttle.observe(ytdlp.Progress{Percent: 30})

	// Only the first sample makes it through within one interval
	require.Len(t, events, 1)
	require.Equal(t, float64(10), events[0].Percent)

	throttle.finish()
	require.Len(t, events, 2)
	require.Equal(t, models.PhaseFinished, events[1].Phase)
}

func TestProgressThrottleMonotonicPercent(t *testing.T) {
	var events []models.ProgressEvent
	throttle := newProgressThrottle(time.Nanosecond, func(e models.ProgressEvent) {
		events = append(events, e)
	})

	throttle.observe(ytdlp.Progress{Percent: 50})
	time.Sleep(time.Millisecond)
	throttle.observe(ytdlp.Progress{Percent: 30})
	time.Sleep(time.Millisecond)
	throttle.observe(ytdlp.Progress{Percent: 80})

	require.Len(t, events, 3)
	last := float64(0)
	for _, e := range events {
		require.GreaterOrEqual(t, e.Percent, last)
		last = e.Percent
	}
}

func TestProgressThrottlePhaseChangeBypassesInterval(t *testing.T) {
	var events []models.ProgressEvent
	throttle := newProgressThrottle(time.Hour, func(e models.ProgressEvent) {
		events = append(events, e)
	})

	throttle.observe(ytdlp.Progress{Percent: 99})
	throttle.observe(ytdlp.Progress{Percent: 100, Postprocessing: true})

	require.Len(t, events, 2)
	require.Equal(t, models.PhaseDownloading, events[0].Phase)
	require.Equal(t, models.PhasePostprocessing, events[1].Phase)
}
