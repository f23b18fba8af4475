package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/autoreply/internal/summarize"
)

const (
	voiceDownloadTimeout = 30 * time.Second
	// maxVoiceSize matches the 25 MB upload limit of the transcription API.
	maxVoiceSize = 25 * 1024 * 1024
)

// FileGetter is the part of *bot.Bot used to download files.
type FileGetter interface {
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
	FileDownloadLink(f *models.File) string
}

// VoiceFetcher downloads voice notes to temporary files.
type VoiceFetcher struct {
	files  FileGetter
	client *http.Client
	dir    string
	logger *slog.Logger
}

// NewVoiceFetcher creates a VoiceFetcher writing into dir, or the system
// temp directory when dir is empty.
func NewVoiceFetcher(files FileGetter, client *http.Client, dir string, logger *slog.Logger) *VoiceFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VoiceFetcher{
		files:  files,
		client: client,
		dir:    dir,
		logger: logger.With("component", "voice_fetcher"),
	}
}

// Source returns an AudioSource for the voice note fileID.
func (f *VoiceFetcher) Source(fileID string) summarize.AudioSource {
	return func(ctx context.Context) (string, func(), error) {
		return f.Fetch(ctx, fileID)
	}
}

// Fetch downloads fileID and returns the local path together with a cleanup
// function removing it.
func (f *VoiceFetcher) Fetch(ctx context.Context, fileID string) (string, func(), error) {
	if fileID == "" {
		return "", nil, fmt.Errorf("voice file id is empty")
	}

	downloadCtx, cancel := context.WithTimeout(ctx, voiceDownloadTimeout)
	defer cancel()

	file, err := f.files.GetFile(downloadCtx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", nil, fmt.Errorf("failed to get file info: %w", err)
	}

	req, err := http.NewRequestWithContext(downloadCtx, http.MethodGet, f.files.FileDownloadLink(file), nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to download voice file: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.WarnContext(ctx, "Failed to close download body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", nil, fmt.Errorf("voice download failed with status %d: %s", resp.StatusCode, body)
	}

	out, err := os.CreateTemp(f.dir, "voice-*.ogg")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(out.Name()); err != nil && !os.IsNotExist(err) {
			f.logger.Warn("Failed to remove voice file", "path", out.Name(), "error", err)
		}
	}

	n, err := io.Copy(out, io.LimitReader(resp.Body, maxVoiceSize+1))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write voice file: %w", err)
	}
	if n > maxVoiceSize {
		cleanup()
		return "", nil, fmt.Errorf("voice file exceeds %d bytes", maxVoiceSize)
	}

	f.logger.DebugContext(ctx, "Voice file downloaded", "file_id", fileID, "bytes", n)
	return out.Name(), cleanup, nil
}
