package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/autoreply/internal/autoresponse"
	"github.com/edgard/autoreply/internal/config"
	"github.com/edgard/autoreply/internal/database"
	"github.com/edgard/autoreply/internal/openai"
	"github.com/edgard/autoreply/internal/settings"
	"github.com/edgard/autoreply/internal/summarize"
)

// AutoResponder is the part of *autoresponse.Service the admin commands use.
type AutoResponder interface {
	Running() bool
	Enable(chatID int64)
	Disable(chatID int64)
	Stats(ctx context.Context) (autoresponse.Stats, error)
}

// Summarizer is the part of *summarize.Service the handlers use.
type Summarizer interface {
	Summarize(ctx context.Context, req summarize.Request) (string, error)
	Regenerate(ctx context.Context, req summarize.Request) (string, error)
	InvalidateCache()
	CacheLen(ctx context.Context) (int, error)
}

// ConnectionTester is satisfied by *openai.Client.
type ConnectionTester interface {
	TestConnection(ctx context.Context, apiKey string) (*openai.ConnectionReport, error)
}

// VoiceSource resolves a Telegram file id to downloadable audio.
type VoiceSource interface {
	Source(fileID string) summarize.AudioSource
}

// SettingsStore is the part of *settings.Settings the admin commands use.
type SettingsStore interface {
	Snapshot() settings.Snapshot
	Set(ctx context.Context, key, value string) error
	SetChatEnabled(ctx context.Context, chatID int64, enabled bool) error
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger       *slog.Logger
	Config       *config.Config
	Store        database.Store
	Settings     SettingsStore
	AutoResponse AutoResponder
	Summarizer   Summarizer
	AI           ConnectionTester
	Voice        VoiceSource
}
