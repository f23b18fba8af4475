// Package summarize produces short summaries of voice messages, transcribing
// the audio first when no transcription is available.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/edgard/autoreply/internal/cache"
	"github.com/edgard/autoreply/internal/openai"
	"github.com/edgard/autoreply/internal/settings"
	"github.com/edgard/autoreply/internal/text"
)

//nolint:staticcheck // shown to users as-is
var (
	ErrDisabled        = errors.New("Voice summaries are disabled")
	ErrNoTranscription = errors.New("No transcription")
)

// AudioSource fetches the audio of a voice message into a local file.
// cleanup removes it and must be called once the file is no longer needed.
type AudioSource func(ctx context.Context) (path string, cleanup func(), err error)

// Request describes one voice message to summarize.
type Request struct {
	Key           cache.Key
	Transcription string
	// Audio is used when Transcription is empty and fallback transcription
	// is enabled. May be nil.
	Audio AudioSource
	// OnTranscribed receives a fresh transcription, e.g. to persist it.
	// It runs on a worker goroutine.
	OnTranscribed func(text string)
}

type Completer interface {
	CompleteAsync(ctx context.Context, req openai.CompletionRequest, cb openai.Callback)
}

type Transcriber interface {
	Transcribe(ctx context.Context, path, language string, cb openai.Callback)
}

type SettingsSource interface {
	Snapshot() settings.Snapshot
}

// Executor is the event loop that owns the cache.
type Executor interface {
	Post(fn func())
	Call(ctx context.Context, fn func()) error
}

// Dispatcher runs blocking work such as audio downloads.
type Dispatcher interface {
	Submit(task func()) error
}

// Service summarizes voice messages and caches the results.
type Service struct {
	completer   Completer
	transcriber Transcriber
	settings    SettingsSource
	loop        Executor
	dispatcher  Dispatcher
	logger      *slog.Logger

	// cache and epoch are confined to the loop. epoch changes on every
	// invalidation so results computed under old settings are not cached.
	cache *cache.Cache
	epoch uint64
}

// New creates a summarizer. Callbacks are posted onto loop, which owns the cache.
func New(completer Completer, transcriber Transcriber, src SettingsSource, loop Executor, dispatcher Dispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		completer:   completer,
		transcriber: transcriber,
		settings:    src,
		loop:        loop,
		dispatcher:  dispatcher,
		logger:      logger.With("component", "summarize"),
		cache:       cache.New(),
	}
}

// SummarizeAsync reports the summary of req to cb. cb runs on the loop, or
// synchronously when the request is rejected up front, and must not block.
func (s *Service) SummarizeAsync(ctx context.Context, req Request, cb openai.Callback) {
	snap := s.settings.Snapshot()
	if snap.APIToken == "" {
		cb(openai.Result{Err: openai.ErrTokenNotSet})
		return
	}
	if !snap.Voice.Summarize {
		cb(openai.Result{Err: ErrDisabled})
		return
	}

	s.loop.Post(func() {
		if snap.Voice.CacheSummaries && req.Key.Valid() {
			if text, ok := s.cache.Get(req.Key); ok {
				s.logger.DebugContext(ctx, "Summary cache hit", "chat_id", req.Key.ChatID, "message_id", req.Key.MessageID)
				cb(openai.Result{Text: text})
				return
			}
		}
		s.generate(ctx, req, snap, cb)
	})
}

// Summarize is the blocking form of SummarizeAsync.
func (s *Service) Summarize(ctx context.Context, req Request) (string, error) {
	return wait(ctx, func(cb openai.Callback) { s.SummarizeAsync(ctx, req, cb) })
}

// Regenerate drops any cached summary for req.Key and summarizes again.
func (s *Service) Regenerate(ctx context.Context, req Request) (string, error) {
	s.loop.Post(func() { s.cache.Remove(req.Key) })
	return s.Summarize(ctx, req)
}

// InvalidateCache drops all cached summaries.
func (s *Service) InvalidateCache() {
	s.loop.Post(func() {
		s.cache.Clear()
		s.epoch++
	})
}

// HandleSettingsChange invalidates the cache when a summary input changed.
// Register it with settings.Settings.OnChange.
func (s *Service) HandleSettingsChange(changed []settings.Key) {
	if settings.AffectsSummaries(changed) {
		s.logger.Info("Summary settings changed, clearing cache", "keys", changed)
		s.InvalidateCache()
	}
}

// CacheLen returns the number of cached summaries.
func (s *Service) CacheLen(ctx context.Context) (int, error) {
	var n int
	err := s.loop.Call(ctx, func() { n = s.cache.Len() })
	return n, err
}

// generate runs on the loop.
func (s *Service) generate(ctx context.Context, req Request, snap settings.Snapshot, cb openai.Callback) {
	if text := strings.TrimSpace(req.Transcription); text != "" {
		s.complete(ctx, req.Key, text, snap, cb)
		return
	}

	if !snap.Voice.TranscribeFallback || req.Audio == nil {
		cb(openai.Result{Err: ErrNoTranscription})
		return
	}

	if err := s.dispatcher.Submit(func() { s.transcribe(ctx, req, snap, cb) }); err != nil {
		cb(openai.Result{Err: fmt.Errorf("failed to queue transcription: %w", err)})
	}
}

// transcribe runs on a worker.
func (s *Service) transcribe(ctx context.Context, req Request, snap settings.Snapshot, cb openai.Callback) {
	path, cleanup, err := req.Audio(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to fetch voice audio", "error", err)
		s.loop.Post(func() { cb(openai.Result{Err: fmt.Errorf("failed to fetch audio: %w", err)}) })
		return
	}

	s.transcriber.Transcribe(ctx, path, snap.Voice.TranscriptionLanguage, func(res openai.Result) {
		if cleanup != nil {
			cleanup()
		}

		text := strings.TrimSpace(res.Text)
		if res.Err == nil && text != "" && req.OnTranscribed != nil {
			req.OnTranscribed(text)
		}

		s.loop.Post(func() {
			switch {
			case res.Err != nil:
				s.logger.WarnContext(ctx, "Voice transcription failed", "error", res.Err)
				cb(res)
			case text == "":
				cb(openai.Result{Err: ErrNoTranscription})
			default:
				s.complete(ctx, req.Key, text, snap, cb)
			}
		})
	})
}

// complete runs on the loop.
func (s *Service) complete(ctx context.Context, key cache.Key, transcript string, snap settings.Snapshot, cb openai.Callback) {
	creq := openai.CompletionRequest{
		UserContent:  transcript,
		SystemPrompt: SystemPrompt(snap.Voice.OutputLanguage, snap.Voice.SystemPrompt, snap.ResponseSize),
		Model:        snap.VoiceModel(),
		TokenBudget:  TokenBudget(snap.Voice.MaxTokens),
	}
	epoch := s.epoch

	s.completer.CompleteAsync(ctx, creq, func(res openai.Result) {
		s.loop.Post(func() {
			if res.Err == nil {
				res.Text = text.Clean(res.Text)
				if res.Text == "" {
					res = openai.Result{Err: openai.ErrNoResponse}
				}
			}
			if res.Err == nil && snap.Voice.CacheSummaries && epoch == s.epoch {
				s.cache.Put(key, res.Text)
			}
			cb(res)
		})
	})
}

func wait(ctx context.Context, start func(openai.Callback)) (string, error) {
	done := make(chan openai.Result, 1)
	start(func(r openai.Result) { done <- r })

	select {
	case r := <-done:
		return r.Text, r.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
