// Package settings holds the runtime-adjustable AI and voice settings.
// Values are seeded from the config file, overridden by rows persisted in the
// settings table and changed at runtime through Set.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edgard/autoreply/internal/config"
	"github.com/edgard/autoreply/internal/conversation"
	"github.com/edgard/autoreply/internal/openai"
)

// ErrUnknownKey is returned for keys that are not settings.
var ErrUnknownKey = errors.New("unknown setting")

// Store persists setting overrides. database.Store satisfies it.
type Store interface {
	LoadSettings(ctx context.Context) (map[string]string, error)
	SaveSettings(ctx context.Context, values map[string]string) error
}

// VoiceSettings controls voice message summaries.
type VoiceSettings struct {
	Summarize bool
	// Model is a model name or "default" for the global model.
	Model                 string
	MaxTokens             int
	SystemPrompt          string
	OutputLanguage        string
	CacheSummaries        bool
	TranscribeFallback    bool
	TranscriptionLanguage string
}

// Snapshot is a point-in-time copy of all settings.
type Snapshot struct {
	APIToken      string
	Enabled       bool
	Model         string
	ResponseSize  openai.Tier
	ContextSize   int
	TypingDelay   time.Duration
	EnabledUsers  []string
	EnabledGroups []string
	Voice         VoiceSettings
}

// AllowList returns the chats automatic replies are enabled for.
func (s Snapshot) AllowList() conversation.AllowList {
	return conversation.AllowList{Users: s.EnabledUsers, Groups: s.EnabledGroups}
}

// VoiceModel resolves the model used for summaries.
func (s Snapshot) VoiceModel() string {
	if s.Voice.Model == "" || s.Voice.Model == DefaultModel {
		return s.Model
	}
	return s.Voice.Model
}

// Get returns the encoded value of k.
func (s Snapshot) Get(k Key) string {
	if f, ok := fields[k]; ok {
		return f.get(&s)
	}
	return ""
}

// Redacted returns a copy with the API token masked.
func (s Snapshot) Redacted() Snapshot {
	s.APIToken = config.Mask(s.APIToken)
	return s
}

func (s Snapshot) clone() Snapshot {
	s.EnabledUsers = slices.Clone(s.EnabledUsers)
	s.EnabledGroups = slices.Clone(s.EnabledGroups)
	return s
}

// Listener is notified after settings change, with the keys that changed.
type Listener func(changed []Key)

// Settings is safe for concurrent use.
type Settings struct {
	store  Store
	logger *slog.Logger

	mu        sync.RWMutex
	current   Snapshot
	listeners []Listener
}

var validate = validator.New()

// New seeds settings from the config defaults. Call Load to apply persisted
// overrides.
func New(ai config.AIConfig, voice config.VoiceConfig, store Store, logger *slog.Logger) *Settings {
	if logger == nil {
		logger = slog.Default()
	}

	tier, err := openai.ParseTier(ai.ResponseSize)
	if err != nil {
		tier = openai.TierMedium
	}

	return &Settings{
		store:  store,
		logger: logger.With("component", "settings"),
		current: Snapshot{
			APIToken:      ai.Token,
			Enabled:       ai.Enabled,
			Model:         ai.Model,
			ResponseSize:  tier,
			ContextSize:   ai.ContextSize,
			TypingDelay:   ai.TypingDelay,
			EnabledUsers:  normalizeIDs(ai.EnabledUsers),
			EnabledGroups: normalizeIDs(ai.EnabledGroups),
			Voice: VoiceSettings{
				Summarize:             voice.Summarize,
				Model:                 voice.Model,
				MaxTokens:             voice.MaxTokens,
				SystemPrompt:          voice.SystemPrompt,
				OutputLanguage:        voice.OutputLanguage,
				CacheSummaries:        voice.CacheSummaries,
				TranscribeFallback:    voice.TranscribeFallback,
				TranscriptionLanguage: voice.TranscriptionLanguage,
			},
		},
	}
}

// Load applies persisted overrides. Unknown keys and invalid values are
// logged and skipped. Listeners are not notified.
func (s *Settings) Load(ctx context.Context) error {
	values, err := s.store.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.clone()
	applied := 0
	for key, value := range values {
		f, ok := fields[Key(key)]
		if !ok {
			s.logger.WarnContext(ctx, "Ignoring unknown persisted setting", "key", key)
			continue
		}
		if err := f.set(&next, value); err != nil {
			s.logger.WarnContext(ctx, "Ignoring invalid persisted setting", "key", key, "error", err)
			continue
		}
		applied++
	}
	s.current = next

	s.logger.InfoContext(ctx, "Settings loaded", "overrides", applied)
	return nil
}

// Snapshot returns a copy of the current settings.
func (s *Settings) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Token returns the current API token.
func (s *Settings) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.APIToken
}

// OnChange registers l for change notifications.
func (s *Settings) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Set parses value for key, persists it and notifies listeners. Setting a
// key to its current value is a no-op.
func (s *Settings) Set(ctx context.Context, key, value string) error {
	f, ok := fields[Key(key)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return s.update(ctx, func(next *Snapshot) error {
		if err := f.set(next, value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		return nil
	})
}

// SetChatEnabled adds chatID to, or removes it from, the allow-list that
// matches its sign.
func (s *Settings) SetChatEnabled(ctx context.Context, chatID int64, enabled bool) error {
	if chatID == 0 {
		return errors.New("chat id must not be zero")
	}
	return s.update(ctx, func(next *Snapshot) error {
		list := &next.EnabledUsers
		abs := chatID
		if chatID < 0 {
			list = &next.EnabledGroups
			abs = -chatID
		}
		id := strconv.FormatInt(abs, 10)

		*list = slices.DeleteFunc(*list, func(s string) bool { return s == id })
		if enabled {
			*list = append(*list, id)
		}
		return nil
	})
}

func (s *Settings) update(ctx context.Context, mutate func(*Snapshot) error) error {
	s.mu.Lock()

	next := s.current.clone()
	if err := mutate(&next); err != nil {
		s.mu.Unlock()
		return err
	}

	changed := diff(&s.current, &next)
	if len(changed) == 0 {
		s.mu.Unlock()
		return nil
	}

	values := make(map[string]string, len(changed))
	for _, k := range changed {
		values[string(k)] = fields[k].get(&next)
	}
	if err := s.store.SaveSettings(ctx, values); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to save settings: %w", err)
	}

	s.current = next
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Settings changed", "keys", changed)
	for _, l := range listeners {
		l(changed)
	}
	return nil
}

func diff(prev, next *Snapshot) []Key {
	var changed []Key
	for _, k := range Keys() {
		f := fields[k]
		if f.get(prev) != f.get(next) {
			changed = append(changed, k)
		}
	}
	return changed
}
