package settings

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/edgard/autoreply/internal/openai"
)

// Key names a setting. Keys match the config file paths.
type Key string

const (
	KeyToken         Key = "ai.token"
	KeyEnabled       Key = "ai.enabled"
	KeyModel         Key = "ai.model"
	KeyResponseSize  Key = "ai.response_size"
	KeyContextSize   Key = "ai.context_size"
	KeyTypingDelay   Key = "ai.typing_delay"
	KeyEnabledUsers  Key = "ai.enabled_users"
	KeyEnabledGroups Key = "ai.enabled_groups"

	KeyVoiceSummarize             Key = "voice.summarize"
	KeyVoiceModel                 Key = "voice.model"
	KeyVoiceMaxTokens             Key = "voice.max_tokens"
	KeyVoiceSystemPrompt          Key = "voice.system_prompt"
	KeyVoiceOutputLanguage        Key = "voice.output_language"
	KeyVoiceCacheSummaries        Key = "voice.cache_summaries"
	KeyVoiceTranscribeFallback    Key = "voice.transcribe_fallback"
	KeyVoiceTranscriptionLanguage Key = "voice.transcription_language"
)

// DefaultModel as a voice model means "use the global model".
const DefaultModel = "default"

// summaryInputs are the settings a cached summary depends on.
var summaryInputs = []Key{
	KeyVoiceSystemPrompt,
	KeyVoiceOutputLanguage,
	KeyVoiceMaxTokens,
	KeyVoiceModel,
	KeyModel,
	KeyResponseSize,
}

// AffectsSummaries reports whether any of changed invalidates cached summaries.
func AffectsSummaries(changed []Key) bool {
	return slices.ContainsFunc(changed, func(k Key) bool {
		return slices.Contains(summaryInputs, k)
	})
}

type field struct {
	get func(*Snapshot) string
	set func(*Snapshot, string) error
}

var fields = map[Key]field{
	KeyToken: {
		get: func(s *Snapshot) string { return s.APIToken },
		set: func(s *Snapshot, v string) error { s.APIToken = strings.TrimSpace(v); return nil },
	},
	KeyEnabled: boolField(func(s *Snapshot) *bool { return &s.Enabled }),
	KeyModel: oneOfField(func(s *Snapshot) *string { return &s.Model },
		openai.ModelGPT35Turbo, openai.ModelGPT4o),
	KeyResponseSize: {
		get: func(s *Snapshot) string { return s.ResponseSize.String() },
		set: func(s *Snapshot, v string) error {
			tier, err := openai.ParseTier(strings.TrimSpace(v))
			if err != nil {
				return err
			}
			s.ResponseSize = tier
			return nil
		},
	},
	KeyContextSize: {
		get: func(s *Snapshot) string { return strconv.Itoa(s.ContextSize) },
		set: func(s *Snapshot, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return err
			}
			if err := validate.Var(n, "min=1,max=100"); err != nil {
				return errors.New("must be between 1 and 100")
			}
			s.ContextSize = n
			return nil
		},
	},
	KeyTypingDelay: {
		get: func(s *Snapshot) string { return formatDelay(s.TypingDelay) },
		set: func(s *Snapshot, v string) error {
			d, err := parseDelay(v)
			if err != nil {
				return err
			}
			s.TypingDelay = d
			return nil
		},
	},
	KeyEnabledUsers:  idListField(func(s *Snapshot) *[]string { return &s.EnabledUsers }),
	KeyEnabledGroups: idListField(func(s *Snapshot) *[]string { return &s.EnabledGroups }),

	KeyVoiceSummarize: boolField(func(s *Snapshot) *bool { return &s.Voice.Summarize }),
	KeyVoiceModel: oneOfField(func(s *Snapshot) *string { return &s.Voice.Model },
		DefaultModel, openai.ModelGPT35Turbo, openai.ModelGPT4o, openai.ModelGPT4Turbo),
	KeyVoiceMaxTokens: {
		get: func(s *Snapshot) string { return strconv.Itoa(s.Voice.MaxTokens) },
		set: func(s *Snapshot, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return err
			}
			if err := validate.Var(n, "oneof=512 1024 2048 4096"); err != nil {
				return errors.New("must be one of 512, 1024, 2048, 4096")
			}
			s.Voice.MaxTokens = n
			return nil
		},
	},
	KeyVoiceSystemPrompt: {
		get: func(s *Snapshot) string { return s.Voice.SystemPrompt },
		set: func(s *Snapshot, v string) error { s.Voice.SystemPrompt = strings.TrimSpace(v); return nil },
	},
	KeyVoiceOutputLanguage: oneOfField(func(s *Snapshot) *string { return &s.Voice.OutputLanguage },
		"auto", "en", "uk", "ru", "es"),
	KeyVoiceCacheSummaries:     boolField(func(s *Snapshot) *bool { return &s.Voice.CacheSummaries }),
	KeyVoiceTranscribeFallback: boolField(func(s *Snapshot) *bool { return &s.Voice.TranscribeFallback }),
	KeyVoiceTranscriptionLanguage: {
		get: func(s *Snapshot) string { return s.Voice.TranscriptionLanguage },
		set: func(s *Snapshot, v string) error {
			v = strings.ToLower(strings.TrimSpace(v))
			if v != "" {
				if err := validate.Var(v, "len=2,alpha"); err != nil {
					return errors.New("must be a two-letter language code")
				}
			}
			s.Voice.TranscriptionLanguage = v
			return nil
		},
	},
}

// Keys returns every setting key in sorted order.
func Keys() []Key {
	return slices.Sorted(maps.Keys(fields))
}

func boolField(ptr func(*Snapshot) *bool) field {
	return field{
		get: func(s *Snapshot) string { return strconv.FormatBool(*ptr(s)) },
		set: func(s *Snapshot, v string) error {
			b, err := parseBool(v)
			if err != nil {
				return err
			}
			*ptr(s) = b
			return nil
		},
	}
}

func oneOfField(ptr func(*Snapshot) *string, allowed ...string) field {
	return field{
		get: func(s *Snapshot) string { return *ptr(s) },
		set: func(s *Snapshot, v string) error {
			v = strings.TrimSpace(v)
			if !slices.Contains(allowed, v) {
				return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
			}
			*ptr(s) = v
			return nil
		},
	}
}

func idListField(ptr func(*Snapshot) *[]string) field {
	return field{
		get: func(s *Snapshot) string { return strings.Join(*ptr(s), ",") },
		set: func(s *Snapshot, v string) error {
			ids := normalizeIDs(strings.Split(v, ","))
			for _, id := range ids {
				if n, err := strconv.ParseInt(id, 10, 64); err != nil || n <= 0 {
					return fmt.Errorf("%q is not a positive chat id", id)
				}
			}
			*ptr(s) = ids
			return nil
		},
	}
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(v))
}

// parseDelay accepts whole seconds ("3") or a Go duration ("1500ms").
func parseDelay(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	var d time.Duration
	if n, err := strconv.Atoi(v); err == nil {
		d = time.Duration(n) * time.Second
	} else if d, err = time.ParseDuration(v); err != nil {
		return 0, errors.New("must be seconds or a duration like 1500ms")
	}
	if d < 0 || d > 5*time.Minute {
		return 0, errors.New("must be between 0s and 5m")
	}
	return d, nil
}

func formatDelay(d time.Duration) string {
	if d%time.Second == 0 {
		return strconv.Itoa(int(d / time.Second))
	}
	return d.String()
}

// normalizeIDs trims entries, drops empty ones and removes duplicates
// while keeping the first occurrence.
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
