// Package config provides configuration loading and validation for the bot.
// Values come from defaults, an optional YAML file and AUTOREPLY_* environment variables.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"
	"github.com/samber/oops"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. AUTOREPLY_AI_TOKEN for ai.token.
const EnvPrefix = "AUTOREPLY"

// Config is the root application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"    yaml:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"  yaml:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"  yaml:"telegram"`
	AI        AIConfig        `mapstructure:"ai"        yaml:"ai"`
	Voice     VoiceConfig     `mapstructure:"voice"     yaml:"voice"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"    yaml:"server"`
	Messages  MessagesConfig  `mapstructure:"messages"  yaml:"messages"`
}

// LoggerConfig controls log level, format and the optional Telegram alert sink.
type LoggerConfig struct {
	Level    string            `mapstructure:"level"    yaml:"level"    validate:"oneof=debug info warn error"`
	JSON     bool              `mapstructure:"json"     yaml:"json"`
	Telegram LogTelegramConfig `mapstructure:"telegram" yaml:"telegram"`
}

// LogTelegramConfig routes error logs to a Telegram chat when Token is set.
type LogTelegramConfig struct {
	Token  string `mapstructure:"token"   yaml:"token"`
	ChatID string `mapstructure:"chat_id" yaml:"chat_id" validate:"required_with=Token"`
}

// DatabaseConfig holds the sqlite location and retention settings.
type DatabaseConfig struct {
	Path          string `mapstructure:"path"           yaml:"path"           validate:"required"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days" validate:"min=0"`
}

// TelegramConfig holds the bot credentials. BotInfo is filled at runtime.
type TelegramConfig struct {
	Token       string       `mapstructure:"token"         yaml:"token"         validate:"required"`
	AdminUserID int64        `mapstructure:"admin_user_id" yaml:"admin_user_id" validate:"required,gt=0"`
	BotInfo     *models.User `mapstructure:"-"             yaml:"-"`
}

// AIConfig holds the defaults of the automatic response settings.
type AIConfig struct {
	Token         string        `mapstructure:"token"          yaml:"token"`
	BaseURL       string        `mapstructure:"base_url"       yaml:"base_url"       validate:"required,url"`
	Enabled       bool          `mapstructure:"enabled"        yaml:"enabled"`
	Model         string        `mapstructure:"model"          yaml:"model"          validate:"oneof=gpt-3.5-turbo gpt-4o"`
	ResponseSize  string        `mapstructure:"response_size"  yaml:"response_size"  validate:"oneof=small medium large"`
	ContextSize   int           `mapstructure:"context_size"   yaml:"context_size"   validate:"min=1,max=100"`
	TypingDelay   time.Duration `mapstructure:"typing_delay"   yaml:"typing_delay"   validate:"min=0s,max=5m"`
	EnabledUsers  []string      `mapstructure:"enabled_users"  yaml:"enabled_users"`
	EnabledGroups []string      `mapstructure:"enabled_groups" yaml:"enabled_groups"`
	Workers       int           `mapstructure:"workers"        yaml:"workers"        validate:"min=1,max=64"`
}

// VoiceConfig holds the defaults of the voice summary settings.
type VoiceConfig struct {
	Summarize             bool   `mapstructure:"summarize"              yaml:"summarize"`
	Model                 string `mapstructure:"model"                  yaml:"model"           validate:"oneof=default gpt-3.5-turbo gpt-4o gpt-4-turbo-preview"`
	MaxTokens             int    `mapstructure:"max_tokens"             yaml:"max_tokens"      validate:"oneof=512 1024 2048 4096"`
	SystemPrompt          string `mapstructure:"system_prompt"          yaml:"system_prompt"`
	OutputLanguage        string `mapstructure:"output_language"        yaml:"output_language" validate:"oneof=auto en uk ru es"`
	CacheSummaries        bool   `mapstructure:"cache_summaries"        yaml:"cache_summaries"`
	TranscribeFallback    bool   `mapstructure:"transcribe_fallback"    yaml:"transcribe_fallback"`
	TranscriptionLanguage string `mapstructure:"transcription_language" yaml:"transcription_language"`
}

// SchedulerConfig lists maintenance tasks by name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" yaml:"tasks" validate:"dive"`
}

// TaskConfig enables a task on a cron schedule (seconds field optional).
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"  yaml:"enabled"`
	Schedule string `mapstructure:"schedule" yaml:"schedule" validate:"required_if=Enabled true"`
}

// ServerConfig configures the status HTTP server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// MessagesConfig holds user-visible bot texts.
type MessagesConfig struct {
	Welcome          string `mapstructure:"welcome"           yaml:"welcome"`
	Help             string `mapstructure:"help"              yaml:"help"`
	Unauthorized     string `mapstructure:"unauthorized"      yaml:"unauthorized"`
	SummarizeUsage   string `mapstructure:"summarize_usage"   yaml:"summarize_usage"`
	SummaryHeader    string `mapstructure:"summary_header"    yaml:"summary_header"`
	SummaryError     string `mapstructure:"summary_error"     yaml:"summary_error"`
	RegenerateButton string `mapstructure:"regenerate_button" yaml:"regenerate_button"`
	SettingsUsage    string `mapstructure:"settings_usage"    yaml:"settings_usage"`
	SettingsSaved    string `mapstructure:"settings_saved"    yaml:"settings_saved"`
	ResetConfirm     string `mapstructure:"reset_confirm"     yaml:"reset_confirm"`
	ResetError       string `mapstructure:"reset_error"       yaml:"reset_error"`
	ResetTimeout     string `mapstructure:"reset_timeout"     yaml:"reset_timeout"`
}

// Load reads the configuration file at path (a missing file is allowed), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, oops.In("config").With("path", path).Wrapf(err, "failed to read config file")
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, oops.In("config").With("path", path).Wrapf(err, "failed to parse config")
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks struct constraints on cfg.
func Validate(cfg *Config) error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return oops.In("config").Wrapf(err, "failed to validate config")
	}
	return nil
}

// Redacted returns a copy of cfg with secrets masked, suitable for printing.
func (c Config) Redacted() Config {
	c.Telegram.Token = Mask(c.Telegram.Token)
	c.AI.Token = Mask(c.AI.Token)
	c.Logger.Telegram.Token = Mask(c.Logger.Telegram.Token)
	return c
}

// Mask hides all but the first and last four characters of secret.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****" + secret[len(secret)-4:]
}
