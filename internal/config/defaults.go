package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values for configuration
const (
	DefaultLogLevel      = "info"
	DefaultDBPath        = "autoreply.db"
	DefaultRetentionDays = 30

	DefaultAIBaseURL      = "https://api.openai.com/v1"
	DefaultAIModel        = "gpt-3.5-turbo"
	DefaultAIResponseSize = "medium"
	DefaultAIContextSize  = 10
	DefaultAITypingDelay  = 3 * time.Second
	DefaultAIWorkers      = 4

	DefaultVoiceModel          = "default"
	DefaultVoiceMaxTokens      = 2048
	DefaultVoiceOutputLanguage = "auto"
)

// Default bot messages
const (
	DefaultWelcomeMsg = "👋 Hi! I reply to conversations on autopilot and can summarize voice messages.\n" +
		"Reply to a voice message with /summarize to get a short summary."
	DefaultHelpMsg = "Commands:\n" +
		"/summarize - summarize the voice message you reply to\n" +
		"/ai_status - show AI settings (admin)\n" +
		"/ai_set <key> <value> - change an AI setting (admin)\n" +
		"/ai_enable [chat_id] - enable automatic replies for a chat (admin)\n" +
		"/ai_disable [chat_id] - disable automatic replies for a chat (admin)\n" +
		"/ai_test [api_key] - test the AI connection (admin)\n" +
		"/ai_reset - delete recorded messages (admin)"
	DefaultUnauthorizedMsg   = "🚫 You are not authorized to use this command."
	DefaultSummarizeUsageMsg = "ℹ️ Reply to a voice message with /summarize."
	DefaultSummaryHeaderMsg  = "📝 Voice message summary:\n\n"
	DefaultSummaryErrorMsg   = "❌ Failed to generate summary: "
	DefaultRegenerateButton  = "🔄 Regenerate"
	DefaultSettingsUsageMsg  = "Usage: /ai_set <key> <value>\nKeys: "
	DefaultSettingsSavedMsg  = "✅ Setting saved."
	DefaultResetConfirmMsg   = "🔄 Recorded messages have been deleted."
	DefaultResetErrorMsg     = "❌ Failed to delete recorded messages."
	DefaultResetTimeoutMsg   = "⏱️ Reset timed out. Please try again later."
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", false)
	v.SetDefault("logger.telegram.token", "")
	v.SetDefault("logger.telegram.chat_id", "")

	v.SetDefault("database.path", DefaultDBPath)
	v.SetDefault("database.retention_days", DefaultRetentionDays)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_user_id", 0)

	v.SetDefault("ai.token", "")
	v.SetDefault("ai.base_url", DefaultAIBaseURL)
	v.SetDefault("ai.enabled", true)
	v.SetDefault("ai.model", DefaultAIModel)
	v.SetDefault("ai.response_size", DefaultAIResponseSize)
	v.SetDefault("ai.context_size", DefaultAIContextSize)
	v.SetDefault("ai.typing_delay", DefaultAITypingDelay)
	v.SetDefault("ai.enabled_users", []string{})
	v.SetDefault("ai.enabled_groups", []string{})
	v.SetDefault("ai.workers", DefaultAIWorkers)

	v.SetDefault("voice.summarize", true)
	v.SetDefault("voice.model", DefaultVoiceModel)
	v.SetDefault("voice.max_tokens", DefaultVoiceMaxTokens)
	v.SetDefault("voice.system_prompt", "")
	v.SetDefault("voice.output_language", DefaultVoiceOutputLanguage)
	v.SetDefault("voice.cache_summaries", true)
	v.SetDefault("voice.transcribe_fallback", false)
	v.SetDefault("voice.transcription_language", "")

	v.SetDefault("scheduler.tasks", map[string]any{
		"sql_maintenance":   map[string]any{"enabled": true, "schedule": "0 30 4 * * *"},
		"message_retention": map[string]any{"enabled": true, "schedule": "0 0 4 * * *"},
	})

	v.SetDefault("server.addr", "")

	v.SetDefault("messages.welcome", DefaultWelcomeMsg)
	v.SetDefault("messages.help", DefaultHelpMsg)
	v.SetDefault("messages.unauthorized", DefaultUnauthorizedMsg)
	v.SetDefault("messages.summarize_usage", DefaultSummarizeUsageMsg)
	v.SetDefault("messages.summary_header", DefaultSummaryHeaderMsg)
	v.SetDefault("messages.summary_error", DefaultSummaryErrorMsg)
	v.SetDefault("messages.regenerate_button", DefaultRegenerateButton)
	v.SetDefault("messages.settings_usage", DefaultSettingsUsageMsg)
	v.SetDefault("messages.settings_saved", DefaultSettingsSavedMsg)
	v.SetDefault("messages.reset_confirm", DefaultResetConfirmMsg)
	v.SetDefault("messages.reset_error", DefaultResetErrorMsg)
	v.SetDefault("messages.reset_timeout", DefaultResetTimeoutMsg)
}
