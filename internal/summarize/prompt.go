package summarize

import (
	"strings"

	"github.com/edgard/autoreply/internal/openai"
)

const (
	// DefaultPrompt is used when no custom voice prompt is set.
	DefaultPrompt = "Summarize this voice message concisely"
	// DefaultTokenBudget is used when the configured budget is not positive.
	DefaultTokenBudget = 2048
)

// Output languages.
const (
	LanguageAuto      = "auto"
	LanguageEnglish   = "en"
	LanguageUkrainian = "uk"
	LanguageRussian   = "ru"
	LanguageSpanish   = "es"
)

var languageInstructions = map[string]string{
	LanguageAuto:      "Detect the language of the input text and respond in the same language. ",
	LanguageEnglish:   "Respond ONLY in English. ",
	LanguageUkrainian: "Respond ONLY in Ukrainian (українською мовою). ",
	LanguageRussian:   "Respond ONLY in Russian (на русском языке). ",
	LanguageSpanish:   "Respond ONLY in Spanish (en español). ",
}

var lengthInstructions = map[openai.Tier]string{
	openai.TierSmall:  "Keep the summary very brief (1 sentence, max 15 words). ",
	openai.TierMedium: "Provide a moderate summary (2-3 sentences). ",
	openai.TierLarge:  "Provide a detailed summary (3-5 sentences). ",
}

// SystemPrompt assembles the summary instruction from the output language,
// the custom prompt and the response size. Unknown languages fall back to
// auto-detection and unknown tiers to medium.
func SystemPrompt(language, prompt string, tier openai.Tier) string {
	lang, ok := languageInstructions[language]
	if !ok {
		lang = languageInstructions[LanguageAuto]
	}
	length, ok := lengthInstructions[tier]
	if !ok {
		length = lengthInstructions[openai.TierMedium]
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = DefaultPrompt
	}

	return strings.TrimSpace(lang + prompt + " " + length)
}

// TokenBudget returns n, or DefaultTokenBudget when n is not positive.
func TokenBudget(n int) int {
	if n <= 0 {
		return DefaultTokenBudget
	}
	return n
}
