package openai

import (
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Model identifiers understood by the chat-completions endpoint.
const (
	ModelGPT35Turbo = openai.GPT3Dot5Turbo
	ModelGPT4o      = openai.GPT4o
	ModelGPT4Turbo  = openai.GPT4TurboPreview
)

// Token budget bounds for explicit budgets.
const (
	MinTokenBudget = 1
	MaxTokenBudget = 4096

	budgetTemperature = 0.7
)

// Tier is a coarse response-length preset.
type Tier int

const (
	TierSmall Tier = iota
	TierMedium
	TierLarge
)

type sampling struct {
	maxTokens   int
	temperature float32
}

var tierSampling = map[Tier]sampling{
	TierSmall:  {maxTokens: 100, temperature: 0.7},
	TierMedium: {maxTokens: 250, temperature: 0.8},
	TierLarge:  {maxTokens: 500, temperature: 0.9},
}

var tierNames = map[Tier]string{
	TierSmall:  "small",
	TierMedium: "medium",
	TierLarge:  "large",
}

// String returns the config name of the tier.
func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return tierNames[TierMedium]
}

// ParseTier parses "small", "medium" or "large".
func ParseTier(s string) (Tier, error) {
	for tier, name := range tierNames {
		if strings.EqualFold(s, name) {
			return tier, nil
		}
	}
	return TierMedium, fmt.Errorf("unknown response size %q", s)
}

// CompletionRequest describes a single chat completion.
type CompletionRequest struct {
	UserContent  string
	SystemPrompt string
	Model        string
	Tier         Tier
	// TokenBudget, when non-zero, replaces Tier: it is clamped to
	// [MinTokenBudget, MaxTokenBudget] and sampled at temperature 0.7.
	TokenBudget int
}

func (r CompletionRequest) sampling() sampling {
	if r.TokenBudget != 0 {
		return sampling{maxTokens: ClampTokenBudget(r.TokenBudget), temperature: budgetTemperature}
	}
	if s, ok := tierSampling[r.Tier]; ok {
		return s
	}
	return tierSampling[TierMedium]
}

// ClampTokenBudget bounds n to [MinTokenBudget, MaxTokenBudget].
func ClampTokenBudget(n int) int {
	return max(MinTokenBudget, min(n, MaxTokenBudget))
}

func (r CompletionRequest) chatRequest() openai.ChatCompletionRequest {
	s := r.sampling()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if r.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: r.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: r.UserContent})

	return openai.ChatCompletionRequest{
		Model:       r.Model,
		Messages:    messages,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}
}
