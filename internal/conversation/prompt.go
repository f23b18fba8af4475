package conversation

import (
	"strings"

	"github.com/edgard/autoreply/internal/text"
)

const (
	// SystemPrompt instructs the model for automatic replies.
	SystemPrompt = "You are helping the user respond to messages naturally. " +
		"Generate an appropriate response based on the conversation context. " +
		"Keep the response conversational and match the tone of the conversation."

	promptHeader = "Generate a response for this conversation:\n\n"

	selfTag  = "Me: "
	otherTag = "Other: "
)

// ExtractWindow looks at the last n messages (oldest first) and returns the
// ones newer than watermark as tagged lines, preserving their order. Messages
// without text are skipped.
func ExtractWindow(messages []Message, watermark int64, n int) []string {
	if n <= 0 {
		return nil
	}

	start := max(0, len(messages)-n)
	lines := make([]string, 0, len(messages)-start)
	for _, m := range messages[start:] {
		if m.ID <= watermark || m.Text == "" {
			continue
		}
		tag := otherTag
		if m.Outgoing {
			tag = selfTag
		}
		lines = append(lines, tag+m.Text)
	}
	return lines
}

// BuildPrompt renders window lines as the user content of a completion.
func BuildPrompt(lines []string) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// CleanReply normalizes a generated reply and drops a speaker tag the model
// may have echoed from the prompt.
func CleanReply(reply string) string {
	return text.Clean(text.TrimLabel(reply, strings.TrimSpace(selfTag)))
}
