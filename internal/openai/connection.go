package openai

import (
	"context"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	connectionTestPrompt    = "You are a test assistant. Reply with 'Connection successful!' to confirm the API is working."
	connectionTestMessage   = "Test connection"
	connectionTestSuccess   = "Connection successful!"
	connectionTestMaxTokens = 10
)

// ConnectionReport describes a successful connectivity check.
type ConnectionReport struct {
	Model        string
	ResponseTime time.Duration
	Message      string
}

// TestConnection sends a tiny completion to verify credentials and
// reachability. apiKey takes precedence over the configured token.
//
// Failures carry a short user-facing message: ErrInvalidAPIKey,
// ErrRateLimited, ErrTestNoResponse, a transport classification
// (ErrNetworkUnavailable, ErrConnectionTimeout, ErrConnectionFailed),
// or the provider's own error message.
func (c *Client) TestConnection(ctx context.Context, apiKey string) (*ConnectionReport, error) {
	key := apiKey
	if key == "" {
		key = c.token()
	}
	if key == "" {
		return nil, ErrNoAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.testTimeout)
	defer cancel()

	req := CompletionRequest{
		UserContent:  connectionTestMessage,
		SystemPrompt: connectionTestPrompt,
		Model:        ModelGPT35Turbo,
	}.chatRequest()
	req.MaxTokens = connectionTestMaxTokens
	req.Temperature = budgetTemperature

	start := time.Now()
	resp, err := c.api(key, &http.Client{Timeout: c.testTimeout}).CreateChatCompletion(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.WarnContext(ctx, "Connection test failed", "error", err)
		return nil, connectionFailure(err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrTestNoResponse
	}

	model := resp.Model
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}

	c.logger.InfoContext(ctx, "Connection test succeeded", "model", model, "duration_ms", elapsed.Milliseconds())
	return &ConnectionReport{
		Model:        model,
		ResponseTime: elapsed,
		Message:      connectionTestSuccess,
	}, nil
}
