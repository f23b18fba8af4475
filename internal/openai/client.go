// Package openai talks to an OpenAI-compatible API for chat completions and
// Whisper transcription through go-openai. Requests run on a Dispatcher so
// callers on the event loop never block on the network.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

const (
	// RequestTimeout bounds a single HTTP exchange.
	RequestTimeout = 30 * time.Second
	// ConnectionTestTimeout bounds TestConnection.
	ConnectionTestTimeout = 10 * time.Second
)

// Result is delivered to every asynchronous callback exactly once.
type Result struct {
	Text string
	Err  error
}

// Callback receives the outcome of an asynchronous request. It runs on a
// dispatcher goroutine, or synchronously when the request is rejected early.
type Callback func(Result)

// Dispatcher runs tasks off the caller's goroutine.
type Dispatcher interface {
	Submit(task func()) error
}

type goDispatcher struct{}

func (goDispatcher) Submit(task func()) error {
	go task()
	return nil
}

// TokenSource returns the current API token. An empty token disables requests.
type TokenSource func() string

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func() string { return token }
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithDispatcher sets where asynchronous requests run. Defaults to a new
// goroutine per request.
func WithDispatcher(d Dispatcher) Option {
	return func(c *Client) { c.dispatcher = d }
}

// WithWaitTimeout bounds how long Complete waits for its callback.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Client) { c.waitTimeout = d }
}

// WithConnectionTestTimeout overrides ConnectionTestTimeout.
func WithConnectionTestTimeout(d time.Duration) Option {
	return func(c *Client) { c.testTimeout = d }
}

// Client is safe for concurrent use.
type Client struct {
	baseURL     string
	token       TokenSource
	httpClient  *http.Client
	dispatcher  Dispatcher
	waitTimeout time.Duration
	testTimeout time.Duration
	logger      *slog.Logger
}

// New creates a client for the API rooted at baseURL (for example
// "https://api.openai.com/v1").
func New(baseURL string, token TokenSource, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if token == nil {
		token = StaticToken("")
	}

	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		httpClient:  &http.Client{Timeout: RequestTimeout},
		dispatcher:  goDispatcher{},
		waitTimeout: RequestTimeout,
		testTimeout: ConnectionTestTimeout,
		logger:      logger.With("component", "openai"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasToken reports whether an API token is currently configured.
func (c *Client) HasToken() bool {
	return c.token() != ""
}

// CompleteAsync submits a completion and reports the outcome to cb. Without a
// token cb is invoked synchronously with ErrTokenNotSet and no request is made.
func (c *Client) CompleteAsync(ctx context.Context, req CompletionRequest, cb Callback) {
	token := c.token()
	if token == "" {
		cb(Result{Err: ErrTokenNotSet})
		return
	}

	chatReq := req.chatRequest()
	c.submit(cb, func() (string, error) {
		return c.complete(ctx, token, chatReq)
	})
}

// Complete is the blocking form of CompleteAsync. It gives up with
// ErrTimeout after the wait timeout (30s by default).
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	done := make(chan Result, 1)
	c.CompleteAsync(ctx, req, func(r Result) { done <- r })

	timer := time.NewTimer(c.waitTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.Text, r.Err
	case <-timer.C:
		return "", ErrTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// api builds a go-openai client for token. The token is read per request so
// a changed setting takes effect without rebuilding the Client.
func (c *Client) api(token string, hc *http.Client) *openai.Client {
	cfg := openai.DefaultConfig(token)
	cfg.BaseURL = c.baseURL
	cfg.HTTPClient = hc
	return openai.NewClientWithConfig(cfg)
}

func (c *Client) complete(ctx context.Context, token string, req openai.ChatCompletionRequest) (string, error) {
	log := c.logger.With("request_id", uuid.NewString(), "model", req.Model)
	start := time.Now()

	resp, err := c.api(token, c.httpClient).CreateChatCompletion(ctx, req)
	if err != nil {
		err = apiFailure(err)
		log.WarnContext(ctx, "Completion request failed", "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoResponse
	}

	text := resp.Choices[0].Message.Content
	log.DebugContext(ctx, "Completion received", "duration_ms", time.Since(start).Milliseconds(), "length", len(text))
	return text, nil
}

func (c *Client) submit(cb Callback, task func() (string, error)) {
	err := c.dispatcher.Submit(func() {
		text, err := task()
		cb(Result{Text: text, Err: err})
	})
	if err != nil {
		cb(Result{Err: fmt.Errorf("failed to dispatch request: %w", err)})
	}
}
