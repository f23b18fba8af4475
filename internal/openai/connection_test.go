package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
)

func TestTestConnection_Responses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		is      error
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   `{"model":"gpt-3.5-turbo-0125","choices":[{"message":{"content":"Connection successful!"}}]}`,
		},
		{name: "empty choices", status: http.StatusOK, body: `{"choices":[]}`, wantErr: "No response from API", is: ErrTestNoResponse},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":{"message":"bad key"}}`, wantErr: "Invalid API key", is: ErrInvalidAPIKey},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, wantErr: "Rate limit exceeded", is: ErrRateLimited},
		{name: "provider message", status: http.StatusBadRequest, body: `{"error":{"message":"model not found"}}`, wantErr: "model not found"},
		{name: "bare status", status: http.StatusServiceUnavailable, body: `<html>down</html>`, wantErr: "HTTP 503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got openai.ChatCompletionRequest
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}, "sk-test")

			report, err := c.TestConnection(context.Background(), "")

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("TestConnection() error = %v", err)
				}
				if report.Model != "gpt-3.5-turbo-0125" || report.Message != "Connection successful!" {
					t.Errorf("report = %+v", report)
				}
				if got.MaxTokens != 10 || got.Temperature != 0.7 || got.Model != ModelGPT35Turbo {
					t.Errorf("request = %+v", got)
				}
				if len(got.Messages) != 2 || got.Messages[1].Content != "Test connection" {
					t.Errorf("messages = %+v", got.Messages)
				}
				return
			}

			if err == nil {
				t.Fatalf("TestConnection() error = nil, want %q", tt.wantErr)
			}
			if err.Error() != tt.wantErr {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantErr)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.is)
			}
		})
	}
}

func TestTestConnection_KeySelection(t *testing.T) {
	t.Parallel()

	t.Run("no key anywhere", func(t *testing.T) {
		t.Parallel()
		c := New("http://unused.invalid", StaticToken(""), nil)
		if _, err := c.TestConnection(context.Background(), ""); !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("err = %v, want ErrNoAPIKey", err)
		}
	})

	t.Run("explicit key wins", func(t *testing.T) {
		t.Parallel()
		var auth string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
		}, "sk-configured")

		if _, err := c.TestConnection(context.Background(), "sk-explicit"); err != nil {
			t.Fatalf("TestConnection() error = %v", err)
		}
		if auth != "Bearer sk-explicit" {
			t.Errorf("Authorization = %q, want explicit key", auth)
		}
	})
}

func TestTestConnection_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}, "sk-test", WithConnectionTestTimeout(50*time.Millisecond))
	defer close(release)

	_, err := c.TestConnection(context.Background(), "")
	if !errors.Is(err, ErrConnectionTimeout) || err.Error() != "Connection timeout" {
		t.Errorf("err = %v, want ErrConnectionTimeout", err)
	}
}

func TestClassifyTransportError(t *testing.T) {
	t.Parallel()

	dnsErr := &net.DNSError{Err: "no such host", Name: "api.example.invalid", IsNotFound: true}
	generic := errors.New("connection refused")

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"dns", fmt.Errorf("dial: %w", dnsErr), ErrNetworkUnavailable},
		{"deadline", fmt.Errorf("request: %w", context.DeadlineExceeded), ErrConnectionTimeout},
		{"other", generic, ErrConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := classifyTransportError(tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("classify(%v) = %v, want %v", tt.in, err, tt.want)
			}
			if err.Error() != tt.want.Error() {
				t.Errorf("message = %q, want %q", err.Error(), tt.want.Error())
			}
			if !errors.Is(err, tt.in) {
				t.Errorf("cause not reachable from %v", err)
			}
		})
	}
}
