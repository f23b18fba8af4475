package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// User-facing failure messages. They are surfaced verbatim to callers.
//
//nolint:staticcheck // capitalized on purpose, shown to users as-is
var (
	ErrTokenNotSet   = errors.New("API token not set")
	ErrNoAPIKey      = errors.New("No API key provided")
	ErrAudioNotFound = errors.New("Audio file not found")
	ErrNoResponse    = errors.New("No response from GPT")
	ErrParse         = errors.New("Parse error")
	ErrTimeout       = errors.New("Request timed out")

	ErrTestNoResponse = errors.New("No response from API")
	ErrInvalidAPIKey  = errors.New("Invalid API key")
	ErrRateLimited    = errors.New("Rate limit exceeded")

	ErrNetworkUnavailable = errors.New("Network error: Check internet connection")
	ErrConnectionTimeout  = errors.New("Connection timeout")
	ErrConnectionFailed   = errors.New("Connection failed")
)

// APIError is a non-200 response from the provider. The underlying go-openai
// error stays reachable through errors.As.
type APIError struct {
	StatusCode int
	Message    string
	cause      error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// providerStatus extracts the HTTP status and the provider's error message
// from a go-openai error. ok is false for errors that never got a response.
func providerStatus(err error) (status int, message string, ok bool) {
	var reqErr *openai.RequestError
	var apiErr *openai.APIError
	if errors.As(err, &reqErr) {
		status, ok = reqErr.HTTPStatusCode, true
		message = strings.TrimSpace(string(reqErr.Body))
	}
	if errors.As(err, &apiErr) {
		if !ok {
			status, ok = apiErr.HTTPStatusCode, true
		}
		message = apiErr.Message
	}
	return status, message, ok
}

// apiFailure maps a go-openai error to "HTTP <code>: <body>" for rejected
// requests and to ErrParse for undecodable responses. Transport errors are
// returned unchanged.
func apiFailure(err error) error {
	if status, message, ok := providerStatus(err); ok {
		return &APIError{StatusCode: status, Message: fmt.Sprintf("HTTP %d: %s", status, message), cause: err}
	}
	if isDecodeError(err) {
		return fmt.Errorf("%w: %w", ErrParse, err)
	}
	return err
}

// connectionFailure classifies a failed connection test.
func connectionFailure(err error) error {
	status, _, ok := providerStatus(err)
	switch {
	case !ok && isDecodeError(err):
		return &classifiedError{kind: ErrConnectionFailed, cause: errors.Join(ErrParse, err)}
	case !ok:
		return classifyTransportError(err)
	case status == http.StatusUnauthorized:
		return ErrInvalidAPIKey
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	}

	message := fmt.Sprintf("HTTP %d", status)
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		message = apiErr.Message
	}
	return &APIError{StatusCode: status, Message: message, cause: err}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// classifiedError reports a canonical message while keeping the cause reachable.
type classifiedError struct {
	kind  error
	cause error
}

func (e *classifiedError) Error() string {
	return e.kind.Error()
}

func (e *classifiedError) Unwrap() []error {
	return []error{e.kind, e.cause}
}

// classifyTransportError maps a network-level failure onto one of
// ErrNetworkUnavailable, ErrConnectionTimeout or ErrConnectionFailed.
func classifyTransportError(err error) error {
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		return &classifiedError{kind: ErrNetworkUnavailable, cause: err}
	case isTimeout(err):
		return &classifiedError{kind: ErrConnectionTimeout, cause: err}
	default:
		return &classifiedError{kind: ErrConnectionFailed, cause: err}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
