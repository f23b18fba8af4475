package openai

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

// Transcribe uploads the audio file at path to Whisper and reports the
// transcript to cb. language is an optional ISO-639-1 hint.
func (c *Client) Transcribe(ctx context.Context, path, language string, cb Callback) {
	if path == "" {
		cb(Result{Err: ErrAudioNotFound})
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		cb(Result{Err: ErrAudioNotFound})
		return
	}

	token := c.token()
	if token == "" {
		cb(Result{Err: ErrTokenNotSet})
		return
	}

	c.submit(cb, func() (string, error) {
		return c.transcribe(ctx, token, path, language)
	})
}

func (c *Client) transcribe(ctx context.Context, token, path, language string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAudioNotFound, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	log := c.logger.With("request_id", uuid.NewString(), "file", name)
	log.DebugContext(ctx, "Uploading audio for transcription", "language", language)

	// only the base name goes on the wire
	resp, err := c.api(token, c.httpClient).CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   f,
		FilePath: name,
		Language: language,
	})
	if err != nil {
		err = apiFailure(err)
		log.WarnContext(ctx, "Transcription request failed", "error", err)
		return "", err
	}
	return resp.Text, nil
}
