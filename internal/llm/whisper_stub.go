//go:build !whisper

package llm

import (
	"context"
	"errors"
)

// ErrWhisperDisabled is returned when the binary was built without local Whisper support
var ErrWhisperDisabled = errors.New("whisper transcription disabled (build with -tags whisper to enable)")

// WhisperTranscriber stub implementation when whisper is disabled
type WhisperTranscriber struct {
	modelPath string
}

// NewWhisperTranscriber creates a stub transcriber when whisper is disabled
func NewWhisperTranscriber(modelPath string) (*WhisperTranscriber, error) {
	return &WhisperTranscriber{
		modelPath: modelPath,
	}, nil
}

// Recognize always fails in the stub
func (wt *WhisperTranscriber) Recognize(ctx context.Context, req SpeechRequest) (string, error) {
	return "", ErrWhisperDisabled
}

// Close stub implementation
func (wt *WhisperTranscriber) Close() error {
	return nil
}
