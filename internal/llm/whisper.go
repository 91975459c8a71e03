//go:build whisper

/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voicechat/internal/audio"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
)

const whisperSampleRate = 16000

// WhisperTranscriber handles speech-to-text using a local Whisper model
type WhisperTranscriber struct {
	mu        sync.Mutex
	model     whisper.Model
	modelPath string
}

// NewWhisperTranscriber creates a new Whisper transcriber
func NewWhisperTranscriber(modelPath string) (*WhisperTranscriber, error) {
	// Check if model file exists
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("whisper model not found at %s", modelPath)
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load whisper model: %w", err)
	}

	logging.Sugar.Infof("✅ Whisper model loaded: %s", modelPath)
	return &WhisperTranscriber{
		model:     model,
		modelPath: modelPath,
	}, nil
}

// Recognize decodes a 16 kHz 16-bit WAV file and transcribes it locally
func (wt *WhisperTranscriber) Recognize(ctx context.Context, req SpeechRequest) (string, error) {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	if wt.model == nil {
		return "", fmt.Errorf("whisper model not initialized")
	}

	seg, err := audio.ParseWAV(req.Audio)
	if err != nil {
		return "", fmt.Errorf("failed to parse audio: %w", err)
	}
	if seg.SampleRate != whisperSampleRate {
		return "", fmt.Errorf("whisper needs %d Hz audio, got %d Hz", whisperSampleRate, seg.SampleRate)
	}

	samples, err := seg.Float32Mono()
	if err != nil {
		return "", fmt.Errorf("failed to convert audio: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	wctx, err := wt.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("failed to create whisper context: %w", err)
	}

	if req.Language != "" {
		if err := wctx.SetLanguage(req.Language); err != nil {
			return "", fmt.Errorf("failed to set whisper language %q: %w", req.Language, err)
		}
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("failed to process audio: %w", err)
	}

	var transcript strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if err != nil {
			break
		}
		transcript.WriteString(segment.Text)
	}

	result := strings.TrimSpace(transcript.String())
	logging.LogTranscription("whisper_complete",
		zap.Int("samples", len(samples)),
		zap.Int("text_length", len(result)),
	)
	return result, nil
}

// Close cleans up the Whisper model
func (wt *WhisperTranscriber) Close() error {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	if wt.model != nil {
		err := wt.model.Close()
		wt.model = nil
		logging.Sugar.Info("🧠 Whisper model closed")
		return err
	}
	return nil
}
