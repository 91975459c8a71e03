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

package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voicechat/internal/audio"
	"github.com/loqalabs/loqa-voicechat/internal/config"
	"github.com/loqalabs/loqa-voicechat/internal/errs"
	"github.com/loqalabs/loqa-voicechat/internal/llm"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
)

// ErrorText is the turn text recorded when transcription or generation fails
const ErrorText = "Error"

// transcriptionTemperature keeps recognition deterministic
const transcriptionTemperature = 0

// Notice is a user-visible message about a failed stage
type Notice struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

func noticeFor(err error) Notice {
	return Notice{Stage: string(errs.Reason(err)), Message: err.Error()}
}

// Transcript is the text recognized in one recording
type Transcript struct {
	Text     string
	Duration time.Duration
	Chunks   int
}

// Transcriber turns a WAV recording into text, one recognition call per chunk
type Transcriber struct {
	recognizer llm.SpeechRecognizer
	cfg        config.STTConfig
}

// NewTranscriber creates a transcriber. Zero limits fall back to the defaults.
func NewTranscriber(recognizer llm.SpeechRecognizer, cfg config.STTConfig) *Transcriber {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = config.DefaultMaxUploadBytes
	}
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = config.DefaultChunkDuration
	}
	return &Transcriber{recognizer: recognizer, cfg: cfg}
}

// Transcribe recognizes raw in chunks of at most the configured duration and
// joins the chunk texts with single spaces. Any failure aborts the whole
// recording: the returned Transcript then holds ErrorText.
func (t *Transcriber) Transcribe(ctx context.Context, raw []byte) (Transcript, error) {
	failed := Transcript{Text: ErrorText}

	if int64(len(raw)) > t.cfg.MaxUploadBytes {
		return failed, errs.Wrap(fmt.Errorf("%w: %d bytes exceeds %d", errs.ErrAudioTooLarge, len(raw), t.cfg.MaxUploadBytes), errs.ReasonTranscription)
	}

	seg, err := audio.ParseWAV(raw)
	if err != nil {
		return failed, errs.Wrap(fmt.Errorf("%w: %w", errs.ErrTranscription, err), errs.ReasonTranscription)
	}
	failed.Duration = seg.Duration()

	chunks, err := audio.SplitByDuration(seg, t.cfg.ChunkDuration)
	if err != nil {
		return failed, errs.Wrap(fmt.Errorf("%w: %w", errs.ErrTranscription, err), errs.ReasonTranscription)
	}
	failed.Chunks = len(chunks)

	texts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		start := time.Now()
		text, err := t.recognizer.Recognize(ctx, llm.SpeechRequest{
			Audio:          chunk.WAV(),
			Filename:       "audio.wav",
			Model:          t.cfg.Model,
			Language:       t.cfg.Language,
			Temperature:    transcriptionTemperature,
			ResponseFormat: "text",
		})
		if err != nil {
			return failed, errs.Wrap(fmt.Errorf("%w: chunk %d of %d: %w", errs.ErrTranscription, i+1, len(chunks), err), errs.ReasonTranscription)
		}

		logging.LogTranscription("chunk_recognized",
			zap.Int("chunk", i+1),
			zap.Int("chunks", len(chunks)),
			zap.Duration("audio", chunk.Duration()),
			zap.Duration("elapsed", time.Since(start)),
		)
		texts = append(texts, text)
	}

	return Transcript{
		Text:     strings.TrimSpace(strings.Join(texts, " ")),
		Duration: seg.Duration(),
		Chunks:   len(chunks),
	}, nil
}
