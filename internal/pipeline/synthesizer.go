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
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voicechat/internal/audio"
	"github.com/loqalabs/loqa-voicechat/internal/config"
	"github.com/loqalabs/loqa-voicechat/internal/errs"
	"github.com/loqalabs/loqa-voicechat/internal/llm"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
)

// SilenceDuration is the length of the audio substituted for failed synthesis
const SilenceDuration = time.Second

// Speech is a synthesized reply, decoded for inspection and encoded for storage
type Speech struct {
	Segment  audio.Segment
	Encoded  []byte
	Format   string
	Fallback bool  // true when Segment is the silence substitute
	Err      error // synthesis failure behind a fallback
}

// Synthesizer voices reply text
type Synthesizer struct {
	tts     llm.TextToSpeech
	options llm.TTSOptions
}

// NewSynthesizer creates a synthesizer using the configured voice and language
func NewSynthesizer(tts llm.TextToSpeech, cfg config.TTSConfig) *Synthesizer {
	return &Synthesizer{
		tts: tts,
		options: llm.TTSOptions{
			Voice:          cfg.Voice,
			Language:       cfg.Language,
			Speed:          cfg.Speed,
			ResponseFormat: cfg.ResponseFormat,
		},
	}
}

// Synthesize voices text. It never fails: any error is replaced by one
// second of silence encoded as WAV.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) Speech {
	start := time.Now()

	speech, err := s.synthesize(ctx, text)
	if err != nil {
		logging.LogWarn("🔇 Speech synthesis failed, substituting silence",
			zap.Error(err),
			zap.Int("text_chars", len(text)),
		)
		return silentSpeech(errs.Wrap(err, errs.ReasonSynthesis))
	}

	logging.LogTTSOperation("synthesized",
		zap.String("format", speech.Format),
		zap.Int("bytes", len(speech.Encoded)),
		zap.Duration("audio", speech.Segment.Duration()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return speech
}

func (s *Synthesizer) synthesize(ctx context.Context, text string) (Speech, error) {
	opts := s.options
	result, err := s.tts.Synthesize(ctx, text, &opts)
	if err != nil {
		return Speech{}, fmt.Errorf("%w: %w", errs.ErrSynthesis, err)
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}

	encoded, err := io.ReadAll(result.Audio)
	if err != nil {
		return Speech{}, fmt.Errorf("%w: failed to read audio: %w", errs.ErrSynthesis, err)
	}

	format := result.Format
	if format == "" {
		format = opts.ResponseFormat
	}

	seg, err := audio.Decode(encoded, format)
	if err != nil {
		return Speech{}, fmt.Errorf("%w: %w", errs.ErrSynthesis, err)
	}

	return Speech{Segment: seg, Encoded: encoded, Format: format}, nil
}

func silentSpeech(err error) Speech {
	seg := audio.Silence(SilenceDuration)
	return Speech{
		Segment:  seg,
		Encoded:  seg.WAV(),
		Format:   "wav",
		Fallback: true,
		Err:      err,
	}
}
