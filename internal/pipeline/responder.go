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
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voicechat/internal/conversation"
	"github.com/loqalabs/loqa-voicechat/internal/errs"
	"github.com/loqalabs/loqa-voicechat/internal/llm"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
	"github.com/loqalabs/loqa-voicechat/internal/persona"
)

// Responder produces the assistant reply for a user query
type Responder struct {
	generator llm.TextGenerator
	persona   *persona.Persona
	maxTokens int
}

// NewResponder creates a responder rendering prompts with p
func NewResponder(generator llm.TextGenerator, p *persona.Persona, maxTokens int) *Responder {
	return &Responder{generator: generator, persona: p, maxTokens: maxTokens}
}

// Respond renders the prompt from history and query, consumes the whole
// generation stream and cleans the result. On failure the reply is ErrorText.
func (r *Responder) Respond(ctx context.Context, history conversation.Conversation, query string) (string, error) {
	prompt, err := r.persona.Render(persona.PromptData{
		ChatHistory: history.Transcript(),
		UserQuery:   query,
	})
	if err != nil {
		return ErrorText, errs.Wrap(fmt.Errorf("%w: %w", errs.ErrGeneration, err), errs.ReasonGeneration)
	}

	start := time.Now()
	raw, segments, err := r.generate(ctx, prompt)
	if err != nil {
		return ErrorText, errs.Wrap(fmt.Errorf("%w: %w", errs.ErrGeneration, err), errs.ReasonGeneration)
	}

	reply := DedupeLines(StripPunctuation(raw))

	logging.LogGeneration("reply_generated",
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("segments", segments),
		zap.Int("reply_chars", len(reply)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return reply, nil
}

func (r *Responder) generate(ctx context.Context, prompt string) (string, int, error) {
	stream, err := r.generator.GenerateStream(ctx, llm.GenerationRequest{
		Prompt:    prompt,
		MaxTokens: r.maxTokens,
	})
	if err != nil {
		return "", 0, err
	}
	defer stream.Close()

	var sb strings.Builder
	segments := 0
	for {
		segment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), segments, nil
		}
		if err != nil {
			return "", segments, fmt.Errorf("stream interrupted after %d segments: %w", segments, err)
		}
		sb.WriteString(segment)
		segments++
	}
}

// StripPunctuation keeps letters, combining marks, digits, underscores and
// whitespace and drops every other character
func StripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsMark(r), unicode.IsDigit(r), r == '_', unicode.IsSpace(r):
			return r
		default:
			return -1
		}
	}, s)
}

// DedupeLines drops repeated lines, keeping the first occurrence of each in
// order
func DedupeLines(s string) string {
	lines := strings.Split(s, "\n")
	seen := make(map[string]struct{}, len(lines))
	kept := lines[:0]
	for _, line := range lines {
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
