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
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MockSpeechRecognizer implements SpeechRecognizer for testing
type MockSpeechRecognizer struct {
	RecognizeFunc func(ctx context.Context, req SpeechRequest) (string, error)

	mu       sync.Mutex
	requests []SpeechRequest
}

func (m *MockSpeechRecognizer) Recognize(ctx context.Context, req SpeechRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(ctx, req)
	}
	return "", nil
}

// Requests returns every request received so far
func (m *MockSpeechRecognizer) Requests() []SpeechRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SpeechRequest(nil), m.requests...)
}

func (m *MockSpeechRecognizer) Close() error {
	return nil
}

// SliceTokenStream replays fixed segments, then returns Err (or io.EOF)
type SliceTokenStream struct {
	Segments []string
	Err      error

	pos    int
	closed bool
}

func (s *SliceTokenStream) Recv() (string, error) {
	if s.pos < len(s.Segments) {
		seg := s.Segments[s.pos]
		s.pos++
		return seg, nil
	}
	if s.Err != nil {
		return "", s.Err
	}
	return "", io.EOF
}

func (s *SliceTokenStream) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called
func (s *SliceTokenStream) Closed() bool {
	return s.closed
}

// MockTextGenerator implements TextGenerator for testing
type MockTextGenerator struct {
	GenerateStreamFunc func(ctx context.Context, req GenerationRequest) (TokenStream, error)

	mu       sync.Mutex
	requests []GenerationRequest
}

func (m *MockTextGenerator) GenerateStream(ctx context.Context, req GenerationRequest) (TokenStream, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.GenerateStreamFunc != nil {
		return m.GenerateStreamFunc(ctx, req)
	}
	return &SliceTokenStream{}, nil
}

// Requests returns every request received so far
func (m *MockTextGenerator) Requests() []GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GenerationRequest(nil), m.requests...)
}

func (m *MockTextGenerator) Close() error {
	return nil
}

// CreateMockTextGenerator creates a generator that streams the given segments
func CreateMockTextGenerator(segments ...string) *MockTextGenerator {
	return &MockTextGenerator{
		GenerateStreamFunc: func(ctx context.Context, req GenerationRequest) (TokenStream, error) {
			return &SliceTokenStream{Segments: segments}, nil
		},
	}
}

// CreateMockTextGeneratorWithError creates a generator whose calls fail
func CreateMockTextGeneratorWithError(errMsg string) *MockTextGenerator {
	return &MockTextGenerator{
		GenerateStreamFunc: func(ctx context.Context, req GenerationRequest) (TokenStream, error) {
			return nil, fmt.Errorf("%s", errMsg)
		},
	}
}

// MockTextToSpeech implements TextToSpeech for testing
type MockTextToSpeech struct {
	SynthesizeFunc func(ctx context.Context, text string, options *TTSOptions) (*TTSResult, error)

	mu    sync.Mutex
	texts []string
}

func (m *MockTextToSpeech) Synthesize(ctx context.Context, text string, options *TTSOptions) (*TTSResult, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()

	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text, options)
	}
	return nil, fmt.Errorf("no mock function provided")
}

// Texts returns every text submitted so far
func (m *MockTextToSpeech) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

func (m *MockTextToSpeech) Close() error {
	return nil
}

// CreateMockTextToSpeech creates a TTS double that always returns audio in format
func CreateMockTextToSpeech(audio []byte, format string) *MockTextToSpeech {
	return &MockTextToSpeech{
		SynthesizeFunc: func(ctx context.Context, text string, options *TTSOptions) (*TTSResult, error) {
			return &TTSResult{
				Audio:  bytes.NewReader(audio),
				Format: format,
				Length: int64(len(audio)),
			}, nil
		},
	}
}

// CreateMockTextToSpeechWithError creates a TTS double whose calls fail
func CreateMockTextToSpeechWithError(errMsg string) *MockTextToSpeech {
	return &MockTextToSpeech{
		SynthesizeFunc: func(ctx context.Context, text string, options *TTSOptions) (*TTSResult, error) {
			return nil, fmt.Errorf("%s", errMsg)
		},
	}
}
