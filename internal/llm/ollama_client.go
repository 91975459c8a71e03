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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voicechat/internal/config"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
)

// OllamaOptions carries model options for a generate request
type OllamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

// OllamaRequest represents a request to Ollama API
type OllamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options *OllamaOptions `json:"options,omitempty"`
}

// OllamaResponse represents one line of an Ollama streaming response
type OllamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// OllamaClient streams completions from Ollama's /api/generate endpoint
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaClient creates a new Ollama streaming client
func NewOllamaClient(cfg config.LLMConfig) (*OllamaClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("Ollama URL cannot be empty")
	}

	if logging.Sugar != nil {
		logging.Sugar.Infow("🧠 LLM client initialized",
			"provider", "ollama",
			"url", cfg.URL,
			"model", cfg.Model,
		)
	}

	return &OllamaClient{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// GenerateStream starts an NDJSON streaming generate request
func (c *OllamaClient) GenerateStream(ctx context.Context, req GenerationRequest) (TokenStream, error) {
	reqBody := OllamaRequest{
		Model:  c.model,
		Prompt: req.Prompt,
		Stream: true,
	}
	if req.MaxTokens > 0 {
		reqBody.Options = &OllamaOptions{NumPredict: req.MaxTokens}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling streaming request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating streaming request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	logging.LogGeneration("stream_start",
		zap.String("provider", "ollama"),
		zap.String("model", c.model),
		zap.Int("prompt_length", len(req.Prompt)),
		zap.Int("max_tokens", req.MaxTokens),
	)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making streaming request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("streaming request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return &ollamaTokenStream{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
		started: time.Now(),
	}, nil
}

// Close cleans up resources
func (c *OllamaClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

type ollamaTokenStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
	started time.Time
	tokens  int
}

func (s *ollamaTokenStream) Recv() (string, error) {
	for !s.done && s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			continue
		}

		var chunk OllamaResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return "", fmt.Errorf("error unmarshaling streaming line: %w", err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("ollama stream error: %s", chunk.Error)
		}

		s.done = chunk.Done
		if chunk.Response == "" {
			continue
		}

		s.tokens++
		return chunk.Response, nil
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("error reading streaming response: %w", err)
	}
	if !s.done {
		return "", fmt.Errorf("streaming response ended before completion")
	}

	logging.LogGeneration("stream_complete",
		zap.String("provider", "ollama"),
		zap.Int("segments", s.tokens),
		zap.Duration("processing_time", time.Since(s.started)),
	)
	return "", io.EOF
}

func (s *ollamaTokenStream) Close() error {
	return s.body.Close()
}
