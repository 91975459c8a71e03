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
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voicechat/internal/config"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
)

// OpenAIChatClient streams chat completions from an OpenAI-compatible API
type OpenAIChatClient struct {
	client *openai.Client
	http   *http.Client
	model  string
}

// NewOpenAIChatClient creates a new streaming chat completion client
func NewOpenAIChatClient(cfg config.LLMConfig) (*OpenAIChatClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("LLM URL cannot be empty")
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.URL, "/")
	clientConfig.HTTPClient = httpClient

	if logging.Sugar != nil {
		logging.Sugar.Infow("🧠 LLM client initialized",
			"provider", "openai",
			"url", cfg.URL,
			"model", cfg.Model,
		)
	}

	return &OpenAIChatClient{
		client: openai.NewClientWithConfig(clientConfig),
		http:   httpClient,
		model:  cfg.Model,
	}, nil
}

// GenerateStream sends the prompt as a single user message and streams the reply
func (c *OpenAIChatClient) GenerateStream(ctx context.Context, req GenerationRequest) (TokenStream, error) {
	logging.LogGeneration("stream_start",
		zap.String("provider", "openai"),
		zap.String("model", c.model),
		zap.Int("prompt_length", len(req.Prompt)),
		zap.Int("max_tokens", req.MaxTokens),
	)

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens: req.MaxTokens,
		Stream:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start completion stream: %w", err)
	}

	return &openAITokenStream{stream: stream, started: time.Now()}, nil
}

// Close cleans up resources
func (c *OpenAIChatClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

type openAITokenStream struct {
	stream  *openai.ChatCompletionStream
	started time.Time
	tokens  int
}

func (s *openAITokenStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			logging.LogGeneration("stream_complete",
				zap.String("provider", "openai"),
				zap.Int("segments", s.tokens),
				zap.Duration("processing_time", time.Since(s.started)),
			)
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("completion stream failed: %w", err)
		}

		// Usage-only and role-only chunks carry no text
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}

		s.tokens++
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *openAITokenStream) Close() error {
	s.stream.Close()
	return nil
}
