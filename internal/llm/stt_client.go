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
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voicechat/internal/config"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
)

// OpenAISTTClient transcribes audio through an OpenAI-compatible
// /audio/transcriptions endpoint (OpenAI, Groq, faster-whisper servers).
type OpenAISTTClient struct {
	client *openai.Client
	http   *http.Client
	model  string
}

// NewOpenAISTTClient creates a new OpenAI-compatible speech-to-text client
func NewOpenAISTTClient(cfg config.STTConfig, timeout time.Duration) (*OpenAISTTClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("STT URL cannot be empty")
	}

	httpClient := &http.Client{Timeout: timeout}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.URL, "/")
	clientConfig.HTTPClient = httpClient

	if logging.Sugar != nil {
		logging.Sugar.Infow("🎤 STT client initialized",
			"url", cfg.URL,
			"model", cfg.Model,
			"language", cfg.Language,
		)
	}

	return &OpenAISTTClient{
		client: openai.NewClientWithConfig(clientConfig),
		http:   httpClient,
		model:  cfg.Model,
	}, nil
}

// Recognize uploads one WAV file and returns the transcript text
func (c *OpenAISTTClient) Recognize(ctx context.Context, req SpeechRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	filename := req.Filename
	if filename == "" {
		filename = "audio.wav"
	}

	format := openai.AudioResponseFormatText
	if req.ResponseFormat != "" {
		format = openai.AudioResponseFormat(req.ResponseFormat)
	}

	startTime := time.Now()
	logging.LogTranscription("request_start",
		zap.String("model", model),
		zap.String("language", req.Language),
		zap.Int("audio_bytes", len(req.Audio)),
	)

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       model,
		FilePath:    filename,
		Reader:      bytes.NewReader(req.Audio),
		Temperature: req.Temperature,
		Language:    req.Language,
		Format:      format,
	})
	if err != nil {
		logging.LogError(err, "STT request failed",
			zap.String("model", model),
			zap.Int("audio_bytes", len(req.Audio)),
		)
		return "", fmt.Errorf("STT request failed: %w", err)
	}

	logging.LogTranscription("request_complete",
		zap.Duration("processing_time", time.Since(startTime)),
		zap.Int("text_length", len(resp.Text)),
	)

	return resp.Text, nil
}

// Close cleans up resources
func (c *OpenAISTTClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
