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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voicechat/internal/config"
	"github.com/loqalabs/loqa-voicechat/internal/errs"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
)

// queueWait bounds how long a request waits for a free synthesis slot
const queueWait = 5 * time.Second

// OpenAITTSRequest represents a request to an OpenAI-compatible TTS API
type OpenAITTSRequest struct {
	Model    string  `json:"model"`
	Input    string  `json:"input"`
	Voice    string  `json:"voice"`
	Format   string  `json:"response_format"`
	Speed    float32 `json:"speed,omitempty"`
	Language string  `json:"language,omitempty"`
}

// OpenAITTSClient implements TextToSpeech interface for OpenAI-compatible TTS services
type OpenAITTSClient struct {
	baseURL   string
	client    *http.Client
	config    config.TTSConfig
	semaphore chan struct{} // Limits concurrent requests
}

// NewOpenAITTSClient creates a new OpenAI-compatible TTS client
func NewOpenAITTSClient(cfg config.TTSConfig) (*OpenAITTSClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("TTS URL cannot be empty")
	}
	if cfg.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("TTS max concurrent must be positive: %d", cfg.MaxConcurrent)
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
	}

	ttsClient := &OpenAITTSClient{
		baseURL:   strings.TrimSuffix(cfg.URL, "/"),
		client:    client,
		config:    cfg,
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
	}

	if logging.Sugar != nil {
		logging.Sugar.Infow("🔊 TTS client initialized",
			"url", cfg.URL,
			"voice", cfg.Voice,
			"language", cfg.Language,
			"max_concurrent", cfg.MaxConcurrent,
		)
	}

	return ttsClient, nil
}

// Synthesize converts text to speech using OpenAI-compatible TTS
func (c *OpenAITTSClient) Synthesize(ctx context.Context, text string, options *TTSOptions) (*TTSResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", errs.ErrSynthesis)
	}

	// Acquire semaphore slot for concurrency control
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(queueWait):
		return nil, fmt.Errorf("%w: synthesis queue full, request timed out", errs.ErrSynthesis)
	}

	startTime := time.Now()

	voice := c.config.Voice
	language := c.config.Language
	speed := c.config.Speed
	format := c.config.ResponseFormat

	if options != nil {
		if options.Voice != "" {
			voice = options.Voice
		}
		if options.Language != "" {
			language = options.Language
		}
		if options.Speed > 0 {
			speed = options.Speed
		}
		if options.ResponseFormat != "" {
			format = options.ResponseFormat
		}
	}

	request := OpenAITTSRequest{
		Model:    c.config.Model,
		Input:    text,
		Voice:    voice,
		Format:   format,
		Speed:    speed,
		Language: language,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	logging.LogTTSOperation("synthesis_start",
		zap.String("voice", voice),
		zap.String("language", language),
		zap.Int("text_length", len(text)),
		zap.String("format", format),
		zap.Float32("speed", speed),
	)

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/audio/speech", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/*")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		logging.LogError(err, "TTS HTTP request failed",
			zap.String("voice", voice),
			zap.Int("text_length", len(text)),
		)
		return nil, fmt.Errorf("%w: TTS HTTP request failed: %w", errs.ErrSynthesis, err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if err := resp.Body.Close(); err != nil {
			logging.LogWarn("Failed to close TTS response body", zap.Error(err))
		}
		logging.LogWarn("TTS request failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response_body", string(body)),
		)
		return nil, fmt.Errorf("%w: TTS request failed with status %d: %s", errs.ErrSynthesis, resp.StatusCode, string(body))
	}

	logging.LogTTSOperation("synthesis_complete",
		zap.String("voice", voice),
		zap.Int("text_length", len(text)),
		zap.Duration("processing_time", time.Since(startTime)),
		zap.String("content_type", resp.Header.Get("Content-Type")),
		zap.Int64("content_length", resp.ContentLength),
	)

	return &TTSResult{
		Audio:       resp.Body,
		Format:      format,
		ContentType: resp.Header.Get("Content-Type"),
		Length:      resp.ContentLength,
		Cleanup: func() {
			if err := resp.Body.Close(); err != nil {
				logging.LogWarn("Failed to close TTS response body", zap.Error(err))
			}
		},
	}, nil
}

// Ping checks that the TTS service answers on its models endpoint
func (c *OpenAITTSClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("failed to create ping request: %w", err)
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("service health check failed with status %d", resp.StatusCode)
	}

	return nil
}

// Close cleans up resources
func (c *OpenAITTSClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
