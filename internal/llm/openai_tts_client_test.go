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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-voicechat/internal/config"
	"github.com/loqalabs/loqa-voicechat/internal/errs"
)

func testTTSConfig(url string) config.TTSConfig {
	return config.TTSConfig{
		URL:            url,
		APIKey:         "tts-key",
		Model:          "tts-1",
		Voice:          "alloy",
		Language:       "ur",
		Speed:          1.0,
		ResponseFormat: "mp3",
		MaxConcurrent:  2,
		Timeout:        5 * time.Second,
	}
}

func TestOpenAITTSClient_Synthesize(t *testing.T) {
	var (
		gotRequest OpenAITTSRequest
		gotAuth    string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotRequest)

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("fake-mp3-data"))
	}))
	defer server.Close()

	client, err := NewOpenAITTSClient(testTTSConfig(server.URL))
	require.NoError(t, err)
	defer client.Close()

	result, err := client.Synthesize(context.Background(), "خوش آمدید", nil)
	require.NoError(t, err)
	defer result.Cleanup()

	data, err := io.ReadAll(result.Audio)
	require.NoError(t, err)
	assert.Equal(t, "fake-mp3-data", string(data))
	assert.Equal(t, "mp3", result.Format)
	assert.Equal(t, "audio/mpeg", result.ContentType)

	assert.Equal(t, "Bearer tts-key", gotAuth)
	assert.Equal(t, "tts-1", gotRequest.Model)
	assert.Equal(t, "خوش آمدید", gotRequest.Input)
	assert.Equal(t, "alloy", gotRequest.Voice)
	assert.Equal(t, "ur", gotRequest.Language)
	assert.Equal(t, "mp3", gotRequest.Format)
}

func TestOpenAITTSClient_SynthesizeOptionsOverride(t *testing.T) {
	var gotRequest OpenAITTSRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotRequest)
		w.Write([]byte("RIFF"))
	}))
	defer server.Close()

	client, err := NewOpenAITTSClient(testTTSConfig(server.URL))
	require.NoError(t, err)

	result, err := client.Synthesize(context.Background(), "hello", &TTSOptions{
		Voice:          "nova",
		Language:       "en",
		Speed:          1.25,
		ResponseFormat: "wav",
	})
	require.NoError(t, err)
	result.Cleanup()

	assert.Equal(t, "nova", gotRequest.Voice)
	assert.Equal(t, "en", gotRequest.Language)
	assert.Equal(t, float32(1.25), gotRequest.Speed)
	assert.Equal(t, "wav", gotRequest.Format)
	assert.Equal(t, "wav", result.Format)
}

func TestOpenAITTSClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unsupported language"}`))
	}))
	defer server.Close()

	client, err := NewOpenAITTSClient(testTTSConfig(server.URL))
	require.NoError(t, err)

	t.Run("empty text", func(t *testing.T) {
		_, err := client.Synthesize(context.Background(), "   ", nil)
		assert.ErrorIs(t, err, errs.ErrSynthesis)
	})

	t.Run("bad status", func(t *testing.T) {
		_, err := client.Synthesize(context.Background(), "hello", nil)
		require.ErrorIs(t, err, errs.ErrSynthesis)
		assert.Contains(t, err.Error(), "status 400")
	})

	t.Run("unreachable", func(t *testing.T) {
		down, err := NewOpenAITTSClient(testTTSConfig("http://127.0.0.1:1"))
		require.NoError(t, err)
		_, err = down.Synthesize(context.Background(), "hello", nil)
		assert.ErrorIs(t, err, errs.ErrSynthesis)
	})
}

func TestOpenAITTSClient_ConcurrencyLimit(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.Write([]byte("audio"))
	}))
	defer server.Close()

	cfg := testTTSConfig(server.URL)
	cfg.MaxConcurrent = 1
	client, err := NewOpenAITTSClient(cfg)
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		result, err := client.Synthesize(context.Background(), "first", nil)
		if err == nil {
			result.Cleanup()
		}
		firstDone <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Synthesize(ctx, "second", nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	close(release)
	require.NoError(t, <-firstDone)
}

func TestOpenAITTSClient_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			w.Write([]byte(`{"data":[]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewOpenAITTSClient(testTTSConfig(server.URL))
	require.NoError(t, err)
	assert.NoError(t, client.Ping(context.Background()))

	server.Close()
	assert.Error(t, client.Ping(context.Background()))
}

func TestNewOpenAITTSClient_InvalidConfig(t *testing.T) {
	_, err := NewOpenAITTSClient(config.TTSConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "URL cannot be empty")

	cfg := testTTSConfig("http://localhost")
	cfg.MaxConcurrent = 0
	_, err = NewOpenAITTSClient(cfg)
	assert.Error(t, err)
}
