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

package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voicechat/internal/audio"
	"github.com/loqalabs/loqa-voicechat/internal/config"
	"github.com/loqalabs/loqa-voicechat/internal/health"
	"github.com/loqalabs/loqa-voicechat/internal/llm"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
	"github.com/loqalabs/loqa-voicechat/internal/messaging"
	"github.com/loqalabs/loqa-voicechat/internal/metrics"
	"github.com/loqalabs/loqa-voicechat/internal/persona"
	"github.com/loqalabs/loqa-voicechat/internal/pipeline"
	"github.com/loqalabs/loqa-voicechat/internal/storage"
)

const (
	sttTimeout          = 2 * time.Minute
	healthCheckInterval = 30 * time.Second
	healthCheckTimeout  = 5 * time.Second
)

// Dependencies are the components a Server is assembled from
type Dependencies struct {
	Pipeline *pipeline.Pipeline
	Audio    *audio.TempStore
	Events   *storage.TurnEventsStore
	Checker  *health.Checker
	Metrics  *metrics.Metrics

	// Closers release resources in reverse order on Stop
	Closers []func() error
}

// buildDependencies creates every external client from configuration
func buildDependencies(cfg *config.Config) (_ *Dependencies, err error) {
	deps := &Dependencies{}
	defer func() {
		if err != nil {
			closeAll(deps.Closers)
		}
	}()

	p, err := persona.Load(cfg.Persona.File)
	if err != nil {
		return nil, err
	}

	store, err := audio.NewTempStore(cfg.Audio.TempDir, cfg.Audio.RetainFiles)
	if err != nil {
		return nil, err
	}
	deps.Audio = store
	deps.Closers = append(deps.Closers, store.Close)

	recognizer, err := newRecognizer(cfg.STT)
	if err != nil {
		return nil, err
	}
	deps.Closers = append(deps.Closers, recognizer.Close)

	generator, err := newGenerator(cfg.LLM)
	if err != nil {
		return nil, err
	}
	deps.Closers = append(deps.Closers, generator.Close)

	tts, err := llm.NewOpenAITTSClient(cfg.TTS)
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS client: %w", err)
	}
	deps.Closers = append(deps.Closers, tts.Close)

	db, err := storage.NewDatabase(storage.DatabaseConfig{Path: cfg.Storage.DBPath})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	deps.Closers = append(deps.Closers, db.Close)
	deps.Events = storage.NewTurnEventsStore(db)

	var publisher messaging.EventPublisher = messaging.NoopPublisher{}
	var natsService *messaging.NATSService
	if cfg.NATS.URL != "" {
		natsService = messaging.NewNATSService(cfg.NATS)
		if err := natsService.Connect(); err != nil {
			// Turn events are still stored locally
			logging.LogWarn("⚠️  NATS unavailable, turn events will not be published", zap.Error(err))
			natsService = nil
		} else {
			publisher = natsService
			deps.Closers = append(deps.Closers, func() error {
				natsService.Close()
				return nil
			})
		}
	}

	deps.Metrics = metrics.NewMetrics()

	deps.Checker = health.NewChecker(healthCheckInterval, healthCheckTimeout)
	deps.Checker.Register("storage", true, func(ctx context.Context) error {
		return db.DB().PingContext(ctx)
	})
	deps.Checker.Register("tts", false, tts.Ping)
	if cfg.STT.Provider == "openai" {
		deps.Checker.Register("stt", false, health.HTTPCheck(nil, strings.TrimRight(cfg.STT.URL, "/")+"/models"))
	}
	deps.Checker.Register("llm", false, health.HTTPCheck(nil, llmCheckURL(cfg.LLM)))
	if natsService != nil {
		deps.Checker.Register("nats", false, func(context.Context) error {
			if !natsService.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		})
	}

	deps.Pipeline = pipeline.New(pipeline.Deps{
		Store:      store,
		Recognizer: recognizer,
		Generator:  generator,
		TTS:        tts,
		Persona:    p,
		STTConfig:  cfg.STT,
		LLMConfig:  cfg.LLM,
		TTSConfig:  cfg.TTS,
		Events:     deps.Events,
		Publisher:  publisher,
		Metrics:    deps.Metrics,
	})

	return deps, nil
}

func newRecognizer(cfg config.STTConfig) (llm.SpeechRecognizer, error) {
	switch cfg.Provider {
	case "whisper":
		t, err := llm.NewWhisperTranscriber(cfg.WhisperModelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load whisper model: %w", err)
		}
		return t, nil
	default:
		c, err := llm.NewOpenAISTTClient(cfg, sttTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create STT client: %w", err)
		}
		return c, nil
	}
}

func newGenerator(cfg config.LLMConfig) (llm.TextGenerator, error) {
	switch cfg.Provider {
	case "ollama":
		c, err := llm.NewOllamaClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	default:
		c, err := llm.NewOpenAIChatClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat client: %w", err)
		}
		return c, nil
	}
}

func llmCheckURL(cfg config.LLMConfig) string {
	base := strings.TrimRight(cfg.URL, "/")
	if cfg.Provider == "ollama" {
		return base + "/api/tags"
	}
	return base + "/models"
}

func closeAll(closers []func() error) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logging.LogError(err, "Failed to release resource")
		}
	}
}
