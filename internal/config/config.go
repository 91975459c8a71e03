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

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the voice chat service
type Config struct {
	Server  ServerConfig
	STT     STTConfig
	LLM     LLMConfig
	TTS     TTSConfig
	Persona PersonaConfig
	Audio   AudioConfig
	Storage StorageConfig
	Logging LoggingConfig
	NATS    NATSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host           string
	Port           int
	GRPCPort       int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	SessionIdleTTL time.Duration // Sessions untouched for this long are ended (0 disables)
}

// STTConfig holds Speech-to-Text service configuration
type STTConfig struct {
	Provider         string // "openai" (any OpenAI-compatible API) or "whisper" (local model)
	URL              string // Base URL of the OpenAI-compatible API
	APIKey           string
	Model            string
	Language         string
	MaxUploadBytes   int64         // Recordings larger than this are rejected before upload
	ChunkDuration    time.Duration // Maximum duration of one upload
	WhisperModelPath string
}

// LLMConfig holds text generation service configuration
type LLMConfig struct {
	Provider  string // "openai" or "ollama"
	URL       string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// TTSConfig holds Text-to-Speech service configuration
type TTSConfig struct {
	URL            string // REST API URL for an OpenAI-compatible speech endpoint
	APIKey         string
	Model          string
	Voice          string  // Default voice to use
	Language       string  // Spoken language code sent with every request
	Speed          float32 // Speech speed (1.0 = normal)
	ResponseFormat string  // Audio format (mp3, wav)
	MaxConcurrent  int     // Maximum concurrent TTS requests
	Timeout        time.Duration
}

// PersonaConfig selects the assistant persona
type PersonaConfig struct {
	File string // Optional YAML persona file; the embedded default is used when empty
}

// AudioConfig controls temporary audio artifacts
type AudioConfig struct {
	TempDir     string
	RetainFiles bool // Keep audio files after their session ends
}

// StorageConfig holds turn event log configuration
type StorageConfig struct {
	DBPath string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// NATSConfig holds NATS messaging configuration
type NATSConfig struct {
	URL           string // Empty disables publishing
	Subject       string
	MaxReconnect  int
	ReconnectWait time.Duration
}

const (
	DefaultMaxUploadBytes = 50 * 1024 * 1024
	DefaultChunkDuration  = 5 * time.Minute
)

// Load loads configuration from environment variables with defaults.
// VOICECHAT_CONFIG may point at a YAML/TOML/JSON file with the same keys.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("VOICECHAT_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	config := fromViper(v)

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"VOICECHAT_HOST":             "0.0.0.0",
		"VOICECHAT_PORT":             3000,
		"VOICECHAT_GRPC_PORT":        50051,
		"VOICECHAT_READ_TIMEOUT":     "2m",
		"VOICECHAT_WRITE_TIMEOUT":    "5m",
		"VOICECHAT_SESSION_IDLE_TTL": "2h",

		"STT_PROVIDER":         "openai",
		"STT_URL":              "https://api.groq.com/openai/v1",
		"STT_API_KEY":          "",
		"STT_MODEL":            "whisper-large-v3",
		"STT_LANGUAGE":         "ur",
		"STT_MAX_UPLOAD_BYTES": DefaultMaxUploadBytes,
		"STT_CHUNK_DURATION":   DefaultChunkDuration.String(),
		"WHISPER_MODEL_PATH":   "./models/ggml-base.bin",

		"LLM_PROVIDER":   "openai",
		"LLM_URL":        "https://api.groq.com/openai/v1",
		"LLM_API_KEY":    "",
		"LLM_MODEL":      "llama-3.1-70b-versatile",
		"LLM_MAX_TOKENS": 500,
		"LLM_TIMEOUT":    "60s",

		"TTS_URL":            "http://localhost:8880/v1",
		"TTS_API_KEY":        "",
		"TTS_MODEL":          "tts-1",
		"TTS_VOICE":          "alloy",
		"TTS_LANGUAGE":       "ur",
		"TTS_SPEED":          1.0,
		"TTS_FORMAT":         "mp3",
		"TTS_MAX_CONCURRENT": 10,
		"TTS_TIMEOUT":        "30s",

		"PERSONA_FILE": "",

		"AUDIO_TEMP_DIR":     "",
		"AUDIO_RETAIN_FILES": false,

		"DB_PATH": ":memory:",

		"LOG_LEVEL":  "info",
		"LOG_FORMAT": "console",

		"NATS_URL":            "",
		"NATS_SUBJECT":        "voicechat.turns",
		"NATS_MAX_RECONNECT":  10,
		"NATS_RECONNECT_WAIT": "2s",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Host:           v.GetString("VOICECHAT_HOST"),
			Port:           v.GetInt("VOICECHAT_PORT"),
			GRPCPort:       v.GetInt("VOICECHAT_GRPC_PORT"),
			ReadTimeout:    v.GetDuration("VOICECHAT_READ_TIMEOUT"),
			WriteTimeout:   v.GetDuration("VOICECHAT_WRITE_TIMEOUT"),
			SessionIdleTTL: v.GetDuration("VOICECHAT_SESSION_IDLE_TTL"),
		},
		STT: STTConfig{
			Provider:         strings.ToLower(v.GetString("STT_PROVIDER")),
			URL:              v.GetString("STT_URL"),
			APIKey:           v.GetString("STT_API_KEY"),
			Model:            v.GetString("STT_MODEL"),
			Language:         v.GetString("STT_LANGUAGE"),
			MaxUploadBytes:   v.GetInt64("STT_MAX_UPLOAD_BYTES"),
			ChunkDuration:    v.GetDuration("STT_CHUNK_DURATION"),
			WhisperModelPath: v.GetString("WHISPER_MODEL_PATH"),
		},
		LLM: LLMConfig{
			Provider:  strings.ToLower(v.GetString("LLM_PROVIDER")),
			URL:       v.GetString("LLM_URL"),
			APIKey:    v.GetString("LLM_API_KEY"),
			Model:     v.GetString("LLM_MODEL"),
			MaxTokens: v.GetInt("LLM_MAX_TOKENS"),
			Timeout:   v.GetDuration("LLM_TIMEOUT"),
		},
		TTS: TTSConfig{
			URL:            v.GetString("TTS_URL"),
			APIKey:         v.GetString("TTS_API_KEY"),
			Model:          v.GetString("TTS_MODEL"),
			Voice:          v.GetString("TTS_VOICE"),
			Language:       v.GetString("TTS_LANGUAGE"),
			Speed:          float32(v.GetFloat64("TTS_SPEED")),
			ResponseFormat: strings.ToLower(v.GetString("TTS_FORMAT")),
			MaxConcurrent:  v.GetInt("TTS_MAX_CONCURRENT"),
			Timeout:        v.GetDuration("TTS_TIMEOUT"),
		},
		Persona: PersonaConfig{
			File: v.GetString("PERSONA_FILE"),
		},
		Audio: AudioConfig{
			TempDir:     v.GetString("AUDIO_TEMP_DIR"),
			RetainFiles: v.GetBool("AUDIO_RETAIN_FILES"),
		},
		Storage: StorageConfig{
			DBPath: v.GetString("DB_PATH"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("NATS_URL"),
			Subject:       v.GetString("NATS_SUBJECT"),
			MaxReconnect:  v.GetInt("NATS_MAX_RECONNECT"),
			ReconnectWait: v.GetDuration("NATS_RECONNECT_WAIT"),
		},
	}
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.Server.GRPCPort)
	}

	switch c.STT.Provider {
	case "openai":
		if c.STT.URL == "" {
			return fmt.Errorf("STT URL must be provided")
		}
	case "whisper":
		if c.STT.WhisperModelPath == "" {
			return fmt.Errorf("whisper model path must be provided")
		}
	default:
		return fmt.Errorf("unsupported STT provider: %q", c.STT.Provider)
	}

	if c.STT.MaxUploadBytes <= 0 {
		return fmt.Errorf("STT max upload bytes must be positive: %d", c.STT.MaxUploadBytes)
	}

	if c.STT.ChunkDuration <= 0 {
		return fmt.Errorf("STT chunk duration must be positive: %s", c.STT.ChunkDuration)
	}

	switch c.LLM.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unsupported LLM provider: %q", c.LLM.Provider)
	}

	if c.LLM.URL == "" {
		return fmt.Errorf("LLM URL must be provided")
	}

	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM max tokens must be positive: %d", c.LLM.MaxTokens)
	}

	if c.TTS.URL == "" {
		return fmt.Errorf("TTS URL must be provided")
	}

	if c.TTS.MaxConcurrent <= 0 {
		return fmt.Errorf("TTS max concurrent must be positive: %d", c.TTS.MaxConcurrent)
	}

	if c.TTS.Speed <= 0 {
		return fmt.Errorf("TTS speed must be positive: %f", c.TTS.Speed)
	}

	switch c.TTS.ResponseFormat {
	case "mp3", "wav":
	default:
		return fmt.Errorf("unsupported TTS format: %q", c.TTS.ResponseFormat)
	}

	return nil
}
