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

package logging

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		logLevel  string
		logFormat string
	}{
		{name: "Default values"},
		{name: "Info level console format", logLevel: "info", logFormat: "console"},
		{name: "Debug level JSON format", logLevel: "debug", logFormat: "json"},
		{name: "Invalid format defaults to console", logLevel: "info", logFormat: "invalid"},
		{name: "Invalid level defaults to info", logLevel: "invalid", logFormat: "console"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.logLevel)
			t.Setenv("LOG_FORMAT", tt.logFormat)

			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}

			if Logger == nil {
				t.Error("Logger should not be nil after initialization")
			}
			if Sugar == nil {
				t.Error("Sugar should not be nil after initialization")
			}

			Close()
		})
	}
}

func TestInitializeWithConfig_Level(t *testing.T) {
	if err := InitializeWithConfig(LogConfig{Level: "WARN", Format: "JSON"}); err != nil {
		t.Fatalf("InitializeWithConfig() unexpected error: %v", err)
	}
	defer Close()

	if Logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info level should be disabled at warn level")
	}
	if !Logger.Core().Enabled(zapcore.WarnLevel) {
		t.Error("warn level should be enabled")
	}
}

func fieldMap(entry observer.LoggedEntry) map[string]interface{} {
	fields := make(map[string]interface{})
	for _, field := range entry.Context {
		switch field.Type {
		case zapcore.StringType:
			fields[field.Key] = field.String
		case zapcore.Int64Type:
			fields[field.Key] = field.Integer
		}
	}
	return fields
}

func TestLoggingFunctions(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	Logger = zap.New(core)
	Sugar = Logger.Sugar()

	defer func() {
		Close()
		Logger = nil
		Sugar = nil
	}()

	tests := []struct {
		name        string
		log         func()
		wantMessage string
		wantFields  map[string]interface{}
	}{
		{
			name:        "LogTurnStage",
			log:         func() { LogTurnStage("session-1", "transcribe", zap.Int("chunks", 2)) },
			wantMessage: "Turn stage",
			wantFields: map[string]interface{}{
				"component":  "voice_pipeline",
				"session_id": "session-1",
				"stage":      "transcribe",
				"chunks":     int64(2),
			},
		},
		{
			name:        "LogTranscription",
			log:         func() { LogTranscription("chunk_complete", zap.Int("chunk_index", 0)) },
			wantMessage: "STT operation",
			wantFields: map[string]interface{}{
				"component":   "stt",
				"operation":   "chunk_complete",
				"chunk_index": int64(0),
			},
		},
		{
			name:        "LogGeneration",
			log:         func() { LogGeneration("stream_complete") },
			wantMessage: "LLM operation",
			wantFields:  map[string]interface{}{"component": "llm", "operation": "stream_complete"},
		},
		{
			name:        "LogTTSOperation",
			log:         func() { LogTTSOperation("synthesis_start", zap.String("voice", "alloy")) },
			wantMessage: "TTS operation",
			wantFields:  map[string]interface{}{"component": "tts", "voice": "alloy"},
		},
		{
			name:        "LogNATSEvent",
			log:         func() { LogNATSEvent("voicechat.turns.completed", "publish") },
			wantMessage: "NATS event",
			wantFields: map[string]interface{}{
				"component": "messaging",
				"subject":   "voicechat.turns.completed",
				"action":    "publish",
			},
		},
		{
			name:        "LogDatabaseOperation",
			log:         func() { LogDatabaseOperation("insert", "turn_events", zap.Int("affected_rows", 1)) },
			wantMessage: "Database operation",
			wantFields: map[string]interface{}{
				"component":     "database",
				"operation":     "insert",
				"table":         "turn_events",
				"affected_rows": int64(1),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.log()

			logs := recorded.All()
			if len(logs) == 0 {
				t.Fatal("Expected log entry but got none")
			}

			entry := logs[len(logs)-1]
			if entry.Message != tt.wantMessage {
				t.Errorf("Expected message %q, got %q", tt.wantMessage, entry.Message)
			}

			fields := fieldMap(entry)
			for key, want := range tt.wantFields {
				if fields[key] != want {
					t.Errorf("Expected %s %v, got %v", key, want, fields[key])
				}
			}
		})
	}

	t.Run("LogError", func(t *testing.T) {
		LogError(errors.New("test error"), "Something went wrong", zap.String("context", "test"))

		logs := recorded.All()
		entry := logs[len(logs)-1]
		if entry.Level != zapcore.ErrorLevel {
			t.Errorf("Expected error level, got %v", entry.Level)
		}

		hasError := false
		for _, field := range entry.Context {
			if field.Key == "error" {
				hasError = true
			}
		}
		if !hasError {
			t.Error("Missing error field")
		}
	})

	t.Run("LogWarn", func(t *testing.T) {
		LogWarn("Careful", zap.String("reason", "test"))

		logs := recorded.All()
		entry := logs[len(logs)-1]
		if entry.Level != zapcore.WarnLevel {
			t.Errorf("Expected warn level, got %v", entry.Level)
		}
	})
}

func TestLoggingFunctions_NilLogger(t *testing.T) {
	Logger = nil
	Sugar = nil

	// None of these may panic without an initialized logger
	LogTurnStage("s", "ingest")
	LogTranscription("chunk_start")
	LogGeneration("stream_start")
	LogTTSOperation("synthesis_start")
	LogNATSEvent("subject", "publish")
	LogDatabaseOperation("insert", "turn_events")
	LogError(errors.New("boom"), "message")
	LogWarn("message")
	Close()
}
