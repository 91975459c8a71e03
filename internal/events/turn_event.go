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

package events

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-voicechat/internal/errs"
)

// TurnEvent records one processed voice turn for traceability
type TurnEvent struct {
	// Core identification
	UUID           string    `json:"uuid" db:"uuid"`
	SessionID      string    `json:"session_id" db:"session_id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	Timestamp      time.Time `json:"timestamp" db:"timestamp"`

	// Audio metadata
	AudioHash       string `json:"audio_hash" db:"audio_hash"`
	AudioBytes      int64  `json:"audio_bytes" db:"audio_bytes"`
	AudioDurationMS int64  `json:"audio_duration_ms" db:"audio_duration_ms"`
	ChunkCount      int    `json:"chunk_count" db:"chunk_count"`

	// Processing results
	Transcription string `json:"transcription" db:"transcription"`
	ResponseText  string `json:"response_text" db:"response_text"`
	SilentReply   bool   `json:"silent_reply" db:"silent_reply"`

	ProcessingTime int64  `json:"processing_time_ms" db:"processing_time_ms"`
	Success        bool   `json:"success" db:"success"`
	ErrorReason    string `json:"error_reason,omitempty" db:"error_reason"`
	ErrorMessage   string `json:"error_message,omitempty" db:"error_message"`
}

// NewTurnEvent creates a new TurnEvent with generated UUID and current timestamp
func NewTurnEvent(sessionID, conversationID string) *TurnEvent {
	return &TurnEvent{
		UUID:           uuid.NewString(),
		SessionID:      sessionID,
		ConversationID: conversationID,
		Timestamp:      time.Now(),
		Success:        true,
	}
}

// SetAudioMetadata records the size, hash and length of the recording
func (te *TurnEvent) SetAudioMetadata(raw []byte, duration time.Duration, chunks int) {
	sum := sha256.Sum256(raw)
	te.AudioHash = hex.EncodeToString(sum[:])
	te.AudioBytes = int64(len(raw))
	te.AudioDurationMS = duration.Milliseconds()
	te.ChunkCount = chunks
}

// SetTranscription sets the transcription result
func (te *TurnEvent) SetTranscription(transcription string) {
	te.Transcription = transcription
}

// SetResponse sets the response text and whether it was voiced with silence
func (te *TurnEvent) SetResponse(responseText string, silent bool) {
	te.ResponseText = responseText
	te.SilentReply = silent
}

// Complete stamps the total processing time
func (te *TurnEvent) Complete() {
	te.ProcessingTime = time.Since(te.Timestamp).Milliseconds()
}

// SetError marks the event as failed. Only the first error is kept.
func (te *TurnEvent) SetError(err error) {
	if err == nil || !te.Success {
		return
	}
	te.Success = false
	te.ErrorReason = string(errs.Reason(err))
	te.ErrorMessage = err.Error()
	te.Complete()
}

// IsValid performs basic validation on the turn event
func (te *TurnEvent) IsValid() error {
	if te.UUID == "" {
		return fmt.Errorf("UUID is required")
	}

	if te.SessionID == "" {
		return fmt.Errorf("sessionID is required")
	}

	if te.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	if te.ChunkCount < 0 {
		return fmt.Errorf("chunk count cannot be negative")
	}

	return nil
}

// String returns a human-readable representation of the turn event
func (te *TurnEvent) String() string {
	return fmt.Sprintf("TurnEvent{UUID: %s, SessionID: %s, Transcription: %q, Chunks: %d, Success: %t}",
		te.UUID, te.SessionID, te.Transcription, te.ChunkCount, te.Success)
}
