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

import "context"

// SpeechRequest is one speech-to-text call: a single WAV file and the
// decoding parameters sent alongside it.
type SpeechRequest struct {
	Audio          []byte
	Filename       string
	Model          string
	Language       string
	Temperature    float32
	ResponseFormat string
}

// SpeechRecognizer defines the interface for speech-to-text services
type SpeechRecognizer interface {
	// Recognize transcribes one WAV file
	Recognize(ctx context.Context, req SpeechRequest) (string, error)

	// Close cleans up resources
	Close() error
}
