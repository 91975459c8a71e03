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

// GenerationRequest is one streamed completion request
type GenerationRequest struct {
	Prompt    string
	MaxTokens int
}

// TokenStream yields generated text segments in order. Recv returns io.EOF
// once the stream is complete.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// TextGenerator defines the interface for streaming language model services
type TextGenerator interface {
	// GenerateStream starts a streamed completion for the prompt
	GenerateStream(ctx context.Context, req GenerationRequest) (TokenStream, error)

	// Close cleans up resources
	Close() error
}
