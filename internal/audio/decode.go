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

package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes an MP3 stream into 16-bit stereo PCM.
func DecodeMP3(data []byte) (Segment, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Segment{}, fmt.Errorf("failed to open MP3 stream: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return Segment{}, fmt.Errorf("failed to decode MP3 stream: %w", err)
	}

	// go-mp3 always emits little-endian 16-bit stereo
	seg := Segment{
		Format:        formatPCM,
		SampleRate:    dec.SampleRate(),
		Channels:      2,
		BitsPerSample: 16,
	}
	seg.Data = pcm[:len(pcm)-len(pcm)%seg.BlockAlign()]

	return seg, nil
}

// Decode turns encoded audio in the given format ("mp3" or "wav") into a Segment.
func Decode(data []byte, format string) (Segment, error) {
	switch format {
	case "mp3":
		return DecodeMP3(data)
	case "wav":
		return ParseWAV(data)
	default:
		return Segment{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
