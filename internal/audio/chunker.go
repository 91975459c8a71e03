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
	"fmt"
	"time"
)

// DefaultChunkDuration is the longest span of audio sent in one transcription request.
const DefaultChunkDuration = 5 * time.Minute

// SplitByDuration partitions seg into contiguous, non-overlapping segments of
// at most max duration each, in order. Every chunk holds whole frames, only
// the last one may be shorter than max, and concatenating the chunks' Data
// reproduces seg.Data. Empty audio yields no chunks.
func SplitByDuration(seg Segment, max time.Duration) ([]Segment, error) {
	if max <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive: %s", max)
	}
	if err := seg.validate(); err != nil {
		return nil, err
	}

	framesPerChunk := int(int64(max) * int64(seg.SampleRate) / int64(time.Second))
	if framesPerChunk < 1 {
		return nil, fmt.Errorf("chunk duration %s is shorter than one frame at %d Hz", max, seg.SampleRate)
	}

	align := seg.BlockAlign()
	chunkBytes := framesPerChunk * align
	usable := seg.Frames() * align

	chunks := make([]Segment, 0, (usable+chunkBytes-1)/chunkBytes)
	for start := 0; start < usable; start += chunkBytes {
		end := start + chunkBytes
		if end > usable {
			end = usable
		}

		chunk := seg
		chunk.Data = seg.Data[start:end:end]
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}
