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

// Package audio handles recorded and synthesized audio: WAV framing,
// duration-based chunking, MP3 decoding and temporary file storage.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	formatPCM        uint16 = 1
	formatIEEEFloat  uint16 = 3
	formatExtensible uint16 = 0xFFFE

	wavHeaderSize = 44
)

var (
	ErrNotWAV            = errors.New("not a RIFF/WAVE stream")
	ErrUnsupportedWAV    = errors.New("unsupported WAV encoding")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidSegment    = errors.New("invalid audio segment")
)

// Segment is decoded, uncompressed audio held in memory. Data holds
// interleaved little-endian frames of BlockAlign() bytes each.
type Segment struct {
	Format        uint16
	SampleRate    int
	Channels      int
	BitsPerSample int
	Data          []byte
}

// BlockAlign returns the size in bytes of one frame (one sample per channel).
func (s Segment) BlockAlign() int {
	return s.Channels * s.BitsPerSample / 8
}

// Frames returns the number of complete frames in the segment.
func (s Segment) Frames() int {
	align := s.BlockAlign()
	if align == 0 {
		return 0
	}
	return len(s.Data) / align
}

// Duration returns the playback duration of the segment.
func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(s.Frames()) * time.Second / time.Duration(s.SampleRate)
}

func (s Segment) validate() error {
	if s.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidSegment, s.SampleRate)
	}
	if s.Channels <= 0 {
		return fmt.Errorf("%w: channel count %d", ErrInvalidSegment, s.Channels)
	}
	if s.BitsPerSample <= 0 || s.BitsPerSample%8 != 0 {
		return fmt.Errorf("%w: bits per sample %d", ErrInvalidSegment, s.BitsPerSample)
	}
	return nil
}

// WAV frames the segment as a standalone canonical 44-byte-header WAV file.
func (s Segment) WAV() []byte {
	format := s.Format
	if format == 0 || format == formatExtensible {
		format = formatPCM
	}

	dataSize := uint32(len(s.Data))
	out := make([]byte, wavHeaderSize+len(s.Data))

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], 36+dataSize)
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], format)
	binary.LittleEndian.PutUint16(out[22:24], uint16(s.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(s.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(s.SampleRate*s.BlockAlign()))
	binary.LittleEndian.PutUint16(out[32:34], uint16(s.BlockAlign()))
	binary.LittleEndian.PutUint16(out[34:36], uint16(s.BitsPerSample))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], dataSize)
	copy(out[wavHeaderSize:], s.Data)

	return out
}

// ParseWAV decodes a RIFF/WAVE byte stream. Chunks other than "fmt " and
// "data" are skipped, so files written by browsers and editors with LIST or
// fact chunks are accepted. A trailing partial frame is dropped.
func ParseWAV(data []byte) (Segment, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Segment{}, ErrNotWAV
	}

	var (
		seg     Segment
		haveFmt bool
		pos     = 12
	)

	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) {
			// Streaming writers leave the size at 0 or 0xFFFFFFFF; take what is there
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return Segment{}, fmt.Errorf("%w: fmt chunk is %d bytes", ErrNotWAV, end-body)
			}
			fmtChunk := data[body:end]
			seg.Format = binary.LittleEndian.Uint16(fmtChunk[0:2])
			seg.Channels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			seg.SampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			seg.BitsPerSample = int(binary.LittleEndian.Uint16(fmtChunk[14:16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return Segment{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrNotWAV)
			}
			switch seg.Format {
			case formatPCM, formatIEEEFloat, formatExtensible:
			default:
				return Segment{}, fmt.Errorf("%w: format tag %d", ErrUnsupportedWAV, seg.Format)
			}
			if err := seg.validate(); err != nil {
				return Segment{}, err
			}
			payload := data[body:end]
			payload = payload[:len(payload)-len(payload)%seg.BlockAlign()]
			seg.Data = append([]byte(nil), payload...)
			return seg, nil
		}

		// Chunks are word aligned
		pos = end + size%2
		if end == len(data) {
			break
		}
	}

	if !haveFmt {
		return Segment{}, fmt.Errorf("%w: missing fmt chunk", ErrNotWAV)
	}
	return Segment{}, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
}

// Float32Mono converts 16-bit PCM to mono float32 samples in [-1, 1],
// averaging channels. It is the input format of local speech models.
func (s Segment) Float32Mono() ([]float32, error) {
	if s.BitsPerSample != 16 || s.Format == formatIEEEFloat {
		return nil, fmt.Errorf("%w: need 16-bit PCM, got %d-bit format %d",
			ErrUnsupportedWAV, s.BitsPerSample, s.Format)
	}
	if s.Channels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrInvalidSegment, s.Channels)
	}

	frames := s.Frames()
	samples := make([]float32, frames)
	align := s.BlockAlign()

	for i := 0; i < frames; i++ {
		frame := s.Data[i*align : (i+1)*align]
		var sum float32
		for c := 0; c < s.Channels; c++ {
			sum += float32(int16(binary.LittleEndian.Uint16(frame[c*2:]))) / 32768.0
		}
		samples[i] = sum / float32(s.Channels)
	}

	return samples, nil
}
