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
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pcm16 builds a 16-bit segment with a deterministic ramp of samples.
func pcm16(sampleRate, channels, frames int) Segment {
	seg := Segment{
		Format:        formatPCM,
		SampleRate:    sampleRate,
		Channels:      channels,
		BitsPerSample: 16,
		Data:          make([]byte, frames*channels*2),
	}
	for i := 0; i < frames*channels; i++ {
		binary.LittleEndian.PutUint16(seg.Data[i*2:], uint16(i%65536))
	}
	return seg
}

func riffChunk(id string, body []byte) []byte {
	out := make([]byte, 8, 8+len(body)+1)
	copy(out[0:4], id)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(body)))
	out = append(out, body...)
	if len(body)%2 == 1 {
		out = append(out, 0)
	}
	return out
}

func fmtBody(format uint16, channels, sampleRate, bits int) []byte {
	body := make([]byte, 16)
	align := channels * bits / 8
	binary.LittleEndian.PutUint16(body[0:2], format)
	binary.LittleEndian.PutUint16(body[2:4], uint16(channels))
	binary.LittleEndian.PutUint32(body[4:8], uint32(sampleRate))
	binary.LittleEndian.PutUint32(body[8:12], uint32(sampleRate*align))
	binary.LittleEndian.PutUint16(body[12:14], uint16(align))
	binary.LittleEndian.PutUint16(body[14:16], uint16(bits))
	return body
}

func riff(chunks ...[]byte) []byte {
	out := []byte("RIFF\x00\x00\x00\x00WAVE")
	for _, c := range chunks {
		out = append(out, c...)
	}
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))
	return out
}

func TestSegmentWAVRoundTrip(t *testing.T) {
	seg := pcm16(16000, 1, 1600)

	wav := seg.WAV()
	require.Len(t, wav, wavHeaderSize+len(seg.Data))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))

	parsed, err := ParseWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, seg, parsed)
}

func TestParseWAV_SkipsUnknownChunks(t *testing.T) {
	seg := pcm16(8000, 2, 400)
	data := riff(
		riffChunk("fmt ", fmtBody(formatPCM, 2, 8000, 16)),
		riffChunk("LIST", []byte("INFOISFT\x05\x00\x00\x00test\x00")),
		riffChunk("data", seg.Data),
	)

	parsed, err := ParseWAV(data)
	require.NoError(t, err)
	assert.Equal(t, 8000, parsed.SampleRate)
	assert.Equal(t, 2, parsed.Channels)
	assert.Equal(t, seg.Data, parsed.Data)
}

func TestParseWAV_StreamingSizeField(t *testing.T) {
	seg := pcm16(16000, 1, 100)
	data := riff(riffChunk("fmt ", fmtBody(formatPCM, 1, 16000, 16)))
	data = append(data, []byte("data\xff\xff\xff\xff")...)
	data = append(data, seg.Data...)

	parsed, err := ParseWAV(data)
	require.NoError(t, err)
	assert.Equal(t, seg.Data, parsed.Data)
}

func TestParseWAV_DropsPartialFrame(t *testing.T) {
	seg := pcm16(16000, 1, 10)
	data := riff(
		riffChunk("fmt ", fmtBody(formatPCM, 1, 16000, 16)),
		riffChunk("data", append(append([]byte{}, seg.Data...), 0x7f)),
	)

	parsed, err := ParseWAV(data)
	require.NoError(t, err)
	assert.Equal(t, seg.Data, parsed.Data)
}

func TestParseWAV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "empty", data: nil, wantErr: ErrNotWAV},
		{name: "not riff", data: []byte("hello, this is not audio"), wantErr: ErrNotWAV},
		{name: "missing fmt", data: riff(riffChunk("data", []byte{0, 0})), wantErr: ErrNotWAV},
		{name: "missing data", data: riff(riffChunk("fmt ", fmtBody(formatPCM, 1, 16000, 16))), wantErr: ErrNotWAV},
		{
			name:    "short fmt",
			data:    riff(riffChunk("fmt ", []byte{1, 0, 1, 0})),
			wantErr: ErrNotWAV,
		},
		{
			name: "adpcm",
			data: riff(
				riffChunk("fmt ", fmtBody(2, 1, 16000, 16)),
				riffChunk("data", []byte{0, 0}),
			),
			wantErr: ErrUnsupportedWAV,
		},
		{
			name: "zero sample rate",
			data: riff(
				riffChunk("fmt ", fmtBody(formatPCM, 1, 0, 16)),
				riffChunk("data", []byte{0, 0}),
			),
			wantErr: ErrInvalidSegment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWAV(tt.data)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSegmentDuration(t *testing.T) {
	tests := []struct {
		name string
		seg  Segment
		want time.Duration
	}{
		{name: "one second mono", seg: pcm16(16000, 1, 16000), want: time.Second},
		{name: "half second stereo", seg: pcm16(44100, 2, 22050), want: 500 * time.Millisecond},
		{name: "empty", seg: pcm16(16000, 1, 0), want: 0},
		{name: "no sample rate", seg: Segment{Channels: 1, BitsPerSample: 16}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.seg.Duration())
		})
	}
}

func TestFloat32Mono(t *testing.T) {
	seg := Segment{Format: formatPCM, SampleRate: 16000, Channels: 2, BitsPerSample: 16, Data: make([]byte, 8)}
	// frame 0: 16384, 16384; frame 1: -32768, 0
	binary.LittleEndian.PutUint16(seg.Data[0:], 16384)
	binary.LittleEndian.PutUint16(seg.Data[2:], 16384)
	binary.LittleEndian.PutUint16(seg.Data[4:], 0x8000)
	binary.LittleEndian.PutUint16(seg.Data[6:], 0)

	samples, err := seg.Float32Mono()
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.InDelta(t, 0.5, samples[0], 1e-6)
	assert.InDelta(t, -0.5, samples[1], 1e-6)

	_, err = Segment{Format: formatIEEEFloat, SampleRate: 16000, Channels: 1, BitsPerSample: 32}.Float32Mono()
	assert.ErrorIs(t, err, ErrUnsupportedWAV)
}
