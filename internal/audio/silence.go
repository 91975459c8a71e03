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

import "time"

// SilenceSampleRate is the sample rate of generated silence.
const SilenceSampleRate = 24000

// Silence returns d of 16-bit mono silence.
func Silence(d time.Duration) Segment {
	frames := int(int64(d) * SilenceSampleRate / int64(time.Second))
	if frames < 0 {
		frames = 0
	}

	return Segment{
		Format:        formatPCM,
		SampleRate:    SilenceSampleRate,
		Channels:      1,
		BitsPerSample: 16,
		Data:          make([]byte, frames*2),
	}
}
