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

	"github.com/loqalabs/loqa-voicechat/internal/errs"
)

// Ingest checks that raw is a WAV recording and persists it. On failure it
// returns an error carrying errs.ErrIngest and no handle.
func Ingest(store Saver, raw []byte) (Handle, error) {
	if _, err := ParseWAV(raw); err != nil {
		return "", errs.Wrap(fmt.Errorf("%w: %w", errs.ErrIngest, err), errs.ReasonIngest)
	}

	handle, err := store.Save(raw, "wav")
	if err != nil {
		return "", errs.Wrap(fmt.Errorf("%w: %w", errs.ErrIngest, err), errs.ReasonIngest)
	}

	return handle, nil
}
