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

package security

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidID is returned for session, turn, event or audio identifiers
// that are not canonical UUIDs
var ErrInvalidID = errors.New("invalid identifier")

// SanitizeLogInput removes line breaks so user-controlled values cannot
// forge extra log lines
func SanitizeLogInput(input string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(input)
}

// ValidateID accepts only canonical lowercase UUID strings, the format of
// every identifier this service issues. Anything else, including path
// separators and parent references, is rejected.
func ValidateID(id string) error {
	if len(id) != 36 {
		return ErrInvalidID
	}

	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return ErrInvalidID
	}

	return nil
}
