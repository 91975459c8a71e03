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
	"testing"

	"github.com/google/uuid"
)

func TestSanitizeLogInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Clean input", input: "session created", expected: "session created"},
		{name: "Newline", input: "line1\nline2", expected: "line1line2"},
		{name: "CRLF sequence", input: "line1\r\nline2", expected: "line1line2"},
		{name: "Forged log line", input: "/tmp/voicechat.db\nERROR: fake", expected: "/tmp/voicechat.dbERROR: fake"},
		{name: "Only line breaks", input: "\n\r\n", expected: ""},
		{name: "Urdu preserved", input: "سلام\nدنیا", expected: "سلامدنیا"},
		{name: "Empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeLogInput(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeLogInput(%q) = %q, want %q", tt.input, result, tt.expected)
			}
			if strings.ContainsAny(result, "\r\n") {
				t.Errorf("SanitizeLogInput(%q) still contains line breaks: %q", tt.input, result)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	valid := uuid.NewString()

	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "Generated UUID", id: valid},
		{name: "Empty", id: "", wantErr: true},
		{name: "Uppercase", id: strings.ToUpper(valid), wantErr: true},
		{name: "Braced", id: "{" + valid + "}", wantErr: true},
		{name: "URN form", id: "urn:uuid:" + valid, wantErr: true},
		{name: "Path traversal", id: "../../../../etc/passwd", wantErr: true},
		{name: "Traversal padded to length", id: "../../../../../../../../etc/passwdxx", wantErr: true},
		{name: "Slash inside", id: valid[:8] + "/" + valid[9:], wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidID) {
					t.Errorf("ValidateID(%q) = %v, want ErrInvalidID", tt.id, err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateID(%q) unexpected error: %v", tt.id, err)
			}
		})
	}
}

func BenchmarkSanitizeLogInput(b *testing.B) {
	input := "session\nid with\r\nline breaks"
	for i := 0; i < b.N; i++ {
		SanitizeLogInput(input)
	}
}
