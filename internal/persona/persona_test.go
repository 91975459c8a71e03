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

package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "ur", p.Language)
	assert.NotEmpty(t, p.Greeting)
	assert.NotEmpty(t, p.GreetingSpeech)

	prompt, err := p.Render(PromptData{ChatHistory: "Assistant: سلام", UserQuery: "میں پریشان ہوں"})
	require.NoError(t, err)
	assert.Contains(t, prompt, "**Chat History:** Assistant: سلام")
	assert.Contains(t, prompt, "**User:** میں پریشان ہوں")
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "valid",
			yaml: "greeting: Hello\ntemplate: \"{{.ChatHistory}} / {{.UserQuery}}\"\n",
		},
		{
			name:    "missing greeting",
			yaml:    "template: \"{{.UserQuery}}\"\n",
			wantErr: "greeting cannot be empty",
		},
		{
			name:    "missing template",
			yaml:    "greeting: Hello\n",
			wantErr: "template cannot be empty",
		},
		{
			name:    "bad template syntax",
			yaml:    "greeting: Hello\ntemplate: \"{{.UserQuery\"\n",
			wantErr: "failed to parse prompt template",
		},
		{
			name:    "unknown slot",
			yaml:    "greeting: Hello\ntemplate: \"{{.Mood}}\"\n",
			wantErr: "failed to render prompt",
		},
		{
			name:    "not yaml",
			yaml:    "greeting: [unterminated",
			wantErr: "failed to decode persona",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse([]byte(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, p.Greeting, p.GreetingSpeech)

			prompt, err := p.Render(PromptData{ChatHistory: "h", UserQuery: "q"})
			require.NoError(t, err)
			assert.Equal(t, "h / q", prompt)
		})
	}
}

func TestLoad(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ur", p.Language)

	path := filepath.Join(t.TempDir(), "persona.yaml")
	content := strings.Join([]string{
		"name: Coach",
		"language: en",
		"greeting: Hi there",
		"greeting_speech: Hi there, how can I help?",
		"template: \"History: {{.ChatHistory}}\\nUser: {{.UserQuery}}\"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	p, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Coach", p.Name)
	assert.Equal(t, "Hi there, how can I help?", p.GreetingSpeech)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
