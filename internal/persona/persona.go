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

// Package persona loads the assistant persona: the prompt template sent to
// the language model and the fixed greeting that opens every conversation.
package persona

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultPersona []byte

// Persona describes one deployment's assistant
type Persona struct {
	Name     string `yaml:"name"`
	Language string `yaml:"language"`

	// Greeting is shown as the first turn of every conversation
	Greeting string `yaml:"greeting"`

	// GreetingSpeech is spoken for the greeting; Greeting is used when empty
	GreetingSpeech string `yaml:"greeting_speech"`

	// Template is a text/template with the slots {{.ChatHistory}} and {{.UserQuery}}
	Template string `yaml:"template"`

	tmpl *template.Template
}

// PromptData fills the prompt template
type PromptData struct {
	ChatHistory string
	UserQuery   string
}

// Default returns the built-in persona
func Default() (*Persona, error) {
	return Parse(defaultPersona)
}

// Load reads a persona from a YAML file, falling back to the built-in
// persona when path is empty
func Load(path string) (*Persona, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file %s: %w", path, err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid persona file %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a YAML persona
func Parse(data []byte) (*Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode persona: %w", err)
	}

	if strings.TrimSpace(p.Greeting) == "" {
		return nil, fmt.Errorf("persona greeting cannot be empty")
	}
	if strings.TrimSpace(p.Template) == "" {
		return nil, fmt.Errorf("persona template cannot be empty")
	}
	if p.GreetingSpeech == "" {
		p.GreetingSpeech = p.Greeting
	}

	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(p.Template)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	p.tmpl = tmpl

	// Catch references to fields other than the two slots at load time
	if _, err := p.Render(PromptData{}); err != nil {
		return nil, err
	}

	return &p, nil
}

// Render fills the prompt template
func (p *Persona) Render(data PromptData) (string, error) {
	if p.tmpl == nil {
		return "", fmt.Errorf("persona template not initialized")
	}

	var sb strings.Builder
	if err := p.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return sb.String(), nil
}
