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

// Package conversation holds per-session chat state: the active
// conversation and the archive of earlier ones.
package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/loqalabs/loqa-voicechat/internal/audio"
)

// Role identifies who produced a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label is the speaker name used when serializing history for a prompt
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// AudioRef points at the stored audio of a turn
type AudioRef struct {
	Handle     audio.Handle `json:"handle"`
	Format     string       `json:"format"`
	DurationMS int64        `json:"duration_ms"`
}

// Turn is one utterance. Turns are not modified after they are appended,
// except for the Played flag.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Audio     *AudioRef `json:"audio,omitempty"`
	Played    bool      `json:"played"`
	CreatedAt time.Time `json:"created_at"`
}

// HasAudio reports whether the turn carries an audio artifact
func (t Turn) HasAudio() bool {
	return t.Audio != nil && t.Audio.Handle != ""
}

// Conversation is an ordered list of turns, oldest first
type Conversation struct {
	ID        string    `json:"id"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
}

func (c Conversation) clone() Conversation {
	out := c
	out.Turns = make([]Turn, len(c.Turns))
	for i, t := range c.Turns {
		if t.Audio != nil {
			ref := *t.Audio
			t.Audio = &ref
		}
		out.Turns[i] = t
	}
	return out
}

// Transcript serializes the conversation as one "Role: text" line per turn
func (c Conversation) Transcript() string {
	var sb strings.Builder
	for i, t := range c.Turns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s: %s", t.Role.Label(), t.Text)
	}
	return sb.String()
}

// AudioHandles lists every audio handle referenced by the conversation
func (c Conversation) AudioHandles() []audio.Handle {
	var handles []audio.Handle
	for _, t := range c.Turns {
		if t.HasAudio() {
			handles = append(handles, t.Audio.Handle)
		}
	}
	return handles
}
