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

package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-voicechat/internal/audio"
	"github.com/loqalabs/loqa-voicechat/internal/errs"
)

// Session is one user's chat state: an active conversation plus an
// append-only archive of earlier conversations
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.RWMutex
	active     Conversation
	archive    []Conversation
	detached   []audio.Handle // audio of conversations replaced by Select
	lastActive time.Time
	ended      bool

	// turnSlot admits one turn at a time
	turnSlot chan struct{}
}

// NewSession creates a session whose active conversation starts with greeting
func NewSession(greeting Turn) *Session {
	now := time.Now()
	s := &Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		lastActive: now,
		turnSlot:   make(chan struct{}, 1),
	}
	s.active = freshConversation(greeting)
	return s
}

func freshConversation(greeting Turn) Conversation {
	greeting.Role = RoleAssistant
	return Conversation{
		ID:        uuid.NewString(),
		Turns:     []Turn{stamp(greeting)},
		CreatedAt: time.Now(),
	}
}

func stamp(t Turn) Turn {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	return t
}

// Append adds a turn to the end of the active conversation and returns it
// with its ID and timestamp filled in
func (s *Session) Append(turn Turn) Turn {
	turn = stamp(turn)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.active.Turns = append(s.active.Turns, turn)
	s.lastActive = time.Now()
	return turn
}

// ArchiveAndReset moves the active conversation to the end of the archive
// and starts a new one holding only greeting. It returns the archive index
// of the moved conversation.
func (s *Session) ArchiveAndReset(greeting Turn) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.archive = append(s.archive, s.active)
	s.active = freshConversation(greeting)
	s.lastActive = time.Now()
	return len(s.archive) - 1
}

// Select makes a copy of an archived conversation the active one. The
// archive is left unchanged.
func (s *Session) Select(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.archive) {
		return errs.Wrap(fmt.Errorf("%w: %d (archive has %d entries)", errs.ErrArchiveIndex, index, len(s.archive)), errs.ReasonSession)
	}

	s.detached = append(s.detached, s.active.AudioHandles()...)
	s.active = s.archive[index].clone()
	s.lastActive = time.Now()
	return nil
}

// MarkPlayed records that a turn's audio has been played
func (s *Session) MarkPlayed(turnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.active.Turns {
		if s.active.Turns[i].ID == turnID {
			s.active.Turns[i].Played = true
			s.lastActive = time.Now()
			return nil
		}
	}
	return errs.Wrap(fmt.Errorf("%w: %s", errs.ErrTurnNotFound, turnID), errs.ReasonSession)
}

// Snapshot returns a copy of the active conversation
func (s *Session) Snapshot() Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.clone()
}

// Archive returns copies of all archived conversations, oldest first
func (s *Session) Archive() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Conversation, len(s.archive))
	for i, c := range s.archive {
		out[i] = c.clone()
	}
	return out
}

// AudioHandles lists every distinct audio handle held by the session
func (s *Session) AudioHandles() []audio.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[audio.Handle]struct{})
	var handles []audio.Handle
	collect := func(hs []audio.Handle) {
		for _, h := range hs {
			if _, ok := seen[h]; !ok {
				seen[h] = struct{}{}
				handles = append(handles, h)
			}
		}
	}

	collect(s.active.AudioHandles())
	for _, c := range s.archive {
		collect(c.AudioHandles())
	}
	collect(s.detached)
	return handles
}

// OwnsAudio reports whether handle belongs to one of the session's turns
func (s *Session) OwnsAudio(handle audio.Handle) bool {
	for _, h := range s.AudioHandles() {
		if h == handle {
			return true
		}
	}
	return false
}

// BeginTurn waits until no other turn is running in the session. The
// returned function ends the turn. Anything that changes the conversation
// layout (turns, New Chat, Select) runs between BeginTurn and its release.
// It fails with errs.ErrSessionNotFound once the session has ended.
func (s *Session) BeginTurn(ctx context.Context) (func(), error) {
	select {
	case s.turnSlot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if s.isEnded() {
		<-s.turnSlot
		return nil, errs.Wrap(fmt.Errorf("%w: %s", errs.ErrSessionNotFound, s.ID), errs.ReasonSession)
	}

	s.touch()
	return s.releaseFunc(), nil
}

// tryBeginTurn takes the turn slot only if it is free
func (s *Session) tryBeginTurn() (func(), bool) {
	select {
	case s.turnSlot <- struct{}{}:
		return s.releaseFunc(), true
	default:
		return nil, false
	}
}

func (s *Session) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(func() { <-s.turnSlot })
	}
}

func (s *Session) markEnded() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
}

func (s *Session) isEnded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ended
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns the time of the latest change or turn in the session
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}
