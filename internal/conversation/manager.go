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

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voicechat/internal/errs"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
)

// Reasons a session ends
const (
	EndExplicit = "ended"
	EndIdle     = "idle"
	EndShutdown = "shutdown"
)

// EndFunc is called once for every session that ends
type EndFunc func(s *Session, reason string)

// Manager tracks live sessions
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	idleTTL time.Duration
	onEnd   EndFunc
}

// NewManager creates a session manager. Sessions idle for longer than
// idleTTL are ended by Reap; zero disables expiry.
func NewManager(idleTTL time.Duration, onEnd EndFunc) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		idleTTL:  idleTTL,
		onEnd:    onEnd,
	}
}

// Create starts a new session seeded with greeting
func (m *Manager) Create(greeting Turn) *Session {
	s := NewSession(greeting)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if logging.Sugar != nil {
		logging.Sugar.Infow("💬 Session created", "session_id", s.ID)
	}
	return s
}

// Get returns a live session
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, errs.Wrap(fmt.Errorf("%w: %s", errs.ErrSessionNotFound, id), errs.ReasonSession)
	}
	return s, nil
}

// End waits for a running turn to finish, then removes the session and
// runs the end hook
func (m *Manager) End(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}

	release, err := s.BeginTurn(ctx)
	if err != nil {
		return err
	}
	defer release()

	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return errs.Wrap(fmt.Errorf("%w: %s", errs.ErrSessionNotFound, id), errs.ReasonSession)
	}

	s.markEnded()
	m.finish(s, EndExplicit)
	return nil
}

func (m *Manager) finish(s *Session, reason string) {
	if logging.Logger != nil {
		logging.Logger.Info("💬 Session closed",
			zap.String("session_id", s.ID),
			zap.String("reason", reason),
			zap.Duration("age", time.Since(s.CreatedAt)),
		)
	}
	if m.onEnd != nil {
		m.onEnd(s, reason)
	}
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap ends sessions idle since before now minus the idle TTL. Sessions
// with a running turn are skipped. It returns the number of sessions ended.
func (m *Manager) Reap(now time.Time) int {
	if m.idleTTL <= 0 {
		return 0
	}

	var expired []*Session
	var releases []func()

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActive()) < m.idleTTL {
			continue
		}
		release, ok := s.tryBeginTurn()
		if !ok {
			continue
		}
		s.markEnded()
		expired = append(expired, s)
		releases = append(releases, release)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for i, s := range expired {
		m.finish(s, EndIdle)
		releases[i]()
	}
	return len(expired)
}

// Run reaps idle sessions every interval until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if m.idleTTL <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Reap(now); n > 0 && logging.Sugar != nil {
				logging.Sugar.Infow("🧹 Reaped idle sessions", "count", n)
			}
		}
	}
}

// Close ends every session
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.markEnded()
		m.finish(s, EndShutdown)
	}
}
