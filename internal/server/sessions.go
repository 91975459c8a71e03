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

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voicechat/internal/audio"
	"github.com/loqalabs/loqa-voicechat/internal/conversation"
	"github.com/loqalabs/loqa-voicechat/internal/errs"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
	"github.com/loqalabs/loqa-voicechat/internal/security"
)

const sessionCookie = "voicechat_session"

// SessionResponse describes a session and its active conversation
type SessionResponse struct {
	SessionID    string                    `json:"session_id"`
	Conversation conversation.Conversation `json:"conversation"`
}

// NewChatResponse is returned after archiving the active conversation
type NewChatResponse struct {
	ArchivedIndex int                       `json:"archived_index"`
	Conversation  conversation.Conversation `json:"conversation"`
}

// ArchiveEntry is one archived conversation with its selection index
type ArchiveEntry struct {
	Index        int                       `json:"index"`
	Conversation conversation.Conversation `json:"conversation"`
}

// lookupSession resolves id to a live session
func (s *Server) lookupSession(id string) (*conversation.Session, error) {
	if err := security.ValidateID(id); err != nil {
		return nil, fmt.Errorf("session %q: %w", security.SanitizeLogInput(id), err)
	}
	return s.sessions.Get(id)
}

// createSession starts a session opened by a voiced greeting
func (s *Server) createSession(ctx context.Context) *conversation.Session {
	session := s.sessions.Create(s.pipeline.Greeting(ctx))
	s.metrics.SetActiveSessions(s.sessions.Len())
	return session
}

// handleCreateSession handles POST /api/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session := s.createSession(r.Context())
	writeJSON(w, http.StatusCreated, SessionResponse{
		SessionID:    session.ID,
		Conversation: session.Snapshot(),
	})
}

// handleEndSession handles DELETE /api/sessions/{id}
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := security.ValidateID(id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.sessions.End(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleConversation handles GET /api/sessions/{id}/conversation
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	session, err := s.lookupSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{SessionID: session.ID, Conversation: session.Snapshot()})
}

// handleTurn handles POST /api/sessions/{id}/turns with a WAV body
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	session, err := s.lookupSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	// Oversize recordings below this bound still reach the transcriber,
	// which answers them with an error turn
	limit := 2 * s.cfg.STT.MaxUploadBytes
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, errs.Wrap(fmt.Errorf("%w: body exceeds %d bytes", errs.ErrAudioTooLarge, limit), errs.ReasonIngest))
			return
		}
		writeError(w, errs.Wrap(fmt.Errorf("%w: %w", errs.ErrIngest, err), errs.ReasonIngest))
		return
	}

	result, err := s.pipeline.ProcessRecording(r.Context(), session, raw)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handlePlayed handles POST /api/sessions/{id}/turns/{turnID}/played
func (s *Server) handlePlayed(w http.ResponseWriter, r *http.Request) {
	session, err := s.lookupSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := session.MarkPlayed(r.PathValue("turnID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNewChat handles POST /api/sessions/{id}/new-chat
func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	session, err := s.lookupSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	// Waits for a running turn so its reply lands in the archived conversation
	release, err := session.BeginTurn(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer release()

	index := session.ArchiveAndReset(s.pipeline.Greeting(r.Context()))
	logging.LogTurnStage(session.ID, "new_chat", zap.Int("archived_index", index))

	writeJSON(w, http.StatusOK, NewChatResponse{ArchivedIndex: index, Conversation: session.Snapshot()})
}

// handleArchive handles GET /api/sessions/{id}/archive
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	session, err := s.lookupSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	archive := session.Archive()
	entries := make([]ArchiveEntry, len(archive))
	for i, c := range archive {
		entries[i] = ArchiveEntry{Index: i, Conversation: c}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleSelect handles POST /api/sessions/{id}/archive/{index}/select
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	session, err := s.lookupSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "archive index must be an integer"})
		return
	}

	release, err := session.BeginTurn(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer release()

	if err := session.Select(index); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{SessionID: session.ID, Conversation: session.Snapshot()})
}

// handleAudio handles GET /audio/{handle}. The session is named by the
// "session" query parameter or the session cookie and must own the handle.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	if err := security.ValidateID(handle); err != nil {
		writeError(w, err)
		return
	}

	session, err := s.lookupSession(sessionIDFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if !session.OwnsAudio(audio.Handle(handle)) {
		writeError(w, audio.ErrUnknownHandle)
		return
	}

	f, contentType, err := s.audio.Open(audio.Handle(handle))
	if err != nil {
		writeError(w, err)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func sessionIDFromRequest(r *http.Request) string {
	if id := r.URL.Query().Get("session"); id != "" {
		return id
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}
