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
	"embed"
	"html/template"
	"net/http"

	"github.com/loqalabs/loqa-voicechat/internal/conversation"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
)

//go:embed static/index.html
var staticFS embed.FS

var indexTemplate = template.Must(template.ParseFS(staticFS, "static/index.html"))

// pageData feeds the chat page template
type pageData struct {
	Title        string
	Language     string
	SessionID    string
	Conversation conversation.Conversation
	Archive      []ArchiveEntry
	AutoplayTurn string
	MaxUpload    int64
}

// renderFunc writes a page from prepared data
type renderFunc func(w http.ResponseWriter, r *http.Request, session *conversation.Session, data *pageData)

// withHistory loads the session's active conversation and archive into the
// page data before calling next
func withHistory(next renderFunc) renderFunc {
	return func(w http.ResponseWriter, r *http.Request, session *conversation.Session, data *pageData) {
		data.SessionID = session.ID
		data.Conversation = session.Snapshot()

		archive := session.Archive()
		data.Archive = make([]ArchiveEntry, len(archive))
		for i, c := range archive {
			data.Archive[i] = ArchiveEntry{Index: i, Conversation: c}
		}

		data.AutoplayTurn = autoplayTurn(data.Conversation)
		next(w, r, session, data)
	}
}

// autoplayTurn returns the ID of the newest assistant turn if its audio has
// not been played yet
func autoplayTurn(c conversation.Conversation) string {
	for i := len(c.Turns) - 1; i >= 0; i-- {
		t := c.Turns[i]
		if t.Role != conversation.RoleAssistant {
			continue
		}
		if t.HasAudio() && !t.Played {
			return t.ID
		}
		return ""
	}
	return ""
}

func renderIndex(w http.ResponseWriter, _ *http.Request, _ *conversation.Session, data *pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := indexTemplate.Execute(w, data); err != nil {
		logging.LogError(err, "Failed to render chat page")
	}
}

// handleIndex serves the chat page, starting a session for new visitors
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var session *conversation.Session
	if c, err := r.Cookie(sessionCookie); err == nil {
		session, _ = s.lookupSession(c.Value)
	}
	if session == nil {
		session = s.createSession(r.Context())
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    session.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	}

	p := s.pipeline.Persona()
	data := &pageData{
		Title:     p.Name,
		Language:  p.Language,
		MaxUpload: s.cfg.STT.MaxUploadBytes,
	}
	withHistory(renderIndex)(w, r, session, data)
}
